package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// Healthy reports whether the connection can be used.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// Err converts the status into an error suitable for readiness checks.
func (s HealthStatus) Err() error {
	if s.Healthy() {
		return nil
	}
	if s.Error == "" {
		return errors.New("message broker unavailable")
	}
	return errors.New(s.Error)
}

// CheckClientHealth checks the connection and measures a ping round trip.
// A request that fails only because nobody answers the ping still proves the
// server is reachable, so it is not reported as an error.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	_, err := client.Request(ctx, SubjectHealthPing, []byte("ping"), 2*time.Second)
	status.Latency = time.Since(start)

	if err != nil && !client.IsConnected() {
		status.Connected = false
		status.Error = fmt.Sprintf("health check failed: %v", err)
	}

	return status
}
