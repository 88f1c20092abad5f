package simulator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/telhawk-systems/slack-connector/connector/cli/internal/client"
)

// Sender delivers generated bodies. client.ConnectorClient implements it.
type Sender interface {
	SendEvent(ctx context.Context, body []byte) (*client.Response, error)
	SendInteraction(ctx context.Context, payload []byte) (*client.Response, error)
}

// Summary tallies a run. Accepted counts 200 answers; Rejected counts any
// other status; Failed counts transport errors.
type Summary struct {
	Sent     int            `json:"sent" yaml:"sent"`
	Accepted int            `json:"accepted" yaml:"accepted"`
	Rejected int            `json:"rejected" yaml:"rejected"`
	Failed   int            `json:"failed" yaml:"failed"`
	ByKind   map[string]int `json:"by_kind" yaml:"by_kind"`
	ByStatus map[int]int    `json:"by_status" yaml:"by_status"`
}

// Runner sends Config.Defaults.Count generated requests.
type Runner struct {
	Config    *Config
	Sender    Sender
	Generator *Generator
	Logf      func(format string, args ...interface{})
}

func NewRunner(config *Config, sender Sender, teamID string) *Runner {
	return &Runner{
		Config:    config,
		Sender:    sender,
		Generator: NewGenerator(teamID, config.Defaults),
		Logf:      log.Printf,
	}
}

// Run stops early, returning the partial summary, when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	d := r.Config.Defaults
	r.Logf("Starting simulation: %d requests, kinds %v, interval %v", d.Count, d.Kinds, d.Interval)

	summary := &Summary{ByKind: map[string]int{}, ByStatus: map[int]int{}}
	progressInterval := d.Count / 10
	if progressInterval < 10 {
		progressInterval = 10
	}

	for i := 0; i < d.Count; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		payload, err := r.Generator.Next(r.Generator.Pick(d.Kinds))
		if err != nil {
			return summary, err
		}

		resp, err := r.send(ctx, payload)
		summary.Sent++
		summary.ByKind[string(payload.Kind)]++
		switch {
		case err != nil:
			summary.Failed++
			r.Logf("Failed to send %s: %v", payload.Kind, err)
		case resp.StatusCode == http.StatusOK:
			summary.Accepted++
			summary.ByStatus[resp.StatusCode]++
		default:
			summary.Rejected++
			summary.ByStatus[resp.StatusCode]++
			r.Logf("%s rejected with %d: %s", payload.Kind, resp.StatusCode, resp.Body)
		}

		if summary.Sent%progressInterval == 0 {
			r.Logf("Progress: %d/%d sent (%.1f%%)", summary.Sent, d.Count, float64(summary.Sent)*100/float64(d.Count))
		}

		if d.Interval > 0 && i < d.Count-1 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(d.Interval):
			}
		}
	}

	r.Logf("Simulation complete: %d accepted, %d rejected, %d failed", summary.Accepted, summary.Rejected, summary.Failed)
	return summary, nil
}

func (r *Runner) send(ctx context.Context, p Payload) (*client.Response, error) {
	if p.Kind.Interactive() {
		return r.Sender.SendInteraction(ctx, p.Body)
	}
	resp, err := r.Sender.SendEvent(ctx, p.Body)
	if err != nil {
		return nil, fmt.Errorf("send event: %w", err)
	}
	return resp, nil
}
