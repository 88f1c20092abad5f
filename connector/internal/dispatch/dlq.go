package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/slack-connector/common/messaging"
	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
	"github.com/telhawk-systems/slack-connector/connector/internal/metrics"
)

// FailedDelivery is the dead-letter record for one block.
type FailedDelivery struct {
	Timestamp time.Time `json:"timestamp"`
	BlockID   string    `json:"block_id"`
	Error     string    `json:"error"`
	Envelope  Envelope  `json:"envelope"`
}

// JetStreamDLQ writes failed deliveries to the CONNECTOR_DLQ stream.
type JetStreamDLQ struct {
	js     *natsclient.JetStreamClient
	stream jetstream.Stream
	logger *slog.Logger
}

// NewJetStreamDLQ creates or updates the dead-letter stream.
func NewJetStreamDLQ(ctx context.Context, js *natsclient.JetStreamClient, logger *slog.Logger) (*JetStreamDLQ, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	stream, err := js.CreateOrUpdateStream(ctx, natsclient.DLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}
	logger.Info("dead-letter stream ready", slog.String("stream", natsclient.DLQStream.Name))

	return &JetStreamDLQ{js: js, stream: stream, logger: logger}, nil
}

// Write publishes a FailedDelivery for env.
func (q *JetStreamDLQ) Write(ctx context.Context, env Envelope, cause error) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(FailedDelivery{
		Timestamp: time.Now().UTC(),
		BlockID:   env.BlockID,
		Error:     cause.Error(),
		Envelope:  env,
	})
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	headers := env.Headers()
	headers[messaging.HeaderDispatchError] = cause.Error()

	if _, err := q.js.PublishMsgSync(ctx, &messaging.Message{
		Subject:  messaging.SubjectDispatchFailed,
		Data:     data,
		Metadata: headers,
	}, ""); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	metrics.DeadLettered.Inc()
	return nil
}

// List reads up to limit entries from the start of the stream without
// consuming them.
func (q *JetStreamDLQ) List(ctx context.Context, limit int) ([]FailedDelivery, error) {
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{messaging.SubjectDLQWildcard},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch dlq entries: %w", err)
	}

	var out []FailedDelivery
	for msg := range batch.Messages() {
		var fd FailedDelivery
		if err := json.Unmarshal(msg.Data(), &fd); err != nil {
			q.logger.Warn("skipping unreadable dlq entry", slog.String("error", err.Error()))
			continue
		}
		out = append(out, fd)
	}
	if err := batch.Error(); err != nil {
		q.logger.Warn("dlq fetch completed with error", slog.String("error", err.Error()))
	}
	return out, nil
}

// Purge empties the dead-letter stream.
func (q *JetStreamDLQ) Purge(ctx context.Context) error {
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	return nil
}
