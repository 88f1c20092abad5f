package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/common/messaging"
	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
	"github.com/telhawk-systems/slack-connector/connector/internal/metrics"
)

// Transport delivers an envelope to a set of blocks.
type Transport interface {
	// Send delivers env to every block independently. Failures are joined
	// into the returned error; successful deliveries are not rolled back.
	Send(ctx context.Context, blockIDs []string, env Envelope) error
}

// DeadLetterWriter receives deliveries that failed.
type DeadLetterWriter interface {
	Write(ctx context.Context, env Envelope, cause error) error
}

// deliverFunc publishes one already-addressed message.
type deliverFunc func(ctx context.Context, msg *messaging.Message, env Envelope) error

// BusTransport publishes each delivery to the block's subject.
type BusTransport struct {
	prefix  string
	deliver deliverFunc
	dlq     DeadLetterWriter
	logger  *slog.Logger
}

// Option configures a BusTransport.
type Option func(*BusTransport)

// WithSubjectPrefix overrides messaging.DefaultBlockSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(t *BusTransport) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithDeadLetter sends failed deliveries to dlq.
func WithDeadLetter(dlq DeadLetterWriter) Option {
	return func(t *BusTransport) {
		t.dlq = dlq
	}
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(t *BusTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewNATSTransport publishes with core NATS: at-most-once and only to
// subscribers connected at publish time.
func NewNATSTransport(pub messaging.Publisher, opts ...Option) *BusTransport {
	return newBusTransport(func(ctx context.Context, msg *messaging.Message, _ Envelope) error {
		return pub.PublishMsg(ctx, msg)
	}, opts...)
}

// NewJetStreamTransport publishes into the CONNECTOR_BLOCKS stream and waits
// for the server ack. Passive events use the dedup key as message id so a
// Slack redelivery within the stream's duplicate window is dropped.
func NewJetStreamTransport(js *natsclient.JetStreamClient, opts ...Option) *BusTransport {
	return newBusTransport(func(ctx context.Context, msg *messaging.Message, env Envelope) error {
		_, err := js.PublishMsgSync(ctx, msg, jetStreamMsgID(env))
		return err
	}, opts...)
}

func newBusTransport(deliver deliverFunc, opts ...Option) *BusTransport {
	t := &BusTransport{
		prefix:  messaging.DefaultBlockSubjectPrefix,
		deliver: deliver,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *BusTransport) Send(ctx context.Context, blockIDs []string, env Envelope) error {
	var errs []error
	for _, blockID := range blockIDs {
		if err := t.sendOne(ctx, blockID, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *BusTransport) sendOne(ctx context.Context, blockID string, env Envelope) error {
	env.BlockID = blockID

	data, err := json.Marshal(env)
	if err == nil {
		msg := &messaging.Message{
			Subject:  messaging.BlockSubject(t.prefix, blockID),
			Data:     data,
			Metadata: env.Headers(),
		}
		err = t.deliver(ctx, msg, env)
	}

	metrics.Dispatches.WithLabelValues(string(env.Route), metrics.Result(err)).Inc()
	if err == nil {
		return nil
	}

	err = fmt.Errorf("deliver to block %s: %w", blockID, err)
	t.logger.ErrorContext(ctx, "dispatch failed",
		logging.BlockID(blockID),
		slog.String("envelope_id", env.ID),
		slog.String("route", string(env.Route)),
		logging.Error(err))

	if t.dlq != nil {
		if dlqErr := t.dlq.Write(ctx, env, err); dlqErr != nil {
			t.logger.ErrorContext(ctx, "dead-letter write failed",
				logging.BlockID(blockID),
				logging.Error(dlqErr))
		}
	}
	return err
}

func jetStreamMsgID(env Envelope) string {
	if env.Route == RoutePassive && env.DedupKey != "" {
		return env.DedupKey + "|" + env.BlockID
	}
	return env.ID + "|" + env.BlockID
}
