// Package subscriber is the receiving side of dispatch: it subscribes a
// subscriber block to its delivery subject and hands decoded envelopes to a
// handler.
package subscriber

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/common/messaging"
	natsclient "github.com/telhawk-systems/slack-connector/common/messaging/nats"
	"github.com/telhawk-systems/slack-connector/connector/internal/dispatch"
)

// Handler processes one delivery. A returned error is logged, and for
// durable consumers the message is redelivered.
type Handler func(ctx context.Context, env *dispatch.Envelope) error

type Consumer struct {
	sub    messaging.Subscriber
	prefix string
	logger *logging.Logger
}

type Option func(*Consumer)

// WithSubjectPrefix must match the prefix the connector dispatches on.
func WithSubjectPrefix(prefix string) Option {
	return func(c *Consumer) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewConsumer(sub messaging.Subscriber, opts ...Option) *Consumer {
	c := &Consumer{
		sub:    sub,
		prefix: messaging.DefaultBlockSubjectPrefix,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe joins the queue group for blockID, so each delivery reaches one
// replica of the subscriber.
func (c *Consumer) Subscribe(blockID string, h Handler) (messaging.Subscription, error) {
	subject := messaging.BlockSubject(c.prefix, blockID)
	sub, err := c.sub.QueueSubscribe(subject, messaging.BlockQueue(blockID), c.wrap(blockID, h))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", blockID, err)
	}
	c.logger.Info("subscribed", logging.BlockID(blockID), "subject", subject)
	return sub, nil
}

// SubscribeDurable consumes blockID from a JetStream stream through a durable
// consumer named after the block queue. Failed handlers are redelivered. The
// returned func stops consumption.
func (c *Consumer) SubscribeDurable(ctx context.Context, js *natsclient.JetStreamClient, stream, blockID string, h Handler) (func(), error) {
	subject := messaging.BlockSubject(c.prefix, blockID)
	cfg := natsclient.DefaultConsumerConfig(messaging.BlockQueue(blockID), subject)

	if _, err := js.CreateOrUpdateConsumer(ctx, stream, cfg); err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", blockID, err)
	}
	stop, err := js.ConsumeMessages(ctx, stream, cfg.Name, c.wrap(blockID, h))
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", blockID, err)
	}
	c.logger.Info("consuming durably", logging.BlockID(blockID), "stream", stream, "consumer", cfg.Name)
	return stop, nil
}

func (c *Consumer) wrap(blockID string, h Handler) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		env, err := dispatch.Decode(msg)
		if err != nil {
			c.logger.WarnContext(ctx, "dropping undecodable delivery",
				logging.BlockID(blockID),
				logging.Error(err))
			// acked: a malformed body stays malformed
			return nil
		}
		if err := h(ctx, env); err != nil {
			c.logger.ErrorContext(ctx, "subscriber handler failed",
				logging.BlockID(blockID),
				logging.EventType(env.Type),
				logging.Error(err))
			return err
		}
		return nil
	}
}
