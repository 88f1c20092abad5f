package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/common/messaging"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

// PostMessageCall is the request body on messaging.SubjectAPIPostMessage.
type PostMessageCall struct {
	Channel              string       `json:"channel"`
	Text                 string       `json:"text,omitempty"`
	Blocks               slack.Blocks `json:"blocks"`
	ThreadTS             string       `json:"thread_ts,omitempty"`
	SubscriberBlockID    string       `json:"subscriber_block_id"`
	OriginatingRequestID string       `json:"originating_request_id,omitempty"`
}

// OpenModalCall is the request body on messaging.SubjectAPIOpenModal.
type OpenModalCall struct {
	TriggerID            string                 `json:"trigger_id"`
	View                 slack.ModalViewRequest `json:"view"`
	SubscriberBlockID    string                 `json:"subscriber_block_id"`
	OriginatingRequestID string                 `json:"originating_request_id,omitempty"`
}

// UpdateModalCall is the request body on messaging.SubjectAPIUpdateModal.
type UpdateModalCall struct {
	ViewID               string                 `json:"view_id,omitempty"`
	ExternalID           string                 `json:"external_id,omitempty"`
	Hash                 string                 `json:"hash,omitempty"`
	View                 slack.ModalViewRequest `json:"view"`
	SubscriberBlockID    string                 `json:"subscriber_block_id"`
	OriginatingRequestID string                 `json:"originating_request_id,omitempty"`
}

// Reply answers every call. Error is set when OK is false.
type Reply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
	ViewID  string `json:"view_id,omitempty"`
	Hash    string `json:"hash,omitempty"`
}

// Service exposes the Sender to out-of-process subscribers over NATS
// request/reply.
type Service struct {
	sender        *Sender
	installations installation.Provider
	client        messaging.Client
	logger        *logging.Logger
	subs          []messaging.Subscription
}

func NewService(s *Sender, installations installation.Provider, client messaging.Client, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		sender:        s,
		installations: installations,
		client:        client,
		logger:        logger,
	}
}

// Start subscribes to the API subjects in the shared queue group.
func (svc *Service) Start() error {
	for _, subject := range []string{
		messaging.SubjectAPIPostMessage,
		messaging.SubjectAPIOpenModal,
		messaging.SubjectAPIUpdateModal,
	} {
		sub, err := svc.client.QueueSubscribe(subject, messaging.QueueAPI, svc.handle)
		if err != nil {
			svc.Stop()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		svc.subs = append(svc.subs, sub)
	}
	svc.logger.Info("send API listening", "subjects", len(svc.subs))
	return nil
}

func (svc *Service) Stop() {
	for _, sub := range svc.subs {
		_ = sub.Unsubscribe()
	}
	svc.subs = nil
}

func (svc *Service) handle(ctx context.Context, msg *messaging.Message) error {
	if msg.Reply == "" {
		return errors.New("send API call without reply subject")
	}

	reply := svc.call(ctx, msg)
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return svc.client.Publish(ctx, msg.Reply, data)
}

func (svc *Service) call(ctx context.Context, msg *messaging.Message) Reply {
	inst, err := svc.installations.Resolve(ctx)
	if err != nil {
		return failed(err)
	}

	switch msg.Subject {
	case messaging.SubjectAPIPostMessage:
		var c PostMessageCall
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return failed(fmt.Errorf("decode request: %w", err))
		}
		res, err := svc.sender.PostInteractiveMessage(ctx, inst, MessageRequest{
			Channel:              c.Channel,
			Text:                 c.Text,
			Blocks:               c.Blocks.BlockSet,
			ThreadTS:             c.ThreadTS,
			SubscriberBlockID:    c.SubscriberBlockID,
			OriginatingRequestID: c.OriginatingRequestID,
		})
		if err != nil {
			return failed(err)
		}
		return Reply{OK: true, Channel: res.Channel, TS: res.TS}

	case messaging.SubjectAPIOpenModal:
		var c OpenModalCall
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return failed(fmt.Errorf("decode request: %w", err))
		}
		res, err := svc.sender.OpenModal(ctx, inst, ModalRequest{
			TriggerID:            c.TriggerID,
			View:                 c.View,
			SubscriberBlockID:    c.SubscriberBlockID,
			OriginatingRequestID: c.OriginatingRequestID,
		})
		if err != nil {
			return failed(err)
		}
		return Reply{OK: true, ViewID: res.ViewID, Hash: res.Hash}

	case messaging.SubjectAPIUpdateModal:
		var c UpdateModalCall
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return failed(fmt.Errorf("decode request: %w", err))
		}
		res, err := svc.sender.UpdateModal(ctx, inst, ModalUpdate{
			ViewID:               c.ViewID,
			ExternalID:           c.ExternalID,
			Hash:                 c.Hash,
			View:                 c.View,
			SubscriberBlockID:    c.SubscriberBlockID,
			OriginatingRequestID: c.OriginatingRequestID,
		})
		if err != nil {
			return failed(err)
		}
		return Reply{OK: true, ViewID: res.ViewID, Hash: res.Hash}
	}

	return failed(fmt.Errorf("unknown send API subject %q", msg.Subject))
}

func failed(err error) Reply {
	return Reply{Error: err.Error()}
}

// Call sends req to subject and decodes the Reply. A Reply with OK false is
// returned as an error.
func Call(ctx context.Context, pub messaging.Publisher, subject string, req any, timeout time.Duration) (Reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	msg, err := pub.Request(ctx, subject, data, timeout)
	if err != nil {
		return Reply{}, err
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	if !reply.OK {
		return reply, fmt.Errorf("%s: %s", subject, reply.Error)
	}
	return reply, nil
}
