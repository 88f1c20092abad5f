// Package sender creates interactive Slack artifacts on behalf of
// subscribers and records which subscriber owns each one, so the callback
// that later arrives on the shared interactivity endpoint can be routed back.
package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/metrics"
)

var (
	ErrMissingChannel    = errors.New("sender: channel is required")
	ErrMissingTrigger    = errors.New("sender: trigger id is required")
	ErrMissingView       = errors.New("sender: view id or external id is required")
	ErrMissingSubscriber = errors.New("sender: subscriber block id is required")
)

// SlackAPI is the part of *slack.Client the sender uses.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	UpdateViewContext(ctx context.Context, view slack.ModalViewRequest, externalID, hash, viewID string) (*slack.ViewResponse, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// NewClient builds a Web API client for inst. apiURL overrides the Slack
// endpoint and must end with a slash; empty uses the public API.
func NewClient(inst installation.Installation, apiURL string) *slack.Client {
	var opts []slack.Option
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return slack.New(inst.BotToken, opts...)
}

type Sender struct {
	api    SlackAPI
	store  *correlation.Store
	logger *logging.Logger
}

func New(api SlackAPI, store *correlation.Store, logger *logging.Logger) *Sender {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sender{api: api, store: store, logger: logger}
}

// MessageRequest is a message with interactive blocks owned by
// SubscriberBlockID.
type MessageRequest struct {
	Channel  string
	Text     string
	Blocks   []slack.Block
	ThreadTS string

	SubscriberBlockID    string
	OriginatingRequestID string
}

type MessageResult struct {
	Channel string
	TS      string
}

// PostInteractiveMessage posts via chat.postMessage and records the returned
// ts for the subscriber. If recording fails the message has still been
// posted; the result is returned together with the error.
func (s *Sender) PostInteractiveMessage(ctx context.Context, inst installation.Installation, req MessageRequest) (MessageResult, error) {
	if req.Channel == "" {
		return MessageResult{}, ErrMissingChannel
	}
	if req.SubscriberBlockID == "" {
		return MessageResult{}, ErrMissingSubscriber
	}

	opts := []slack.MsgOption{slack.MsgOptionText(req.Text, false)}
	if len(req.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(req.Blocks...))
	}
	if req.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(req.ThreadTS))
	}

	channel, ts, err := s.api.PostMessageContext(ctx, req.Channel, opts...)
	metrics.SlackAPICalls.WithLabelValues("chat.postMessage", metrics.Result(err)).Inc()
	if err != nil {
		return MessageResult{}, fmt.Errorf("chat.postMessage: %w", err)
	}

	result := MessageResult{Channel: channel, TS: ts}
	if err := s.record(ctx, inst, "message", ts, req.SubscriberBlockID, req.OriginatingRequestID); err != nil {
		return result, err
	}
	return result, nil
}

// ModalRequest opens View for the user behind TriggerID.
type ModalRequest struct {
	TriggerID string
	View      slack.ModalViewRequest

	SubscriberBlockID    string
	OriginatingRequestID string
}

// ModalUpdate replaces an open view, addressed by ViewID or ExternalID. Hash
// guards against racing updates when set.
type ModalUpdate struct {
	ViewID     string
	ExternalID string
	Hash       string
	View       slack.ModalViewRequest

	SubscriberBlockID    string
	OriginatingRequestID string
}

type ViewResult struct {
	ViewID string
	Hash   string
}

// OpenModal opens a view via views.open and records the view id for the
// subscriber.
func (s *Sender) OpenModal(ctx context.Context, inst installation.Installation, req ModalRequest) (ViewResult, error) {
	if req.TriggerID == "" {
		return ViewResult{}, ErrMissingTrigger
	}
	if req.SubscriberBlockID == "" {
		return ViewResult{}, ErrMissingSubscriber
	}

	resp, err := s.api.OpenViewContext(ctx, req.TriggerID, req.View)
	metrics.SlackAPICalls.WithLabelValues("views.open", metrics.Result(err)).Inc()
	if err != nil {
		return ViewResult{}, fmt.Errorf("views.open: %w", err)
	}

	result := ViewResult{ViewID: resp.ID, Hash: resp.Hash}
	if err := s.record(ctx, inst, "view", resp.ID, req.SubscriberBlockID, req.OriginatingRequestID); err != nil {
		return result, err
	}
	return result, nil
}

// UpdateModal updates a view via views.update and records it again, which
// refreshes the TTL and lets ownership move to another subscriber.
func (s *Sender) UpdateModal(ctx context.Context, inst installation.Installation, req ModalUpdate) (ViewResult, error) {
	if req.ViewID == "" && req.ExternalID == "" {
		return ViewResult{}, ErrMissingView
	}
	if req.SubscriberBlockID == "" {
		return ViewResult{}, ErrMissingSubscriber
	}

	resp, err := s.api.UpdateViewContext(ctx, req.View, req.ExternalID, req.Hash, req.ViewID)
	metrics.SlackAPICalls.WithLabelValues("views.update", metrics.Result(err)).Inc()
	if err != nil {
		return ViewResult{}, fmt.Errorf("views.update: %w", err)
	}

	viewID := resp.ID
	if viewID == "" {
		viewID = req.ViewID
	}
	result := ViewResult{ViewID: viewID, Hash: resp.Hash}
	if err := s.record(ctx, inst, "view", viewID, req.SubscriberBlockID, req.OriginatingRequestID); err != nil {
		return result, err
	}
	return result, nil
}

// ResolveIdentity fills the bot user id, bot id and team id from auth.test
// when any of them is missing from inst.
func (s *Sender) ResolveIdentity(ctx context.Context, inst installation.Installation) (installation.Installation, error) {
	if inst.BotUserID != "" && inst.BotID != "" && inst.TeamID != "" {
		return inst, nil
	}

	resp, err := s.api.AuthTestContext(ctx)
	metrics.SlackAPICalls.WithLabelValues("auth.test", metrics.Result(err)).Inc()
	if err != nil {
		return inst, fmt.Errorf("auth.test: %w", err)
	}

	if inst.BotUserID == "" {
		inst.BotUserID = resp.UserID
	}
	if inst.BotID == "" {
		inst.BotID = resp.BotID
	}
	if inst.TeamID == "" {
		inst.TeamID = resp.TeamID
	}

	s.logger.Info("resolved bot identity",
		logging.TeamID(inst.TeamID),
		logging.User(inst.BotUserID))
	return inst, nil
}

func (s *Sender) record(ctx context.Context, inst installation.Installation, artifact, subjectID, blockID, originatingRequestID string) error {
	if err := s.store.Record(ctx, inst, subjectID, blockID, originatingRequestID); err != nil {
		s.logger.ErrorContext(ctx, "artifact created but correlation not recorded",
			logging.SubjectID(subjectID),
			logging.BlockID(blockID),
			logging.Error(err))
		return fmt.Errorf("record %s correlation: %w", artifact, err)
	}
	metrics.CorrelationRecords.WithLabelValues(artifact).Inc()
	return nil
}
