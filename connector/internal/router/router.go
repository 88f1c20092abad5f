// Package router decides who receives a verified Slack payload: every
// interested subscriber for passive events, or the single subscriber that
// created the artifact for interactions.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/common/middleware"
	"github.com/telhawk-systems/slack-connector/connector/internal/activity"
	"github.com/telhawk-systems/slack-connector/connector/internal/classify"
	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/dispatch"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/metrics"
	"github.com/telhawk-systems/slack-connector/connector/internal/registry"
)

// Action is what the router did with a payload.
type Action string

const (
	ActionEchoChallenge  Action = "echo_challenge"
	ActionDispatched     Action = "dispatched"
	ActionNoRecipients   Action = "no_recipients"
	ActionUnknownSubject Action = "unknown_subject"
	ActionIgnored        Action = "ignored"
	ActionFailed         Action = "failed"
)

// Outcome describes a routing decision. Err is set only with ActionFailed.
type Outcome struct {
	Action      Action
	Type        string
	Challenge   string
	SubjectID   string
	TeamID      string
	UserID      string
	Interaction bool
	Recipients  []string
	Err         error
}

// ActivityRecorder receives one hit per routed payload that names a team.
type ActivityRecorder interface {
	Record(activity.Hit)
}

// Router routes classified payloads.
type Router struct {
	registry  registry.Registry
	store     *correlation.Store
	transport dispatch.Transport
	logger    *logging.Logger
	activity  ActivityRecorder
}

// Option configures a Router.
type Option func(*Router)

// WithActivity reports every routed payload to rec.
func WithActivity(rec ActivityRecorder) Option {
	return func(r *Router) { r.activity = rec }
}

// New wires a Router. A nil logger discards output.
func New(reg registry.Registry, store *correlation.Store, transport dispatch.Transport, logger *logging.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Router{
		registry:  reg,
		store:     store,
		transport: transport,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteEvent handles an Events API body.
func (r *Router) RouteEvent(ctx context.Context, inst installation.Installation, body []byte) Outcome {
	log := r.logger.WithContext(ctx)

	payload, err := classify.ParseEvent(body)
	if err != nil {
		typ := ""
		if payload != nil {
			typ = payload.Type
		}
		log.InfoContext(ctx, "event received, no action",
			logging.PayloadType(typ), logging.Error(err))
		return r.record(Outcome{Action: ActionIgnored, Type: typ})
	}

	switch payload.Type {
	case classify.TypeURLVerification:
		return r.record(Outcome{Action: ActionEchoChallenge, Type: payload.Type, Challenge: payload.Challenge})
	case classify.TypeEventCallback:
		return r.record(r.routePassive(ctx, log, inst, payload.Event))
	}
	return r.record(Outcome{Action: ActionIgnored, Type: payload.Type})
}

func (r *Router) routePassive(ctx context.Context, log *slog.Logger, inst installation.Installation, ev *classify.PassiveEvent) Outcome {
	out := Outcome{Type: ev.Type, TeamID: teamOf(inst, ev.TeamID), UserID: ev.User}
	log = log.With(logging.EventType(ev.Type), logging.EventID(ev.EventID), logging.Channel(ev.Channel))

	start := time.Now()
	descriptors, err := r.registry.ListByKind(ctx, ev.Kinds()...)
	metrics.RegistryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.ErrorContext(ctx, "subscriber lookup failed", logging.Error(err))
		out.Action, out.Err = ActionFailed, err
		return out
	}

	fromSelf := inst.IsBotIdentity(ev.User, ev.BotID)
	for _, d := range descriptors {
		if !d.AcceptsChannel(ev.Channel) {
			continue
		}
		if fromSelf && !d.IncludeSelfEvents {
			continue
		}
		out.Recipients = append(out.Recipients, d.BlockID)
	}

	if len(out.Recipients) == 0 {
		log.InfoContext(ctx, "no subscribers for event", slog.Bool("from_self", fromSelf))
		out.Action = ActionNoRecipients
		return out
	}

	env := dispatch.NewEnvelope(dispatch.RoutePassive, ev.Type, ev.Raw)
	env.TeamID = out.TeamID
	env.Channel = ev.Channel
	env.User = ev.User
	env.DedupKey = ev.DedupKey()
	env.RequestID = middleware.GetRequestID(ctx)

	if err := r.transport.Send(ctx, out.Recipients, env); err != nil {
		log.ErrorContext(ctx, "passive dispatch incomplete",
			logging.BlockIDs(out.Recipients), logging.Error(err))
		out.Action, out.Err = ActionFailed, err
		return out
	}

	log.DebugContext(ctx, "event dispatched", logging.BlockIDs(out.Recipients))
	out.Action = ActionDispatched
	return out
}

// RouteInteraction handles the JSON from an interactivity payload field.
func (r *Router) RouteInteraction(ctx context.Context, inst installation.Installation, payload []byte) Outcome {
	log := r.logger.WithContext(ctx)

	in, err := classify.ParseInteraction(payload)
	if err != nil {
		typ := ""
		if in != nil {
			typ = in.Type
		}
		log.InfoContext(ctx, "interaction received, no action",
			logging.PayloadType(typ), logging.Error(err))
		return r.record(Outcome{Action: ActionIgnored, Type: typ, Interaction: true})
	}

	out := Outcome{
		Type:        in.Type,
		SubjectID:   in.SubjectID,
		TeamID:      teamOf(inst, in.TeamID),
		UserID:      in.UserID,
		Interaction: true,
	}
	log = log.With(logging.PayloadType(in.Type), logging.SubjectID(in.SubjectID))

	if in.SubjectID == "" {
		log.InfoContext(ctx, "interaction without subject id, no action")
		out.Action = ActionIgnored
		return r.record(out)
	}

	rec, found, err := r.store.Lookup(ctx, inst, in.SubjectID)
	switch {
	case err != nil:
		metrics.CorrelationLookups.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "correlation lookup failed", logging.Error(err))
		out.Action, out.Err = ActionFailed, err
		return r.record(out)
	case !found:
		metrics.CorrelationLookups.WithLabelValues("miss").Inc()
		log.InfoContext(ctx, "no correlation for interaction")
		out.Action = ActionUnknownSubject
		return r.record(out)
	}
	metrics.CorrelationLookups.WithLabelValues("hit").Inc()

	env := dispatch.NewEnvelope(dispatch.RouteCorrelated, in.Type, in.Raw)
	env.TeamID = out.TeamID
	env.Channel = in.ChannelID
	env.User = in.UserID
	env.SubjectID = in.SubjectID
	env.OriginatingRequestID = rec.OriginatingRequestID
	env.DedupKey = in.SubjectID
	env.RequestID = middleware.GetRequestID(ctx)

	out.Recipients = []string{rec.BlockID}
	if err := r.transport.Send(ctx, out.Recipients, env); err != nil {
		log.ErrorContext(ctx, "correlated dispatch failed", logging.BlockID(rec.BlockID), logging.Error(err))
		out.Action, out.Err = ActionFailed, err
		return r.record(out)
	}

	if in.Terminal() {
		if err := r.store.Forget(ctx, inst, in.SubjectID); err != nil {
			log.WarnContext(ctx, "failed to forget finished view", logging.Error(err))
		}
	}

	log.DebugContext(ctx, "interaction dispatched", logging.BlockID(rec.BlockID))
	out.Action = ActionDispatched
	return r.record(out)
}

func (r *Router) record(out Outcome) Outcome {
	typ := out.Type
	if typ == "" {
		typ = "unknown"
	}
	metrics.RoutedPayloads.WithLabelValues(typ, string(out.Action)).Inc()
	if r.activity != nil && out.TeamID != "" {
		r.activity.Record(activity.Hit{
			TeamID:      out.TeamID,
			UserID:      out.UserID,
			Type:        typ,
			Interaction: out.Interaction,
			Dispatched:  out.Action == ActionDispatched,
		})
	}
	return out
}

func teamOf(inst installation.Installation, payloadTeam string) string {
	if inst.TeamID != "" {
		return inst.TeamID
	}
	return payloadTeam
}
