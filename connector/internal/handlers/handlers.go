package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/slack-connector/common/httputil"
	"github.com/telhawk-systems/slack-connector/common/logging"
	"github.com/telhawk-systems/slack-connector/common/middleware"
	"github.com/telhawk-systems/slack-connector/connector/internal/classify"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/metrics"
	"github.com/telhawk-systems/slack-connector/connector/internal/router"
	"github.com/telhawk-systems/slack-connector/connector/internal/verifier"
)

const (
	endpointEvents        = "events"
	endpointInteractivity = "interactivity"
)

// Router is the routing side of the webhook handlers.
type Router interface {
	RouteEvent(ctx context.Context, inst installation.Installation, body []byte) router.Outcome
	RouteInteraction(ctx context.Context, inst installation.Installation, payload []byte) router.Outcome
}

// ReadinessCheck is a named dependency probe for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type SlackHandler struct {
	installations installation.Provider
	verifier      *verifier.Verifier
	router        Router
	checks        []ReadinessCheck
	logger        *logging.Logger
}

func NewSlackHandler(installations installation.Provider, v *verifier.Verifier, r Router, logger *logging.Logger, checks ...ReadinessCheck) *SlackHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SlackHandler{
		installations: installations,
		verifier:      v,
		router:        r,
		checks:        checks,
		logger:        logger,
	}
}

// HandleEvents serves the Events API endpoint. Once a request is
// authenticated the response is a fixed 200 regardless of what routing did,
// except for url_verification which echoes the challenge.
func (h *SlackHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(endpointEvents, start)

	inst, body, ok := h.authenticate(w, r, endpointEvents)
	if !ok {
		return
	}

	out := h.router.RouteEvent(r.Context(), inst, body)
	metrics.WebhookRequests.WithLabelValues(endpointEvents, string(out.Action)).Inc()

	if out.Action == router.ActionEchoChallenge {
		httputil.WriteText(w, http.StatusOK, out.Challenge)
		return
	}
	httputil.WriteEmpty(w, http.StatusOK)
}

// HandleInteractivity serves the interactivity endpoint, whose body is a
// form with the JSON payload in its payload field.
func (h *SlackHandler) HandleInteractivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer observe(endpointInteractivity, start)

	inst, body, ok := h.authenticate(w, r, endpointInteractivity)
	if !ok {
		return
	}

	payload, err := classify.ExtractFormPayload(body)
	if err != nil {
		h.logger.InfoContext(r.Context(), "interactivity request without usable payload", logging.Error(err))
		metrics.WebhookRequests.WithLabelValues(endpointInteractivity, string(router.ActionIgnored)).Inc()
		httputil.WriteEmpty(w, http.StatusOK)
		return
	}

	out := h.router.RouteInteraction(r.Context(), inst, payload)
	metrics.WebhookRequests.WithLabelValues(endpointInteractivity, string(out.Action)).Inc()
	httputil.WriteEmpty(w, http.StatusOK)
}

// authenticate reads the body, resolves the installation and verifies the
// request signature. On failure the response has been written.
func (h *SlackHandler) authenticate(w http.ResponseWriter, r *http.Request, endpoint string) (installation.Installation, []byte, bool) {
	ctx := r.Context()
	log := h.logger.WithContext(ctx).With(logging.Path(r.URL.Path))

	if r.Method != http.MethodPost {
		metrics.WebhookRequests.WithLabelValues(endpoint, "method_not_allowed").Inc()
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return installation.Installation{}, nil, false
	}

	body, err := httputil.ReadBody(r)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			metrics.WebhookRequests.WithLabelValues(endpoint, "too_large").Inc()
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return installation.Installation{}, nil, false
		}
		metrics.WebhookRequests.WithLabelValues(endpoint, "bad_request").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return installation.Installation{}, nil, false
	}

	inst, err := h.installations.Resolve(ctx)
	if err == nil {
		err = inst.Validate()
	}
	if err != nil {
		log.ErrorContext(ctx, "installation not usable", logging.Error(err))
		metrics.WebhookRequests.WithLabelValues(endpoint, "misconfigured").Inc()
		httputil.WriteError(w, http.StatusInternalServerError, "signing secret is not configured")
		return installation.Installation{}, nil, false
	}

	if err := h.verifier.Verify(inst, r.Header, body); err != nil {
		reason := verifier.Reason(err)
		log.WarnContext(ctx, "rejected unverified request",
			slog.String("reason", reason),
			slog.String("client_ip", httputil.GetClientIP(r)))
		metrics.VerificationFailures.WithLabelValues(reason).Inc()
		metrics.WebhookRequests.WithLabelValues(endpoint, "unauthorized").Inc()
		httputil.WriteError(w, http.StatusForbidden, "invalid request signature")
		return installation.Installation{}, nil, false
	}

	if retry := middleware.GetSlackRetry(ctx); retry.Num != "" {
		reason := retry.Reason
		if reason == "" {
			reason = "unspecified"
		}
		metrics.SlackRetries.WithLabelValues(reason).Inc()
		log.InfoContext(ctx, "slack redelivery",
			slog.String("retry_num", retry.Num),
			slog.String("retry_reason", retry.Reason))
	}

	return inst, body, true
}

func (h *SlackHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready runs every readiness check and reports 503 if any fails.
func (h *SlackHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			failures[c.Name] = err.Error()
		}
	}

	if len(failures) > 0 {
		h.logger.WarnContext(r.Context(), "readiness check failed", slog.Any("failures", failures))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "not_ready",
			"failures": failures,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *SlackHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, http.StatusNotFound, "not found")
}

func observe(endpoint string, start time.Time) {
	metrics.WebhookDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
