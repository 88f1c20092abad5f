package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/slack-connector/common/middleware"
	"github.com/telhawk-systems/slack-connector/connector/internal/handlers"
)

// NewRouter constructs a ServeMux with the Slack webhook routes registered
// under prefix, plus health and metrics endpoints. Webhook bodies are capped
// at maxBodyBytes.
func NewRouter(h *handlers.SlackHandler, prefix string, maxBodyBytes int64) http.Handler {
	prefix = strings.TrimRight(prefix, "/")
	limit := middleware.BodyLimit(maxBodyBytes)

	mux := http.NewServeMux()

	// Slack webhooks
	mux.Handle(prefix+"/events", limit(http.HandlerFunc(h.HandleEvents)))
	mux.Handle(prefix+"/interactivity", limit(http.HandlerFunc(h.HandleInteractivity)))
	mux.HandleFunc(prefix+"/", h.NotFound)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
