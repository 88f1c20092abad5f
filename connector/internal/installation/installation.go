// Package installation describes the Slack app installation the connector
// acts for. An Installation is passed explicitly to every verifier, router
// and correlation call instead of living in package globals.
package installation

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrMissingSigningSecret is returned when an installation cannot verify
// inbound requests.
var ErrMissingSigningSecret = errors.New("installation: signing secret not configured")

// Installation holds the credentials and identity of one workspace install.
type Installation struct {
	TeamID          string
	SigningSecret   string
	BotToken        string
	BotUserID       string
	BotID           string
	CallbackBaseURL string
}

// Validate reports whether inbound requests can be verified.
func (i Installation) Validate() error {
	if strings.TrimSpace(i.SigningSecret) == "" {
		return ErrMissingSigningSecret
	}
	return nil
}

// IsBotIdentity reports whether userID or botID belongs to this app's bot.
// Empty identifiers never match.
func (i Installation) IsBotIdentity(userID, botID string) bool {
	if userID != "" && i.BotUserID != "" && userID == i.BotUserID {
		return true
	}
	return botID != "" && i.BotID != "" && botID == i.BotID
}

// Namespace is the key prefix used for per-team storage. Installs without a
// team id share the "default" namespace.
func (i Installation) Namespace() string {
	if i.TeamID == "" {
		return "default"
	}
	return i.TeamID
}

// CallbackURL joins the public base URL with path, e.g. for Slack app
// manifests or the simulate command.
func (i Installation) CallbackURL(path string) string {
	base := strings.TrimRight(i.CallbackBaseURL, "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// Provider resolves the installation that serves an inbound request.
type Provider interface {
	Resolve(ctx context.Context) (Installation, error)
}

// Static serves a single installation for every request.
type Static struct {
	mu   sync.RWMutex
	inst Installation
}

// NewStatic returns a Provider for a single-workspace deployment.
func NewStatic(inst Installation) *Static {
	return &Static{inst: inst}
}

// Resolve returns the configured installation.
func (s *Static) Resolve(context.Context) (Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inst, nil
}

// Update replaces the served installation, used after the bot identity is
// resolved at startup.
func (s *Static) Update(inst Installation) {
	s.mu.Lock()
	s.inst = inst
	s.mu.Unlock()
}
