package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/telhawk-systems/slack-connector/connector/internal/classify"
	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/dispatch"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

const DefaultThreadWindow = 30 * time.Minute

var ErrNoThread = errors.New("subscriber: delivery is not part of a thread")

// ThreadTracker claims conversation windows for one subscriber replica. A
// thread is tracked by at most one token at a time; the owner extends its
// window each time it claims again.
type ThreadTracker struct {
	store  *correlation.Store
	token  string
	window time.Duration
}

// NewThreadTracker returns a tracker that claims as token. A window of zero
// uses DefaultThreadWindow.
func NewThreadTracker(store *correlation.Store, token string, window time.Duration) *ThreadTracker {
	if window <= 0 {
		window = DefaultThreadWindow
	}
	return &ThreadTracker{store: store, token: token, window: window}
}

// Track claims the thread rooted at threadTS in channel. It returns true when
// this tracker owns the window.
func (t *ThreadTracker) Track(ctx context.Context, inst installation.Installation, channel, threadTS string) (bool, error) {
	return t.store.Claim(ctx, inst, ThreadKey(channel, threadTS), t.token, t.window)
}

// TrackEnvelope claims the thread a passive message delivery belongs to. A
// top-level message starts a thread rooted at its own ts.
func (t *ThreadTracker) TrackEnvelope(ctx context.Context, inst installation.Installation, env *dispatch.Envelope) (bool, error) {
	channel, root, err := ThreadOf(env)
	if err != nil {
		return false, err
	}
	return t.Track(ctx, inst, channel, root)
}

func ThreadKey(channel, threadTS string) string {
	return "thread:" + channel + ":" + threadTS
}

// ThreadOf returns the channel and thread root ts of a message delivery.
func ThreadOf(env *dispatch.Envelope) (string, string, error) {
	var ev classify.PassiveEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return "", "", err
	}
	if ev.Type != classify.EventMessage && ev.Type != classify.EventAppMention {
		return "", "", ErrNoThread
	}

	root := ev.ThreadTS
	if root == "" {
		root = ev.TS
	}
	channel := ev.Channel
	if channel == "" {
		channel = env.Channel
	}
	if channel == "" || root == "" {
		return "", "", ErrNoThread
	}
	return channel, root, nil
}
