package subscriber

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/slack-connector/connector/internal/correlation"
	"github.com/telhawk-systems/slack-connector/connector/internal/dispatch"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

var testInst = installation.Installation{TeamID: "T1", SigningSecret: "s"}

func newStore(t *testing.T) *correlation.Store {
	t.Helper()
	kv := correlation.NewMemoryKV(0)
	t.Cleanup(func() { _ = kv.Close() })
	return correlation.NewStore(kv)
}

func TestThreadTracker_ExclusiveClaim(t *testing.T) {
	store := newStore(t)
	a := NewThreadTracker(store, "replica-a", time.Minute)
	b := NewThreadTracker(store, "replica-b", time.Minute)
	ctx := context.Background()

	ok, err := a.Track(ctx, testInst, "C1", "1.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Track(ctx, testInst, "C1", "1.0")
	require.NoError(t, err)
	assert.False(t, ok)

	// owner renews
	ok, err = a.Track(ctx, testInst, "C1", "1.0")
	require.NoError(t, err)
	assert.True(t, ok)

	// other threads are independent
	ok, err = b.Track(ctx, testInst, "C1", "2.0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestThreadTracker_ConcurrentClaims(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := NewThreadTracker(store, "replica-"+string(rune('a'+i)), time.Minute)
			ok, err := tr.Track(ctx, testInst, "C1", "9.0")
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestThreadOf(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		channel  string
		root     string
		noThread bool
	}{
		{name: "top level message", payload: `{"type":"message","channel":"C1","ts":"5.0"}`, channel: "C1", root: "5.0"},
		{name: "thread reply", payload: `{"type":"message","channel":"C1","ts":"6.0","thread_ts":"5.0"}`, channel: "C1", root: "5.0"},
		{name: "mention", payload: `{"type":"app_mention","channel":"C2","ts":"7.0"}`, channel: "C2", root: "7.0"},
		{name: "reaction", payload: `{"type":"reaction_added","item":{"channel":"C1","ts":"1.0"}}`, noThread: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := dispatch.NewEnvelope(dispatch.RoutePassive, "x", json.RawMessage(tt.payload))
			channel, root, err := ThreadOf(&env)
			if tt.noThread {
				assert.ErrorIs(t, err, ErrNoThread)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.channel, channel)
			assert.Equal(t, tt.root, root)
		})
	}
}

func TestThreadTracker_TrackEnvelope(t *testing.T) {
	store := newStore(t)
	tr := NewThreadTracker(store, "replica-a", 0)
	other := NewThreadTracker(store, "replica-b", 0)
	ctx := context.Background()

	root := dispatch.NewEnvelope(dispatch.RoutePassive, "message", json.RawMessage(`{"type":"message","channel":"C1","ts":"5.0"}`))
	reply := dispatch.NewEnvelope(dispatch.RoutePassive, "message", json.RawMessage(`{"type":"message","channel":"C1","ts":"6.0","thread_ts":"5.0"}`))

	ok, err := tr.TrackEnvelope(ctx, testInst, &root)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = other.TrackEnvelope(ctx, testInst, &reply)
	require.NoError(t, err)
	assert.False(t, ok)
}
