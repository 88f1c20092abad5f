package correlation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

var (
	teamOne = installation.Installation{TeamID: "T1", SigningSecret: "s"}
	teamTwo = installation.Installation{TeamID: "T2", SigningSecret: "s"}
)

func TestStore_RecordLookup(t *testing.T) {
	h := newRedisHarness(t)
	createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(h.kv, WithClock(func() time.Time { return createdAt }))
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, teamOne, "1714564800.000100", "B1", "E1"))

	rec, found, err := store.Lookup(ctx, teamOne, "1714564800.000100")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "B1", rec.BlockID)
	assert.Equal(t, "E1", rec.OriginatingRequestID)
	assert.Equal(t, "T1", rec.TeamID)
	assert.Equal(t, createdAt, rec.CreatedAt)

	_, found, err = store.Lookup(ctx, teamOne, "unknown")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_LaterRecordOverwrites(t *testing.T) {
	store := NewStore(newMemoryHarness(t).kv)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, teamOne, "V1", "B1", "E1"))
	require.NoError(t, store.Record(ctx, teamOne, "V1", "B2", "E2"))

	rec, found, err := store.Lookup(ctx, teamOne, "V1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "B2", rec.BlockID)
	assert.Equal(t, "E2", rec.OriginatingRequestID)
}

func TestStore_TeamNamespacing(t *testing.T) {
	store := NewStore(newMemoryHarness(t).kv)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, teamOne, "ts", "B1", ""))

	_, found, err := store.Lookup(ctx, teamTwo, "ts")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, "slack:corr:T1:ts", store.RecordKey(teamOne, "ts"))
	assert.Equal(t, "slack:corr:default:ts", store.RecordKey(installation.Installation{}, "ts"))
}

func TestStore_Expiry(t *testing.T) {
	h := newRedisHarness(t)
	store := NewStore(h.kv, WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, teamOne, "ts", "B1", ""))
	h.advance(59 * time.Minute)
	_, found, _ := store.Lookup(ctx, teamOne, "ts")
	assert.True(t, found)

	h.advance(2 * time.Minute)
	_, found, err := store.Lookup(ctx, teamOne, "ts")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_DefaultTTLAlwaysApplied(t *testing.T) {
	store := NewStore(NewMemoryKV(0), WithTTL(0))
	assert.Equal(t, DefaultTTL, store.TTL())
}

func TestStore_Forget(t *testing.T) {
	store := NewStore(newMemoryHarness(t).kv)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, teamOne, "V1", "B1", ""))
	require.NoError(t, store.Forget(ctx, teamOne, "V1"))

	_, found, err := store.Lookup(ctx, teamOne, "V1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Validation(t *testing.T) {
	store := NewStore(NewMemoryKV(0))
	ctx := context.Background()

	assert.ErrorIs(t, store.Record(ctx, teamOne, "", "B1", ""), ErrInvalidRecord)
	assert.ErrorIs(t, store.Record(ctx, teamOne, "ts", "", ""), ErrInvalidRecord)

	_, found, err := store.Lookup(ctx, teamOne, "")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CorruptRecord(t *testing.T) {
	kv := NewMemoryKV(0)
	store := NewStore(kv)
	ctx := context.Background()

	_, err := kv.Set(ctx, store.RecordKey(teamOne, "ts"), []byte("{not json"), SetOptions{})
	require.NoError(t, err)

	_, found, err := store.Lookup(ctx, teamOne, "ts")
	assert.Error(t, err)
	assert.False(t, found)
}

type failingKV struct{ KV }

func (failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestStore_BackendError(t *testing.T) {
	store := NewStore(failingKV{KV: NewMemoryKV(0)})
	_, found, err := store.Lookup(context.Background(), teamOne, "ts")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestStore_Claim(t *testing.T) {
	h := newRedisHarness(t)
	store := NewStore(h.kv)
	ctx := context.Background()

	ok, err := store.Claim(ctx, teamOne, "thread:C1:1.0", "worker-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, teamOne, "thread:C1:1.0", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Claims are per team.
	ok, err = store.Claim(ctx, teamTwo, "thread:C1:1.0", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Claim(ctx, teamOne, "", "worker-1", time.Minute)
	assert.Error(t, err)
}
