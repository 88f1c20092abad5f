package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRegistry struct {
	calls int
	ds    []Descriptor
	err   error
}

func (c *countingRegistry) ListByKind(_ context.Context, kinds ...Kind) ([]Descriptor, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return filterByKind(c.ds, kinds), nil
}

func TestCachedRegistry(t *testing.T) {
	ctx := context.Background()
	inner := &countingRegistry{ds: []Descriptor{{BlockID: "b1", Kind: KindMessages}}}
	now := time.Unix(1700000000, 0)

	c := NewCachedRegistry(inner, time.Minute)
	c.now = func() time.Time { return now }

	ds, err := c.ListByKind(ctx, KindMessages)
	require.NoError(t, err)
	assert.Len(t, ds, 1)

	_, err = c.ListByKind(ctx, KindMessages)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second read should be served from cache")

	// Same set of kinds in another order shares the entry.
	_, _ = c.ListByKind(ctx, KindMessages, KindConversationThread)
	_, _ = c.ListByKind(ctx, KindConversationThread, KindMessages)
	assert.Equal(t, 2, inner.calls)

	now = now.Add(61 * time.Second)
	_, err = c.ListByKind(ctx, KindMessages)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls, "expired entry should be refreshed")

	c.Invalidate()
	_, _ = c.ListByKind(ctx, KindMessages)
	assert.Equal(t, 4, inner.calls)
}

func TestCachedRegistry_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	inner := &countingRegistry{ds: []Descriptor{{BlockID: "b1", Kind: KindMessages}}}
	c := NewCachedRegistry(inner, time.Minute)

	ds, err := c.ListByKind(ctx, KindMessages)
	require.NoError(t, err)
	ds[0].BlockID = "mutated"

	again, err := c.ListByKind(ctx, KindMessages)
	require.NoError(t, err)
	assert.Equal(t, "b1", again[0].BlockID)
}

func TestCachedRegistry_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingRegistry{err: errors.New("db down")}
	c := NewCachedRegistry(inner, time.Minute)

	_, err := c.ListByKind(ctx, KindMessages)
	assert.Error(t, err)

	inner.err = nil
	inner.ds = []Descriptor{{BlockID: "b1", Kind: KindMessages}}
	ds, err := c.ListByKind(ctx, KindMessages)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}

func TestCachedRegistry_Disabled(t *testing.T) {
	inner := &countingRegistry{}
	c := NewCachedRegistry(inner, 0)
	_, _ = c.ListByKind(context.Background(), KindMessages)
	_, _ = c.ListByKind(context.Background(), KindMessages)
	assert.Equal(t, 2, inner.calls)
	assert.NoError(t, c.Ping(context.Background()))
}
