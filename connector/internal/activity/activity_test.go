package activity

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupTestClient(t *testing.T) (*miniredis.Miniredis, *Client, *testClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{t: epoch}
	return mr, NewClientFromRedis(rdb, "replica-a", WithClock(clock.now)), clock
}

func TestFlushBatch(t *testing.T) {
	mr, c, _ := setupTestClient(t)
	ctx := context.Background()

	batch := NewBatchUpdate("T0001")
	batch.Add(Hit{TeamID: "T0001", UserID: "U1", Type: "message", Dispatched: true})
	batch.Add(Hit{TeamID: "T0001", UserID: "U2", Type: "reaction_added"})
	batch.Add(Hit{TeamID: "T0001", UserID: "U1", Type: "block_actions", Interaction: true, Dispatched: true})
	require.NoError(t, c.FlushBatch(ctx, batch))

	assert.Equal(t, "2", mr.HGet("slack:activity:stats:T0001", "total_events"))
	assert.Equal(t, "1", mr.HGet("slack:activity:stats:T0001", "total_interactions"))
	assert.Equal(t, "2", mr.HGet("slack:activity:stats:T0001", "total_dispatched"))
	assert.Equal(t, "block_actions", mr.HGet("slack:activity:stats:T0001", "last_type"))

	hourly, err := mr.Get("slack:activity:hourly:T0001:2026031415")
	require.NoError(t, err)
	assert.Equal(t, "3", hourly)
	assert.Equal(t, 48*time.Hour, mr.TTL("slack:activity:hourly:T0001:2026031415"))
	assert.Equal(t, 7*24*time.Hour, mr.TTL("slack:activity:daily:T0001:20260314"))

	members, err := mr.Members("slack:activity:users:T0001:20260314")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"U1", "U2"}, members)

	assert.Equal(t, "1773500966", mr.HGet("slack:activity:instances:T0001", "replica-a"))
}

func TestFlushBatch_EmptyAndTeamless(t *testing.T) {
	mr, c, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.FlushBatch(ctx, NewBatchUpdate("T0001")))
	assert.Empty(t, mr.Keys())

	teamless := NewBatchUpdate("")
	teamless.Add(Hit{Type: "message"})
	assert.Error(t, c.FlushBatch(ctx, teamless))
}

func TestGetStats(t *testing.T) {
	_, c, clock := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, Hit{TeamID: "T0001", UserID: "U1", Type: "app_mention", Dispatched: true}))
	clock.advance(2 * time.Hour)
	require.NoError(t, c.Record(ctx, Hit{TeamID: "T0001", UserID: "U2", Type: "view_submission", Interaction: true}))
	require.NoError(t, c.Record(ctx, Hit{TeamID: "T0001", UserID: "U2", Type: "message"}))

	stats, err := c.GetStats(ctx, "T0001")
	require.NoError(t, err)

	assert.Equal(t, "T0001", stats.TeamID)
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.TotalInteractions)
	assert.Equal(t, int64(1), stats.TotalDispatched)
	assert.Equal(t, int64(3), stats.Total())
	assert.Equal(t, int64(2), stats.PayloadsLastHour)
	assert.Equal(t, int64(3), stats.PayloadsLast24h)
	assert.Equal(t, int64(2), stats.UniqueUsersToday)
	assert.Equal(t, "message", stats.LastType)
	require.NotNil(t, stats.LastSeenAt)
	assert.True(t, clock.t.Equal(*stats.LastSeenAt))
	assert.Equal(t, map[string]string{"replica-a": clock.t.Format(time.RFC3339)}, stats.Instances)
}

func TestGetStats_UnknownTeam(t *testing.T) {
	_, c, _ := setupTestClient(t)

	stats, err := c.GetStats(context.Background(), "T0404")
	require.NoError(t, err)
	assert.Nil(t, stats.LastSeenAt)
	assert.Zero(t, stats.Total())
	assert.Zero(t, stats.PayloadsLast24h)
	assert.Empty(t, stats.Instances)
}

func TestKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewClientFromRedis(rdb, "replica-a", WithKeyPrefix("tenant-a:"), WithClock(func() time.Time { return epoch }))
	require.NoError(t, c.Record(context.Background(), Hit{TeamID: "T0001", Type: "message"}))

	assert.True(t, mr.Exists("tenant-a:activity:stats:T0001"))
	assert.False(t, mr.Exists("slack:activity:stats:T0001"))
}

func TestListActiveTeams(t *testing.T) {
	_, c, clock := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, Hit{TeamID: "T0OLD", Type: "message"}))
	clock.advance(3 * time.Hour)
	require.NoError(t, c.Record(ctx, Hit{TeamID: "T0NEW1", Type: "message"}))
	require.NoError(t, c.Record(ctx, Hit{TeamID: "T0NEW2", Type: "block_actions", Interaction: true}))

	teams, err := c.ListActiveTeams(ctx, time.Hour)
	require.NoError(t, err)
	sort.Strings(teams)
	assert.Equal(t, []string{"T0NEW1", "T0NEW2"}, teams)

	teams, err = c.ListActiveTeams(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, teams, 3)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), "redis://"+mr.Addr(), "replica-a")
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	_, err = NewClient(context.Background(), "not-a-url", "replica-a")
	assert.Error(t, err)
}

func TestBatchUpdate_Merge(t *testing.T) {
	a := NewBatchUpdate("T0001")
	a.Add(Hit{UserID: "U1", Type: "message"})

	b := NewBatchUpdate("T0001")
	b.Add(Hit{UserID: "U2", Type: "view_closed", Interaction: true, Dispatched: true})

	a.Merge(b)
	assert.Equal(t, int64(1), a.Events)
	assert.Equal(t, int64(1), a.Interactions)
	assert.Equal(t, int64(1), a.Dispatched)
	assert.Equal(t, int64(2), a.Count())
	assert.Len(t, a.Users, 2)
	assert.Equal(t, "view_closed", a.LastType)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollector_FlushNow(t *testing.T) {
	_, c, _ := setupTestClient(t)
	col := NewCollector(c, time.Hour, discardLogger())
	defer col.Stop()

	col.Record(Hit{TeamID: "T0001", UserID: "U1", Type: "message"})
	col.Record(Hit{TeamID: "T0001", UserID: "U1", Type: "message"})
	col.Record(Hit{TeamID: "T0002", Type: "block_actions", Interaction: true})
	col.Record(Hit{Type: "message"})

	assert.Equal(t, map[string]int64{"T0001": 2, "T0002": 1}, col.Pending())

	col.FlushNow()
	assert.Empty(t, col.Pending())

	stats, err := c.GetStats(context.Background(), "T0001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.UniqueUsersToday)
}

func TestCollector_RequeuesOnFailure(t *testing.T) {
	mr, c, _ := setupTestClient(t)
	col := NewCollector(c, time.Hour, discardLogger())
	defer col.Stop()

	col.Record(Hit{TeamID: "T0001", Type: "message"})

	mr.SetError("ERR activity unavailable")
	written, failed := col.FlushNow()
	assert.Equal(t, 0, written)
	assert.Equal(t, 1, failed)
	col.Record(Hit{TeamID: "T0001", Type: "block_actions", Interaction: true})
	assert.Equal(t, map[string]int64{"T0001": 2}, col.Pending())

	mr.SetError("")
	written, failed = col.FlushNow()
	assert.Equal(t, 1, written)
	assert.Zero(t, failed)
	assert.Empty(t, col.Pending())
	assert.Equal(t, "1", mr.HGet("slack:activity:stats:T0001", "total_events"))
	assert.Equal(t, "1", mr.HGet("slack:activity:stats:T0001", "total_interactions"))
	assert.Equal(t, "block_actions", mr.HGet("slack:activity:stats:T0001", "last_type"))
}

func TestCollector_StopFlushes(t *testing.T) {
	mr, c, _ := setupTestClient(t)
	col := NewCollector(c, time.Hour, discardLogger())

	col.Record(Hit{TeamID: "T0001", Type: "app_mention", Dispatched: true})
	col.Stop()
	col.Stop()

	assert.Equal(t, "1", mr.HGet("slack:activity:stats:T0001", "total_dispatched"))
}

func TestCollector_FlushNowEmpty(t *testing.T) {
	_, c, _ := setupTestClient(t)
	col := NewCollector(c, time.Hour, discardLogger())
	defer col.Stop()

	written, failed := col.FlushNow()
	assert.Zero(t, written)
	assert.Zero(t, failed)
}

func TestCollector_Interval(t *testing.T) {
	mr, c, _ := setupTestClient(t)
	col := NewCollector(c, 10*time.Millisecond, discardLogger())
	defer col.Stop()

	col.Record(Hit{TeamID: "T0001", Type: "message"})

	assert.Eventually(t, func() bool {
		return mr.Exists("slack:activity:stats:T0001")
	}, time.Second, 5*time.Millisecond)
}
