package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultFlushEvery = 30 * time.Second
	flushTimeout      = 10 * time.Second
)

// Collector sits on the webhook hot path. Record only touches memory; the
// per-team totals reach Redis from a background goroutine, so a slow or
// unavailable Redis never delays an ack to Slack.
type Collector struct {
	client *Client
	every  time.Duration
	log    *slog.Logger

	mu      sync.Mutex
	pending map[string]*BatchUpdate

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewCollector(client *Client, every time.Duration, logger *slog.Logger) *Collector {
	if every <= 0 {
		every = defaultFlushEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		client:  client,
		every:   every,
		log:     logger.With(slog.String("component", "activity")),
		pending: map[string]*BatchUpdate{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Record counts h against its team. Hits with no team id are ignored.
func (c *Collector) Record(h Hit) {
	if h.TeamID == "" {
		return
	}
	c.mu.Lock()
	b := c.pending[h.TeamID]
	if b == nil {
		b = NewBatchUpdate(h.TeamID)
		c.pending[h.TeamID] = b
	}
	b.Add(h)
	c.mu.Unlock()
}

func (c *Collector) run() {
	defer close(c.done)
	tick := time.NewTicker(c.every)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			c.FlushNow()
		case <-c.stop:
			c.FlushNow()
			return
		}
	}
}

// drain hands back everything accumulated so far and starts a fresh map.
func (c *Collector) drain() map[string]*BatchUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	out := c.pending
	c.pending = map[string]*BatchUpdate{}
	return out
}

// FlushNow writes pending totals and returns how many teams were written and
// how many failed. Failed batches go back into the pending map.
func (c *Collector) FlushNow() (written, failed int) {
	batches := c.drain()
	if batches == nil {
		return 0, 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for team, b := range batches {
		err := c.client.FlushBatch(ctx, b)
		if err == nil {
			written++
			continue
		}
		failed++
		c.log.Warn("activity flush failed, keeping totals for next round",
			slog.String("team_id", team),
			slog.Int64("payloads", b.Count()),
			slog.Any("error", err),
		)
		c.putBack(b)
	}

	c.log.Debug("activity flushed", slog.Int("teams", written), slog.Int("failed", failed))
	return written, failed
}

func (c *Collector) putBack(b *BatchUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.pending[b.TeamID]; cur != nil {
		b.Merge(cur)
	}
	c.pending[b.TeamID] = b
}

// Stop flushes once more and waits for the background goroutine. Calling it
// twice is safe.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Pending reports unflushed payloads per team.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int64, len(c.pending))
	for team, b := range c.pending {
		counts[team] = b.Count()
	}
	return counts
}
