// Package activity keeps Redis-backed webhook activity statistics per Slack
// team so every connector replica can report traffic from the same place.
//
// Redis key structure (prefix defaults to "slack"):
//
//	{prefix}:activity:stats:{team}                - hash with running totals
//	{prefix}:activity:hourly:{team}:{YYYYMMDDHH}  - payloads in that hour (expires 48h)
//	{prefix}:activity:daily:{team}:{YYYYMMDD}     - payloads on that day (expires 7d)
//	{prefix}:activity:users:{team}:{YYYYMMDD}     - set of acting user ids (expires 7d)
//	{prefix}:activity:instances:{team}            - hash of replica -> last seen unix time
package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "slack"

	hourlyTTL    = 48 * time.Hour
	dailyTTL     = 7 * 24 * time.Hour
	instancesTTL = 24 * time.Hour
)

// Hit is one routed webhook payload.
type Hit struct {
	TeamID      string
	UserID      string
	Type        string
	Interaction bool
	Dispatched  bool
}

// Stats is the activity of one team as read back from Redis.
type Stats struct {
	TeamID            string            `json:"team_id"`
	LastSeenAt        *time.Time        `json:"last_seen_at,omitempty"`
	LastType          string            `json:"last_type,omitempty"`
	TotalEvents       int64             `json:"total_events"`
	TotalInteractions int64             `json:"total_interactions"`
	TotalDispatched   int64             `json:"total_dispatched"`
	PayloadsLastHour  int64             `json:"payloads_last_hour"`
	PayloadsLast24h   int64             `json:"payloads_last_24h"`
	UniqueUsersToday  int64             `json:"unique_users_today"`
	Instances         map[string]string `json:"instances,omitempty"`
	StatsRetrievedAt  time.Time         `json:"stats_retrieved_at"`
}

// Total is every payload counted for the team.
func (s *Stats) Total() int64 {
	return s.TotalEvents + s.TotalInteractions
}

// Client records and reads activity statistics.
type Client struct {
	redis      *redis.Client
	instanceID string
	prefix     string
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithKeyPrefix namespaces every key. Empty keeps the default.
func WithKeyPrefix(prefix string) Option {
	return func(c *Client) {
		if prefix != "" {
			c.prefix = strings.TrimSuffix(prefix, ":")
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient parses redisURL, connects and pings. instanceID should be
// unique per replica (hostname or pod name).
func NewClient(ctx context.Context, redisURL, instanceID string, opts ...Option) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, instanceID, opts...), nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(client *redis.Client, instanceID string, opts ...Option) *Client {
	c := &Client{
		redis:      client,
		instanceID: instanceID,
		prefix:     DefaultKeyPrefix,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) key(parts ...string) string {
	return c.prefix + ":activity:" + strings.Join(parts, ":")
}

// BatchUpdate accumulates hits for one team between flushes.
type BatchUpdate struct {
	TeamID       string
	Events       int64
	Interactions int64
	Dispatched   int64
	Users        map[string]struct{}
	LastType     string
}

// NewBatchUpdate starts an empty batch for teamID.
func NewBatchUpdate(teamID string) *BatchUpdate {
	return &BatchUpdate{
		TeamID: teamID,
		Users:  make(map[string]struct{}),
	}
}

// Add folds a hit into the batch.
func (b *BatchUpdate) Add(h Hit) {
	if h.Interaction {
		b.Interactions++
	} else {
		b.Events++
	}
	if h.Dispatched {
		b.Dispatched++
	}
	if h.UserID != "" {
		b.Users[h.UserID] = struct{}{}
	}
	if h.Type != "" {
		b.LastType = h.Type
	}
}

// Merge folds another batch for the same team into b.
func (b *BatchUpdate) Merge(other *BatchUpdate) {
	b.Events += other.Events
	b.Interactions += other.Interactions
	b.Dispatched += other.Dispatched
	for u := range other.Users {
		b.Users[u] = struct{}{}
	}
	if other.LastType != "" {
		b.LastType = other.LastType
	}
}

// Count is the number of payloads in the batch.
func (b *BatchUpdate) Count() int64 {
	return b.Events + b.Interactions
}

// Record writes a single hit immediately.
func (c *Client) Record(ctx context.Context, h Hit) error {
	batch := NewBatchUpdate(h.TeamID)
	batch.Add(h)
	return c.FlushBatch(ctx, batch)
}

// FlushBatch writes accumulated batch totals in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *BatchUpdate) error {
	if batch.Count() == 0 {
		return nil
	}
	if batch.TeamID == "" {
		return errors.New("activity: batch without team id")
	}

	now := c.now()
	hourKey := now.Format("2006010215")
	dayKey := now.Format("20060102")
	nowUnix := strconv.FormatInt(now.Unix(), 10)
	team := batch.TeamID

	pipe := c.redis.Pipeline()

	statsKey := c.key("stats", team)
	fields := map[string]interface{}{"last_seen_at": nowUnix}
	if batch.LastType != "" {
		fields["last_type"] = batch.LastType
	}
	pipe.HSet(ctx, statsKey, fields)
	if batch.Events > 0 {
		pipe.HIncrBy(ctx, statsKey, "total_events", batch.Events)
	}
	if batch.Interactions > 0 {
		pipe.HIncrBy(ctx, statsKey, "total_interactions", batch.Interactions)
	}
	if batch.Dispatched > 0 {
		pipe.HIncrBy(ctx, statsKey, "total_dispatched", batch.Dispatched)
	}

	hourlyKey := c.key("hourly", team, hourKey)
	pipe.IncrBy(ctx, hourlyKey, batch.Count())
	pipe.Expire(ctx, hourlyKey, hourlyTTL)

	dailyKey := c.key("daily", team, dayKey)
	pipe.IncrBy(ctx, dailyKey, batch.Count())
	pipe.Expire(ctx, dailyKey, dailyTTL)

	if len(batch.Users) > 0 {
		usersKey := c.key("users", team, dayKey)
		users := make([]interface{}, 0, len(batch.Users))
		for u := range batch.Users {
			users = append(users, u)
		}
		pipe.SAdd(ctx, usersKey, users...)
		pipe.Expire(ctx, usersKey, dailyTTL)
	}

	instancesKey := c.key("instances", team)
	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, instancesTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush activity batch: %w", err)
	}
	return nil
}

// GetStats reads the current statistics for teamID. A team with no
// recorded activity yields zero totals, not an error.
func (c *Client) GetStats(ctx context.Context, teamID string) (*Stats, error) {
	now := c.now()
	dayKey := now.Format("20060102")

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, c.key("stats", teamID))

	hourlyCmds := make([]*redis.StringCmd, 24)
	for i := range hourlyCmds {
		t := now.Add(-time.Duration(i) * time.Hour)
		hourlyCmds[i] = pipe.Get(ctx, c.key("hourly", teamID, t.Format("2006010215")))
	}

	usersCmd := pipe.SCard(ctx, c.key("users", teamID, dayKey))
	instancesCmd := pipe.HGetAll(ctx, c.key("instances", teamID))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get activity stats: %w", err)
	}

	stats := &Stats{
		TeamID:           teamID,
		StatsRetrievedAt: now,
		Instances:        make(map[string]string),
	}

	if fields, err := statsCmd.Result(); err == nil {
		if unix, err := strconv.ParseInt(fields["last_seen_at"], 10, 64); err == nil {
			t := time.Unix(unix, 0).UTC()
			stats.LastSeenAt = &t
		}
		stats.LastType = fields["last_type"]
		stats.TotalEvents, _ = strconv.ParseInt(fields["total_events"], 10, 64)
		stats.TotalInteractions, _ = strconv.ParseInt(fields["total_interactions"], 10, 64)
		stats.TotalDispatched, _ = strconv.ParseInt(fields["total_dispatched"], 10, 64)
	}

	for i, cmd := range hourlyCmds {
		val, err := cmd.Int64()
		if err != nil {
			continue
		}
		if i == 0 {
			stats.PayloadsLastHour = val
		}
		stats.PayloadsLast24h += val
	}

	if val, err := usersCmd.Result(); err == nil {
		stats.UniqueUsersToday = val
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.Instances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}

// ListActiveTeams returns teams seen within since.
func (c *Client) ListActiveTeams(ctx context.Context, since time.Duration) ([]string, error) {
	var teams []string
	cutoff := c.now().Add(-since).Unix()
	statsPrefix := c.key("stats", "")

	iter := c.redis.Scan(ctx, 0, statsPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		team := strings.TrimPrefix(key, statsPrefix)
		if team == "" {
			continue
		}
		lastSeen, err := c.redis.HGet(ctx, key, "last_seen_at").Int64()
		if err == nil && lastSeen >= cutoff {
			teams = append(teams, team)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan teams: %w", err)
	}
	return teams, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
