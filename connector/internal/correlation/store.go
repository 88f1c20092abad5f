package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

// DefaultTTL bounds how long an unanswered artifact stays routable.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultKeyPrefix namespaces connector keys in a shared Redis.
const DefaultKeyPrefix = "slack"

// ErrInvalidRecord is returned when a record is missing its subject or block id.
var ErrInvalidRecord = errors.New("correlation: subject id and block id are required")

// Record links a Slack artifact to the subscriber that created it.
type Record struct {
	SubjectID            string    `json:"subject_id"`
	BlockID              string    `json:"block_id"`
	OriginatingRequestID string    `json:"originating_request_id,omitempty"`
	TeamID               string    `json:"team_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Store reads and writes correlation records through a KV.
type Store struct {
	kv     KV
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL overrides DefaultTTL. Non-positive values are ignored so every
// record keeps an expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore builds a Store on kv.
func NewStore(kv KV, opts ...StoreOption) *Store {
	s := &Store{
		kv:     kv,
		ttl:    DefaultTTL,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the expiry applied to new records.
func (s *Store) TTL() time.Duration { return s.ttl }

// RecordKey is the KV key for subjectID within the installation's team.
func (s *Store) RecordKey(inst installation.Installation, subjectID string) string {
	return fmt.Sprintf("%s:corr:%s:%s", s.prefix, inst.Namespace(), subjectID)
}

// ClaimKey is the KV key for a named claim within the installation's team.
func (s *Store) ClaimKey(inst installation.Installation, name string) string {
	return fmt.Sprintf("%s:claim:%s:%s", s.prefix, inst.Namespace(), name)
}

// Record stores subjectID -> blockID. A later record for the same subject
// replaces the earlier one.
func (s *Store) Record(ctx context.Context, inst installation.Installation, subjectID, blockID, originatingRequestID string) error {
	if subjectID == "" || blockID == "" {
		return ErrInvalidRecord
	}

	rec := Record{
		SubjectID:            subjectID,
		BlockID:              blockID,
		OriginatingRequestID: originatingRequestID,
		TeamID:               inst.TeamID,
		CreatedAt:            s.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal correlation record: %w", err)
	}

	if _, err := s.kv.Set(ctx, s.RecordKey(inst, subjectID), data, SetOptions{TTL: s.ttl}); err != nil {
		return fmt.Errorf("failed to store correlation record: %w", err)
	}
	return nil
}

// Lookup returns the record for subjectID. found is false, with a nil
// error, when nothing is stored.
func (s *Store) Lookup(ctx context.Context, inst installation.Installation, subjectID string) (*Record, bool, error) {
	if subjectID == "" {
		return nil, false, nil
	}

	data, err := s.kv.Get(ctx, s.RecordKey(inst, subjectID))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get correlation record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal correlation record: %w", err)
	}
	return &rec, true, nil
}

// Forget removes the record for subjectID.
func (s *Store) Forget(ctx context.Context, inst installation.Installation, subjectID string) error {
	if err := s.kv.Delete(ctx, s.RecordKey(inst, subjectID)); err != nil {
		return fmt.Errorf("failed to delete correlation record: %w", err)
	}
	return nil
}

// Claim takes the named lock for token, or renews it when token already holds
// it. It returns false while another token holds the claim.
func (s *Store) Claim(ctx context.Context, inst installation.Installation, name, token string, ttl time.Duration) (bool, error) {
	if name == "" || token == "" {
		return false, errors.New("correlation: claim name and token are required")
	}
	ok, err := s.kv.CompareAndSet(ctx, s.ClaimKey(inst, name), token, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", name, err)
	}
	return ok, nil
}

// Ping checks the backing KV.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}
