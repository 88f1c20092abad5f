// Package registry indexes the logical subscribers that receive routed Slack
// traffic. A subscriber is identified by its block id and declares one kind of
// interest plus optional filters.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrInvalidKind        = errors.New("invalid subscriber kind")
	ErrInvalidDescriptor  = errors.New("invalid subscriber descriptor")
	ErrReadOnly           = errors.New("registry is read-only")
)

// Kind is the class of passive events a subscriber wants.
type Kind string

const (
	KindMessages           Kind = "messages"
	KindAppMention         Kind = "appMention"
	KindReactions          Kind = "reactions"
	KindConversationThread Kind = "conversationThread"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindMessages, KindAppMention, KindReactions, KindConversationThread}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMessages, KindAppMention, KindReactions, KindConversationThread:
		return true
	}
	return false
}

// ParseKind accepts the canonical names case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Descriptor is one configured subscriber.
type Descriptor struct {
	BlockID           string    `json:"block_id" yaml:"block_id"`
	Kind              Kind      `json:"kind" yaml:"kind"`
	ChannelFilter     string    `json:"channel_filter,omitempty" yaml:"channel_filter,omitempty"`
	IncludeSelfEvents bool      `json:"include_self_events" yaml:"include_self_events"`
	CreatedAt         time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Validate checks the fields every backend requires.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.BlockID) == "" {
		return fmt.Errorf("%w: block id is required", ErrInvalidDescriptor)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
	return nil
}

// AcceptsChannel reports whether the channel filter admits channel.
func (d Descriptor) AcceptsChannel(channel string) bool {
	return d.ChannelFilter == "" || d.ChannelFilter == channel
}

// Registry is the read side consumed by the router.
type Registry interface {
	// ListByKind returns every descriptor whose kind is in kinds. A block id
	// appears at most once.
	ListByKind(ctx context.Context, kinds ...Kind) ([]Descriptor, error)
}

// Store adds the administrative operations used by slackctl.
type Store interface {
	Registry
	Get(ctx context.Context, blockID string) (*Descriptor, error)
	List(ctx context.Context) ([]Descriptor, error)
	Upsert(ctx context.Context, d Descriptor) error
	Delete(ctx context.Context, blockID string) error
	Ping(ctx context.Context) error
}

func kindSet(kinds []Kind) map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

// filterByKind selects descriptors matching kinds, deduplicated by block id
// and sorted for deterministic fan-out order.
func filterByKind(all []Descriptor, kinds []Kind) []Descriptor {
	want := kindSet(kinds)
	seen := make(map[string]struct{}, len(all))
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if _, ok := want[d.Kind]; !ok {
			continue
		}
		if _, dup := seen[d.BlockID]; dup {
			continue
		}
		seen[d.BlockID] = struct{}{}
		out = append(out, d)
	}
	sortDescriptors(out)
	return out
}

func sortDescriptors(ds []Descriptor) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].BlockID < ds[j].BlockID })
}
