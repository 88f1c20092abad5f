package registry

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry keeps descriptors in process memory.
type MemoryRegistry struct {
	mu    sync.RWMutex
	items map[string]Descriptor
	now   func() time.Time
}

// NewMemoryRegistry returns a registry seeded with descriptors. Invalid seeds
// are rejected.
func NewMemoryRegistry(seed ...Descriptor) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		items: make(map[string]Descriptor, len(seed)),
		now:   time.Now,
	}
	for _, d := range seed {
		if err := r.Upsert(context.Background(), d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *MemoryRegistry) ListByKind(_ context.Context, kinds ...Kind) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return filterByKind(r.snapshot(), kinds), nil
}

func (r *MemoryRegistry) Get(_ context.Context, blockID string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.items[blockID]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return &d, nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.snapshot()
	sortDescriptors(out)
	return out, nil
}

func (r *MemoryRegistry) Upsert(_ context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if existing, ok := r.items[d.BlockID]; ok {
		d.CreatedAt = existing.CreatedAt
	} else if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	r.items[d.BlockID] = d
	return nil
}

func (r *MemoryRegistry) Delete(_ context.Context, blockID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[blockID]; !ok {
		return ErrSubscriberNotFound
	}
	delete(r.items, blockID)
	return nil
}

func (r *MemoryRegistry) Ping(context.Context) error { return nil }

func (r *MemoryRegistry) snapshot() []Descriptor {
	out := make([]Descriptor, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	return out
}
