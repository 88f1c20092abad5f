package registry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout:
//
//	subscribers:
//	  - block_id: triage
//	    kind: messages
//	    channel_filter: C0123
//	    include_self_events: false
type fileDocument struct {
	Subscribers []Descriptor `yaml:"subscribers"`
}

// FileRegistry serves descriptors loaded from a YAML file. It is read-only;
// edit the file and call Reload (or restart) to apply changes.
type FileRegistry struct {
	path string

	mu    sync.RWMutex
	items []Descriptor
}

// NewFileRegistry loads path.
func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseFile decodes and validates a registry document.
func ParseFile(data []byte) ([]Descriptor, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Subscribers))
	for i, d := range doc.Subscribers {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("subscriber %d: %w", i, err)
		}
		if _, dup := seen[d.BlockID]; dup {
			return nil, fmt.Errorf("subscriber %d: %w: duplicate block id %q", i, ErrInvalidDescriptor, d.BlockID)
		}
		seen[d.BlockID] = struct{}{}
	}
	return doc.Subscribers, nil
}

// MarshalFile renders descriptors in the registry file layout.
func MarshalFile(ds []Descriptor) ([]byte, error) {
	return yaml.Marshal(fileDocument{Subscribers: ds})
}

// Reload re-reads the file. On error the previous contents stay in effect.
func (r *FileRegistry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read registry file %s: %w", r.path, err)
	}
	items, err := ParseFile(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.items = items
	r.mu.Unlock()
	return nil
}

func (r *FileRegistry) ListByKind(_ context.Context, kinds ...Kind) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return filterByKind(r.items, kinds), nil
}

func (r *FileRegistry) Get(_ context.Context, blockID string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.items {
		if d.BlockID == blockID {
			d := d
			return &d, nil
		}
	}
	return nil, ErrSubscriberNotFound
}

func (r *FileRegistry) List(_ context.Context) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Descriptor(nil), r.items...)
	sortDescriptors(out)
	return out, nil
}

func (r *FileRegistry) Upsert(context.Context, Descriptor) error { return ErrReadOnly }
func (r *FileRegistry) Delete(context.Context, string) error     { return ErrReadOnly }

// Ping checks that the backing file is still readable.
func (r *FileRegistry) Ping(context.Context) error {
	_, err := os.Stat(r.path)
	return err
}
