package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

type memoryStore struct {
	mu sync.RWMutex

	records  map[string]Record
	children map[string][]ChildRef
	counters map[string]uint64

	paths PathGenerator
}

type MemoryStoreOption func(*memoryStore)

func WithPathGenerator(g PathGenerator) MemoryStoreOption {
	return func(ms *memoryStore) {
		ms.paths = g
	}
}

// NewMemoryStore returns an in process store. Every operation holds the store
// lock, so reads observe a linearizable view of the records.
func NewMemoryStore(options ...MemoryStoreOption) Store {
	ms := &memoryStore{
		records:  map[string]Record{},
		children: map[string][]ChildRef{},
		counters: map[string]uint64{},
		paths:    SequentialPaths,
	}

	for _, option := range options {
		option(ms)
	}

	return ms
}

func (ms *memoryStore) Load(ctx context.Context, path string) (*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rec, ok := ms.records[path]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no entity found at %s", path))
	}

	rec.Natures = slices.Clone(rec.Natures)
	rec.Document = slices.Clone(rec.Document)

	return &rec, nil
}

func (ms *memoryStore) Put(ctx context.Context, rec Record, expectedVersion uint64) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, exists := ms.records[rec.Path]

	if expectedVersion != 0 {
		if !exists {
			return 0, errors.NewConflictError(fmt.Sprintf("entity at %s has been removed", rec.Path))
		}
		if current.Version != expectedVersion {
			return 0, errors.NewConflictError(fmt.Sprintf("entity at %s has version %d, expected %d", rec.Path, current.Version, expectedVersion))
		}
	}

	rec.Version = current.Version + 1
	rec.Natures = slices.Clone(rec.Natures)
	rec.Document = slices.Clone(rec.Document)
	ms.records[rec.Path] = rec

	return rec.Version, nil
}

func (ms *memoryStore) Remove(ctx context.Context, path string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.records[path]; !ok {
		return errors.NewNotFoundError(fmt.Sprintf("no entity found at %s", path))
	}

	delete(ms.records, path)
	delete(ms.children, path)

	for parent, refs := range ms.children {
		ms.children[parent] = slices.DeleteFunc(refs, func(ref ChildRef) bool {
			return ref.Path == path
		})
	}

	return nil
}

func (ms *memoryStore) Has(ctx context.Context, path string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	_, ok := ms.records[path]
	return ok, nil
}

func (ms *memoryStore) AddChild(ctx context.Context, parent, child string, rel hyperstate.Relationship) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	refs := ms.children[parent]
	if slices.ContainsFunc(refs, func(ref ChildRef) bool { return ref.Path == child }) {
		return nil
	}

	ms.children[parent] = append(refs, ChildRef{Path: child, Rel: rel})

	return nil
}

func (ms *memoryStore) Children(ctx context.Context, parent string) ([]ChildRef, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return slices.Clone(ms.children[parent]), nil
}

func (ms *memoryStore) NextPath(ctx context.Context, collection string) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for {
		ms.counters[collection]++

		path := ms.paths(collection, ms.counters[collection])
		if _, taken := ms.records[path]; !taken {
			return path, nil
		}
	}
}

func (ms *memoryStore) Clear(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.records = map[string]Record{}
	ms.children = map[string][]ChildRef{}
	ms.counters = map[string]uint64{}

	return nil
}
