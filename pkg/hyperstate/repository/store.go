package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/diwise/hyperstate/pkg/hyperstate"
)

// Store is the keyed storage behind the local resolver. Documents are stored
// without their embedded entities, parent child edges are kept separately.
type Store interface {
	// Load fails with errors.ErrNotFound when there is no record at path
	Load(ctx context.Context, path string) (*Record, error)
	// Put creates or replaces the record at rec.Path. An expected version of
	// zero replaces unconditionally, any other value must match the stored
	// version or the put fails with errors.ErrConflict.
	Put(ctx context.Context, rec Record, expectedVersion uint64) (uint64, error)
	// Remove deletes the record at path and every edge it is part of
	Remove(ctx context.Context, path string) error
	Has(ctx context.Context, path string) (bool, error)

	// AddChild adds an edge from parent to child. Adding an existing edge is a no-op.
	AddChild(ctx context.Context, parent, child string, rel hyperstate.Relationship) error
	// Children returns the edges of parent in the order they were added
	Children(ctx context.Context, parent string) ([]ChildRef, error)

	// NextPath reserves a new, unused path in collection
	NextPath(ctx context.Context, collection string) (string, error)
	Clear(ctx context.Context) error
}

type Record struct {
	Path     string
	Natures  []string
	Document []byte
	Version  uint64
}

type ChildRef struct {
	Path string
	Rel  hyperstate.Relationship
}

// PathGenerator builds the path of the seq:th entity created in collection
type PathGenerator func(collection string, seq uint64) string

// SequentialPaths generates paths such as /accounts/1, /accounts/2 ...
func SequentialPaths(collection string, seq uint64) string {
	return fmt.Sprintf("%s/%d", strings.TrimSuffix(collection, "/"), seq)
}

// UUIDPaths generates paths with a random uuid as the last segment
func UUIDPaths(collection string, _ uint64) string {
	return strings.TrimSuffix(collection, "/") + "/" + uuid.NewString()
}
