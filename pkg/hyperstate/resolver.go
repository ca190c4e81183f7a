package hyperstate

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
	"github.com/diwise/hyperstate/pkg/hyperstate/future"
)

//go:generate moq -rm -out resolver_mock.go . Resolver

// Resolver binds the entity graph to a transport. A graph is only ever
// navigated through the resolver that produced it.
type Resolver interface {
	// Get fetches the entity at path and materialises it as kind
	Get(ctx context.Context, path string, kind Kind) (Entity, error)
	// Save creates e if it has no path yet, or replaces the stored entity
	Save(ctx context.Context, e Entity) (Entity, error)
	Delete(ctx context.Context, path string) (*DeletedEntity, error)
	Exists(ctx context.Context, path string) (bool, error)
	// FindChildren enumerates the children of e in a stable order
	FindChildren(ctx context.Context, e Entity) (iter.Seq2[EntityRelationship, error], error)
	// Invoke performs a validated action
	Invoke(ctx context.Context, a *Action, args Args) (*Outcome, error)
}

type DeletedEntity struct {
	Path string
}

// Get fetches the entity at path as an entity of type t
func Get[P any](ctx context.Context, r Resolver, path string, t *Type[P]) (*EntityWrapper[P], error) {
	e, err := r.Get(ctx, path, t)
	if err != nil {
		return nil, err
	}

	typed, ok := e.(*EntityWrapper[P])
	if !ok {
		return nil, errors.NewTypeMismatchError(fmt.Sprintf("entity at %s is a %T", path, e.Props()))
	}

	return typed, nil
}

// DeleteEntity deletes e through r
func DeleteEntity(ctx context.Context, r Resolver, e Entity) (*DeletedEntity, error) {
	if e == nil {
		return nil, errors.NewInvalidArgumentError("entity must not be nil")
	}
	return r.Delete(ctx, e.Path())
}

// ValidatePath returns an InvalidArgument error for an empty path
func ValidatePath(path string) error {
	if path == "" {
		return errors.NewInvalidArgumentError("path must not be empty")
	}
	return nil
}

// ValidateEntity checks that e can be handed to a resolver for saving
func ValidateEntity(e Entity) error {
	if e == nil {
		return errors.NewInvalidArgumentError("entity must not be nil")
	}
	if len(e.Natures()) == 0 {
		return errors.NewInvalidArgumentError(fmt.Sprintf("entity %q has no natures", e.Path()))
	}
	return nil
}

// Children returns an iterator over a fixed slice of children
func Children(children []EntityRelationship) iter.Seq2[EntityRelationship, error] {
	return func(yield func(EntityRelationship, error) bool) {
		for _, c := range slices.Clone(children) {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// AsyncResolver exposes the operations of a resolver as futures. Argument
// errors are reported through an already failed future without starting any
// work.
type AsyncResolver struct {
	resolver Resolver
}

func Async(r Resolver) AsyncResolver {
	return AsyncResolver{resolver: r}
}

func (a AsyncResolver) Get(ctx context.Context, path string, kind Kind) *future.Future[Entity] {
	if err := ValidatePath(path); err != nil {
		return future.Failed[Entity](err)
	}

	return future.Go(ctx, func(ctx context.Context) (Entity, error) {
		return a.resolver.Get(ctx, path, kind)
	})
}

func (a AsyncResolver) Save(ctx context.Context, e Entity) *future.Future[Entity] {
	if err := ValidateEntity(e); err != nil {
		return future.Failed[Entity](err)
	}

	return future.Go(ctx, func(ctx context.Context) (Entity, error) {
		return a.resolver.Save(ctx, e)
	})
}

func (a AsyncResolver) Delete(ctx context.Context, path string) *future.Future[*DeletedEntity] {
	if err := ValidatePath(path); err != nil {
		return future.Failed[*DeletedEntity](err)
	}

	return future.Go(ctx, func(ctx context.Context) (*DeletedEntity, error) {
		return a.resolver.Delete(ctx, path)
	})
}

func (a AsyncResolver) Exists(ctx context.Context, path string) *future.Future[bool] {
	if err := ValidatePath(path); err != nil {
		return future.Failed[bool](err)
	}

	return future.Go(ctx, func(ctx context.Context) (bool, error) {
		return a.resolver.Exists(ctx, path)
	})
}

func (a AsyncResolver) FindChildren(ctx context.Context, e Entity) *future.Future[iter.Seq2[EntityRelationship, error]] {
	if e == nil {
		return future.Failed[iter.Seq2[EntityRelationship, error]](errors.NewInvalidArgumentError("entity must not be nil"))
	}

	return future.Go(ctx, func(ctx context.Context) (iter.Seq2[EntityRelationship, error], error) {
		return a.resolver.FindChildren(ctx, e)
	})
}
