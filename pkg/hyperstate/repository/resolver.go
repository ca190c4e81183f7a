package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

const TraceAttributeEntityPath string = "entity-path"

var tracer = otel.Tracer("hyperstate/repository")

// Resolver resolves entities from a local store
type Resolver struct {
	store    Store
	registry *hyperstate.Registry
}

// NewResolver returns a resolver backed by store. Documents whose natures
// match one of kinds are materialised as that kind when Vanilla is asked for.
func NewResolver(store Store, kinds ...hyperstate.Kind) *Resolver {
	return &Resolver{
		store:    store,
		registry: hyperstate.NewRegistry(kinds...),
	}
}

func (r *Resolver) Registry() *hyperstate.Registry {
	return r.registry
}

func (r *Resolver) Get(ctx context.Context, path string, kind hyperstate.Kind) (hyperstate.Entity, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "get-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, path)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	rec, err := r.store.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	doc := &hyperstate.Document{}
	if err = json.Unmarshal(rec.Document, doc); err != nil {
		err = fmt.Errorf("failed to unmarshal stored document at %s: %w", path, err)
		return nil, err
	}
	doc.Version = rec.Version

	k, err := r.registry.KindFor(kind, doc.Class)
	if err != nil {
		return nil, err
	}

	e, err := hyperstate.Decode(r, doc, k, path)
	return e, err
}

// Save stores e. An entity without a path is created in the collection of
// its kind, and becomes an item child of that collection.
func (r *Resolver) Save(ctx context.Context, e hyperstate.Entity) (hyperstate.Entity, error) {
	if err := hyperstate.ValidateEntity(e); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "save-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, e.Path())))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	path := e.Path()
	collection := ""

	if path == "" {
		if e.Kind() == nil || e.Kind().Collection() == "" {
			err = errors.NewInvalidArgumentError(fmt.Sprintf("%s entity has neither a path nor a collection to be created in", e.Title()))
			return nil, err
		}

		collection = e.Kind().Collection()

		path, err = r.store.NextPath(ctx, collection)
		if err != nil {
			return nil, err
		}
	}

	doc, err := storedDocument(e, path)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	version, err := r.store.Put(ctx, Record{Path: path, Natures: e.Natures(), Document: b}, e.Version())
	if err != nil {
		return nil, err
	}

	if collection != "" {
		if err = r.store.AddChild(ctx, collection, path, hyperstate.Item); err != nil {
			return nil, err
		}
	}

	if children, loaded := e.LoadedChildren(); loaded {
		if err = r.saveChildren(ctx, path, children); err != nil {
			return nil, err
		}
	}

	log.Debug("entity saved", "path", path, "version", version)

	saved, err := r.Get(ctx, path, e.Kind())
	return saved, err
}

func (r *Resolver) saveChildren(ctx context.Context, parent string, children []hyperstate.EntityRelationship) error {
	for _, child := range children {
		childPath := child.Entity().Path()

		if childPath == "" || child.Entity().Resolver() != r {
			saved, err := r.Save(ctx, child.Entity())
			if err != nil {
				return err
			}
			childPath = saved.Path()
		}

		if err := r.store.AddChild(ctx, parent, childPath, child.Rel()); err != nil {
			return err
		}
	}

	return nil
}

// storedDocument encodes e as it should be stored at path. Embedded
// entities are left out and every reference to the old path is rewritten.
func storedDocument(e hyperstate.Entity, path string) (*hyperstate.Document, error) {
	doc, err := hyperstate.NewDocument(e, nil)
	if err != nil {
		return nil, err
	}

	oldPath := e.Path()
	doc.MapHrefs(func(href string) string {
		if href == oldPath {
			return path
		}
		return href
	})

	return doc, nil
}

func (r *Resolver) Delete(ctx context.Context, path string) (*hyperstate.DeletedEntity, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "delete-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, path)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if err = r.store.Remove(ctx, path); err != nil {
		return nil, err
	}

	return &hyperstate.DeletedEntity{Path: path}, nil
}

// DeleteAll removes every entity from the store
func (r *Resolver) DeleteAll(ctx context.Context) error {
	return r.store.Clear(ctx)
}

func (r *Resolver) Exists(ctx context.Context, path string) (bool, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return false, err
	}
	return r.store.Has(ctx, path)
}

// FindChildren loads the children of e one at a time, as the returned
// sequence is consumed.
func (r *Resolver) FindChildren(ctx context.Context, e hyperstate.Entity) (iter.Seq2[hyperstate.EntityRelationship, error], error) {
	if e == nil {
		return nil, errors.NewInvalidArgumentError("entity must not be nil")
	}

	refs, err := r.store.Children(ctx, e.Path())
	if err != nil {
		return nil, err
	}

	return func(yield func(hyperstate.EntityRelationship, error) bool) {
		for _, ref := range refs {
			child, err := r.Get(ctx, ref.Path, hyperstate.Vanilla)
			if err != nil {
				yield(hyperstate.EntityRelationship{}, err)
				return
			}

			if !yield(hyperstate.NewEntityRelationship(child, ref.Rel), nil) {
				return
			}
		}
	}, nil
}

// Invoke runs the handler of a. Fetch and Delete actions without a handler
// fall back to a plain get or delete of the action target.
func (r *Resolver) Invoke(ctx context.Context, a *hyperstate.Action, args hyperstate.Args) (*hyperstate.Outcome, error) {
	var err error

	ctx, span := tracer.Start(ctx, "invoke-action",
		trace.WithAttributes(attribute.String(TraceAttributeEntityPath, a.Href())),
		trace.WithAttributes(attribute.String("action", a.Name())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	if handler := a.Handler(); handler != nil {
		var outcome *hyperstate.Outcome

		outcome, err = handler(ctx, r, args)
		if err != nil {
			return nil, err
		}

		if outcome == nil {
			outcome = &hyperstate.Outcome{}
		}
		outcome.Kind = a.Result()

		return outcome, nil
	}

	switch a.Verb() {
	case hyperstate.Fetch:
		var e hyperstate.Entity
		e, err = r.Get(ctx, a.Href(), hyperstate.Vanilla)
		if err != nil {
			return nil, err
		}
		return &hyperstate.Outcome{Kind: hyperstate.EntityResult, Entity: e}, nil
	case hyperstate.Delete:
		if _, err = r.Delete(ctx, a.Href()); err != nil {
			return nil, err
		}
		return &hyperstate.Outcome{Kind: hyperstate.VoidResult}, nil
	}

	err = errors.NewUnsupportedError(fmt.Sprintf("action %s has no handler in the local store", a.Name()))
	return nil, err
}
