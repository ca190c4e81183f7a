package hyperstate

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"
	"sync/atomic"

	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
	"github.com/diwise/hyperstate/pkg/hyperstate/future"
)

// PageSize is the number of children returned per page by Children
const PageSize int = 10

// Entity is a navigable node of the hypermedia graph
type Entity interface {
	Path() string
	Title() string
	Natures() []string
	HasNature(nature string) bool

	// Props returns the domain properties of the entity
	Props() any
	Kind() Kind
	Version() uint64

	Address() Address
	Resolver() Resolver

	Links() []NavigationalRelationship
	Link(rel Relationship) (Link, bool)
	AddLink(nr NavigationalRelationship)

	Actions() []*Action
	Action(name string) (*Action, bool)

	Children(ctx context.Context, page int) ([]EntityRelationship, error)
	LoadedChildren() ([]EntityRelationship, bool)
	SetChildren(children []EntityRelationship)
}

// EntityWrapper is an entity with domain properties of type P
type EntityWrapper[P any] struct {
	path       string
	title      string
	natures    []string
	properties P
	version    uint64
	kind       Kind

	actions map[string]*Action

	links    []NavigationalRelationship
	linkKeys map[string]struct{}

	// nil until loaded, never reset to nil once set
	children atomic.Pointer[[]EntityRelationship]

	resolver Resolver
}

func newEntityWrapper[P any](kind Kind, r Resolver, path, title string, natures []string, version uint64, properties P, ops []Operation[P]) *EntityWrapper[P] {
	e := &EntityWrapper[P]{
		path:       path,
		title:      title,
		natures:    slices.Clone(natures),
		properties: properties,
		version:    version,
		kind:       kind,
		linkKeys:   map[string]struct{}{},
		resolver:   r,
	}

	e.addLink(NewNavigationalRelationship(NewLink(NewAddress(r, path), title), Self))
	e.actions = discover(e, ops)

	return e
}

func (e *EntityWrapper[P]) Path() string       { return e.path }
func (e *EntityWrapper[P]) Title() string      { return e.title }
func (e *EntityWrapper[P]) Natures() []string  { return slices.Clone(e.natures) }
func (e *EntityWrapper[P]) Properties() P      { return e.properties }
func (e *EntityWrapper[P]) Props() any         { return e.properties }
func (e *EntityWrapper[P]) Kind() Kind         { return e.kind }
func (e *EntityWrapper[P]) Version() uint64    { return e.version }
func (e *EntityWrapper[P]) Resolver() Resolver { return e.resolver }

// WithVersion sets the version a save of e is conditional on
func (e *EntityWrapper[P]) WithVersion(version uint64) *EntityWrapper[P] {
	e.version = version
	return e
}

func (e *EntityWrapper[P]) HasNature(nature string) bool {
	return slices.Contains(e.natures, nature)
}

func (e *EntityWrapper[P]) Address() Address {
	return NewAddress(e.resolver, e.path)
}

// AddLink adds nr to the link set. Adding an equal relationship twice is a no-op.
// The self link is owned by the entity, so a self tag on nr is dropped and a
// link tagged with nothing but self is ignored.
func (e *EntityWrapper[P]) AddLink(nr NavigationalRelationship) {
	if nr.HasRelationship(Self) {
		nr = nr.without(Self)
		if len(nr.rels) == 0 {
			return
		}
	}

	e.addLink(nr)
}

func (e *EntityWrapper[P]) addLink(nr NavigationalRelationship) {
	key := nr.key()
	if _, exists := e.linkKeys[key]; exists {
		return
	}

	e.linkKeys[key] = struct{}{}
	e.links = append(e.links, nr)
}

func (e *EntityWrapper[P]) Links() []NavigationalRelationship {
	return slices.Clone(e.links)
}

// Link returns the first link tagged with rel
func (e *EntityWrapper[P]) Link(rel Relationship) (Link, bool) {
	for _, nr := range e.links {
		if nr.HasRelationship(rel) {
			return nr.Link(), true
		}
	}
	return Link{}, false
}

func (e *EntityWrapper[P]) Action(name string) (*Action, bool) {
	a, ok := e.actions[name]
	return a, ok
}

// Actions returns the actions of the entity ordered by name
func (e *EntityWrapper[P]) Actions() []*Action {
	names := slices.Sorted(maps.Keys(e.actions))

	actions := make([]*Action, 0, len(names))
	for _, name := range names {
		actions = append(actions, e.actions[name])
	}

	return actions
}

// SetActions adds or replaces actions by name
func (e *EntityWrapper[P]) SetActions(actions ...*Action) {
	for _, a := range actions {
		e.actions[a.Name()] = a
	}
}

// Children returns a page of the children of the entity. Once the children
// have been set with SetChildren the cached collection is returned as is and
// page is not applied.
func (e *EntityWrapper[P]) Children(ctx context.Context, page int) ([]EntityRelationship, error) {
	if cached := e.children.Load(); cached != nil {
		return *cached, nil
	}

	if page < 0 {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("page must not be negative, got %d", page))
	}

	if e.resolver == nil {
		return []EntityRelationship{}, nil
	}

	children, err := e.resolver.FindChildren(ctx, e)
	if err != nil {
		return nil, err
	}

	return Paginate(children, page, PageSize)
}

func (e *EntityWrapper[P]) ChildrenAsync(ctx context.Context, page int) *future.Future[[]EntityRelationship] {
	if cached := e.children.Load(); cached != nil {
		return future.Resolved(*cached)
	}

	if page < 0 {
		return future.Failed[[]EntityRelationship](errors.NewInvalidArgumentError(fmt.Sprintf("page must not be negative, got %d", page)))
	}

	return future.Go(ctx, func(ctx context.Context) ([]EntityRelationship, error) {
		return e.Children(ctx, page)
	})
}

func (e *EntityWrapper[P]) LoadedChildren() ([]EntityRelationship, bool) {
	if cached := e.children.Load(); cached != nil {
		return *cached, true
	}
	return nil, false
}

func (e *EntityWrapper[P]) SetChildren(children []EntityRelationship) {
	c := slices.Clone(children)
	if c == nil {
		c = []EntityRelationship{}
	}
	e.children.Store(&c)
}

// Paginate skips page*size items of seq and collects at most size of the
// ones that follow. The sequence is not consumed further than needed.
func Paginate(seq iter.Seq2[EntityRelationship, error], page, size int) ([]EntityRelationship, error) {
	if size <= 0 || page > math.MaxInt/size {
		return []EntityRelationship{}, nil
	}

	skip := page * size
	result := make([]EntityRelationship, 0, size)

	idx := 0
	for child, err := range seq {
		if err != nil {
			return nil, err
		}

		if idx >= skip {
			result = append(result, child)
			if len(result) == size {
				break
			}
		}
		idx++
	}

	return result, nil
}

// SameEntity reports whether a and b are the same logical entity
func SameEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Path() == b.Path()
}
