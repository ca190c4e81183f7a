package hyperstate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// Kind is the non generic view of an entity type that resolvers use to
// materialise documents.
type Kind interface {
	// Name is the primary nature of the kind, empty for Vanilla
	Name() string
	Natures() []string
	// Collection is the path under which new entities of this kind are created
	Collection() string
	Decode(r Resolver, path string, doc *Document) (Entity, error)
}

// Operation declares an invokable operation of an entity type. Href is
// resolved against the path of the entity the operation is bound to.
type Operation[P any] struct {
	Name   string
	Verb   Verb
	Href   string
	Params []Param
	Handle func(ctx context.Context, r Resolver, e *EntityWrapper[P], args Args) (*Outcome, error)
}

// Type declares an entity type with properties of type P
type Type[P any] struct {
	natures    []string
	collection string
	operations []Operation[P]
}

func NewType[P any](natures ...string) *Type[P] {
	return &Type[P]{natures: slices.Clone(natures)}
}

// InCollection sets the path under which new entities of this type are created
func (t *Type[P]) InCollection(path string) *Type[P] {
	t.collection = strings.TrimSuffix(path, "/")
	return t
}

func (t *Type[P]) WithOperations(ops ...Operation[P]) *Type[P] {
	t.operations = append(t.operations, ops...)
	return t
}

func (t *Type[P]) Name() string {
	if len(t.natures) == 0 {
		return ""
	}
	return t.natures[0]
}

func (t *Type[P]) Natures() []string {
	return slices.Clone(t.natures)
}

func (t *Type[P]) Collection() string {
	return t.collection
}

func (t *Type[P]) Operations() []Operation[P] {
	return slices.Clone(t.operations)
}

// New returns an in memory entity that has no resolver, and thus no network
// identity, until it is saved.
func (t *Type[P]) New(path, title string, properties P) *EntityWrapper[P] {
	return t.Bind(nil, path, title, properties)
}

// Bind returns an entity of this type attached to resolver r
func (t *Type[P]) Bind(r Resolver, path, title string, properties P) *EntityWrapper[P] {
	return newEntityWrapper(t, r, path, title, t.natures, 0, properties, t.operations)
}

func (t *Type[P]) Decode(r Resolver, path string, doc *Document) (Entity, error) {
	var properties P

	if len(doc.Properties) > 0 {
		if err := json.Unmarshal(doc.Properties, &properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s properties: %w", t.Name(), err)
		}
	}

	natures := doc.Class
	if len(natures) == 0 {
		natures = t.natures
	}

	return newEntityWrapper(t, r, path, doc.Title, natures, doc.Version, properties, t.operations), nil
}

// VanillaEntity is an entity of unknown type
type VanillaEntity = EntityWrapper[map[string]any]

// Vanilla decodes any document. Properties are kept as a generic map and the
// actions are taken from the document itself.
var Vanilla Kind = vanillaKind{}

type vanillaKind struct{}

func (vanillaKind) Name() string       { return "" }
func (vanillaKind) Natures() []string  { return nil }
func (vanillaKind) Collection() string { return "" }

func (k vanillaKind) Decode(r Resolver, path string, doc *Document) (Entity, error) {
	properties := map[string]any{}

	if len(doc.Properties) > 0 {
		if err := json.Unmarshal(doc.Properties, &properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
	}

	e := newEntityWrapper[map[string]any](k, r, path, doc.Title, doc.Class, doc.Version, properties, nil)

	for _, ad := range doc.Actions {
		action, err := NewAction(ad.Name, NewAddress(r, ad.Href), Verb(strings.ToUpper(ad.Method)), ad.params(), nil)
		if err != nil {
			continue
		}
		e.actions[action.Name()] = action
	}

	return e, nil
}

// Compatible reports whether an entity with the given natures can be
// materialised as kind k, which is when every nature of k is present.
func Compatible(k Kind, natures []string) bool {
	if k == nil {
		return true
	}

	for _, n := range k.Natures() {
		if !slices.Contains(natures, n) {
			return false
		}
	}

	return true
}

// discover builds the action set of an entity from the operation table of its
// type. Operations with an unknown verb or a malformed declaration are left
// out, and the result does not depend on the declaration order.
func discover[P any](e *EntityWrapper[P], ops []Operation[P]) map[string]*Action {
	actions := map[string]*Action{}

	declared := map[string]int{}
	for _, op := range ops {
		declared[op.Name]++
	}

	for _, op := range ops {
		if op.Name == "" || declared[op.Name] > 1 {
			continue
		}

		href, ok := resolveHref(e.path, op.Href)
		if !ok {
			continue
		}

		var handler Handler
		if op.Handle != nil {
			handle := op.Handle
			handler = func(ctx context.Context, r Resolver, args Args) (*Outcome, error) {
				return handle(ctx, r, e, args)
			}
		}

		action, err := NewAction(op.Name, NewAddress(e.resolver, href), op.Verb, op.Params, handler)
		if err != nil {
			continue
		}

		actions[op.Name] = action
	}

	return actions
}

func resolveHref(base, href string) (string, bool) {
	if href == "" {
		return base, true
	}

	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" || strings.ContainsAny(href, " \t\n") {
		return "", false
	}

	if strings.HasPrefix(href, "/") {
		return href, true
	}

	return strings.TrimSuffix(base, "/") + "/" + href, true
}

// Registry maps the primary nature of a kind to the kind itself
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{kinds: map[string]Kind{}}
	for _, k := range kinds {
		r.Register(k)
	}
	return r
}

func (r *Registry) Register(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if k.Name() != "" {
		r.kinds[k.Name()] = k
	}
}

// Lookup returns the kind registered for the first of the natures that has one
func (r *Registry) Lookup(natures []string) (Kind, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range natures {
		if k, ok := r.kinds[n]; ok {
			return k, true
		}
	}

	return nil, false
}

// KindFor returns the kind to decode a document with natures as, when the
// caller asked for requested. Vanilla requests are upgraded to a registered
// kind if there is one.
func (r *Registry) KindFor(requested Kind, natures []string) (Kind, error) {
	if requested == nil || requested == Vanilla {
		if k, ok := r.Lookup(natures); ok {
			return k, nil
		}
		return Vanilla, nil
	}

	if !Compatible(requested, natures) {
		return nil, typeMismatch(requested, natures)
	}

	return requested, nil
}
