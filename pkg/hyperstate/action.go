package hyperstate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
	"github.com/diwise/hyperstate/pkg/hyperstate/future"
)

// Verb is the wire level method of an action
type Verb string

const (
	Fetch  Verb = http.MethodGet
	Create Verb = http.MethodPost
	Update Verb = http.MethodPut
	Delete Verb = http.MethodDelete
)

// ResultKind is the shape of what invoking an action produces
type ResultKind int

const (
	EntityResult ResultKind = iota
	CreatedEntityResult
	UpdatedEntityResult
	VoidResult
)

func (rk ResultKind) String() string {
	switch rk {
	case EntityResult:
		return "Entity"
	case CreatedEntityResult:
		return "CreatedEntity"
	case UpdatedEntityResult:
		return "UpdatedEntity"
	case VoidResult:
		return "Void"
	default:
		return "Unknown"
	}
}

// Result returns the fixed result kind of a verb. The second return value is
// false for methods that are not one of the four known verbs.
func (v Verb) Result() (ResultKind, bool) {
	switch v {
	case Fetch:
		return EntityResult, true
	case Create:
		return CreatedEntityResult, true
	case Update:
		return UpdatedEntityResult, true
	case Delete:
		return VoidResult, true
	}
	return VoidResult, false
}

type ParamType string

const (
	TextParam   ParamType = "text"
	NumberParam ParamType = "number"
	BoolParam   ParamType = "checkbox"
	AnyParam    ParamType = ""
)

type Param struct {
	Name     string
	Type     ParamType
	Required bool
}

func (p Param) accepts(value any) bool {
	switch p.Type {
	case TextParam:
		_, ok := value.(string)
		return ok
	case BoolParam:
		_, ok := value.(bool)
		return ok
	case NumberParam:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
			return true
		}
		return false
	}
	return true
}

// Args are the named parameters supplied to an action invocation
type Args map[string]any

// Outcome is what an invoked action produced. Entity is nil for VoidResult and
// Location is only set for CreatedEntityResult.
type Outcome struct {
	Kind     ResultKind
	Entity   Entity
	Location string
}

// Handler performs an action against a local store
type Handler func(ctx context.Context, r Resolver, args Args) (*Outcome, error)

// Action is a named operation that can be invoked on an entity
type Action struct {
	name    string
	target  Address
	verb    Verb
	params  []Param
	result  ResultKind
	handler Handler
}

// NewAction returns an action for one of the four known verbs
func NewAction(name string, target Address, verb Verb, params []Param, handler Handler) (*Action, error) {
	result, ok := verb.Result()
	if !ok {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("method %s of action %s is not a known verb", verb, name))
	}

	if name == "" {
		return nil, errors.NewInvalidArgumentError("actions must have a name")
	}

	return &Action{
		name:    name,
		target:  target,
		verb:    verb,
		params:  slices.Clone(params),
		result:  result,
		handler: handler,
	}, nil
}

func (a *Action) Name() string          { return a.name }
func (a *Action) Address() Address      { return a.target }
func (a *Action) Href() string          { return a.target.Path() }
func (a *Action) Verb() Verb            { return a.verb }
func (a *Action) Params() []Param       { return slices.Clone(a.params) }
func (a *Action) Result() ResultKind    { return a.result }
func (a *Action) Handler() Handler      { return a.handler }
func (a *Action) Resolver() Resolver    { return a.target.Resolver() }
func (a *Action) HasLocalHandler() bool { return a.handler != nil }
func (a *Action) String() string        { return fmt.Sprintf("%s %s %s", a.name, a.verb, a.Href()) }

// Validate checks args against the declared parameter list
func (a *Action) Validate(args Args) error {
	for name, value := range args {
		idx := slices.IndexFunc(a.params, func(p Param) bool { return p.Name == name })
		if idx < 0 {
			return errors.NewInvalidArgumentError(fmt.Sprintf("action %s has no parameter named %s", a.name, name))
		}

		if !a.params[idx].accepts(value) {
			return errors.NewInvalidArgumentError(fmt.Sprintf("parameter %s of action %s expects %s, got %T", name, a.name, a.params[idx].Type, value))
		}
	}

	for _, p := range a.params {
		if _, ok := args[p.Name]; p.Required && !ok {
			return errors.NewInvalidArgumentError(fmt.Sprintf("parameter %s of action %s is required", p.Name, a.name))
		}
	}

	return nil
}

// Invoke sends the action through the resolver of its target address
func (a *Action) Invoke(ctx context.Context, args Args) (*Outcome, error) {
	resolver := a.target.Resolver()
	if resolver == nil {
		return nil, errors.NewUnboundError(fmt.Sprintf("action %s is not bound to a resolver", a.name))
	}

	if err := a.Validate(args); err != nil {
		return nil, err
	}

	return resolver.Invoke(ctx, a, args)
}

// InvokeAsync validates before returning so that argument errors never reach
// a goroutine.
func (a *Action) InvokeAsync(ctx context.Context, args Args) *future.Future[*Outcome] {
	if a.target.Resolver() == nil {
		return future.Failed[*Outcome](errors.NewUnboundError(fmt.Sprintf("action %s is not bound to a resolver", a.name)))
	}

	if err := a.Validate(args); err != nil {
		return future.Failed[*Outcome](err)
	}

	return future.Go(ctx, func(ctx context.Context) (*Outcome, error) {
		return a.target.Resolver().Invoke(ctx, a, args)
	})
}
