package hyperstate

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	hserrors "github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

func TestVerbResults(t *testing.T) {
	is := is.New(t)

	for verb, expected := range map[Verb]ResultKind{
		Fetch:  EntityResult,
		Create: CreatedEntityResult,
		Update: UpdatedEntityResult,
		Delete: VoidResult,
	} {
		result, ok := verb.Result()
		is.True(ok)
		is.Equal(result, expected)
	}

	_, ok := Verb("PATCH").Result()
	is.True(!ok)
}

func TestNewActionWithUnknownVerbIsUnsupported(t *testing.T) {
	is := is.New(t)

	_, err := NewAction("patch", NewAddress(nil, "/a"), Verb("PATCH"), nil, nil)
	is.True(errors.Is(err, hserrors.ErrUnsupported))

	_, err = NewAction("", NewAddress(nil, "/a"), Fetch, nil, nil)
	is.True(errors.Is(err, hserrors.ErrInvalidArgument))
}

func TestInvokeOfUnboundActionFailsWithUnbound(t *testing.T) {
	is := is.New(t)

	a, err := NewAction("fetch", NewAddress(nil, "/a"), Fetch, nil, nil)
	is.NoErr(err)

	_, err = a.Invoke(context.Background(), nil)
	is.True(errors.Is(err, hserrors.ErrUnbound))

	_, err = a.InvokeAsync(context.Background(), nil).Await(context.Background())
	is.True(errors.Is(err, hserrors.ErrUnbound))
}

func TestInvokeValidatesArgumentsBeforeCallingTheResolver(t *testing.T) {
	is := is.New(t)

	r := &ResolverMock{
		InvokeFunc: func(ctx context.Context, a *Action, args Args) (*Outcome, error) {
			return &Outcome{Kind: a.Result()}, nil
		},
	}

	a, err := NewAction("update", NewAddress(r, "/accounts/1"), Update, []Param{
		{Name: "username", Type: TextParam, Required: true},
		{Name: "age", Type: NumberParam},
		{Name: "active", Type: BoolParam},
		{Name: "note"},
	}, nil)
	is.NoErr(err)

	for _, args := range []Args{
		{},
		{"age": 12},
		{"username": 12},
		{"username": "alice", "age": "twelve"},
		{"username": "alice", "active": "yes"},
		{"username": "alice", "unknown": 1},
	} {
		_, err := a.Invoke(context.Background(), args)
		is.True(errors.Is(err, hserrors.ErrInvalidArgument))
	}

	is.Equal(len(r.InvokeCalls()), 0)

	outcome, err := a.InvokeAsync(context.Background(), Args{"username": "alice", "age": 12.5, "active": true, "note": []string{"x"}}).Await(context.Background())
	is.NoErr(err)
	is.Equal(outcome.Kind, UpdatedEntityResult)
	is.Equal(len(r.InvokeCalls()), 1)
	is.Equal(r.InvokeCalls()[0].A.Name(), "update")
}

func TestResultKindNames(t *testing.T) {
	is := is.New(t)

	is.Equal(EntityResult.String(), "Entity")
	is.Equal(CreatedEntityResult.String(), "CreatedEntity")
	is.Equal(UpdatedEntityResult.String(), "UpdatedEntity")
	is.Equal(VoidResult.String(), "Void")
}
