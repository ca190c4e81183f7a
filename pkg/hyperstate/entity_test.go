package hyperstate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"testing"

	"github.com/matryer/is"

	hserrors "github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

type account struct {
	Username string `json:"username"`
}

func TestNewEntityHasASelfLinkToItsOwnPath(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").New("/accounts/1", "The Account", account{Username: "alice"})

	self, ok := e.Link(Self)
	is.True(ok)
	is.Equal(self.Path(), e.Path())
	is.Equal(self.Title(), "The Account")
	is.Equal(len(e.Links()), 1)
}

func TestAddLinkIgnoresDuplicates(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").New("/accounts/1", "The Account", account{})
	up := NewNavigationalRelationship(NewLink(NewAddress(nil, "/accounts"), "Accounts"), Up, Collection)

	e.AddLink(up)
	e.AddLink(NewNavigationalRelationship(NewLink(NewAddress(nil, "/accounts"), "Accounts"), Collection, Up, Up))

	is.Equal(len(e.Links()), 2)

	link, ok := e.Link(Collection)
	is.True(ok)
	is.Equal(link.Path(), "/accounts")
}

func TestEntityKeepsExactlyOneSelfLink(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").New("/accounts/1", "The Account", account{})

	e.AddLink(NewNavigationalRelationship(NewLink(NewAddress(nil, "/elsewhere"), "B"), Self))
	e.AddLink(NewNavigationalRelationship(NewLink(NewAddress(nil, "/accounts/1"), "Renamed"), Self))
	e.AddLink(NewNavigationalRelationship(NewLink(NewAddress(nil, "/accounts"), "Accounts"), Self, Up))

	selfLinks := 0
	for _, nr := range e.Links() {
		if nr.HasRelationship(Self) {
			selfLinks++
			is.Equal(nr.Link().Path(), "/accounts/1")
		}
	}
	is.Equal(selfLinks, 1)
	is.Equal(len(e.Links()), 2)

	up, ok := e.Link(Up)
	is.True(ok)
	is.Equal(up.Path(), "/accounts")
}

func TestAccountWithoutOperationsHasNoActions(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").New("/accounts/1", "The Account", account{})

	is.Equal(len(e.Actions()), 0)
	_, ok := e.Action("update")
	is.True(!ok)
}

func TestDiscoveryDoesNotDependOnDeclarationOrder(t *testing.T) {
	is := is.New(t)

	ops := []Operation[account]{
		{Name: "fetch", Verb: Fetch},
		{Name: "update", Verb: Update, Params: []Param{{Name: "username", Type: TextParam}}},
		{Name: "delete", Verb: Delete},
		{Name: "create", Verb: Create, Href: "items"},
	}

	reversed := make([]Operation[account], 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		reversed = append(reversed, ops[i])
	}

	a := NewType[account]("Account").WithOperations(ops...).New("/accounts/1", "a", account{})
	b := NewType[account]("Account").WithOperations(reversed...).New("/accounts/1", "a", account{})

	is.Equal(describeActions(a.Actions()), describeActions(b.Actions()))
	is.Equal(describeActions(a.Actions()), []string{
		"create POST /accounts/1/items",
		"delete DELETE /accounts/1",
		"fetch GET /accounts/1",
		"update PUT /accounts/1",
	})

	create, _ := a.Action("create")
	is.Equal(create.Result(), CreatedEntityResult)
	update, _ := a.Action("update")
	is.Equal(update.Result(), UpdatedEntityResult)
	del, _ := a.Action("delete")
	is.Equal(del.Result(), VoidResult)
	fetch, _ := a.Action("fetch")
	is.Equal(fetch.Result(), EntityResult)
}

func TestDiscoveryLeavesOutMalformedOperations(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").WithOperations(
		Operation[account]{Name: "fetch", Verb: Fetch},
		Operation[account]{Name: "patch", Verb: Verb("PATCH")},
		Operation[account]{Name: "twice", Verb: Update},
		Operation[account]{Name: "twice", Verb: Delete},
		Operation[account]{Name: "", Verb: Fetch},
		Operation[account]{Name: "elsewhere", Verb: Fetch, Href: "https://example.com/accounts"},
	).New("/accounts/1", "a", account{})

	is.Equal(describeActions(e.Actions()), []string{"fetch GET /accounts/1"})
}

func TestChildrenOfUnboundEntityIsEmpty(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").New("/accounts/1", "a", account{})

	children, err := e.Children(context.Background(), 0)
	is.NoErr(err)
	is.Equal(len(children), 0)

	_, loaded := e.LoadedChildren()
	is.True(!loaded)
}

func TestChildrenWithNegativePageIsAnInvalidArgument(t *testing.T) {
	is := is.New(t)

	e := NewType[account]("Account").New("/accounts/1", "a", account{})

	_, err := e.Children(context.Background(), -1)
	is.True(errors.Is(err, hserrors.ErrInvalidArgument))

	_, err = e.ChildrenAsync(context.Background(), -1).Await(context.Background())
	is.True(errors.Is(err, hserrors.ErrInvalidArgument))
}

func TestChildrenArePagedThroughTheResolver(t *testing.T) {
	is := is.New(t)

	all := makeChildren(23)
	r := &ResolverMock{
		FindChildrenFunc: func(ctx context.Context, e Entity) (iter.Seq2[EntityRelationship, error], error) {
			return Children(all), nil
		},
	}

	e := NewType[account]("Accounts").Bind(r, "/accounts", "Accounts", account{})

	sizes := []int{}
	for page := range 4 {
		children, err := e.Children(context.Background(), page)
		is.NoErr(err)
		sizes = append(sizes, len(children))
	}

	is.Equal(sizes, []int{10, 10, 3, 0})
	is.Equal(len(r.FindChildrenCalls()), 4) // lazily fetched pages are not cached

	third, err := e.ChildrenAsync(context.Background(), 2).Await(context.Background())
	is.NoErr(err)
	is.Equal(third[0].Entity().Path(), "/accounts/20")
}

func TestChildrenBeyondTheLastPageIsEmptyForHugePages(t *testing.T) {
	is := is.New(t)

	all := makeChildren(23)
	r := &ResolverMock{
		FindChildrenFunc: func(ctx context.Context, e Entity) (iter.Seq2[EntityRelationship, error], error) {
			return Children(all), nil
		},
	}

	e := NewType[account]("Accounts").Bind(r, "/accounts", "Accounts", account{})

	for _, page := range []int{math.MaxInt/PageSize + 1, math.MaxInt} {
		children, err := e.Children(context.Background(), page)
		is.NoErr(err)
		is.Equal(len(children), 0)
	}
}

func TestSetChildrenIsReturnedForEveryPage(t *testing.T) {
	is := is.New(t)

	r := &ResolverMock{}
	e := NewType[account]("Accounts").Bind(r, "/accounts", "Accounts", account{})

	e.SetChildren(makeChildren(12))

	for _, page := range []int{0, 1, 7} {
		children, err := e.Children(context.Background(), page)
		is.NoErr(err)
		is.Equal(len(children), 12)
	}

	is.Equal(len(r.FindChildrenCalls()), 0)

	e.SetChildren(nil)
	children, loaded := e.LoadedChildren()
	is.True(loaded) // an explicitly empty collection is still loaded
	is.Equal(len(children), 0)
}

func TestPaginateStopsConsumingWhenThePageIsFull(t *testing.T) {
	is := is.New(t)

	consumed := 0
	seq := func(yield func(EntityRelationship, error) bool) {
		for _, c := range makeChildren(100) {
			consumed++
			if !yield(c, nil) {
				return
			}
		}
	}

	page, err := Paginate(seq, 1, 10)
	is.NoErr(err)
	is.Equal(len(page), 10)
	is.Equal(consumed, 20)
}

func TestPaginatePropagatesErrors(t *testing.T) {
	is := is.New(t)

	seq := func(yield func(EntityRelationship, error) bool) {
		yield(EntityRelationship{}, hserrors.NewTransportError("connection reset", nil))
	}

	_, err := Paginate(seq, 0, 10)
	is.True(errors.Is(err, hserrors.ErrTransport))
}

func TestSameEntity(t *testing.T) {
	is := is.New(t)

	accounts := NewType[account]("Account")

	is.True(SameEntity(accounts.New("/a", "a", account{}), accounts.New("/a", "other title", account{Username: "x"})))
	is.True(!SameEntity(accounts.New("/a", "a", account{}), accounts.New("/b", "a", account{})))
	is.True(!SameEntity(nil, accounts.New("/a", "a", account{})))
}

func makeChildren(count int) []EntityRelationship {
	children := make([]EntityRelationship, 0, count)
	for i := range count {
		child, _ := Vanilla.Decode(nil, fmt.Sprintf("/accounts/%d", i), &Document{Class: []string{"Account"}})
		children = append(children, NewEntityRelationship(child, Item))
	}
	return children
}

func describeActions(actions []*Action) []string {
	described := []string{}
	for _, a := range actions {
		described = append(described, a.String())
	}
	return described
}
