package webdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	hserrors "github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

type account struct {
	Username string `json:"username"`
}

var accountType = hyperstate.NewType[account]("Account").InCollection("/accounts")

const baseURL string = "http://hyperstate.local"

func TestGetDecodesTheEmbeddedDocument(t *testing.T) {
	is := is.New(t)

	d := &pages{byURL: map[string]string{
		baseURL + "/accounts/1": entityPage(`{"class":["Account"],"properties":{"username":"alice"},"links":[{"rel":["self"],"href":"http://hyperstate.local/accounts/1"},{"rel":["up"],"href":"http://hyperstate.local/accounts"}],"title":"Alice"}`),
	}}

	r := NewResolver(baseURL, d, accountType)

	alice, err := hyperstate.Get(context.Background(), r, "/accounts/1", accountType)
	is.NoErr(err)
	is.Equal(alice.Properties().Username, "alice")
	is.Equal(alice.Path(), "/accounts/1")

	up, ok := alice.Link(hyperstate.Up)
	is.True(ok)
	is.Equal(up.Path(), "/accounts")
}

func TestMissingEntityPageDoesNotExist(t *testing.T) {
	is := is.New(t)

	d := &pages{byURL: map[string]string{
		baseURL + "/nowhere": `<html><body><script type="application/problem+json" id="hyperstate-problem">{"type":"https://hyperstate.diwise.io/errors/NotFound","title":"Not Found","detail":"no entity at /nowhere"}</script></body></html>`,
	}}

	_, err := NewResolver(baseURL, d).Get(context.Background(), "/nowhere", hyperstate.Vanilla)
	is.True(errors.Is(err, hserrors.ErrNotFound))

	exists, err := NewResolver(baseURL, d).Exists(context.Background(), "/nowhere")
	is.NoErr(err)
	is.True(!exists)
}

func TestForeignPageIsATransportFailure(t *testing.T) {
	is := is.New(t)

	d := &pages{byURL: map[string]string{
		baseURL + "/accounts/1": `<html><body><h1>502 Bad Gateway</h1></body></html>`,
	}}

	_, err := NewResolver(baseURL, d).Get(context.Background(), "/accounts/1", hyperstate.Vanilla)
	is.True(errors.Is(err, hserrors.ErrTransport))

	_, err = NewResolver(baseURL, d).Exists(context.Background(), "/accounts/1")
	is.True(errors.Is(err, hserrors.ErrTransport)) // a page from someone else says nothing about existence
}

func TestGetOfProblemPageFailsWithTheReportedError(t *testing.T) {
	is := is.New(t)

	d := &pages{byURL: map[string]string{
		baseURL + "/accounts/1": `<html><body><script type="application/problem+json" id="hyperstate-problem">{"type":"https://hyperstate.diwise.io/errors/TypeMismatch","title":"Type Mismatch","detail":"nope"}</script></body></html>`,
	}}

	_, err := NewResolver(baseURL, d).Get(context.Background(), "/accounts/1", hyperstate.Vanilla)
	is.True(errors.Is(err, hserrors.ErrTypeMismatch))
}

func TestDriverFailureIsATransportFailure(t *testing.T) {
	is := is.New(t)

	d := &pages{err: hserrors.NewTransportError("session lost", nil)}

	_, err := NewResolver(baseURL, d).Get(context.Background(), "/accounts/1", hyperstate.Vanilla)
	is.True(errors.Is(err, hserrors.ErrTransport))
}

func TestMutationsAreUnsupported(t *testing.T) {
	is := is.New(t)

	r := NewResolver(baseURL, &pages{})
	ctx := context.Background()

	_, err := r.Save(ctx, accountType.New("", "a", account{}))
	is.True(errors.Is(err, hserrors.ErrUnsupported))

	_, err = r.Delete(ctx, "/accounts/1")
	is.True(errors.Is(err, hserrors.ErrUnsupported))

	a, err := hyperstate.NewAction("update", hyperstate.NewAddress(r, "/accounts/1"), hyperstate.Update, nil, nil)
	is.NoErr(err)

	_, err = a.Invoke(ctx, nil)
	is.True(errors.Is(err, hserrors.ErrUnsupported))
}

func TestChildrenArePagedThroughRenderedPages(t *testing.T) {
	is := is.New(t)

	d := &pages{byURL: map[string]string{
		baseURL + "/accounts?page=0": collectionPage(0, 10),
		baseURL + "/accounts?page=1": collectionPage(10, 4),
	}}

	r := NewResolver(baseURL, d)
	accounts, err := hyperstate.Vanilla.Decode(r, "/accounts", &hyperstate.Document{Class: []string{"Accounts"}})
	is.NoErr(err)

	second, err := accounts.Children(context.Background(), 1)
	is.NoErr(err)
	is.Equal(len(second), 4)
	is.Equal(second[0].Entity().Path(), "/accounts/10")
	is.Equal(d.rendered, []string{baseURL + "/accounts?page=0", baseURL + "/accounts?page=1"})
}

func TestInvokeFetchNavigatesToTheTarget(t *testing.T) {
	is := is.New(t)

	d := &pages{byURL: map[string]string{
		baseURL + "/accounts?username=alice": entityPage(`{"class":["Accounts"],"links":[{"rel":["self"],"href":"/accounts"}]}`),
	}}

	r := NewResolver(baseURL, d)

	a, err := hyperstate.NewAction("search", hyperstate.NewAddress(r, "/accounts"), hyperstate.Fetch, []hyperstate.Param{{Name: "username", Type: hyperstate.TextParam}}, nil)
	is.NoErr(err)

	outcome, err := a.Invoke(context.Background(), hyperstate.Args{"username": "alice"})
	is.NoErr(err)
	is.Equal(outcome.Kind, hyperstate.EntityResult)
	is.True(outcome.Entity.HasNature("Accounts"))
}

type pages struct {
	byURL    map[string]string
	err      error
	rendered []string
}

func (p *pages) Render(ctx context.Context, url string) (string, error) {
	p.rendered = append(p.rendered, url)
	if p.err != nil {
		return "", p.err
	}
	return p.byURL[url], nil
}

func (p *pages) Close() error {
	return nil
}

func entityPage(document string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>x</title></head><body><h1>x</h1><script type="application/vnd.siren+json" id="hyperstate-entity">%s</script></body></html>`, document)
}

func collectionPage(first, count int) string {
	entities := []string{}
	for i := first; i < first+count; i++ {
		entities = append(entities, fmt.Sprintf(`{"class":["Account"],"rel":["item"],"links":[{"rel":["self"],"href":"/accounts/%d"}]}`, i))
	}
	return entityPage(fmt.Sprintf(`{"class":["Accounts"],"entities":[%s],"links":[{"rel":["self"],"href":"/accounts"}]}`, strings.Join(entities, ",")))
}
