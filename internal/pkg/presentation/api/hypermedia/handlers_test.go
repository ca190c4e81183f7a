package hypermedia

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"

	"github.com/diwise/hyperstate/internal/pkg/application/notifications"
	"github.com/diwise/hyperstate/pkg/datamodels/accounts"
	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/client"
	hserrors "github.com/diwise/hyperstate/pkg/hyperstate/errors"
	"github.com/diwise/hyperstate/pkg/hyperstate/repository"
	"github.com/diwise/hyperstate/pkg/hyperstate/webdriver"
)

func TestRetrieveEntity(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodGet, "/accounts", hyperstate.MediaType, nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(resp.Header.Get("Content-Type"), hyperstate.MediaType)
	is.Equal(resp.Header.Get("ETag"), `"1"`)
	is.True(strings.HasPrefix(body, `{"class":["Accounts"]`))
	is.True(strings.Contains(body, `"name":"createAccount","method":"POST","href":"/accounts"`))
}

func TestRetrieveMissingEntityReturnsProblemReport(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodGet, "/accounts/17", hyperstate.MediaType, nil)

	is.Equal(resp.StatusCode, http.StatusNotFound)
	is.Equal(resp.Header.Get("Content-Type"), hserrors.ProblemReportContentType)
	is.True(strings.Contains(body, "https://hyperstate.diwise.io/errors/NotFound"))
}

func TestRetrieveWithBadPage(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodGet, "/accounts?page=first", hyperstate.MediaType, nil)
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	resp, _ = newTestRequest(is, ts, http.MethodGet, "/accounts?page=-1", hyperstate.MediaType, nil)
	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestEntityExists(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodHead, "/accounts", "", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	resp, _ = newTestRequest(is, ts, http.MethodHead, "/accounts/1", "", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestCreateAccountThroughAction(t *testing.T) {
	is, ts, store := setupTest(t, nil, nil)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodPost, "/accounts", "application/json", bytes.NewBufferString(`{"username":"alice"}`))

	is.Equal(resp.StatusCode, http.StatusCreated)
	is.Equal(resp.Header.Get("Location"), "/accounts/1")

	alice, err := hyperstate.Get(context.Background(), store, "/accounts/1", accounts.Account)
	is.NoErr(err)
	is.Equal(alice.Properties().Username, "alice")
}

func TestCreateAccountWithoutUsernameFails(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodPost, "/accounts", "application/json", bytes.NewBufferString(`{}`))

	is.Equal(resp.StatusCode, http.StatusBadRequest)
	is.True(strings.Contains(body, "InvalidArgument"))
}

func TestUnknownActionIsNotFound(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/accounts", bytes.NewBufferString(`{"username":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(client.ActionHeader, "closeAccount")

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestEntityWithoutActionRejectsInvocation(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodPost, "/", "application/json", bytes.NewBufferString(`{}`))

	is.Equal(resp.StatusCode, http.StatusMethodNotAllowed)
}

func TestWrongContentTypeReturnsUnsupportedMediaType(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodPost, "/accounts", "application/x-www-form-urlencoded", bytes.NewBufferString("username=alice"))

	is.Equal(resp.StatusCode, http.StatusUnsupportedMediaType)
}

func TestRetrieveEntityAsPage(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodGet, "/", "text/html", nil)

	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	is.True(strings.Contains(body, `<script type="application/vnd.siren+json" id="hyperstate-entity">{"class":["Root"]`))
	is.True(strings.Contains(body, `<a href="/accounts" rel="accounts">Accounts</a>`))
}

func TestMissingPageCarriesProblem(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	resp, body := newTestRequest(is, ts, http.MethodGet, "/nowhere", "text/html", nil)

	is.Equal(resp.StatusCode, http.StatusNotFound)
	is.True(strings.Contains(body, `id="hyperstate-problem"`))
}

func TestPoliciesAreEnforced(t *testing.T) {
	is, ts, _ := setupTest(t, bytes.NewBufferString(readOnlyPolicies), nil)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodGet, "/accounts", hyperstate.MediaType, nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	resp, _ = newTestRequest(is, ts, http.MethodPost, "/accounts", "application/json", bytes.NewBufferString(`{"username":"alice"}`))
	is.Equal(resp.StatusCode, http.StatusForbidden)
}

func TestChangesAreNotified(t *testing.T) {
	n := &recordingNotifier{}
	is, ts, _ := setupTest(t, nil, n)
	defer ts.Close()

	resp, _ := newTestRequest(is, ts, http.MethodPost, "/accounts", "application/json", bytes.NewBufferString(`{"username":"alice"}`))
	is.Equal(resp.StatusCode, http.StatusCreated)

	resp, _ = newTestRequest(is, ts, http.MethodDelete, "/accounts/1", "", nil)
	is.Equal(resp.StatusCode, http.StatusNoContent)

	is.Equal(n.changes, []string{"created /accounts/1", "deleted /accounts/1"})
}

func TestRemoteResolverAgainstServer(t *testing.T) {
	is, ts, _ := setupTest(t, nil, nil)
	defer ts.Close()

	ctx := context.Background()
	r := client.NewResolver(ts.URL, client.Kinds(accounts.Kinds()...))

	collection, err := hyperstate.Get(ctx, r, "/accounts", accounts.Accounts)
	is.NoErr(err)

	create, ok := collection.Action("createAccount")
	is.True(ok)

	outcome, err := create.Invoke(ctx, hyperstate.Args{"username": "bob"})
	is.NoErr(err)
	is.Equal(outcome.Kind, hyperstate.CreatedEntityResult)
	is.Equal(outcome.Location, "/accounts/1")
	is.True(outcome.Entity.HasNature(accounts.AccountTypeName))

	bob, err := hyperstate.Get(ctx, r, "/accounts/1", accounts.Account)
	is.NoErr(err)

	self, ok := bob.Link(hyperstate.Self)
	is.True(ok)

	resolved, err := self.Resolve(ctx, accounts.Account)
	is.NoErr(err)
	is.Equal(resolved.Path(), bob.Path())
	is.Equal(resolved.Props(), bob.Props())
	is.Equal(resolved.Props().(accounts.AccountProperties).Username, "bob")

	carol, err := r.Save(ctx, accounts.NewAccount(accounts.AccountWithUpdate, "carol", time.Now()))
	is.NoErr(err)
	is.Equal(carol.Path(), "/accounts/2")
	is.Equal(carol.Version(), uint64(1))

	children, err := collection.Children(ctx, 0)
	is.NoErr(err)
	is.Equal(len(children), 2)

	update, ok := carol.Action("update")
	is.True(ok)

	outcome, err = update.Invoke(ctx, hyperstate.Args{"username": "caroline"})
	is.NoErr(err)
	is.Equal(outcome.Kind, hyperstate.UpdatedEntityResult)
	is.Equal(outcome.Entity.Version(), uint64(2))
	is.Equal(outcome.Entity.Props().(accounts.AccountProperties).Username, "caroline")

	_, err = r.Save(ctx, carol) // carol still carries version 1
	is.True(errors.Is(err, hserrors.ErrConflict))

	_, err = r.Delete(ctx, carol.Path())
	is.NoErr(err)

	exists, err := r.Exists(ctx, carol.Path())
	is.NoErr(err)
	is.True(!exists)
}

func TestBrowserResolverAgainstServer(t *testing.T) {
	is, ts, store := setupTest(t, nil, nil)
	defer ts.Close()

	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := store.Save(ctx, accounts.NewAccount(accounts.Account, name, time.Now()))
		is.NoErr(err)
	}

	r := webdriver.NewResolver(ts.URL, webdriver.NewHTTPDriver(), accounts.Kinds()...)

	collection, err := hyperstate.Get(ctx, r, "/accounts", accounts.Accounts)
	is.NoErr(err)
	is.Equal(collection.Title(), "Accounts")

	children, err := collection.Children(ctx, 0)
	is.NoErr(err)
	is.Equal(len(children), 3)
	is.Equal(children[0].Entity().Path(), "/accounts/1")

	_, err = r.Get(ctx, "/accounts/4", hyperstate.Vanilla)
	is.True(errors.Is(err, hserrors.ErrNotFound))
}

func newTestRequest(is *is.I, ts *httptest.Server, method, path, contentType string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	} else if contentType != "" {
		req.Header.Set("Accept", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err) // http request failed
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	is.NoErr(err) // failed to read response body

	return resp, string(respBody)
}

func setupTest(t *testing.T, policies io.Reader, notifier notifications.Notifier) (*is.I, *httptest.Server, *repository.Resolver) {
	is := is.New(t)
	ctx := context.Background()

	store := repository.NewResolver(repository.NewMemoryStore(), accounts.Kinds()...)
	is.NoErr(accounts.Seed(ctx, store, "Accounts"))

	r := chi.NewRouter()
	is.NoErr(RegisterHandlers(ctx, r, "Test", policies, store, notifier, accounts.Kinds()...))

	return is, httptest.NewServer(r), store
}

type recordingNotifier struct {
	changes []string
}

func (n *recordingNotifier) Start() error { return nil }
func (n *recordingNotifier) Stop() error  { return nil }

func (n *recordingNotifier) EntityCreated(ctx context.Context, e hyperstate.Entity) {
	n.changes = append(n.changes, "created "+e.Path())
}

func (n *recordingNotifier) EntityUpdated(ctx context.Context, e hyperstate.Entity) {
	n.changes = append(n.changes, "updated "+e.Path())
}

func (n *recordingNotifier) EntityDeleted(ctx context.Context, path string) {
	n.changes = append(n.changes, "deleted "+path)
}

const readOnlyPolicies string = `
package hyperstate.authz

default allow := false

allow = response {
    input.method == "GET"
    response := {}
}
`
