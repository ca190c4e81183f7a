package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

const (
	RootTypeName             string = "Root"
	AccountsTypeName         string = "Accounts"
	AccountTypeName          string = "Account"
	UpdatableAccountTypeName string = "UpdatableAccount"
	DeletableAccountTypeName string = "DeletableAccount"
	AccountsPath             string = "/accounts"
)

// AccountsRel tags the link from the root to the accounts collection
const AccountsRel hyperstate.Relationship = "accounts"

const creationDateLayout string = time.DateOnly

type RootProperties struct {
	Name string `json:"name,omitempty"`
}

type AccountProperties struct {
	Username     string `json:"username"`
	CreationDate string `json:"creationDate"`
}

var Root = hyperstate.NewType[RootProperties](RootTypeName)

var Account = hyperstate.NewType[AccountProperties](AccountTypeName).InCollection(AccountsPath)

var AccountWithUpdate = hyperstate.NewType[AccountProperties](UpdatableAccountTypeName, AccountTypeName).
	InCollection(AccountsPath).
	WithOperations(hyperstate.Operation[AccountProperties]{
		Name: "update",
		Verb: hyperstate.Update,
		Params: []hyperstate.Param{
			{Name: "username", Type: hyperstate.TextParam},
			{Name: "creationDate", Type: hyperstate.TextParam},
		},
		Handle: updateAccount,
	})

var AccountWithDelete = hyperstate.NewType[AccountProperties](DeletableAccountTypeName, AccountTypeName).
	InCollection(AccountsPath).
	WithOperations(hyperstate.Operation[AccountProperties]{
		Name:   "delete",
		Verb:   hyperstate.Delete,
		Handle: deleteAccount,
	})

var Accounts = hyperstate.NewType[RootProperties](AccountsTypeName).
	WithOperations(hyperstate.Operation[RootProperties]{
		Name: "createAccount",
		Verb: hyperstate.Create,
		Params: []hyperstate.Param{
			{Name: "username", Type: hyperstate.TextParam, Required: true},
			{Name: "creationDate", Type: hyperstate.TextParam},
		},
		Handle: createAccount,
	})

// Kinds returns every entity type of the accounts domain
func Kinds() []hyperstate.Kind {
	return []hyperstate.Kind{Root, Accounts, Account, AccountWithUpdate, AccountWithDelete}
}

// NewAccount returns an unsaved account. Accounts are created in the
// accounts collection, with an up link back to it.
func NewAccount(t *hyperstate.Type[AccountProperties], username string, creationDate time.Time) *hyperstate.EntityWrapper[AccountProperties] {
	account := t.New("", "The Account", AccountProperties{
		Username:     username,
		CreationDate: creationDate.Format(creationDateLayout),
	})

	account.AddLink(hyperstate.NewNavigationalRelationship(
		hyperstate.NewLink(hyperstate.NewAddress(nil, AccountsPath), "Accounts"),
		hyperstate.Up, hyperstate.Collection,
	))

	return account
}

// Seed stores the root entity and the empty accounts collection unless they
// already exist.
func Seed(ctx context.Context, r hyperstate.Resolver, title string) error {
	exists, err := r.Exists(ctx, "/")
	if err != nil {
		return err
	}

	if !exists {
		root := Root.New("/", title, RootProperties{Name: title})
		root.AddLink(hyperstate.NewNavigationalRelationship(
			hyperstate.NewLink(hyperstate.NewAddress(nil, AccountsPath), "Accounts"),
			AccountsRel,
		))

		if _, err = r.Save(ctx, root); err != nil {
			return fmt.Errorf("failed to save root entity: %w", err)
		}
	}

	exists, err = r.Exists(ctx, AccountsPath)
	if err != nil {
		return err
	}

	if !exists {
		accounts := Accounts.New(AccountsPath, "Accounts", RootProperties{})
		accounts.AddLink(hyperstate.NewNavigationalRelationship(
			hyperstate.NewLink(hyperstate.NewAddress(nil, "/"), title),
			hyperstate.Up, hyperstate.Root,
		))

		if _, err = r.Save(ctx, accounts); err != nil {
			return fmt.Errorf("failed to save accounts collection: %w", err)
		}
	}

	return nil
}

func createAccount(ctx context.Context, r hyperstate.Resolver, e *hyperstate.EntityWrapper[RootProperties], args hyperstate.Args) (*hyperstate.Outcome, error) {
	username, _ := args["username"].(string)
	if username == "" {
		return nil, errors.NewInvalidArgumentError("username must not be empty")
	}

	creationDate := time.Now().UTC()

	if cd, ok := args["creationDate"].(string); ok && cd != "" {
		var err error
		creationDate, err = time.Parse(creationDateLayout, cd)
		if err != nil {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("creationDate %q is not a date", cd))
		}
	}

	created, err := r.Save(ctx, NewAccount(Account, username, creationDate))
	if err != nil {
		return nil, err
	}

	return &hyperstate.Outcome{Entity: created, Location: created.Path()}, nil
}

func updateAccount(ctx context.Context, r hyperstate.Resolver, e *hyperstate.EntityWrapper[AccountProperties], args hyperstate.Args) (*hyperstate.Outcome, error) {
	properties := e.Properties()

	if username, ok := args["username"].(string); ok {
		properties.Username = username
	}

	if cd, ok := args["creationDate"].(string); ok {
		if _, err := time.Parse(creationDateLayout, cd); err != nil {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("creationDate %q is not a date", cd))
		}
		properties.CreationDate = cd
	}

	t, ok := e.Kind().(*hyperstate.Type[AccountProperties])
	if !ok {
		return nil, errors.NewTypeMismatchError(fmt.Sprintf("entity at %s is not an account", e.Path()))
	}

	updated := t.Bind(r, e.Path(), e.Title(), properties).WithVersion(e.Version())
	for _, nr := range e.Links() {
		updated.AddLink(nr)
	}

	saved, err := r.Save(ctx, updated)
	if err != nil {
		return nil, err
	}

	return &hyperstate.Outcome{Entity: saved}, nil
}

func deleteAccount(ctx context.Context, r hyperstate.Resolver, e *hyperstate.EntityWrapper[AccountProperties], args hyperstate.Args) (*hyperstate.Outcome, error) {
	if _, err := r.Delete(ctx, e.Path()); err != nil {
		return nil, err
	}
	return &hyperstate.Outcome{}, nil
}
