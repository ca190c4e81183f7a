package hyperstate

import (
	"context"
	"fmt"

	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

// Address locates an entity: a path together with the resolver that is able
// to dereference it. The resolver is not owned by the address.
type Address struct {
	path     string
	resolver Resolver
}

func NewAddress(resolver Resolver, path string) Address {
	return Address{path: path, resolver: resolver}
}

func (a Address) Path() string {
	return a.path
}

func (a Address) Resolver() Resolver {
	return a.resolver
}

// Resolve fetches the entity at this address as the given kind
func (a Address) Resolve(ctx context.Context, kind Kind) (Entity, error) {
	if a.resolver == nil {
		return nil, errors.NewUnboundError(fmt.Sprintf("address %s has no resolver", a.path))
	}
	return a.resolver.Get(ctx, a.path, kind)
}

// Link is an address with a human readable title
type Link struct {
	Address
	title string
}

func NewLink(address Address, title string) Link {
	return Link{Address: address, title: title}
}

func (l Link) Title() string {
	return l.title
}
