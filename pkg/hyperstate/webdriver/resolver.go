package webdriver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

const TraceAttributeEntityPath string = "entity-path"

var tracer = otel.Tracer("hyperstate-webdriver")

// Resolver is a read only resolver that renders entity pages with a driver
// and decodes the entity document embedded in them.
type Resolver struct {
	baseURL  string
	driver   Driver
	registry *hyperstate.Registry
}

func NewResolver(baseURL string, driver Driver, kinds ...hyperstate.Kind) *Resolver {
	return &Resolver{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		driver:   driver,
		registry: hyperstate.NewRegistry(kinds...),
	}
}

func (r *Resolver) Get(ctx context.Context, path string, kind hyperstate.Kind) (hyperstate.Entity, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "get-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, path)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	doc, err := r.render(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	k, err := r.registry.KindFor(kind, doc.Class)
	if err != nil {
		return nil, err
	}

	e, err := hyperstate.Decode(r, doc, k, path)
	return e, err
}

func (r *Resolver) render(ctx context.Context, path string, query url.Values) (*hyperstate.Document, error) {
	endpoint := r.baseURL + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	log := logging.GetFromContext(ctx)
	log.Debug("rendering page", "url", endpoint)

	page, err := r.driver.Render(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := extractDocument(page)
	if err != nil {
		return nil, err
	}

	doc := &hyperstate.Document{}
	if err = json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("bad document embedded in %s: %s (%w)", endpoint, err.Error(), errors.ErrInternal)
	}

	doc.MapHrefs(func(href string) string {
		if after, found := strings.CutPrefix(href, r.baseURL); found && after != "" {
			return after
		}
		return href
	})

	return doc, nil
}

func (r *Resolver) Save(ctx context.Context, e hyperstate.Entity) (hyperstate.Entity, error) {
	return nil, errors.NewUnsupportedError("entities can not be saved through a browser session")
}

func (r *Resolver) Delete(ctx context.Context, path string) (*hyperstate.DeletedEntity, error) {
	return nil, errors.NewUnsupportedError("entities can not be deleted through a browser session")
}

func (r *Resolver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.Get(ctx, path, hyperstate.Vanilla)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Resolver) FindChildren(ctx context.Context, e hyperstate.Entity) (iter.Seq2[hyperstate.EntityRelationship, error], error) {
	if e == nil {
		return nil, errors.NewInvalidArgumentError("entity must not be nil")
	}

	path := e.Path()

	return func(yield func(hyperstate.EntityRelationship, error) bool) {
		for page := 0; ; page++ {
			doc, err := r.render(ctx, path, url.Values{"page": []string{strconv.Itoa(page)}})
			if err != nil {
				yield(hyperstate.EntityRelationship{}, err)
				return
			}

			children, err := hyperstate.DecodeChildren(r, doc)
			if err != nil {
				yield(hyperstate.EntityRelationship{}, err)
				return
			}

			for _, child := range children {
				if !yield(child, nil) {
					return
				}
			}

			if len(children) < hyperstate.PageSize {
				return
			}
		}
	}, nil
}

// Invoke follows fetch actions by navigating to their target. Any other
// verb would need to submit a form and is not supported.
func (r *Resolver) Invoke(ctx context.Context, a *hyperstate.Action, args hyperstate.Args) (*hyperstate.Outcome, error) {
	if a.Verb() != hyperstate.Fetch {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s actions can not be invoked through a browser session", a.Verb()))
	}

	var err error

	ctx, span := tracer.Start(ctx, "invoke-action", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, a.Href())))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	query := url.Values{}
	for name, value := range args {
		query.Set(name, fmt.Sprint(value))
	}

	doc, err := r.render(ctx, a.Href(), query)
	if err != nil {
		return nil, err
	}

	k, err := r.registry.KindFor(hyperstate.Vanilla, doc.Class)
	if err != nil {
		return nil, err
	}

	e, err := hyperstate.Decode(r, doc, k, a.Href())
	if err != nil {
		return nil, err
	}

	return &hyperstate.Outcome{Kind: hyperstate.EntityResult, Entity: e}, nil
}
