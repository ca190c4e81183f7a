package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

const (
	TraceAttributeEntityPath string = "entity-path"
	TraceAttributeAction     string = "action"

	// ActionHeader names the action a request is meant to invoke, for
	// servers that declare more than one action with the same method and href.
	ActionHeader string = "Hyperstate-Action"
)

var tracer = otel.Tracer("hyperstate-client")

// Resolver resolves entities from a remote hyperstate server
type Resolver struct {
	baseURL  string
	headers  map[string][]string
	debug    bool
	registry *hyperstate.Registry

	httpClient http.Client
	inflight   singleflight.Group
}

type Option func(*Resolver)

func Debug(enabled string) Option {
	return func(r *Resolver) {
		r.debug = (enabled == "true")
	}
}

// Header adds a header, such as Authorization, to every request
func Header(name, value string) Option {
	return func(r *Resolver) {
		r.headers[name] = append(r.headers[name], value)
	}
}

// Kinds registers the kinds that Vanilla requests should be upgraded to
func Kinds(kinds ...hyperstate.Kind) Option {
	return func(r *Resolver) {
		for _, k := range kinds {
			r.registry.Register(k)
		}
	}
}

func NewResolver(baseURL string, options ...Option) *Resolver {
	r := &Resolver{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		headers:  map[string][]string{},
		registry: hyperstate.NewRegistry(),
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// Get fetches the document at path. Concurrent requests for the same path
// share a single round trip to the server.
func (r *Resolver) Get(ctx context.Context, path string, kind hyperstate.Kind) (hyperstate.Entity, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "get-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, path)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	doc, err := r.fetchDocument(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	e, err := r.decode(doc, kind, path)
	return e, err
}

func (r *Resolver) decode(doc *hyperstate.Document, kind hyperstate.Kind, path string) (hyperstate.Entity, error) {
	k, err := r.registry.KindFor(kind, doc.Class)
	if err != nil {
		return nil, err
	}
	return hyperstate.Decode(r, doc, k, path)
}

func (r *Resolver) fetchDocument(ctx context.Context, path string, query url.Values) (*hyperstate.Document, error) {
	endpoint := r.baseURL + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	// the shared request must outlive any single caller giving up on it
	shared := context.WithoutCancel(ctx)

	result := r.inflight.DoChan(endpoint, func() (any, error) {
		response, responseBody, err := r.call(shared, http.MethodGet, endpoint, nil, nil)
		if err != nil {
			return nil, err
		}

		if response.StatusCode != http.StatusOK {
			return nil, unexpectedResponse(response, responseBody)
		}

		return r.newDocument(response, responseBody)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*hyperstate.Document), nil
	}
}

// newDocument parses a response body and strips the base url from every href
// so that the paths of the entity graph are independent of the server address.
func (r *Resolver) newDocument(response *http.Response, body []byte) (*hyperstate.Document, error) {
	doc := &hyperstate.Document{}

	err := json.Unmarshal(body, doc)
	if err != nil {
		if r.debug && len(body) < 1000 {
			err = fmt.Errorf("unmarshaling of %s failed with err %s", string(body), err.Error())
		}
		return nil, fmt.Errorf("bad document: %s (%w)", err.Error(), errors.ErrInternal)
	}

	doc.MapHrefs(r.relative)
	doc.Version = versionFromETag(response.Header.Get("ETag"))

	return doc, nil
}

func (r *Resolver) relative(href string) string {
	if after, found := strings.CutPrefix(href, r.baseURL); found {
		if after == "" {
			return "/"
		}
		return after
	}
	return href
}

// Save posts entities without a path to the collection of their kind, and
// replaces existing entities with a conditional put.
func (r *Resolver) Save(ctx context.Context, e hyperstate.Entity) (hyperstate.Entity, error) {
	if err := hyperstate.ValidateEntity(e); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "save-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, e.Path())))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	children, _ := e.LoadedChildren()

	doc, err := hyperstate.NewDocument(e, children)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	headers := map[string][]string{"Content-Type": {hyperstate.MediaType}}

	if e.Path() == "" {
		collection := ""
		if e.Kind() != nil {
			collection = e.Kind().Collection()
		}

		if collection == "" {
			err = errors.NewInvalidArgumentError(fmt.Sprintf("%s entity has neither a path nor a collection to be created in", e.Title()))
			return nil, err
		}

		var location string
		location, err = r.create(ctx, r.baseURL+collection, bytes.NewBuffer(b), headers)
		if err != nil {
			return nil, err
		}

		var created hyperstate.Entity
		created, err = r.Get(ctx, location, e.Kind())
		return created, err
	}

	if e.Version() > 0 {
		headers["If-Match"] = []string{etag(e.Version())}
	}

	response, responseBody, err := r.call(ctx, http.MethodPut, r.baseURL+e.Path(), bytes.NewBuffer(b), headers)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		err = unexpectedResponse(response, responseBody)
		return nil, err
	}

	saved, err := r.Get(ctx, e.Path(), e.Kind())
	return saved, err
}

func (r *Resolver) create(ctx context.Context, endpoint string, body io.Reader, headers map[string][]string) (string, error) {
	response, responseBody, err := r.call(ctx, http.MethodPost, endpoint, body, headers)
	if err != nil {
		return "", err
	}

	if response.StatusCode != http.StatusCreated {
		return "", unexpectedResponse(response, responseBody)
	}

	location := response.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("server failed to provide a location header with created response (%w)", errors.ErrInternal)
	}

	return r.relative(location), nil
}

func (r *Resolver) Delete(ctx context.Context, path string) (*hyperstate.DeletedEntity, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return nil, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "delete-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, path)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := r.call(ctx, http.MethodDelete, r.baseURL+path, nil, nil)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusNoContent && response.StatusCode != http.StatusOK {
		err = unexpectedResponse(response, responseBody)
		return nil, err
	}

	return &hyperstate.DeletedEntity{Path: path}, nil
}

func (r *Resolver) Exists(ctx context.Context, path string) (bool, error) {
	if err := hyperstate.ValidatePath(path); err != nil {
		return false, err
	}

	var err error

	ctx, span := tracer.Start(ctx, "entity-exists", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, path)))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := r.call(ctx, http.MethodHead, r.baseURL+path, nil, nil)
	if err != nil {
		return false, err
	}

	switch response.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}

	err = unexpectedResponse(response, responseBody)
	return false, err
}

// FindChildren pages through the embedded entities of e, requesting the next
// page from the server only when the previous one has been consumed.
func (r *Resolver) FindChildren(ctx context.Context, e hyperstate.Entity) (iter.Seq2[hyperstate.EntityRelationship, error], error) {
	if e == nil {
		return nil, errors.NewInvalidArgumentError("entity must not be nil")
	}

	path := e.Path()

	return func(yield func(hyperstate.EntityRelationship, error) bool) {
		for page := 0; ; page++ {
			doc, err := r.fetchDocument(ctx, path, url.Values{"page": []string{strconv.Itoa(page)}})
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

// Invoke sends a to the server. Fetch and Delete actions carry their
// arguments in the query string, the other verbs in a json body.
func (r *Resolver) Invoke(ctx context.Context, a *hyperstate.Action, args hyperstate.Args) (*hyperstate.Outcome, error) {
	var err error

	ctx, span := tracer.Start(ctx, "invoke-action",
		trace.WithAttributes(attribute.String(TraceAttributeEntityPath, a.Href())),
		trace.WithAttributes(attribute.String(TraceAttributeAction, a.Name())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	endpoint := r.baseURL + a.Href()
	headers := map[string][]string{ActionHeader: {a.Name()}}

	var body io.Reader

	switch a.Verb() {
	case hyperstate.Fetch, hyperstate.Delete:
		if q := query(args); len(q) > 0 {
			endpoint = endpoint + "?" + q.Encode()
		}
	default:
		var b []byte
		b, err = json.Marshal(args)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(b)
		headers["Content-Type"] = []string{"application/json"}
	}

	if a.Verb() == hyperstate.Create {
		var location string
		location, err = r.create(ctx, endpoint, body, headers)
		if err != nil {
			return nil, err
		}

		var created hyperstate.Entity
		created, err = r.Get(ctx, location, hyperstate.Vanilla)
		if err != nil {
			return nil, err
		}

		return &hyperstate.Outcome{Kind: hyperstate.CreatedEntityResult, Entity: created, Location: location}, nil
	}

	response, responseBody, err := r.call(ctx, string(a.Verb()), endpoint, body, headers)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		err = unexpectedResponse(response, responseBody)
		return nil, err
	}

	outcome := &hyperstate.Outcome{Kind: a.Result()}

	if a.Result() == hyperstate.VoidResult {
		return outcome, nil
	}

	if response.StatusCode == http.StatusNoContent || len(responseBody) == 0 {
		outcome.Entity, err = r.Get(ctx, a.Href(), hyperstate.Vanilla)
		if err != nil {
			return nil, err
		}
		return outcome, nil
	}

	doc, err := r.newDocument(response, responseBody)
	if err != nil {
		return nil, err
	}

	outcome.Entity, err = r.decode(doc, hyperstate.Vanilla, a.Href())
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

func query(args hyperstate.Args) url.Values {
	q := url.Values{}
	for name, value := range args {
		q.Set(name, fmt.Sprint(value))
	}
	return q
}

func (r *Resolver) call(ctx context.Context, method, endpoint string, body io.Reader, headers map[string][]string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	req.Header.Set("Accept", hyperstate.MediaType)

	for _, h := range []map[string][]string{r.headers, headers} {
		for header, headerValue := range h {
			for _, val := range headerValue {
				req.Header.Add(header, val)
			}
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.NewTransportError(fmt.Sprintf("failed to send %s request to %s", method, endpoint), err)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.NewTransportError("failed to read response body", err)
	}

	if r.debug && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		log := logging.GetFromContext(ctx)
		log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}

func unexpectedResponse(response *http.Response, body []byte) error {
	contentType := response.Header.Get("Content-Type")

	if response.StatusCode >= http.StatusBadRequest && response.StatusCode < http.StatusInternalServerError {
		return errors.NewErrorFromProblemReport(response.StatusCode, contentType, body)
	}

	if response.StatusCode == http.StatusBadGateway || response.StatusCode == http.StatusServiceUnavailable || response.StatusCode == http.StatusGatewayTimeout {
		return errors.NewTransportError(fmt.Sprintf("server returned status code %d", response.StatusCode), nil)
	}

	return fmt.Errorf("server returned status code %d (content-type: %s) (%w)", response.StatusCode, contentType, errors.ErrInternal)
}

func etag(version uint64) string {
	return strconv.Quote(strconv.FormatUint(version, 10))
}

func versionFromETag(tag string) uint64 {
	tag = strings.TrimPrefix(tag, "W/")

	unquoted, err := strconv.Unquote(tag)
	if err != nil {
		unquoted = tag
	}

	version, err := strconv.ParseUint(unquoted, 10, 64)
	if err != nil {
		return 0
	}

	return version
}
