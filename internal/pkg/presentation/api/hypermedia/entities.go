package hypermedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/client"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

var tracer = otel.Tracer("hyperstate/api/entities")

// NewRetrieveEntityHandler serves the document of an entity with a page of
// its children embedded. A request that names a fetch action, or carries
// arguments for one, invokes that action instead.
func NewRetrieveEntityHandler(a *api) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "retrieve-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, r.URL.Path)))
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		e, err := a.load(ctx, r)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		var action *hyperstate.Action
		if r.Header.Get(client.ActionHeader) != "" || hasArguments(r.URL.Query()) {
			action, err = selectAction(r, e, hyperstate.Fetch)
			if err != nil {
				a.reportError(w, r, err, traceID)
				return
			}
		}

		if action != nil {
			var outcome *hyperstate.Outcome

			outcome, err = action.Invoke(ctx, queryArgs(action, r.URL.Query()))
			if err != nil {
				log.Debug("fetch action failed", "action", action.Name(), "err", err.Error())
				a.reportError(w, r, err, traceID)
				return
			}

			a.writeOutcome(ctx, w, r, outcome, traceID)
			return
		}

		page := 0
		if p := r.URL.Query().Get("page"); p != "" {
			page, err = strconv.Atoi(p)
			if err != nil {
				err = errors.NewInvalidArgumentError(fmt.Sprintf("page must be a number, got %q", p))
				a.reportError(w, r, err, traceID)
				return
			}
		}

		children, err := e.Children(ctx, page)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		a.writeEntity(w, r, e, children, http.StatusOK, traceID)
	})
}

func NewEntityExistsHandler(a *api) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "entity-exists", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, r.URL.Path)))
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		if err = a.authz.CheckAccess(ctx, r, nil); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		exists, err := a.resolver.Exists(ctx, r.URL.Path)
		if err != nil {
			w.WriteHeader(errors.NewProblemDetails(err, "").ResponseCode())
			return
		}

		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

// NewCreateEntityHandler stores a posted document as a new member of the
// collection at the request path, or invokes a create action with the
// posted json arguments.
func NewCreateEntityHandler(a *api) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "create-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, r.URL.Path)))
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		if !isDocument(r) {
			a.invoke(ctx, w, r, hyperstate.Create, traceID)
			return
		}

		doc, err := readDocument(r)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		if self, _ := doc.SelfHref(); self != "" {
			err = errors.NewInvalidArgumentError(fmt.Sprintf("a new entity must not have a path, got %s", self))
			a.reportError(w, r, err, traceID)
			return
		}

		if err = a.authz.CheckAccess(ctx, r, doc.Class); err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		e, err := a.decode(doc, "")
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		if e.Kind().Collection() != r.URL.Path {
			err = errors.NewInvalidArgumentError(fmt.Sprintf("entities with natures [%s] can not be created in %s", strings.Join(doc.Class, ","), r.URL.Path))
			a.reportError(w, r, err, traceID)
			return
		}

		saved, err := a.resolver.Save(ctx, e)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		log.Debug("entity created", "path", saved.Path())
		a.notifier.EntityCreated(ctx, saved)

		w.Header().Set("Location", saved.Path())
		w.Header().Set("ETag", etag(saved.Version()))
		w.WriteHeader(http.StatusCreated)
	})
}

// NewReplaceEntityHandler replaces the entity at the request path with the
// posted document. An If-Match header makes the replace conditional on the
// version it carries.
func NewReplaceEntityHandler(a *api) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "replace-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, r.URL.Path)))
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, _ := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		if !isDocument(r) {
			a.invoke(ctx, w, r, hyperstate.Update, traceID)
			return
		}

		doc, err := readDocument(r)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		if self, _ := doc.SelfHref(); self != "" && self != r.URL.Path {
			err = errors.NewInvalidArgumentError(fmt.Sprintf("document of %s can not be stored at %s", self, r.URL.Path))
			a.reportError(w, r, err, traceID)
			return
		}

		if err = a.authz.CheckAccess(ctx, r, doc.Class); err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		doc.Version, err = versionFromIfMatch(r.Header.Get("If-Match"))
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		e, err := a.decode(doc, r.URL.Path)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		saved, err := a.resolver.Save(ctx, e)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		a.notifier.EntityUpdated(ctx, saved)
		a.writeEntity(w, r, saved, nil, http.StatusOK, traceID)
	})
}

// NewDeleteEntityHandler runs the delete action of the entity at the request
// path if it declares one, and removes the entity otherwise.
func NewDeleteEntityHandler(a *api) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "delete-entity", trace.WithAttributes(attribute.String(TraceAttributeEntityPath, r.URL.Path)))
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		e, err := a.load(ctx, r)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		action, err := selectAction(r, e, hyperstate.Delete)
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		if action != nil {
			var outcome *hyperstate.Outcome

			outcome, err = action.Invoke(ctx, queryArgs(action, r.URL.Query()))
			if err != nil {
				a.reportError(w, r, err, traceID)
				return
			}

			a.notify(ctx, action, outcome)
			a.writeOutcome(ctx, w, r, outcome, traceID)
			return
		}

		_, err = a.resolver.Delete(ctx, e.Path())
		if err != nil {
			a.reportError(w, r, err, traceID)
			return
		}

		log.Debug("entity deleted", "path", e.Path())
		a.notifier.EntityDeleted(ctx, e.Path())

		w.WriteHeader(http.StatusNoContent)
	})
}

// invoke runs the action of verb that the request selects, with the
// arguments in the json body of the request.
func (a *api) invoke(ctx context.Context, w http.ResponseWriter, r *http.Request, verb hyperstate.Verb, traceID string) {
	var err error

	ctx, span := tracer.Start(ctx, "invoke-action")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	e, err := a.load(ctx, r)
	if err != nil {
		a.reportError(w, r, err, traceID)
		return
	}

	action, err := selectAction(r, e, verb)
	if err != nil {
		a.reportError(w, r, err, traceID)
		return
	}

	if action == nil {
		err = errors.NewUnsupportedError(fmt.Sprintf("%s declares no %s action", e.Path(), verb))
		a.reportError(w, r, err, traceID)
		return
	}

	span.SetAttributes(attribute.String(TraceAttributeAction, action.Name()))

	args := hyperstate.Args{}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.reportError(w, r, err, traceID)
		return
	}

	if len(strings.TrimSpace(string(body))) > 0 {
		err = json.Unmarshal(body, &args)
		if err != nil {
			err = errors.NewInvalidArgumentError(fmt.Sprintf("unable to decode arguments of %s: %s", action.Name(), err.Error()))
			a.reportError(w, r, err, traceID)
			return
		}
	}

	outcome, err := action.Invoke(ctx, args)
	if err != nil {
		a.reportError(w, r, err, traceID)
		return
	}

	a.notify(ctx, action, outcome)
	a.writeOutcome(ctx, w, r, outcome, traceID)
}

// notify reports the change that an invoked action made, if any
func (a *api) notify(ctx context.Context, action *hyperstate.Action, outcome *hyperstate.Outcome) {
	switch action.Verb() {
	case hyperstate.Create:
		if outcome.Entity != nil {
			a.notifier.EntityCreated(ctx, outcome.Entity)
		}
	case hyperstate.Update:
		if outcome.Entity != nil {
			a.notifier.EntityUpdated(ctx, outcome.Entity)
		}
	case hyperstate.Delete:
		a.notifier.EntityDeleted(ctx, action.Href())
	}
}

// load fetches the entity at the request path, materialised as the kind
// registered for its natures so that local action handlers are present.
func (a *api) load(ctx context.Context, r *http.Request) (hyperstate.Entity, error) {
	e, err := a.resolver.Get(ctx, r.URL.Path, hyperstate.Vanilla)
	if err != nil {
		return nil, err
	}

	if e.Kind() == hyperstate.Vanilla {
		if k, ok := a.registry.Lookup(e.Natures()); ok {
			e, err = a.resolver.Get(ctx, r.URL.Path, k)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := a.authz.CheckAccess(ctx, r, e.Natures()); err != nil {
		return nil, err
	}

	return e, nil
}

func (a *api) decode(doc *hyperstate.Document, path string) (hyperstate.Entity, error) {
	kind, err := a.registry.KindFor(hyperstate.Vanilla, doc.Class)
	if err != nil {
		return nil, err
	}

	e, err := hyperstate.Decode(a.resolver, doc, kind, path)
	if err != nil {
		return nil, err
	}

	if len(doc.Entities) > 0 {
		children, err := hyperstate.DecodeChildren(a.resolver, doc)
		if err != nil {
			return nil, err
		}
		e.SetChildren(children)
	}

	return e, nil
}

func (a *api) writeOutcome(ctx context.Context, w http.ResponseWriter, r *http.Request, outcome *hyperstate.Outcome, traceID string) {
	switch {
	case outcome.Kind == hyperstate.CreatedEntityResult:
		location := outcome.Location
		if location == "" && outcome.Entity != nil {
			location = outcome.Entity.Path()
		}
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusCreated)
	case outcome.Kind == hyperstate.VoidResult || outcome.Entity == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		logging.GetFromContext(ctx).Debug("action completed", "result", outcome.Kind.String(), "path", outcome.Entity.Path())
		a.writeEntity(w, r, outcome.Entity, nil, http.StatusOK, traceID)
	}
}

func (a *api) writeEntity(w http.ResponseWriter, r *http.Request, e hyperstate.Entity, children []hyperstate.EntityRelationship, status int, traceID string) {
	doc, err := hyperstate.NewDocument(e, children)
	if err != nil {
		a.reportError(w, r, err, traceID)
		return
	}

	b, err := json.Marshal(doc)
	if err != nil {
		a.reportError(w, r, err, traceID)
		return
	}

	if e.Version() > 0 {
		w.Header().Set("ETag", etag(e.Version()))
	}

	if wantsHTML(r) {
		a.writePage(w, status, newEntityPage(a.title, e, children, b))
		return
	}

	w.Header().Set("Content-Type", hyperstate.MediaType)
	w.WriteHeader(status)
	w.Write(b)
}

func (a *api) reportError(w http.ResponseWriter, r *http.Request, err error, traceID string) {
	if wantsHTML(r) {
		problem := errors.NewProblemDetails(err, traceID)

		b, merr := json.Marshal(problem)
		if merr != nil {
			errors.ReportError(w, err, traceID)
			return
		}

		a.writePage(w, problem.ResponseCode(), newProblemPage(a.title, problem, b))
		return
	}

	errors.ReportError(w, err, traceID)
}

func readDocument(r *http.Request) (*hyperstate.Document, error) {
	doc := &hyperstate.Document{}

	err := json.NewDecoder(r.Body).Decode(doc)
	if err != nil {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unable to decode request payload: %s", err.Error()))
	}

	return doc, nil
}

// selectAction returns the action of verb that targets the request path. The
// action header picks one by name, otherwise there must be at most one
// candidate. A nil action means there is none.
func selectAction(r *http.Request, e hyperstate.Entity, verb hyperstate.Verb) (*hyperstate.Action, error) {
	if name := r.Header.Get(client.ActionHeader); name != "" {
		action, ok := e.Action(name)
		if !ok {
			return nil, errors.NewNotFoundError(fmt.Sprintf("%s has no action named %s", e.Path(), name))
		}

		if action.Verb() != verb || action.Href() != r.URL.Path {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("action %s is invoked with %s %s", name, action.Verb(), action.Href()))
		}

		return action, nil
	}

	var candidates []*hyperstate.Action
	for _, action := range e.Actions() {
		if action.Verb() == verb && action.Href() == r.URL.Path {
			candidates = append(candidates, action)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}

	return nil, errors.NewInvalidArgumentError(fmt.Sprintf("%s has %d %s actions, name one with the %s header", e.Path(), len(candidates), verb, client.ActionHeader))
}

func hasArguments(query url.Values) bool {
	for name := range query {
		if name != "page" {
			return true
		}
	}
	return false
}

// queryArgs converts query parameters into arguments of the types that the
// parameters of action declare
func queryArgs(action *hyperstate.Action, query url.Values) hyperstate.Args {
	args := hyperstate.Args{}

	types := map[string]hyperstate.ParamType{}
	for _, p := range action.Params() {
		types[p.Name] = p.Type
	}

	for name, values := range query {
		if name == "page" || len(values) == 0 {
			continue
		}

		value := values[0]

		switch types[name] {
		case hyperstate.NumberParam:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				args[name] = f
				continue
			}
		case hyperstate.BoolParam:
			if b, err := strconv.ParseBool(value); err == nil {
				args[name] = b
				continue
			}
		}

		args[name] = value
	}

	return args
}

func etag(version uint64) string {
	return strconv.Quote(strconv.FormatUint(version, 10))
}

func versionFromIfMatch(header string) (uint64, error) {
	if header == "" || header == "*" {
		return 0, nil
	}

	tag := strings.TrimPrefix(header, "W/")

	unquoted, err := strconv.Unquote(tag)
	if err != nil {
		unquoted = tag
	}

	version, err := strconv.ParseUint(unquoted, 10, 64)
	if err != nil {
		return 0, errors.NewInvalidArgumentError(fmt.Sprintf("if-match header %q does not carry a version", header))
	}

	return version, nil
}
