package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"

	hserrors "github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

var tracer = otel.Tracer("hyperstate/api/authz")

type Enticator interface {
	CheckAccess(ctx context.Context, r *http.Request, natures []string) error
}

type enticatorImpl struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewAuthenticator prepares the rego policies read from policies. Requests
// are allowed when data.hyperstate.authz.allow evaluates to an object.
func NewAuthenticator(ctx context.Context, policies io.Reader) (Enticator, error) {

	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	impl := &enticatorImpl{}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.hyperstate.authz.allow"),
		rego.Module("hyperstate.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (e *enticatorImpl) CheckAccess(ctx context.Context, r *http.Request, natures []string) error {
	var err error

	ctx, span := tracer.Start(ctx, "check-auth")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	token := r.Header.Get("Authorization")

	if len(token) > 7 {
		token = token[7:]
	}

	input := map[string]any{
		"method":  r.Method,
		"path":    strings.Split(strings.Trim(r.URL.Path, "/"), "/"),
		"token":   token,
		"natures": natures,
	}

	results, err := e.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return err
	}

	if len(results) == 0 {
		err = hserrors.NewForbiddenError("access denied: opa query could not be satisfied")
		return err
	}

	binding := results[0].Bindings["x"]

	// a denied request yields a single bool
	allowed, ok := binding.(bool)
	if ok && !allowed {
		err = hserrors.NewForbiddenError(fmt.Sprintf("access denied: %s %s", r.Method, r.URL.Path))
		logging.GetFromContext(ctx).Debug("access denied", "method", r.Method, "path", r.URL.Path)
		return err
	}

	_, ok = binding.(map[string]any)
	if !ok {
		err = errors.New("opa error: unexpected result type")
		return err
	}

	return nil
}

type allowAll struct{}

// AllowAll returns an authenticator that grants every request
func AllowAll() Enticator {
	return allowAll{}
}

func (allowAll) CheckAccess(context.Context, *http.Request, []string) error {
	return nil
}
