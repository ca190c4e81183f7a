package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestErrorKindsCanBeClassified(t *testing.T) {
	is := is.New(t)

	is.True(errors.Is(NewNotFoundError("no entity at /a"), ErrNotFound))
	is.True(errors.Is(NewConflictError("stale"), ErrConflict))
	is.True(!errors.Is(NewConflictError("stale"), ErrNotFound))

	wrapped := fmt.Errorf("get failed: %w", NewTypeMismatchError("not an Account"))
	is.True(errors.Is(wrapped, ErrTypeMismatch))
}

func TestTransportErrorUnwrapsCause(t *testing.T) {
	is := is.New(t)

	cause := fmt.Errorf("connection refused")
	err := NewTransportError("failed to send request", cause)

	is.True(errors.Is(err, ErrTransport))
	is.True(errors.Is(err, cause))
	is.True(!errors.Is(err, ErrNotFound))
	is.Equal(err.Error(), "failed to send request: connection refused")
}

func TestProblemReportRoundTrip(t *testing.T) {
	is := is.New(t)

	for _, kind := range []error{ErrInvalidArgument, ErrNotFound, ErrTypeMismatch, ErrConflict, ErrUnsupported} {
		w := httptest.NewRecorder()
		ReportError(w, fmt.Errorf("something went wrong (%w)", kind), "trace")

		is.Equal(w.Header().Get("Content-Type"), ProblemReportContentType)

		err := NewErrorFromProblemReport(w.Code, ProblemReportContentType, w.Body.Bytes())
		is.True(errors.Is(err, kind)) // kind should survive the round trip
	}
}

func TestUnknownErrorBecomesInternalError(t *testing.T) {
	is := is.New(t)

	pd := NewProblemDetails(fmt.Errorf("boom"), "")
	is.Equal(pd.ResponseCode(), http.StatusInternalServerError)

	b, err := json.Marshal(pd)
	is.NoErr(err)
	is.Equal(string(b), `{"type":"https://hyperstate.diwise.io/errors/InternalError","title":"Internal Error","detail":"boom"}`)
}

func TestProblemReportFallsBackOnStatusCode(t *testing.T) {
	is := is.New(t)

	err := NewErrorFromProblemReport(http.StatusNotFound, "text/plain", nil)
	is.True(errors.Is(err, ErrNotFound))

	err = NewErrorFromProblemReport(http.StatusConflict, "application/json", []byte(`{"type":"about:blank","detail":"x"}`))
	is.True(errors.Is(err, ErrConflict))

	err = NewErrorFromProblemReport(http.StatusTeapot, "application/json", []byte(`{}`))
	is.True(errors.Is(err, ErrInternal))
}

func TestPlainTextErrorFallsBackOnStatusCode(t *testing.T) {
	is := is.New(t)

	err := NewErrorFromProblemReport(http.StatusNotFound, "text/plain; charset=utf-8", []byte("404 page not found\n"))
	is.True(errors.Is(err, ErrNotFound))
	is.Equal(err.Error(), "404 page not found")

	err = NewErrorFromProblemReport(http.StatusPreconditionFailed, "text/html", []byte("<html></html>"))
	is.True(errors.Is(err, ErrConflict))
}
