package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrInvalidArgument = fmt.Errorf("invalid argument")
var ErrNotFound = fmt.Errorf("not found")
var ErrTypeMismatch = fmt.Errorf("type mismatch")
var ErrConflict = fmt.Errorf("conflict")
var ErrUnbound = fmt.Errorf("unbound")
var ErrUnsupported = fmt.Errorf("unsupported")
var ErrTransport = fmt.Errorf("transport failure")
var ErrForbidden = fmt.Errorf("forbidden")
var ErrInternal = fmt.Errorf("internal error")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewInvalidArgumentError(msg string) error {
	return &myError{msg: msg, target: ErrInvalidArgument}
}

func NewNotFoundError(msg string) error {
	return &myError{msg: msg, target: ErrNotFound}
}

func NewTypeMismatchError(msg string) error {
	return &myError{msg: msg, target: ErrTypeMismatch}
}

func NewConflictError(msg string) error {
	return &myError{msg: msg, target: ErrConflict}
}

func NewUnboundError(msg string) error {
	return &myError{msg: msg, target: ErrUnbound}
}

func NewUnsupportedError(msg string) error {
	return &myError{msg: msg, target: ErrUnsupported}
}

func NewForbiddenError(msg string) error {
	return &myError{msg: msg, target: ErrForbidden}
}

// NewTransportError wraps a network or browser session failure so that it can
// be told apart from application level errors such as ErrNotFound.
func NewTransportError(msg string, cause error) error {
	return &transportError{msg: msg, cause: cause}
}

type transportError struct {
	msg   string
	cause error
}

func (t transportError) Error() string {
	if t.cause == nil {
		return t.msg
	}
	return fmt.Sprintf("%s: %s", t.msg, t.cause.Error())
}

func (t transportError) Is(target error) bool { return target == ErrTransport }
func (t transportError) Unwrap() error        { return t.cause }

const (
	//ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
	ProblemReportContentType string = "application/problem+json"

	typePrefix string = "https://hyperstate.diwise.io/errors/"
)

var problemTypes = []struct {
	name   string
	title  string
	code   int
	target error
}{
	{"InvalidArgument", "Invalid Argument", http.StatusBadRequest, ErrInvalidArgument},
	{"NotFound", "Not Found", http.StatusNotFound, ErrNotFound},
	{"TypeMismatch", "Type Mismatch", http.StatusUnprocessableEntity, ErrTypeMismatch},
	{"Conflict", "Conflict", http.StatusPreconditionFailed, ErrConflict},
	{"Unbound", "Unbound", http.StatusBadRequest, ErrUnbound},
	{"Unsupported", "Unsupported", http.StatusMethodNotAllowed, ErrUnsupported},
	{"TransportFailure", "Transport Failure", http.StatusBadGateway, ErrTransport},
	{"Forbidden", "Forbidden", http.StatusForbidden, ErrForbidden},
}

//ProblemDetails stores details about a certain problem according to RFC7807
type ProblemDetails struct {
	typ     string
	title   string
	detail  string
	code    int
	traceID string
}

// NewProblemDetails classifies err and returns the problem report that
// describes it. Errors of unknown kind become internal errors.
func NewProblemDetails(err error, traceID string) *ProblemDetails {
	for _, pt := range problemTypes {
		if stderrors.Is(err, pt.target) {
			return &ProblemDetails{
				typ:     typePrefix + pt.name,
				title:   pt.title,
				detail:  err.Error(),
				code:    pt.code,
				traceID: traceID,
			}
		}
	}

	return &ProblemDetails{
		typ:     typePrefix + "InternalError",
		title:   "Internal Error",
		detail:  err.Error(),
		code:    http.StatusInternalServerError,
		traceID: traceID,
	}
}

func (p *ProblemDetails) Type() string   { return p.typ }
func (p *ProblemDetails) Title() string  { return p.title }
func (p *ProblemDetails) Detail() string { return p.detail }

//ContentType returns the ContentType to be used when returning this problem
func (p *ProblemDetails) ContentType() string {
	return ProblemReportContentType
}

//ResponseCode returns the HTTP response code to be used when returning a specific problem
func (p *ProblemDetails) ResponseCode() int {
	if p.code != 0 {
		return p.code
	}

	return http.StatusBadRequest
}

//MarshalJSON is called when a ProblemDetails instance should be serialized to JSON
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	var traceID *string

	if p.traceID != "" {
		traceID = &p.traceID
	}

	return json.Marshal(struct {
		Type    string  `json:"type"`
		Title   string  `json:"title"`
		Detail  string  `json:"detail"`
		TraceID *string `json:"traceID,omitempty"`
	}{
		Type:    p.typ,
		Title:   p.title,
		Detail:  p.detail,
		TraceID: traceID,
	})
}

//WriteResponse writes the contents of this instance to a http.ResponseWriter
func (p *ProblemDetails) WriteResponse(w http.ResponseWriter) {
	w.Header().Add("Content-Type", p.ContentType())
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.ResponseCode())

	pdbytes, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		w.Write(pdbytes)
	}
}

// ReportError classifies err and writes the matching problem report to w
func ReportError(w http.ResponseWriter, err error, traceID string) {
	NewProblemDetails(err, traceID).WriteResponse(w)
}

// NewErrorFromProblemReport maps a problem report received from a remote
// hyperstate server back into one of the error kinds of this package.
func NewErrorFromProblemReport(code int, contentType string, body []byte) error {
	report := &struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	if len(body) > 0 {
		err := json.Unmarshal(body, report)
		if err != nil {
			// not a problem report, fall back on the status code
			report.Type, report.Title, report.Detail = "", "", plainDetail(code, body)
		}
	}

	for _, pt := range problemTypes {
		if report.Type == typePrefix+pt.name {
			return &myError{msg: report.Detail, target: pt.target}
		}
	}

	switch code {
	case http.StatusNotFound, http.StatusGone:
		return NewNotFoundError(report.Detail)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return NewConflictError(report.Detail)
	case http.StatusBadRequest:
		return NewInvalidArgumentError(report.Detail)
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return NewUnsupportedError(report.Detail)
	}

	return fmt.Errorf("[code: %d] unknown problem report of type \"%s\" with detail \"%s\" received (%w)",
		code, report.Type, report.Detail, ErrInternal,
	)
}

func plainDetail(code int, body []byte) string {
	detail := strings.TrimSpace(string(body))
	if detail == "" || len(detail) > 200 {
		return http.StatusText(code)
	}
	return detail
}
