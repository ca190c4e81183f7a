package hypermedia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diwise/hyperstate/internal/pkg/application/notifications"
	"github.com/diwise/hyperstate/internal/pkg/presentation/api/hypermedia/auth"
	"github.com/diwise/hyperstate/pkg/hyperstate"
)

const (
	TraceAttributeEntityPath string = "entity-path"
	TraceAttributeAction     string = "action"
)

type api struct {
	title    string
	resolver hyperstate.Resolver
	registry *hyperstate.Registry
	authz    auth.Enticator
	notifier notifications.Notifier
}

// RegisterHandlers serves every entity reachable through resolver at its
// own path. A nil policies reader disables authorization, and changes are
// reported to notifier unless it is nil.
func RegisterHandlers(ctx context.Context, r chi.Router, title string, policies io.Reader, resolver hyperstate.Resolver, notifier notifications.Notifier, kinds ...hyperstate.Kind) error {
	authz := auth.AllowAll()

	if policies != nil {
		var err error
		authz, err = auth.NewAuthenticator(ctx, policies)
		if err != nil {
			return fmt.Errorf("failed to create api authenticator: %w", err)
		}
	}

	if notifier == nil {
		notifier = notifications.Discard()
	}

	a := &api{
		title:    title,
		resolver: resolver,
		registry: hyperstate.NewRegistry(kinds...),
		authz:    authz,
		notifier: notifier,
	}

	r.Group(func(r chi.Router) {
		r.Use(RequiredContentTypes([]string{hyperstate.MediaType, "application/json"}))

		r.Get("/*", NewRetrieveEntityHandler(a))
		r.Head("/*", NewEntityExistsHandler(a))
		r.Post("/*", NewCreateEntityHandler(a))
		r.Put("/*", NewReplaceEntityHandler(a))
		r.Delete("/*", NewDeleteEntityHandler(a))
	})

	return nil
}

func RequiredContentTypes(validTypes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			isValidContentType := true

			if len(contentType) > 0 {
				isValidContentType = false

				for _, t := range validTypes {
					if strings.HasPrefix(contentType, t) {
						isValidContentType = true
						break
					}
				}
			}

			if isValidContentType {
				next.ServeHTTP(w, r)
			} else {
				http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			}
		})
	}
}

func isDocument(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), hyperstate.MediaType)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, hyperstate.MediaType)
}
