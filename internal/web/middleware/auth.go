package middleware

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/kozaktomas/reunite/internal/constants"
)

type contextKey string

const handlerContextKey contextKey = "handler"

// RequireHandler is middleware that requires the handler e-mail set by the
// upstream auth proxy.
func RequireHandler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.TrimSpace(r.Header.Get(constants.HandlerHeader))
			if email == "" {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if _, err := mail.ParseAddress(email); err != nil {
				http.Error(w, `{"error": "invalid handler identity"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), handlerContextKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetHandlerFromContext retrieves the handler e-mail from the request context.
func GetHandlerFromContext(ctx context.Context) string {
	email, _ := ctx.Value(handlerContextKey).(string)
	return email
}

// SetHandlerInContext adds a handler e-mail to the context.
// This is primarily for testing - use RequireHandler middleware in production.
func SetHandlerInContext(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, handlerContextKey, email)
}

// MustGetHandler retrieves the handler e-mail from context.
// If not available, writes an error response and returns "".
// Handlers should return immediately after receiving "".
func MustGetHandler(ctx context.Context, w http.ResponseWriter) string {
	email := GetHandlerFromContext(ctx)
	if email == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
	}
	return email
}
