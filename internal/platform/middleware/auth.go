package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// ClientIdentity is the verified caller identity produced by the auth layer.
// The consent engine only ever sees already-authenticated identity claims,
// never raw credentials.
type ClientIdentity struct {
	ClientID string
	Name     string
}

// BearerValidator validates an OAuth bearer token and returns the identity it
// carries.
type BearerValidator interface {
	ValidateToken(tokenString string) (*ClientIdentity, error)
}

type contextKeyClient struct{}

// GetClientIdentity retrieves the authenticated client from the context.
func GetClientIdentity(ctx context.Context) *ClientIdentity {
	identity, ok := ctx.Value(contextKeyClient{}).(*ClientIdentity)
	if !ok {
		return nil
	}
	return identity
}

// RequireAuth authenticates callers by API key (X-API-Key header, looked up in
// the configured key set) or, when a validator is configured, by OAuth bearer
// token. The resolved ClientIdentity is stored in the request context.
func RequireAuth(apiKeys map[string]string, validator BearerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if key := r.Header.Get("X-API-Key"); key != "" {
				name, ok := apiKeys[key]
				if !ok {
					logger.WarnContext(ctx, "unauthorized access - unknown API key",
						"request_id", GetRequestID(ctx),
					)
					writeUnauthorized(w, "Invalid API key")
					return
				}
				identity := &ClientIdentity{ClientID: name, Name: name}
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeyClient{}, identity)))
				return
			}

			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && validator != nil {
				identity, err := validator.ValidateToken(token)
				if err != nil {
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeyClient{}, identity)))
				return
			}

			logger.WarnContext(ctx, "unauthorized access - missing credentials",
				"request_id", GetRequestID(ctx),
			)
			writeUnauthorized(w, "Missing X-API-Key or Authorization header")
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
