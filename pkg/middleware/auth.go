package middleware

import (
	"context"
	"net/http"
	"strings"

	"civicstream/internal/core/services"
)

type identityKeyType struct{}

// IdentityKey holds the authenticated services.Identity in the request context.
var IdentityKey = identityKeyType{}

func AuthMiddleware(tokenSvc *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				// The websocket browser API cannot set headers, so the
				// channel handshake carries the token as a query param.
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}
			ident, err := tokenSvc.ValidateToken(token)
			if err != nil {
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), IdentityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// IdentityFromContext returns the identity placed by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (*services.Identity, bool) {
	ident, ok := ctx.Value(IdentityKey).(*services.Identity)
	return ident, ok
}
