package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
)

// IdentityKey is the context key for the resolved caller identity
type IdentityKey struct{}

// GetIdentity extracts the caller identity from context, falling back to the
// anonymous identity when no middleware ran.
func GetIdentity(ctx context.Context) domain.Identity {
	if identity, ok := ctx.Value(IdentityKey{}).(domain.Identity); ok {
		return identity
	}
	return domain.Anonymous()
}

// TokenResolver maps a presented bearer token to an identity. Returns false
// for unknown tokens.
type TokenResolver func(token string) (domain.Identity, bool)

// IdentityMiddleware resolves the Authorization header into a domain identity
// and stores it on the request context. Requests without credentials proceed
// as anonymous: authorization, not authentication, decides what they may see.
// An unknown token is rejected outright so a caller with a typo'd credential
// is told, rather than silently served the anonymous view.
func IdentityMiddleware(resolve TokenResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := domain.Anonymous()

			if header := r.Header.Get("Authorization"); header != "" {
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok {
					respondUnauthorized(w, r, "unsupported authorization scheme")
					return
				}
				identity, ok = resolve(token)
				if !ok {
					logger.Warn("unknown token presented",
						zap.String("request_id", GetRequestID(r.Context())),
					)
					respondUnauthorized(w, r, "unknown token")
					return
				}
			}

			ctx := context.WithValue(r.Context(), IdentityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `","request_id":"` + GetRequestID(r.Context()) + `"}`))
}
