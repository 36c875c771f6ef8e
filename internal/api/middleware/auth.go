package middleware

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/SoftwareDev-01/6.vybe/internal/crypto"
)

type contextKey string

const userContextKey contextKey = "user"

// AuthMiddleware verifies identity tokens and attaches the caller's user id
// to the request context. Token issuance lives in the identity service; this
// layer only consumes verify(token) -> userId.
type AuthMiddleware struct {
	pub ed25519.PublicKey
}

// NewAuthMiddleware creates an auth middleware verifying against pub.
func NewAuthMiddleware(pub ed25519.PublicKey) *AuthMiddleware {
	return &AuthMiddleware{pub: pub}
}

// RequireAuth rejects requests without a valid identity token. The token is
// read from the Authorization header (Bearer), the "token" cookie, or a
// "token" query parameter (used by the websocket handshake).
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		userID, err := crypto.VerifyToken(m.pub, token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

// WithUser returns a context carrying the verified user id.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// UserFromContext returns the verified user id attached by RequireAuth.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userContextKey).(uuid.UUID)
	return userID, ok
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// jsonError writes a minimal JSON error body.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
