package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/evermart/checkout/internal/domain/auth"
)

// identityKey is the context key for the authenticated API key identity.
type identityKey struct{}

// IdentityFrom extracts the authenticated identity from the context. The
// second return is false on unauthenticated requests.
func IdentityFrom(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(identityKey{}).(*auth.APIKeyInfo)
	return info, ok
}

// Security authenticates requests via HMAC-SHA256 hashed API keys. The key is
// never stored or compared in plain text.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{apikeys: apikeys, pepper: pepper}
}

// RequireKey wraps next so it only runs for requests carrying a valid API key
// in the api_key header. The resolved identity is stored in the request
// context. Unauthenticated requests are rejected before any business logic.
func (s *Security) RequireKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("api_key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded: the stored hash could differ
		// from what we computed if the repository returns a stale/wrong row.
		storedBytes, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests whose key lacks the scope.
// State-machine legality is still enforced downstream; this only gates who
// may ask.
func (s *Security) RequireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := IdentityFrom(r.Context())
		if !ok || !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	}
}
