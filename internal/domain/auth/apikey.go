package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ScopeAdmin authorizes fulfillment status transitions.
const ScopeAdmin = "admin"

// ErrKeyNotFound is returned when no active key matches the given hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity resolved from a validated API key. UserID is
// the already-authenticated principal the core receives; the core never does
// credential verification beyond the key hash check.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
