package identity

import (
	"context"
	"fmt"

	"scanhub/internal/legacy"
	"scanhub/internal/token"
	"scanhub/pkg/platform/sentinel"
)

// Identity is the resolved result of a register credential.
type Identity struct {
	Key         string
	ID          *int64
	DisplayName string
}

// TokenValidator is the slice of the token service the resolver needs.
type TokenValidator interface {
	Validate(tokenString string) (*token.Claims, error)
}

// Resolver maps a bearer credential or a bare identity key to identity
// metadata via the legacy user directory.
type Resolver struct {
	tokens    TokenValidator
	directory legacy.Directory
}

func NewResolver(tokens TokenValidator, directory legacy.Directory) *Resolver {
	return &Resolver{tokens: tokens, directory: directory}
}

// Resolve prefers the credential path: a presented token must validate, and
// its embedded identity must still exist in the directory. A bare identity
// key only needs the directory lookup. Any failure leaves the caller with no
// resolved identity and no side effects.
func (r *Resolver) Resolve(ctx context.Context, credential, identityKey string) (*Identity, error) {
	key := identityKey
	if credential != "" {
		claims, err := r.tokens.Validate(credential)
		if err != nil {
			return nil, fmt.Errorf("resolve credential: %w", err)
		}
		key = claims.Identity
	}
	if key == "" {
		return nil, fmt.Errorf("resolve identity: %w", sentinel.ErrNotFound)
	}

	user, err := r.directory.LookupByUsername(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve identity %q: %w", key, err)
	}
	id := user.ID
	return &Identity{Key: user.Username, ID: &id, DisplayName: user.FullName}, nil
}
