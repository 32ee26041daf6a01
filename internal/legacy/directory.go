package legacy

import (
	"context"
	"strings"

	"scanhub/pkg/platform/sentinel"
)

// User is an operator account as known to the legacy user directory.
type User struct {
	ID       int64
	Username string
	FullName string
}

// Directory resolves operator accounts. The real directory lives in the
// legacy system; the core only consumes this narrow lookup.
type Directory interface {
	LookupByUsername(ctx context.Context, username string) (*User, error)
}

// StaticDirectory accepts any non-empty username, mirroring the permissive
// stand-in used while the legacy directory integration is pending.
type StaticDirectory struct{}

func (StaticDirectory) LookupByUsername(_ context.Context, username string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, sentinel.ErrNotFound
	}
	return &User{ID: 1, Username: username, FullName: username}, nil
}
