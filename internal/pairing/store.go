package pairing

import (
	"context"
	"errors"

	"scanhub/pkg/platform/sentinel"
)

// Store persists pairing records. The pairing table is the single arbiter of
// which platform currently holds a product, so FindAndMarkOverwritten and
// Insert for one commit must run inside the same InTx call: either both apply
// or neither does, and two concurrent commits for one product can never both
// observe the absence of a prior record.
type Store interface {
	// InTx runs fn with transactional store access. Store calls made with the
	// context passed to fn join the same transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	// FindAndMarkOverwritten locates the most recent record for the product,
	// flips its overwrite flag, and returns its identity. Returns nil when no
	// prior record exists.
	FindAndMarkOverwritten(ctx context.Context, product int64) (*Prior, error)

	// Insert persists a new record and returns its generated id.
	Insert(ctx context.Context, rec *Record) (int64, error)

	// UpdateSyncStatus records the terminal reconciliation outcome.
	UpdateSyncStatus(ctx context.Context, id int64, status SyncStatus, diagnostic string) error

	// FindLatestForIdentity returns the identity's most recent record or
	// sentinel.ErrNotFound.
	FindLatestForIdentity(ctx context.Context, identityKey string) (*Record, error)

	List(ctx context.Context, f Filter) ([]*Record, error)
	Count(ctx context.Context, f Filter) (int, error)
	Charts(ctx context.Context, f Filter) (*ChartData, error)
}

// HintSource adapts the store to the registry's platform hint contract.
type HintSource struct {
	Store Store
}

func (h HintSource) LatestPlatform(ctx context.Context, identityKey string) (*int64, error) {
	rec, err := h.Store.FindLatestForIdentity(ctx, identityKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	platform := rec.Platform
	return &platform, nil
}
