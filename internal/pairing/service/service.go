package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scanhub/internal/pairing"
	"scanhub/internal/platform/metrics"
	"scanhub/internal/session"
)

// Reconciler spawns the asynchronous legacy propagation task for a committed
// record. Implementations must never block the caller.
type Reconciler interface {
	Spawn(recordID, platform, product int64)
}

// Service runs the pairing commit protocol: platform-change detection, atomic
// overwrite detection, record insertion, notification routing, and
// reconciliation hand-off.
type Service struct {
	registry   *session.Registry
	events     *session.Broadcaster
	store      pairing.Store
	reconciler Reconciler
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// The whole commit body is serialized per identity key so a commit that
	// both rebinds the platform and introduces a product cannot interleave
	// with another commit for the same identity.
	mu            sync.Mutex
	identityLocks map[string]*sync.Mutex
}

func New(
	registry *session.Registry,
	events *session.Broadcaster,
	store pairing.Store,
	reconciler Reconciler,
	logger *slog.Logger,
	m *metrics.Metrics) *Service {
	return &Service{
		registry:      registry,
		events:        events,
		store:         store,
		reconciler:    reconciler,
		logger:        logger,
		metrics:       m,
		identityLocks: make(map[string]*sync.Mutex),
	}
}

// HandleNewPairing processes a pairing message from a producer connection.
// An unknown identity key makes the entire call a no-op: there is no
// registered connection to attribute the pairing to, so nothing is persisted
// and nothing is broadcast.
func (s *Service) HandleNewPairing(ctx context.Context, identityKey string, platform int64, product *int64) error {
	unlock := s.lockIdentity(identityKey)
	defer unlock()

	ident, ok := s.registry.Lookup(identityKey)
	if !ok {
		return nil
	}

	if ident.RebindPlatform(platform) {
		s.events.SendTo(ctx, ident, session.Event{
			Event: session.EventPlatformChanged,
			Data:  pairing.PlatformChange{Platform: platform},
		})
	}

	if product == nil {
		return nil
	}

	rec := &pairing.Record{
		IdentityKey: identityKey,
		Platform:    platform,
		Product:     *product,
		ScannedAt:   time.Now().UTC(),
		SyncStatus:  pairing.SyncPending,
	}

	var prior *pairing.Prior
	var recordID int64
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		prior, err = s.store.FindAndMarkOverwritten(ctx, *product)
		if err != nil {
			return err
		}
		recordID, err = s.store.Insert(ctx, rec)
		return err
	})
	if err != nil {
		return fmt.Errorf("commit pairing for product %d: %w", *product, err)
	}

	s.metrics.PairingsCommitted.Inc()
	s.logger.InfoContext(ctx, "pairing committed",
		"identity", identityKey,
		"platform", platform,
		"product", *product,
		"record_id", recordID,
		"overwrite", prior != nil,
	)

	newPairing := session.Event{
		Event: session.EventNewPairing,
		Data: pairing.NewPairing{
			Platform:  platform,
			Product:   pairing.ProductRef{ID: *product},
			RecordID:  recordID,
			Overwrite: prior != nil,
		},
	}

	if prior != nil {
		s.metrics.OverwritesDetected.Inc()
	}
	if prior != nil && prior.Platform != platform {
		// The product moved between stations: the new platform learns about
		// the pairing, the old one learns the product left.
		s.metrics.ProductMoves.Inc()
		s.sendToPlatform(ctx, platform, newPairing)
		s.sendToPlatform(ctx, prior.Platform, session.Event{
			Event: session.EventProductMoved,
			Data: pairing.ProductMoved{
				Product: *product,
				From:    prior.Platform,
				To:      platform,
			},
		})
	} else {
		s.sendToPlatform(ctx, platform, newPairing)
	}

	s.reconciler.Spawn(recordID, platform, *product)
	return nil
}

func (s *Service) sendToPlatform(ctx context.Context, platform int64, ev session.Event) {
	for _, c := range s.registry.BoundTo(platform) {
		s.events.SendTo(ctx, c, ev)
	}
}

// lockIdentity returns the unlock for the identity's commit mutex. Entries
// are retained for the process lifetime: one mutex per identity key ever
// seen, bounded by the operator population, so no pruning is done.
func (s *Service) lockIdentity(identityKey string) func() {
	s.mu.Lock()
	lock, ok := s.identityLocks[identityKey]
	if !ok {
		lock = &sync.Mutex{}
		s.identityLocks[identityKey] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
