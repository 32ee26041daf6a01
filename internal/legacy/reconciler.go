package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"scanhub/internal/pairing"
	"scanhub/internal/platform/metrics"
)

// StatusStore is the slice of the pairing store the reconciler needs: it is
// the only component allowed to move a record out of pending.
type StatusStore interface {
	UpdateSyncStatus(ctx context.Context, id int64, status pairing.SyncStatus, diagnostic string) error
}

// Reconciler runs exactly one task per committed record, propagating it to
// the legacy sink and writing the terminal sync status. Tasks never block the
// committing caller and are never retried; a process exit before completion
// leaves the record permanently pending (accepted at-most-once semantics).
type Reconciler struct {
	sink    Sink
	store   StatusStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewReconciler(sink Sink, store StatusStore, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		sink:    sink,
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// Spawn starts the reconciliation task for a freshly committed record and
// returns immediately.
func (r *Reconciler) Spawn(recordID, platform, product int64) {
	r.wg.Add(1)
	r.inFlight.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		r.reconcile(recordID, platform, product)
	}()
}

func (r *Reconciler) reconcile(recordID, platform, product int64) {
	// Deliberately detached from any request context: a disconnect or server
	// shutdown must not cancel reconciliation of an already committed record.
	ctx := context.Background()

	status := pairing.SyncSuccess
	diagnostic := ""
	func() {
		defer func() {
			if p := recover(); p != nil {
				status = pairing.SyncFailure
				diagnostic = fmt.Sprintf("legacy sink panic: %v", p)
			}
		}()
		if err := r.sink.AttemptSave(ctx, platform, product); err != nil {
			status = pairing.SyncFailure
			diagnostic = err.Error()
		}
	}()

	if err := r.store.UpdateSyncStatus(ctx, recordID, status, diagnostic); err != nil {
		r.logger.Error("sync status update failed",
			"record_id", recordID,
			"status", string(status),
			"error", err.Error(),
		)
		return
	}

	r.metrics.ReconciliationsByOutcome.WithLabelValues(string(status)).Inc()
	if status == pairing.SyncFailure {
		r.logger.Warn("legacy reconciliation failed",
			"record_id", recordID,
			"platform", platform,
			"product", product,
			"diagnostic", diagnostic,
		)
		return
	}
	r.logger.Info("legacy reconciliation succeeded",
		"record_id", recordID,
		"platform", platform,
		"product", product,
	)
}

// InFlight reports how many tasks have been spawned and not yet finished.
func (r *Reconciler) InFlight() int64 {
	return r.inFlight.Load()
}

// Abandon logs the tasks still in flight at shutdown and returns their count.
// Their records stay pending; the history surface exposes them later.
func (r *Reconciler) Abandon() int64 {
	n := r.inFlight.Load()
	if n > 0 {
		r.logger.Warn("abandoning in-flight reconciliations", "count", n)
	}
	return n
}

// Wait blocks until every spawned task has finished. Tests use this to
// observe terminal statuses deterministically.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
