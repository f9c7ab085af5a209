package ots

import (
	"context"
	"time"
)

// Reconciler closes the gaps the dual-store design leaves open: a crash
// between the blob write and the record commit leaves an orphan blob, and a
// TTL expiry or failed cleanup leaves either an orphan record or a stray
// blob. There is no cross-store transaction; both sweeps are idempotent and
// safe to run while traffic is live.
type Reconciler struct {
	store  MetadataStore
	blobs  BlobStore
	logger Logger
	clock  Clock
	idgen  IDGenerator

	// grace is the minimum blob age before a blob with no record counts as
	// an orphan. It covers in-flight uploads whose record commit has not
	// landed yet.
	grace time.Duration
}

// NewReconciler creates a Reconciler sweeping with the given grace window.
func NewReconciler(store MetadataStore, blobs BlobStore, logger Logger, clock Clock, idgen IDGenerator, grace time.Duration) *Reconciler {
	return &Reconciler{
		store:  store,
		blobs:  blobs,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		grace:  grace,
	}
}

// SweepResult reports one sweep's work for observability.
type SweepResult struct {
	Checked int
	Removed int
}

// ReconcileReport aggregates both sweeps of one reconciliation run.
type ReconcileReport struct {
	RunID          string
	OrphanBlobs    SweepResult
	OrphanMetadata SweepResult
}

// SweepOrphanBlobs deletes every blob past the grace window whose token has
// no live metadata record. A blob whose in-flight consumer has just removed
// the record is also collected here if it lingers. That is harmless: the
// consumer is about to delete it anyway and blob deletion is idempotent.
func (r *Reconciler) SweepOrphanBlobs(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	infos, err := r.blobs.List(ctx)
	if err != nil {
		return res, err
	}

	cutoff := r.clock.Now().Add(-r.grace)
	for _, info := range infos {
		res.Checked++
		if info.ModTime.After(cutoff) {
			// Too young: the record commit may still be in flight.
			continue
		}

		exists, err := r.store.Exists(ctx, info.Token)
		if err != nil {
			// Fail closed: an unreachable store must never look like a
			// missing record, or every blob would be swept.
			return res, err
		}
		if exists {
			continue
		}

		if err := r.blobs.Delete(ctx, info.Token); err != nil {
			r.logger.Warn("failed to delete orphan blob", "token", info.Token, "error", err)
			continue
		}
		res.Removed++
		r.logger.Info("orphan blob removed", "token", info.Token)
	}

	return res, nil
}

// SweepOrphanMetadata deletes every record whose blob is missing, and every
// record that is structurally malformed. Blob existence is checked
// per-record, so the blob directory is never enumerated here.
func (r *Reconciler) SweepOrphanMetadata(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	tokens, err := r.store.List(ctx)
	if err != nil {
		return res, err
	}

	for _, token := range tokens {
		res.Checked++

		rec, err := r.store.Get(ctx, token)
		if err != nil {
			return res, err
		}
		if rec == nil {
			// Expired or consumed since List; nothing to do.
			continue
		}

		if verr := rec.Validate(); verr != nil {
			if err := r.store.Delete(ctx, token); err != nil {
				r.logger.Warn("failed to delete malformed record", "token", token, "error", err)
				continue
			}
			res.Removed++
			r.logger.Info("malformed record removed", "token", token, "reason", verr)
			continue
		}

		exists, err := r.blobs.Exists(ctx, rec.BlobRef)
		if err != nil {
			return res, err
		}
		if exists {
			continue
		}

		if err := r.store.Delete(ctx, token); err != nil {
			r.logger.Warn("failed to delete orphan record", "token", token, "error", err)
			continue
		}
		res.Removed++
		r.logger.Info("orphan record removed", "token", token)
	}

	return res, nil
}

// Run executes both sweeps and returns their combined report.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{RunID: r.idgen.New()}

	blobs, err := r.SweepOrphanBlobs(ctx)
	report.OrphanBlobs = blobs
	if err != nil {
		return report, err
	}

	metadata, err := r.SweepOrphanMetadata(ctx)
	report.OrphanMetadata = metadata
	if err != nil {
		return report, err
	}

	r.logger.Info("reconciliation complete",
		"run_id", report.RunID,
		"blobs_checked", blobs.Checked, "blobs_removed", blobs.Removed,
		"records_checked", metadata.Checked, "records_removed", metadata.Removed)
	return report, nil
}
