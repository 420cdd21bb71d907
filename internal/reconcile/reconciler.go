// Package reconcile periodically re-derives the denormalized counters
// from the relationship tables that own the truth. The enrollment
// transaction keeps the counters correct in the normal case; this worker
// heals drift left behind by crashes or manual data surgery.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Reconciler handles periodic counter reconciliation
type Reconciler struct {
	db       *sql.DB
	interval time.Duration
}

// New opens a dedicated database connection for the worker. The worker
// uses its own lightweight connection rather than the API pool so a
// long reconciliation pass never starves request traffic.
func New(dsn string, interval time.Duration) (*Reconciler, error) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open reconcile connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	return &Reconciler{
		db:       db,
		interval: interval,
	}, nil
}

// Start begins the reconciliation worker in a goroutine
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

// Close releases the worker's database connection
func (r *Reconciler) Close() error {
	return r.db.Close()
}

// run is the main loop for the reconciliation worker
func (r *Reconciler) run(ctx context.Context) {
	slog.Info("reconcile worker started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile runs one pass over all three counters
func (r *Reconciler) reconcile(ctx context.Context) {
	slog.Debug("running reconcile cycle")

	fixed, err := r.reconcileFormationCounters(ctx)
	if err != nil {
		slog.Error("failed to reconcile formation counters", "error", err)
	} else if fixed > 0 {
		slog.Warn("healed formation learner counters", "rows", fixed)
	}

	fixed, err = r.reconcileJoinedCounters(ctx)
	if err != nil {
		slog.Error("failed to reconcile joined counters", "error", err)
	} else if fixed > 0 {
		slog.Warn("healed learner joined counters", "rows", fixed)
	}

	fixed, err = r.reconcileTrainerCounters(ctx)
	if err != nil {
		slog.Error("failed to reconcile trainer counters", "error", err)
	} else if fixed > 0 {
		slog.Warn("healed trainer learner counters", "rows", fixed)
	}
}

// reconcileFormationCounters resets formations.current_learners to the
// participant row count
func (r *Reconciler) reconcileFormationCounters(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE formations f
		SET current_learners = derived.actual
		FROM (
			SELECT f2.id, COUNT(fp.user_id) AS actual
			FROM formations f2
			LEFT JOIN formation_participants fp ON fp.formation_id = f2.id
			GROUP BY f2.id
		) derived
		WHERE f.id = derived.id AND f.current_learners <> derived.actual
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// reconcileJoinedCounters resets users.trainings_joined_count to the
// participant row count per learner
func (r *Reconciler) reconcileJoinedCounters(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users u
		SET trainings_joined_count = derived.actual
		FROM (
			SELECT u2.id, COUNT(fp.formation_id) AS actual
			FROM users u2
			LEFT JOIN formation_participants fp ON fp.user_id = u2.id
			GROUP BY u2.id
		) derived
		WHERE u.id = derived.id AND u.trainings_joined_count <> derived.actual
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// reconcileTrainerCounters resets users.learners_count to the number of
// distinct learners linked to the trainer
func (r *Reconciler) reconcileTrainerCounters(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users u
		SET learners_count = derived.actual
		FROM (
			SELECT u2.id, COUNT(ui.user_id) AS actual
			FROM users u2
			LEFT JOIN user_instructors ui ON ui.trainer_id = u2.id
			GROUP BY u2.id
		) derived
		WHERE u.id = derived.id AND u.learners_count <> derived.actual
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
