package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
)

// Observer receives a notification after each scope entity has been
// processed (successfully or not). Implementations must not block; the
// metrics collector is the production implementation.
type Observer interface {
	EntityProcessed(kind models.ScopeKind, res EntityResult, err error, elapsed time.Duration)
}

// Failure records a scope entity whose processing was rolled back.
type Failure struct {
	ScopeID string `json:"scope_id"`
	Error   string `json:"error"`
}

// Report is the aggregate outcome of a reconciliation pass. A dry-run
// report carries the same counters as a real one so the two can be diffed.
type Report struct {
	Scope  models.ScopeKind `json:"scope"`
	DryRun bool             `json:"dry_run"`

	EntitiesProcessed int       `json:"entities_processed"`
	BatchesCreated    int       `json:"batches_created"`
	BatchesReused     int       `json:"batches_reused"`
	RunsRequested     int       `json:"runs_requested"`
	RunsAssigned      int       `json:"runs_assigned"`
	Failures          []Failure `json:"failures,omitempty"`
}

func (r *Report) fold(res EntityResult) {
	r.EntitiesProcessed++
	r.BatchesCreated += res.BatchesCreated
	r.BatchesReused += res.BatchesReused
	r.RunsRequested += res.RunsRequested
	r.RunsAssigned += res.RunsAssigned
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Store  TxStore
	Kind   models.ScopeKind
	DryRun bool

	// Logger receives per-entity progress; nil disables progress logging.
	Logger *slog.Logger

	// Observer is optional.
	Observer Observer
}

// Runner drives the reconciliation across scope entities: enumerate (or
// accept a single id), process each entity inside its own transaction, and
// accumulate the report. A failing entity is recorded and never stops its
// siblings.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner validates the configuration and builds a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if _, err := models.ParseScopeKind(string(cfg.Kind)); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	return &Runner{cfg: cfg}, nil
}

// Run executes a full pass. With scopeID == "" every entity returned by
// enumeration is processed; otherwise exactly the named entity is. The
// returned error is non-nil only for failures that abort the whole pass
// (enumeration failure, context cancellation); per-entity failures land in
// Report.Failures.
func (r *Runner) Run(ctx context.Context, scopeID string) (Report, error) {
	report := Report{Scope: r.cfg.Kind, DryRun: r.cfg.DryRun}

	scopeIDs := []string{scopeID}
	if scopeID == "" {
		ids, err := r.cfg.Store.ScopesWithUnbatchedRuns(ctx, r.cfg.Kind)
		if err != nil {
			return report, fmt.Errorf("enumerating %s entities with unbatched runs: %w", r.cfg.Kind, err)
		}
		scopeIDs = ids
	}
	r.log("discovered scope entities", "scope", r.cfg.Kind, "count", len(scopeIDs), "dry_run", r.cfg.DryRun)

	for _, id := range scopeIDs {
		// Entities committed before an interrupt stay committed; stop
		// cleanly between entities when the context is done.
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("reconciliation interrupted: %w", err)
		}

		start := time.Now()
		res, err := r.processEntity(ctx, id)
		elapsed := time.Since(start)

		if r.cfg.Observer != nil {
			r.cfg.Observer.EntityProcessed(r.cfg.Kind, res, err, elapsed)
		}

		if err != nil {
			report.Failures = append(report.Failures, Failure{ScopeID: id, Error: err.Error()})
			r.log("entity failed, rolled back", "scope", r.cfg.Kind, "scope_id", id, "error", err)
			continue
		}

		report.fold(res)
		r.log("entity processed",
			"scope", r.cfg.Kind,
			"scope_id", id,
			"days", res.Days,
			"batches_created", res.BatchesCreated,
			"batches_reused", res.BatchesReused,
			"runs_assigned", res.RunsAssigned,
			"runs_requested", res.RunsRequested,
			"elapsed", elapsed,
		)
	}

	return report, nil
}

// processEntity wraps one entity's work in a transaction. Dry-run opens no
// write transaction at all: every read goes straight to the store and every
// write is simulated.
func (r *Runner) processEntity(ctx context.Context, scopeID string) (EntityResult, error) {
	if r.cfg.DryRun {
		return NewProcessor(DryRun(r.cfg.Store), r.cfg.Kind).Process(ctx, scopeID)
	}

	var res EntityResult
	err := r.cfg.Store.InTx(ctx, func(tx Store) error {
		var procErr error
		res, procErr = NewProcessor(tx, r.cfg.Kind).Process(ctx, scopeID)
		return procErr
	})
	if err != nil {
		return EntityResult{Scope: r.cfg.Kind, ScopeID: scopeID}, err
	}
	return res, nil
}

func (r *Runner) log(msg string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Info(msg, args...)
	}
}
