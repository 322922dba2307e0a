package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
	"github.com/google/uuid"
)

// EntityResult summarizes one scope entity's pass. It is returned by value
// and never mutated after Process returns; the runner folds results into
// the aggregate report.
type EntityResult struct {
	Scope   models.ScopeKind `json:"scope"`
	ScopeID string           `json:"scope_id"`

	Days           int `json:"days"`
	BatchesCreated int `json:"batches_created"`
	BatchesReused  int `json:"batches_reused"`

	// RunsAssigned can fall short of RunsRequested when a run is
	// soft-deleted between fetch and assignment. The shortfall is part of
	// the success summary, not an error.
	RunsRequested int `json:"runs_requested"`
	RunsAssigned  int `json:"runs_assigned"`
}

// Processor reconciles the unbatched runs of a single scope entity:
// existence check, fetch, day grouping, per-day batch resolution and run
// assignment, then latest-flag maintenance. It is generic over scope kind;
// the org/network difference lives entirely in the Store implementation.
type Processor struct {
	store Store
	kind  models.ScopeKind

	// Overridable for tests.
	now   func() time.Time
	newID func() string
}

// NewProcessor builds a processor for one scope kind over the given store.
func NewProcessor(store Store, kind models.ScopeKind) *Processor {
	return &Processor{
		store: store,
		kind:  kind,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Process runs the full reconciliation sequence for one scope entity. Any
// returned error means the entity's storage effects must be rolled back by
// the caller's transaction boundary; the partial EntityResult accompanying
// an error is not meaningful.
func (p *Processor) Process(ctx context.Context, scopeID string) (EntityResult, error) {
	res := EntityResult{Scope: p.kind, ScopeID: scopeID}

	exists, err := p.store.ScopeExists(ctx, p.kind, scopeID)
	if err != nil {
		return res, fmt.Errorf("checking %s %s: %w", p.kind, scopeID, err)
	}
	if !exists {
		return res, fmt.Errorf("%s %s: %w", p.kind, scopeID, ErrScopeNotFound)
	}

	runs, err := p.store.UnbatchedRuns(ctx, p.kind, scopeID)
	if err != nil {
		return res, fmt.Errorf("fetching unbatched runs for %s %s: %w", p.kind, scopeID, err)
	}
	if len(runs) == 0 {
		return res, nil
	}

	groups := GroupByDay(runs)
	for _, day := range SortedDays(groups) {
		dayRuns := groups[day]

		batchID, created, err := p.resolveBatch(ctx, scopeID, day, len(dayRuns))
		if err != nil {
			return res, err
		}
		if created {
			res.BatchesCreated++
		} else {
			res.BatchesReused++
		}

		ids := make([]string, len(dayRuns))
		for i, run := range dayRuns {
			ids[i] = run.ID
		}
		assigned, err := p.store.AssignRuns(ctx, ids, batchID)
		if err != nil {
			return res, fmt.Errorf("assigning %d runs to batch %s: %w", len(ids), batchID, err)
		}
		res.RunsRequested += len(ids)
		res.RunsAssigned += int(assigned)
		res.Days++
	}

	// Re-establish the single-latest invariant only when this pass touched
	// a batch; an entity with nothing to do keeps its flags as they were.
	if res.BatchesCreated+res.BatchesReused > 0 {
		if err := p.store.DemoteLatestBatches(ctx, p.kind, scopeID); err != nil {
			return res, fmt.Errorf("demoting latest batches for %s %s: %w", p.kind, scopeID, err)
		}
		if _, err := p.store.PromoteLatestBatch(ctx, p.kind, scopeID); err != nil {
			return res, fmt.Errorf("promoting latest batch for %s %s: %w", p.kind, scopeID, err)
		}
	}

	return res, nil
}

// resolveBatch finds the existing batch for (entity, day) or creates one.
// The lookup runs in dry-run mode too, so simulated statistics count reuse
// the same way a real pass would.
func (p *Processor) resolveBatch(ctx context.Context, scopeID, day string, runCount int) (batchID string, created bool, err error) {
	existing, err := p.store.FindBatchForDay(ctx, p.kind, scopeID, day)
	if err != nil {
		return "", false, fmt.Errorf("looking up batch for %s %s on %s: %w", p.kind, scopeID, day, err)
	}
	if existing != "" {
		return existing, false, nil
	}

	now := p.now()
	batch := models.QuestionRunBatch{
		ID:                 p.newID(),
		Scope:              p.kind,
		ScopeID:            scopeID,
		BatchType:          models.BatchTypeMigration,
		Status:             models.BatchStatusCompleted,
		TotalQuestions:     runCount,
		CompletedQuestions: runCount,
		FailedQuestions:    0,
		IsLatest:           false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := p.store.InsertBatch(ctx, batch); err != nil {
		return "", false, fmt.Errorf("creating batch for %s %s on %s: %w", p.kind, scopeID, day, err)
	}
	return batch.ID, true, nil
}
