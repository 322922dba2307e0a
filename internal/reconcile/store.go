package reconcile

import (
	"context"
	"errors"

	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
)

// ErrScopeNotFound is returned when the scope entity named for processing
// does not exist or has been soft-deleted.
var ErrScopeNotFound = errors.New("scope entity not found")

// Store is the persistence surface the reconciliation engine drives. The
// production implementation lives in internal/database; tests use an
// in-memory fake. Soft-deleted rows are invisible through every method.
type Store interface {
	// ScopesWithUnbatchedRuns returns the distinct, ordered ids of scope
	// entities of the given kind that own at least one eligible run
	// (not deleted, question not deleted, batch_id unset).
	ScopesWithUnbatchedRuns(ctx context.Context, kind models.ScopeKind) ([]string, error)

	// ScopeExists reports whether the entity exists and is not soft-deleted.
	ScopeExists(ctx context.Context, kind models.ScopeKind, scopeID string) (bool, error)

	// UnbatchedRuns returns the entity's eligible runs ordered by creation
	// day, then full creation timestamp, ascending.
	UnbatchedRuns(ctx context.Context, kind models.ScopeKind, scopeID string) ([]models.QuestionRun, error)

	// FindBatchForDay returns the id of the existing non-deleted batch for
	// (entity, day), or "" when none exists.
	FindBatchForDay(ctx context.Context, kind models.ScopeKind, scopeID, day string) (string, error)

	// InsertBatch persists a new batch record.
	InsertBatch(ctx context.Context, batch models.QuestionRunBatch) error

	// AssignRuns sets batch_id and refreshes updated_at on the named runs,
	// skipping any that were soft-deleted in the meantime. Returns the
	// number of rows actually updated.
	AssignRuns(ctx context.Context, runIDs []string, batchID string) (int64, error)

	// DemoteLatestBatches clears is_latest on every batch of the entity.
	DemoteLatestBatches(ctx context.Context, kind models.ScopeKind, scopeID string) error

	// PromoteLatestBatch sets is_latest on the entity's most recently
	// created batch (ties broken by batch id, descending) and returns the
	// number of batches promoted.
	PromoteLatestBatch(ctx context.Context, kind models.ScopeKind, scopeID string) (int64, error)
}

// TxStore is a Store that can scope a unit of work to a single transaction.
// The reconciliation runner wraps each scope entity's processing in one
// InTx call so a mid-entity failure rolls back that entity in full.
type TxStore interface {
	Store

	// InTx runs fn against a transaction-bound Store. The transaction
	// commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}

// DryRun wraps a store so every read passes through untouched while every
// write is simulated: inserts and flag updates become no-ops and
// AssignRuns reports the requested count. This keeps dry-run statistics
// shaped identically to a real pass over the same snapshot.
func DryRun(s Store) Store {
	return &dryRunStore{Store: s}
}

type dryRunStore struct {
	Store
}

func (d *dryRunStore) InsertBatch(ctx context.Context, batch models.QuestionRunBatch) error {
	return nil
}

func (d *dryRunStore) AssignRuns(ctx context.Context, runIDs []string, batchID string) (int64, error) {
	return int64(len(runIDs)), nil
}

func (d *dryRunStore) DemoteLatestBatches(ctx context.Context, kind models.ScopeKind, scopeID string) error {
	return nil
}

func (d *dryRunStore) PromoteLatestBatch(ctx context.Context, kind models.ScopeKind, scopeID string) (int64, error) {
	return 1, nil
}
