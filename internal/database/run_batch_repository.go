package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
	"github.com/AI-Template-SDK/senso-batchfix/internal/reconcile"
	"github.com/lib/pq"
)

// scopeSQL maps a scope kind onto the column and table names that differ
// between the org and network variants of every query. Everything else
// about the two kinds is identical, so this table is the only place the
// difference lives.
type scopeSQL struct {
	fkColumn    string // foreign key on geo_questions and question_run_batches
	entityTable string // table holding the scope entities themselves
	entityPK    string
}

func sqlForKind(kind models.ScopeKind) (scopeSQL, error) {
	switch kind {
	case models.ScopeOrg:
		return scopeSQL{fkColumn: "org_id", entityTable: "orgs", entityPK: "org_id"}, nil
	case models.ScopeNetwork:
		return scopeSQL{fkColumn: "network_id", entityTable: "networks", entityPK: "network_id"}, nil
	default:
		return scopeSQL{}, fmt.Errorf("unknown scope kind %q", kind)
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunBatchRepository is the PostgreSQL implementation of the reconciliation
// store: question run and batch queries generic over scope kind, plus the
// per-entity transaction boundary.
type RunBatchRepository struct {
	db *sql.DB
	q  querier
}

// NewRunBatchRepository creates a new run batch repository.
func NewRunBatchRepository(db *sql.DB) *RunBatchRepository {
	return &RunBatchRepository{db: db, q: db}
}

var _ reconcile.TxStore = (*RunBatchRepository)(nil)

// InTx runs fn against a transaction-bound copy of the repository. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *RunBatchRepository) InTx(ctx context.Context, fn func(reconcile.Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&RunBatchRepository{db: r.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ScopesWithUnbatchedRuns returns the distinct ids of entities of the given
// kind that own at least one run without a batch, ordered for reproducible
// processing.
func (r *RunBatchRepository) ScopesWithUnbatchedRuns(ctx context.Context, kind models.ScopeKind) ([]string, error) {
	s, err := sqlForKind(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT gq.%[1]s::text
		FROM question_runs qr
		JOIN geo_questions gq ON qr.geo_question_id = gq.geo_question_id
		WHERE qr.batch_id IS NULL
		AND gq.scope = $1
		AND gq.%[1]s IS NOT NULL
		AND gq.deleted_at IS NULL
		AND qr.deleted_at IS NULL
		ORDER BY 1`, s.fkColumn)

	rows, err := r.q.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s entities with unbatched runs: %w", kind, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", kind, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s ids: %w", kind, err)
	}
	return ids, nil
}

// ScopeExists reports whether the entity exists and is not soft-deleted.
// A missing table or any other query failure propagates: silently assuming
// existence would defeat the invariant checks downstream.
func (r *RunBatchRepository) ScopeExists(ctx context.Context, kind models.ScopeKind, scopeID string) (bool, error) {
	s, err := sqlForKind(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE %s::text = $1 AND deleted_at IS NULL
		)`, s.entityTable, s.entityPK)

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, scopeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s %s exists: %w", kind, scopeID, err)
	}
	return exists, nil
}

// UnbatchedRuns returns the entity's eligible runs ordered by creation day,
// then full creation timestamp. The ordering makes the first run of each
// day deterministic across passes.
func (r *RunBatchRepository) UnbatchedRuns(ctx context.Context, kind models.ScopeKind, scopeID string) ([]models.QuestionRun, error) {
	s, err := sqlForKind(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT qr.question_run_id::text, qr.geo_question_id::text, qr.created_at
		FROM question_runs qr
		JOIN geo_questions gq ON qr.geo_question_id = gq.geo_question_id
		WHERE qr.batch_id IS NULL
		AND gq.scope = $1
		AND gq.%s::text = $2
		AND gq.deleted_at IS NULL
		AND qr.deleted_at IS NULL
		ORDER BY qr.created_at::date, qr.created_at`, s.fkColumn)

	rows, err := r.q.QueryContext(ctx, query, string(kind), scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unbatched runs for %s %s: %w", kind, scopeID, err)
	}
	defer rows.Close()

	var runs []models.QuestionRun
	for rows.Next() {
		var run models.QuestionRun
		if err := rows.Scan(&run.ID, &run.QuestionID, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question runs: %w", err)
	}
	return runs, nil
}

// FindBatchForDay returns the existing non-deleted batch for the entity and
// calendar day, or "" when none exists.
func (r *RunBatchRepository) FindBatchForDay(ctx context.Context, kind models.ScopeKind, scopeID, day string) (string, error) {
	s, err := sqlForKind(kind)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`
		SELECT batch_id::text
		FROM question_run_batches
		WHERE scope = $1
		AND %s::text = $2
		AND created_at::date = $3::date
		AND deleted_at IS NULL
		LIMIT 1`, s.fkColumn)

	var batchID string
	err = r.q.QueryRowContext(ctx, query, string(kind), scopeID, day).Scan(&batchID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up batch for %s %s on %s: %w", kind, scopeID, day, err)
	}
	return batchID, nil
}

// InsertBatch persists a new batch record.
func (r *RunBatchRepository) InsertBatch(ctx context.Context, batch models.QuestionRunBatch) error {
	s, err := sqlForKind(batch.Scope)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO question_run_batches (
			batch_id, scope, %s, batch_type, status,
			total_questions, completed_questions, failed_questions,
			is_latest, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.fkColumn)

	_, err = r.q.ExecContext(ctx, query,
		batch.ID, string(batch.Scope), batch.ScopeID, batch.BatchType, string(batch.Status),
		batch.TotalQuestions, batch.CompletedQuestions, batch.FailedQuestions,
		batch.IsLatest, batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", batch.ID, err)
	}
	return nil
}

// AssignRuns attaches the named runs to a batch. Runs soft-deleted since
// fetch are skipped; the returned count reflects rows actually updated.
func (r *RunBatchRepository) AssignRuns(ctx context.Context, runIDs []string, batchID string) (int64, error) {
	if len(runIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE question_runs
		SET batch_id = $1::uuid, updated_at = $2
		WHERE question_run_id = ANY($3::uuid[])
		AND deleted_at IS NULL`

	result, err := r.q.ExecContext(ctx, query, batchID, time.Now(), pq.Array(runIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to assign runs to batch %s: %w", batchID, err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return updated, nil
}

// DemoteLatestBatches clears is_latest on every batch of the entity.
func (r *RunBatchRepository) DemoteLatestBatches(ctx context.Context, kind models.ScopeKind, scopeID string) error {
	s, err := sqlForKind(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE question_run_batches
		SET is_latest = false, updated_at = $3
		WHERE scope = $1
		AND %s::text = $2
		AND deleted_at IS NULL`, s.fkColumn)

	if _, err := r.q.ExecContext(ctx, query, string(kind), scopeID, time.Now()); err != nil {
		return fmt.Errorf("failed to demote latest batches for %s %s: %w", kind, scopeID, err)
	}
	return nil
}

// PromoteLatestBatch flags the entity's most recently created batch as
// latest. Ties on created_at break on batch_id descending so repeated runs
// pick the same batch.
func (r *RunBatchRepository) PromoteLatestBatch(ctx context.Context, kind models.ScopeKind, scopeID string) (int64, error) {
	s, err := sqlForKind(kind)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		UPDATE question_run_batches
		SET is_latest = true, updated_at = $3
		WHERE batch_id = (
			SELECT batch_id
			FROM question_run_batches
			WHERE scope = $1
			AND %s::text = $2
			AND deleted_at IS NULL
			ORDER BY created_at DESC, batch_id DESC
			LIMIT 1
		)`, s.fkColumn)

	result, err := r.q.ExecContext(ctx, query, string(kind), scopeID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to promote latest batch for %s %s: %w", kind, scopeID, err)
	}

	promoted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return promoted, nil
}
