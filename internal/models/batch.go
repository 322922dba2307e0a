package models

import (
	"fmt"
	"time"
)

// ScopeKind identifies which entity owns a question and, transitively, its
// runs. It doubles as the value of the `scope` column on geo_questions and
// question_run_batches.
type ScopeKind string

const (
	ScopeOrg     ScopeKind = "org"
	ScopeNetwork ScopeKind = "network"
)

// ParseScopeKind validates a user-supplied scope string.
func ParseScopeKind(s string) (ScopeKind, error) {
	switch ScopeKind(s) {
	case ScopeOrg, ScopeNetwork:
		return ScopeKind(s), nil
	default:
		return "", fmt.Errorf("unknown scope kind %q (expected %q or %q)", s, ScopeOrg, ScopeNetwork)
	}
}

// BatchStatus represents the lifecycle state of a question run batch.
type BatchStatus string

const (
	BatchStatusCompleted BatchStatus = "completed"
)

// BatchTypeMigration marks batches synthesized by the backfill rather than
// by the live execution pipeline.
const BatchTypeMigration = "migration"

// QuestionRun is a single recorded execution of a geo question. Only
// BatchID and the update timestamp are ever mutated by the backfill.
type QuestionRun struct {
	ID         string    `json:"question_run_id"`
	QuestionID string    `json:"geo_question_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Day returns the run's creation day in YYYY-MM-DD form (UTC). Runs sharing
// a Day value belong to the same batch.
func (r QuestionRun) Day() string {
	return r.CreatedAt.UTC().Format("2006-01-02")
}

// QuestionRunBatch groups every run a scope entity executed on one calendar
// day. Backfilled batches are created completed, with counts frozen at the
// number of runs assigned and is_latest left false until the latest-flag
// pass promotes exactly one batch per entity.
type QuestionRunBatch struct {
	ID                 string      `json:"batch_id"`
	Scope              ScopeKind   `json:"scope"`
	ScopeID            string      `json:"scope_id"`
	BatchType          string      `json:"batch_type"`
	Status             BatchStatus `json:"status"`
	TotalQuestions     int         `json:"total_questions"`
	CompletedQuestions int         `json:"completed_questions"`
	FailedQuestions    int         `json:"failed_questions"`
	IsLatest           bool        `json:"is_latest"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
