package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
)

// memStore is an in-memory TxStore used by the engine tests. InTx snapshots
// the whole state and restores it when the callback fails, mirroring the
// rollback semantics of the Postgres implementation.
type memStore struct {
	scopes  map[models.ScopeKind]map[string]bool // id -> exists (non-deleted)
	runs    map[string]*memRun
	batches map[string]*memBatch

	// failOn injects an error for the named method.
	failOn map[string]error
}

type memRun struct {
	run     models.QuestionRun
	scope   models.ScopeKind
	scopeID string
	batchID string
	deleted bool
}

type memBatch struct {
	batch   models.QuestionRunBatch
	deleted bool
}

func newMemStore() *memStore {
	return &memStore{
		scopes: map[models.ScopeKind]map[string]bool{
			models.ScopeOrg:     {},
			models.ScopeNetwork: {},
		},
		runs:    map[string]*memRun{},
		batches: map[string]*memBatch{},
		failOn:  map[string]error{},
	}
}

func (m *memStore) addScope(kind models.ScopeKind, id string) {
	m.scopes[kind][id] = true
}

func (m *memStore) addRun(kind models.ScopeKind, scopeID, runID string, createdAt time.Time) {
	m.runs[runID] = &memRun{
		run:     models.QuestionRun{ID: runID, QuestionID: "q-" + runID, CreatedAt: createdAt},
		scope:   kind,
		scopeID: scopeID,
	}
}

func (m *memStore) addBatch(batch models.QuestionRunBatch) {
	m.batches[batch.ID] = &memBatch{batch: batch}
}

func (m *memStore) snapshot() *memStore {
	clone := newMemStore()
	for kind, ids := range m.scopes {
		for id, ok := range ids {
			clone.scopes[kind][id] = ok
		}
	}
	for id, r := range m.runs {
		c := *r
		clone.runs[id] = &c
	}
	for id, b := range m.batches {
		c := *b
		clone.batches[id] = &c
	}
	clone.failOn = m.failOn
	return clone
}

func (m *memStore) restore(snap *memStore) {
	m.scopes = snap.scopes
	m.runs = snap.runs
	m.batches = snap.batches
}

// equalData reports whether runs and batches match another state, ignoring
// injected failures. Used to assert dry-run non-mutation.
func (m *memStore) equalData(other *memStore) bool {
	if len(m.runs) != len(other.runs) || len(m.batches) != len(other.batches) {
		return false
	}
	for id, r := range m.runs {
		o, ok := other.runs[id]
		if !ok || *r != *o {
			return false
		}
	}
	for id, b := range m.batches {
		o, ok := other.batches[id]
		if !ok || *b != *o {
			return false
		}
	}
	return true
}

func (m *memStore) InTx(ctx context.Context, fn func(Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) ScopesWithUnbatchedRuns(ctx context.Context, kind models.ScopeKind) ([]string, error) {
	if err := m.failOn["ScopesWithUnbatchedRuns"]; err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, r := range m.runs {
		if r.scope == kind && !r.deleted && r.batchID == "" {
			seen[r.scopeID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) ScopeExists(ctx context.Context, kind models.ScopeKind, scopeID string) (bool, error) {
	if err := m.failOn["ScopeExists"]; err != nil {
		return false, err
	}
	return m.scopes[kind][scopeID], nil
}

func (m *memStore) UnbatchedRuns(ctx context.Context, kind models.ScopeKind, scopeID string) ([]models.QuestionRun, error) {
	if err := m.failOn["UnbatchedRuns"]; err != nil {
		return nil, err
	}
	var runs []models.QuestionRun
	for _, r := range m.runs {
		if r.scope == kind && r.scopeID == scopeID && !r.deleted && r.batchID == "" {
			runs = append(runs, r.run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Day() != runs[j].Day() {
			return runs[i].Day() < runs[j].Day()
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

func (m *memStore) FindBatchForDay(ctx context.Context, kind models.ScopeKind, scopeID, day string) (string, error) {
	if err := m.failOn["FindBatchForDay"]; err != nil {
		return "", err
	}
	var ids []string
	for id, b := range m.batches {
		if b.deleted || b.batch.Scope != kind || b.batch.ScopeID != scopeID {
			continue
		}
		if b.batch.CreatedAt.UTC().Format("2006-01-02") == day {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil
	}
	sort.Strings(ids)
	return ids[0], nil
}

func (m *memStore) InsertBatch(ctx context.Context, batch models.QuestionRunBatch) error {
	if err := m.failOn["InsertBatch"]; err != nil {
		return err
	}
	if _, exists := m.batches[batch.ID]; exists {
		return fmt.Errorf("duplicate batch id %s", batch.ID)
	}
	m.batches[batch.ID] = &memBatch{batch: batch}
	return nil
}

func (m *memStore) AssignRuns(ctx context.Context, runIDs []string, batchID string) (int64, error) {
	if err := m.failOn["AssignRuns"]; err != nil {
		return 0, err
	}
	var updated int64
	for _, id := range runIDs {
		r, ok := m.runs[id]
		if !ok || r.deleted {
			continue
		}
		r.batchID = batchID
		updated++
	}
	return updated, nil
}

func (m *memStore) DemoteLatestBatches(ctx context.Context, kind models.ScopeKind, scopeID string) error {
	if err := m.failOn["DemoteLatestBatches"]; err != nil {
		return err
	}
	for _, b := range m.batches {
		if !b.deleted && b.batch.Scope == kind && b.batch.ScopeID == scopeID {
			b.batch.IsLatest = false
		}
	}
	return nil
}

func (m *memStore) PromoteLatestBatch(ctx context.Context, kind models.ScopeKind, scopeID string) (int64, error) {
	if err := m.failOn["PromoteLatestBatch"]; err != nil {
		return 0, err
	}
	var target *memBatch
	for _, b := range m.batches {
		if b.deleted || b.batch.Scope != kind || b.batch.ScopeID != scopeID {
			continue
		}
		if target == nil {
			target = b
			continue
		}
		if b.batch.CreatedAt.After(target.batch.CreatedAt) ||
			(b.batch.CreatedAt.Equal(target.batch.CreatedAt) && b.batch.ID > target.batch.ID) {
			target = b
		}
	}
	if target == nil {
		return 0, nil
	}
	target.batch.IsLatest = true
	return 1, nil
}

// latestBatches returns the entity's batches flagged latest, for invariant
// assertions.
func (m *memStore) latestBatches(kind models.ScopeKind, scopeID string) []models.QuestionRunBatch {
	var latest []models.QuestionRunBatch
	for _, b := range m.batches {
		if !b.deleted && b.batch.Scope == kind && b.batch.ScopeID == scopeID && b.batch.IsLatest {
			latest = append(latest, b.batch)
		}
	}
	return latest
}
