package assessment

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/dealscope/internal/pagination"
	"github.com/mbd888/dealscope/internal/propagation"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]*Assessment
	history     map[string][]HistoryEntry // companyID -> newest first
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string]*Assessment),
		history:     make(map[string][]HistoryEntry),
	}
}

func (m *MemoryStore) Save(_ context.Context, a *Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneAssessment(a)
	m.assessments[cp.ID] = cp
	for _, c := range cp.Companies {
		entries := append(m.history[c.CompanyID], HistoryEntry{
			AssessmentID:  cp.ID,
			CreatedAt:     cp.CreatedAt,
			CompanyResult: c,
		})
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
				return entries[i].AssessmentID > entries[j].AssessmentID
			}
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		})
		m.history[c.CompanyID] = entries
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assessments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAssessment(a), nil
}

func (m *MemoryStore) History(_ context.Context, companyID string, limit int, cursor *pagination.Cursor) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var out []HistoryEntry
	for _, e := range m.history[companyID] {
		if !cursor.After(e.CreatedAt, e.AssessmentID) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneAssessment(a *Assessment) *Assessment {
	cp := *a
	cp.Companies = append([]CompanyResult(nil), a.Companies...)
	cp.Dropped = append([]propagation.DroppedEdge(nil), a.Dropped...)
	return &cp
}
