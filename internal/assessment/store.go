package assessment

import (
	"context"
	"time"

	"github.com/mbd888/dealscope/internal/pagination"
)

// Store persists assessments for audit and history queries.
type Store interface {
	Save(ctx context.Context, a *Assessment) error
	Get(ctx context.Context, id string) (*Assessment, error)
	// History returns a company's results newest first, starting after
	// cursor. A nil cursor starts from the newest.
	History(ctx context.Context, companyID string, limit int, cursor *pagination.Cursor) ([]HistoryEntry, error)
}

// HistoryEntry is one past result for a company.
type HistoryEntry struct {
	AssessmentID string    `json:"assessmentId"`
	CreatedAt    time.Time `json:"createdAt"`
	CompanyResult
}

// Key returns the pagination key of e.
func (e HistoryEntry) Key() (time.Time, string) {
	return e.CreatedAt, e.AssessmentID
}
