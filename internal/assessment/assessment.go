// Package assessment evaluates evidence snapshots end to end and keeps an
// audit trail of every result.
//
// An evaluation pass is two-phase. Phase one scores every company's
// categories and direct score independently and in parallel, each worker
// writing only its own slot. Phase two propagates over the settled direct
// scores and classifies the totals. Nothing is shared between workers, so a
// pass with the same snapshot is bit-identical however it is scheduled.
package assessment

import (
	"errors"
	"time"

	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/scoring"
)

var (
	// ErrInvalidSnapshot wraps input problems: no companies, duplicate ids,
	// unknown or repeated category codes.
	ErrInvalidSnapshot = errors.New("assessment: invalid snapshot")
	// ErrNotFound is returned by stores for an unknown assessment id.
	ErrNotFound = errors.New("assessment: not found")
)

// Kinds of evaluation pass.
const (
	KindSnapshot = "snapshot"
	KindSingle   = "single"
)

// CategoryInput is the upstream evidence for one category of one company.
// Score is shorthand for a single pre-aggregated signal.
type CategoryInput struct {
	Code          scoring.CategoryCode `json:"code" binding:"required"`
	Signals       []scoring.Signal     `json:"signals,omitempty"`
	Score         *float64             `json:"score,omitempty"`
	EventCount    int                  `json:"eventCount,omitempty"`
	PreviousScore *float64             `json:"previousScore,omitempty"`
}

func (c CategoryInput) signals() []scoring.Signal {
	if c.Score == nil {
		return c.Signals
	}
	out := make([]scoring.Signal, 0, len(c.Signals)+1)
	out = append(out, scoring.Signal{Score: *c.Score, Events: c.EventCount})
	return append(out, c.Signals...)
}

// CompanyInput is one company of a snapshot.
type CompanyInput struct {
	ID         string          `json:"id" binding:"required"`
	Name       string          `json:"name,omitempty"`
	Categories []CategoryInput `json:"categories" binding:"dive"`
}

// Snapshot is the immutable input of one evaluation pass.
type Snapshot struct {
	Companies []CompanyInput              `json:"companies" binding:"required,min=1,dive"`
	Edges     []propagation.RelationEdge `json:"edges,omitempty"`
}

// Assessment is the recorded result of one pass.
type Assessment struct {
	ID        string                     `json:"id"`
	Kind      string                     `json:"kind"`
	RequestID string                     `json:"requestId,omitempty"`
	CreatedAt time.Time                  `json:"createdAt"`
	EdgeCount int                        `json:"edgeCount"`
	Companies []CompanyResult            `json:"companies"`
	Dropped   []propagation.DroppedEdge `json:"droppedEdges,omitempty"`
}

// CompanyResult is a company's score inside an assessment.
type CompanyResult struct {
	Name string `json:"name,omitempty"`
	scoring.CompanyRiskScore
}

// Company returns the result for id.
func (a *Assessment) Company(id string) (CompanyResult, bool) {
	for _, c := range a.Companies {
		if c.CompanyID == id {
			return c, true
		}
	}
	return CompanyResult{}, false
}

// Distribution counts companies per risk level.
func (a *Assessment) Distribution() map[scoring.RiskLevel]int {
	d := map[scoring.RiskLevel]int{
		scoring.LevelPass:    0,
		scoring.LevelWarning: 0,
		scoring.LevelFail:    0,
	}
	for _, c := range a.Companies {
		d[c.RiskLevel]++
	}
	return d
}

// Neighbor is a related company whose direct score is already known.
type Neighbor struct {
	ID          string  `json:"id" binding:"required"`
	DirectScore float64 `json:"directScore"`
}

// ScoreRequest scores one company against known neighbors. Without edges,
// every neighbor is linked to the company at the default transfer factor.
type ScoreRequest struct {
	CompanyID  string                     `json:"companyId,omitempty"`
	Categories []CategoryInput            `json:"categories" binding:"dive"`
	Neighbors  []Neighbor                 `json:"neighbors,omitempty" binding:"dive"`
	Edges      []propagation.RelationEdge `json:"edges,omitempty"`
}

// DefaultCompanyID names the subject of a ScoreRequest without a companyId.
const DefaultCompanyID = "self"
