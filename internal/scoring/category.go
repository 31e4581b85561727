package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// CategoryCode is one of the fixed risk dimensions.
type CategoryCode string

const (
	CategoryShare  CategoryCode = "SHARE"  // shareholder changes
	CategoryExec   CategoryCode = "EXEC"   // executive changes
	CategoryCredit CategoryCode = "CREDIT" // rating and default signals
	CategoryLegal  CategoryCode = "LEGAL"  // litigation, sanctions
	CategoryGov    CategoryCode = "GOV"    // governance
	CategoryOps    CategoryCode = "OPS"    // operational incidents
	CategoryAudit  CategoryCode = "AUDIT"  // audit opinions
	CategoryESG    CategoryCode = "ESG"
	CategorySupply CategoryCode = "SUPPLY" // supply chain
	CategoryOther  CategoryCode = "OTHER"
)

// Categories lists every category code in display order.
var Categories = []CategoryCode{
	CategoryShare, CategoryExec, CategoryCredit, CategoryLegal, CategoryGov,
	CategoryOps, CategoryAudit, CategoryESG, CategorySupply, CategoryOther,
}

// Valid reports whether c is part of the fixed enumeration.
func (c CategoryCode) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategoryCode normalises s ("legal", " LEGAL ") to a CategoryCode.
func ParseCategoryCode(s string) (CategoryCode, error) {
	c := CategoryCode(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("scoring: unknown category %q", s)
	}
	return c, nil
}

// WeightTolerance bounds |Σ weights - 1|.
const WeightTolerance = 1e-6

// ErrWeightSum is returned when category weights do not sum to 1.
var ErrWeightSum = errors.New("scoring: category weights must sum to 1")

// CategoryWeights holds the portfolio-wide weight of each category.
type CategoryWeights map[CategoryCode]float64

// Validate enforces the weight invariant: every category present, each
// weight in [0,1], no unknown codes and a total of 1 within WeightTolerance.
func (w CategoryWeights) Validate() error {
	for code := range w {
		if !code.Valid() {
			return fmt.Errorf("scoring: unknown category %q in weights", code)
		}
	}
	values := make([]float64, 0, len(Categories))
	for _, code := range Categories {
		v, ok := w[code]
		if !ok {
			return fmt.Errorf("scoring: missing weight for category %s", code)
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("scoring: weight %v for %s outside [0,1]", v, code)
		}
		values = append(values, v)
	}
	if sum := StableSum(values); math.Abs(sum-1) >= WeightTolerance {
		return fmt.Errorf("%w: got %.6f", ErrWeightSum, sum)
	}
	return nil
}

// Weight returns the weight of code, or 0 if absent.
func (w CategoryWeights) Weight(code CategoryCode) float64 {
	return w[code]
}

// Trend compares a category score with the previous period.
type Trend string

const (
	TrendUp     Trend = "UP"
	TrendDown   Trend = "DOWN"
	TrendStable Trend = "STABLE"
)

// TrendEpsilon is the smallest score change reported as UP or DOWN.
const TrendEpsilon = 0.01

// Category scores are on a 0-100 scale.
const (
	MinCategoryScore = 0
	MaxCategoryScore = 100
)

// Signal is one upstream, already-scaled contribution to a category, e.g.
// the aggregated severity of a batch of legal events.
type Signal struct {
	Score  float64 `json:"score"`
	Events int     `json:"events"`
}

// CategoryScore is the aggregate of one category for one company.
type CategoryScore struct {
	Code          CategoryCode `json:"categoryCode"`
	Score         float64      `json:"score"`
	Weight        float64      `json:"weight"`
	WeightedScore float64      `json:"weightedScore"`
	EventCount    int          `json:"eventCount"`
	Trend         Trend        `json:"trend"`
	PreviousScore *float64     `json:"previousScore,omitempty"`
}

// AggregateCategory reduces the signals of one category into a CategoryScore.
// The score is the sum of signal scores clamped to [0,100]; negative event
// counts are ignored. previous may be nil, in which case the trend is STABLE.
func AggregateCategory(code CategoryCode, signals []Signal, weight float64, previous *float64) CategoryScore {
	scores := make([]float64, 0, len(signals))
	events := 0
	for _, s := range signals {
		scores = append(scores, s.Score)
		if s.Events > 0 {
			events += s.Events
		}
	}
	score := clamp(StableSum(scores), MinCategoryScore, MaxCategoryScore)

	cs := CategoryScore{
		Code:          code,
		Score:         score,
		Weight:        weight,
		WeightedScore: score * weight,
		EventCount:    events,
		Trend:         trendOf(score, previous),
	}
	if previous != nil {
		p := *previous
		cs.PreviousScore = &p
	}
	return cs
}

func trendOf(current float64, previous *float64) Trend {
	if previous == nil {
		return TrendStable
	}
	switch d := current - *previous; {
	case d > TrendEpsilon:
		return TrendUp
	case d < -TrendEpsilon:
		return TrendDown
	default:
		return TrendStable
	}
}

// SortCategories orders scores by the fixed category enumeration.
func SortCategories(cs []CategoryScore) {
	order := make(map[CategoryCode]int, len(Categories))
	for i, c := range Categories {
		order[c] = i
	}
	sort.SliceStable(cs, func(i, j int) bool {
		return order[cs[i].Code] < order[cs[j].Code]
	})
}
