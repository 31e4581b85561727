package scoring

import "fmt"

// RiskLevel is the classification of a company total.
type RiskLevel string

const (
	LevelPass    RiskLevel = "PASS"
	LevelWarning RiskLevel = "WARNING"
	LevelFail    RiskLevel = "FAIL"
)

// Canonical classification thresholds. Scores below DefaultWarningThreshold
// pass; scores at or above DefaultFailThreshold fail.
const (
	DefaultWarningThreshold = 50
	DefaultFailThreshold    = 75
)

// Thresholds are the boundaries used by Classify.
type Thresholds struct {
	Warning float64 `json:"warning" yaml:"warning"`
	Fail    float64 `json:"fail" yaml:"fail"`
}

// DefaultThresholds is the 50/75 split.
var DefaultThresholds = Thresholds{Warning: DefaultWarningThreshold, Fail: DefaultFailThreshold}

// Validate requires 0 < warning < fail.
func (t Thresholds) Validate() error {
	if t.Warning <= 0 || t.Fail <= t.Warning {
		return fmt.Errorf("scoring: thresholds must satisfy 0 < warning < fail, got %v/%v", t.Warning, t.Fail)
	}
	return nil
}

// Classify maps a total score to a risk level. There is no hysteresis.
func (t Thresholds) Classify(total float64) RiskLevel {
	switch {
	case total >= t.Fail:
		return LevelFail
	case total >= t.Warning:
		return LevelWarning
	default:
		return LevelPass
	}
}

// Classify uses DefaultThresholds.
func Classify(total float64) RiskLevel {
	return DefaultThresholds.Classify(total)
}

// CompanyDirect is a company's own risk, excluding anything propagated.
type CompanyDirect struct {
	DirectScore float64 `json:"directScore"`
}

// AggregateCompany sums weighted category scores and rounds once. No
// categories gives a direct score of 0.
func AggregateCompany(categories []CategoryScore) CompanyDirect {
	if len(categories) == 0 {
		return CompanyDirect{}
	}
	weighted := make([]float64, len(categories))
	for i, c := range categories {
		weighted[i] = c.WeightedScore
	}
	return CompanyDirect{DirectScore: RoundHalfUp(StableSum(weighted))}
}

// CompanyRiskScore is the full per-company result.
type CompanyRiskScore struct {
	CompanyID       string          `json:"companyId"`
	DirectScore     float64         `json:"directScore"`
	PropagatedScore float64         `json:"propagatedScore"`
	TotalScore      float64         `json:"totalScore"`
	DisplayScore    float64         `json:"displayScore"`
	RiskLevel       RiskLevel       `json:"riskLevel"`
	Categories      []CategoryScore `json:"categories,omitempty"`
}

// Combine builds the company result from its settled direct and propagated
// scores. TotalScore is left unclamped; DisplayScore is clamped to [0,100].
func (t Thresholds) Combine(companyID string, direct, propagated float64, categories []CategoryScore) CompanyRiskScore {
	total := direct + propagated
	return CompanyRiskScore{
		CompanyID:       companyID,
		DirectScore:     direct,
		PropagatedScore: propagated,
		TotalScore:      total,
		DisplayScore:    clamp(total, MinCategoryScore, MaxCategoryScore),
		RiskLevel:       t.Classify(total),
		Categories:      categories,
	}
}
