// Package scoring implements the weighted risk model for credit deals.
//
// The model is evaluated bottom-up:
//   - a raw KPI value is scored 1-5 against an ordered band rule (EvaluateItem)
//   - upstream category signals are summed and weighted (AggregateCategory)
//   - weighted category scores are summed into a company direct score
//     (AggregateCompany) and, together with propagated risk, classified
//     PASS/WARNING/FAIL (Classify)
//
// Every function here is pure. Inputs are never mutated and repeated calls
// with the same inputs return bit-identical results.
package scoring

import (
	"errors"
	"fmt"

	"github.com/mbd888/dealscope/internal/evidence"
)

// Item scores are integers in [MinItemScore, MaxItemScore].
const (
	MinItemScore = 1
	MaxItemScore = 5
)

// ErrInvalidRule is wrapped by every Rule.Validate failure.
var ErrInvalidRule = errors.New("scoring: invalid rule")

// Op compares an evidence value against a band threshold.
type Op string

const (
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
)

func (o Op) apply(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}

func (o Op) valid() bool {
	switch o {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
		return true
	}
	return false
}

// Band is one (predicate, score) pair of a rule.
type Band struct {
	Op        Op      `json:"op"`
	Threshold float64 `json:"threshold"`
	Score     int     `json:"score"`
}

// Rule maps one raw metric to an item score. Bands are evaluated top-down
// and the first match wins; Fallback applies when nothing matches or the raw
// value cannot be ingested as Kind.
type Rule struct {
	Kind     evidence.Kind `json:"kind"`
	Bands    []Band        `json:"bands"`
	Fallback int           `json:"fallback"`
}

// ThresholdRule builds the common two-band rule: values satisfying
// op threshold score pass, everything else (including unparseable values)
// scores fail.
func ThresholdRule(kind evidence.Kind, op Op, threshold float64, pass, fail int) Rule {
	return Rule{
		Kind:     kind,
		Bands:    []Band{{Op: op, Threshold: threshold, Score: pass}},
		Fallback: fail,
	}
}

// Validate checks the rule is well formed.
func (r Rule) Validate() error {
	kind := r.kind()
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown evidence kind %q", ErrInvalidRule, r.Kind)
	}
	if !validItemScore(r.Fallback) {
		return fmt.Errorf("%w: fallback score %d outside [%d,%d]", ErrInvalidRule, r.Fallback, MinItemScore, MaxItemScore)
	}
	for i, b := range r.Bands {
		if !b.Op.valid() {
			return fmt.Errorf("%w: band %d has unknown op %q", ErrInvalidRule, i, b.Op)
		}
		if !validItemScore(b.Score) {
			return fmt.Errorf("%w: band %d score %d outside [%d,%d]", ErrInvalidRule, i, b.Score, MinItemScore, MaxItemScore)
		}
	}
	return nil
}

func (r Rule) kind() evidence.Kind {
	if r.Kind == "" {
		return evidence.KindRatio
	}
	return r.Kind
}

func validItemScore(s int) bool {
	return s >= MinItemScore && s <= MaxItemScore
}

// ItemResult is the outcome of scoring one raw value.
type ItemResult struct {
	Score int `json:"score"`
	// RetainedValue is always the raw input string, never the parsed number.
	RetainedValue string `json:"retainedValue"`
	// ParseFailed is set when the raw value could not be ingested and the
	// fallback score was used.
	ParseFailed bool `json:"parseFailed,omitempty"`
}

// EvaluateItem scores rawValue against rule. It never fails: unparseable
// values take the rule's fallback score with ParseFailed set. Scores outside
// [1,5] (only possible with an unvalidated rule) are clamped.
func EvaluateItem(rawValue string, rule Rule) ItemResult {
	res := ItemResult{RetainedValue: rawValue}

	ev := evidence.Ingest(rule.kind(), rawValue)
	v, ok := ev.Numeric()
	if !ok {
		res.Score = clampItemScore(rule.Fallback)
		res.ParseFailed = true
		return res
	}

	res.Score = clampItemScore(rule.Fallback)
	for _, b := range rule.Bands {
		if b.Op.apply(v, b.Threshold) {
			res.Score = clampItemScore(b.Score)
			break
		}
	}
	return res
}

func clampItemScore(s int) int {
	if s < MinItemScore {
		return MinItemScore
	}
	if s > MaxItemScore {
		return MaxItemScore
	}
	return s
}
