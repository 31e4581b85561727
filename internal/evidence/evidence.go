package evidence

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies how a raw evidence string is interpreted.
type Kind string

const (
	KindRatio    Kind = "ratio"    // "4.3x", "15.00%", "1.8"
	KindCurrency Kind = "currency" // "1.2조", "4,200억"
	KindGrade    Kind = "grade"    // "BBB+", "AA-"
	KindFlag     Kind = "flag"     // "Y", "N", "있음", "없음"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRatio, KindCurrency, KindGrade, KindFlag:
		return true
	}
	return false
}

// Evidence is one ingested metric value. Each concrete type keeps the raw
// string it was built from so it can be displayed for audit.
type Evidence interface {
	Kind() Kind
	Raw() string
	// Numeric returns the comparable value. ok is false for Invalid evidence.
	Numeric() (value float64, ok bool)
}

// Ratio is a multiple or percentage. Percentages are kept in percent units.
type Ratio struct {
	Value float64
	raw   string
}

func (r Ratio) Kind() Kind { return KindRatio }
func (r Ratio) Raw() string { return r.raw }
func (r Ratio) Numeric() (float64, bool) { return r.Value, true }

// Currency is an amount in 억.
type Currency struct {
	Eok float64
	raw string
}

func (c Currency) Kind() Kind { return KindCurrency }
func (c Currency) Raw() string { return c.raw }
func (c Currency) Numeric() (float64, bool) { return c.Eok, true }

// Grade is a long-term credit rating. Rank 1 is AAA; larger is worse.
type Grade struct {
	Grade string
	Rank  int
	raw   string
}

func (g Grade) Kind() Kind { return KindGrade }
func (g Grade) Raw() string { return g.raw }
func (g Grade) Numeric() (float64, bool) { return float64(g.Rank), true }

// Flag is a boolean-like indicator such as "litigation pending".
type Flag struct {
	Value bool
	raw   string
}

func (f Flag) Kind() Kind { return KindFlag }
func (f Flag) Raw() string { return f.raw }
func (f Flag) Numeric() (float64, bool) {
	if f.Value {
		return 1, true
	}
	return 0, true
}

// Invalid is evidence that failed ingestion. Scoring treats it as the
// fallback band; the raw string is still shown.
type Invalid struct {
	Expected Kind
	Err      error
	raw      string
}

func (i Invalid) Kind() Kind { return i.Expected }
func (i Invalid) Raw() string { return i.raw }
func (i Invalid) Numeric() (float64, bool) { return 0, false }

// Ingest validates raw as the given kind. It never fails: malformed input
// yields Invalid.
func Ingest(kind Kind, raw string) Evidence {
	switch kind {
	case KindRatio:
		v, err := ParseRatio(raw)
		if err != nil {
			return Invalid{Expected: kind, Err: err, raw: raw}
		}
		return Ratio{Value: v, raw: raw}
	case KindCurrency:
		d, ok := ParseEok(raw)
		if !ok {
			return Invalid{Expected: kind, Err: fmt.Errorf("evidence: %q has no 조/억 amount", raw), raw: raw}
		}
		return Currency{Eok: d.InexactFloat64(), raw: raw}
	case KindGrade:
		g, err := ParseGrade(raw)
		if err != nil {
			return Invalid{Expected: kind, Err: err, raw: raw}
		}
		g.raw = raw
		return g
	case KindFlag:
		v, err := ParseFlag(raw)
		if err != nil {
			return Invalid{Expected: kind, Err: err, raw: raw}
		}
		return Flag{Value: v, raw: raw}
	default:
		return Invalid{Expected: kind, Err: fmt.Errorf("evidence: unknown kind %q", kind), raw: raw}
	}
}

// gradeLadder is ordered best to worst.
var gradeLadder = []string{
	"AAA",
	"AA+", "AA", "AA-",
	"A+", "A", "A-",
	"BBB+", "BBB", "BBB-",
	"BB+", "BB", "BB-",
	"B+", "B", "B-",
	"CCC+", "CCC", "CCC-",
	"CC", "C", "D",
}

var (
	gradeRanks   = buildGradeRanks()
	gradePattern = regexp.MustCompile(`^(AAA|AA|A|BBB|BB|B|CCC|CC|C|D)([+-])?`)
)

func buildGradeRanks() map[string]int {
	m := make(map[string]int, len(gradeLadder))
	for i, g := range gradeLadder {
		m[g] = i + 1
	}
	return m
}

// ParseGrade reads a credit rating such as "BBB+" or "aa- (stable)".
func ParseGrade(s string) (Grade, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	m := gradePattern.FindStringSubmatch(norm)
	if m == nil {
		return Grade{}, fmt.Errorf("evidence: %q is not a credit grade", s)
	}
	g := m[1] + m[2]
	rank, ok := gradeRanks[g]
	if !ok {
		return Grade{}, fmt.Errorf("evidence: %q is not on the rating ladder", s)
	}
	return Grade{Grade: g, Rank: rank, raw: s}, nil
}

// GradeRank returns the ladder position of a grade, or 0 if unknown.
func GradeRank(grade string) int {
	g, err := ParseGrade(grade)
	if err != nil {
		return 0
	}
	return g.Rank
}

// ParseFlag reads yes/no style indicators.
func ParseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "o", "있음", "예", "해당":
		return true, nil
	case "n", "no", "false", "0", "x", "없음", "아니오", "해당없음", "-":
		return false, nil
	}
	return false, fmt.Errorf("evidence: %q is not a flag", s)
}
