// Package portfolio rolls individual deals up into the portfolio dashboard
// figures: total AUM, risk distribution and mean score.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mbd888/dealscope/internal/evidence"
	"github.com/mbd888/dealscope/internal/scoring"
)

// Deal is one line of the portfolio.
type Deal struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name,omitempty"`
	// AUM is display notation, e.g. "1.2조" or "4,200억".
	AUM string `json:"aum"`
	// TotalScore, when set, is classified with the active thresholds and
	// takes precedence over RiskLevel.
	TotalScore *float64          `json:"totalScore,omitempty"`
	RiskLevel  scoring.RiskLevel `json:"riskLevel,omitempty"`
}

// Summary is the portfolio roll-up.
type Summary struct {
	DealCount    int                       `json:"dealCount"`
	TotalAumEok  float64                   `json:"totalAumEok"`
	TotalAum     string                    `json:"totalAum"`
	Unparsed     []string                  `json:"unparsedAum,omitempty"`
	Distribution map[scoring.RiskLevel]int `json:"distribution"`
	Unscored     int                       `json:"unscored,omitempty"`
	// MeanScore is rounded half-up to one decimal; nil without scored deals.
	MeanScore *float64 `json:"meanScore,omitempty"`
}

// Summarize rolls deals up. AUM strings that cannot be parsed contribute 0
// and are listed by deal id in Unparsed. Sums are exact, so the result does
// not depend on deal order.
func Summarize(deals []Deal, t scoring.Thresholds) Summary {
	s := Summary{
		DealCount: len(deals),
		Distribution: map[scoring.RiskLevel]int{
			scoring.LevelPass:    0,
			scoring.LevelWarning: 0,
			scoring.LevelFail:    0,
		},
	}

	aum := decimal.Zero
	scoreSum := decimal.Zero
	scored := 0
	for _, d := range deals {
		if eok, ok := evidence.ParseEok(d.AUM); ok {
			aum = aum.Add(eok)
		} else {
			s.Unparsed = append(s.Unparsed, d.ID)
		}

		switch {
		case d.TotalScore != nil:
			s.Distribution[t.Classify(*d.TotalScore)]++
			scoreSum = scoreSum.Add(decimal.NewFromFloat(*d.TotalScore))
			scored++
		case knownLevel(d.RiskLevel):
			s.Distribution[d.RiskLevel]++
		default:
			s.Unscored++
		}
	}
	sort.Strings(s.Unparsed)

	s.TotalAumEok = aum.InexactFloat64()
	s.TotalAum = evidence.FormatAumEok(s.TotalAumEok)
	if scored > 0 {
		mean := roundOneDecimal(scoreSum.Div(decimal.NewFromInt(int64(scored)))).InexactFloat64()
		s.MeanScore = &mean
	}
	return s
}

func knownLevel(l scoring.RiskLevel) bool {
	switch l {
	case scoring.LevelPass, scoring.LevelWarning, scoring.LevelFail:
		return true
	}
	return false
}

// roundOneDecimal rounds half toward +inf at one decimal place.
func roundOneDecimal(d decimal.Decimal) decimal.Decimal {
	ten := decimal.NewFromInt(10)
	return d.Mul(ten).Add(decimal.NewFromFloat(0.5)).Floor().Div(ten)
}
