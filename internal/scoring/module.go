package scoring

import (
	"fmt"
	"math"
)

// ModuleWeightTotal is what the item weights of one module must add up to.
const ModuleWeightTotal = 100

// ScoreItem is one evaluated KPI row of a deal's weighted module table.
type ScoreItem struct {
	Category string  `json:"category"`
	Item     string  `json:"item"`
	RawValue string  `json:"rawValue"`
	Score    int     `json:"score"`
	Weight   float64 `json:"weight"`

	ParseFailed bool `json:"parseFailed,omitempty"`
}

// Module is a named KPI table such as "financial" or "structure".
type Module struct {
	Name  string      `json:"name"`
	Items []ScoreItem `json:"items"`
}

// Validate checks every item and the Σ weight == 100 invariant.
func (m Module) Validate() error {
	if len(m.Items) == 0 {
		return fmt.Errorf("scoring: module %q has no items", m.Name)
	}
	weights := make([]float64, 0, len(m.Items))
	for _, it := range m.Items {
		if it.Category == "" {
			return fmt.Errorf("scoring: module %q item %q has no category", m.Name, it.Item)
		}
		if it.Weight <= 0 || it.Weight > ModuleWeightTotal {
			return fmt.Errorf("scoring: module %q item %q weight %v outside (0,%d]", m.Name, it.Item, it.Weight, ModuleWeightTotal)
		}
		weights = append(weights, it.Weight)
	}
	if sum := StableSum(weights); math.Abs(sum-ModuleWeightTotal) >= WeightTolerance {
		return fmt.Errorf("scoring: module %q item weights sum to %.6f, want %d", m.Name, sum, ModuleWeightTotal)
	}
	return nil
}

// ModuleCategory is the subtotal of the items sharing a category.
type ModuleCategory struct {
	Category string      `json:"category"`
	Score    int         `json:"score"`
	Max      int         `json:"max"`
	Items    []ScoreItem `json:"items"`
}

// ModuleSummary is the per-deal KPI view. Weights are for display only; the
// total is the plain sum of item scores out of 5 × item count.
type ModuleSummary struct {
	Name       string           `json:"name"`
	Total      int              `json:"total"`
	Max        int              `json:"max"`
	Categories []ModuleCategory `json:"categories"`
	Fallbacks  int              `json:"fallbacks"`
}

// SummarizeModule groups items by category in first-seen order and totals
// them. Integer sums make the totals independent of item order.
func SummarizeModule(m Module) ModuleSummary {
	sum := ModuleSummary{Name: m.Name, Max: MaxItemScore * len(m.Items)}

	index := make(map[string]int)
	for _, it := range m.Items {
		i, ok := index[it.Category]
		if !ok {
			i = len(sum.Categories)
			index[it.Category] = i
			sum.Categories = append(sum.Categories, ModuleCategory{Category: it.Category})
		}
		cat := &sum.Categories[i]
		cat.Score += it.Score
		cat.Max += MaxItemScore
		cat.Items = append(cat.Items, it)

		sum.Total += it.Score
		if it.ParseFailed {
			sum.Fallbacks++
		}
	}
	return sum
}

// Percent returns the total as a share of the maximum, 0 for an empty module.
func (s ModuleSummary) Percent() float64 {
	if s.Max == 0 {
		return 0
	}
	return float64(s.Total) / float64(s.Max) * 100
}
