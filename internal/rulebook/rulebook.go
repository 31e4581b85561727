// Package rulebook loads the scoring configuration: category weights,
// classification thresholds, the propagation model, KPI rules and the
// weighted modules built from them.
//
// A rulebook is validated completely at load. Any violation, including a
// category weight sum other than 1 or a module whose item weights do not add
// up to 100, is returned as an error so the process can refuse to start.
package rulebook

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/dealscope/internal/evidence"
	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/scoring"
)

var (
	// ErrInvalidRulebook wraps every load and validation failure.
	ErrInvalidRulebook = errors.New("rulebook: invalid")
	// ErrUnknownModule is returned for a module name the rulebook does not define.
	ErrUnknownModule = errors.New("rulebook: unknown module")
	// ErrUnknownRule is returned for a rule name the rulebook does not define.
	ErrUnknownRule = errors.New("rulebook: unknown rule")
)

var validate = validator.New()

type bandSpec struct {
	Op        string  `yaml:"op" validate:"required,oneof=gt gte lt lte eq"`
	Threshold float64 `yaml:"threshold"`
	Score     int     `yaml:"score" validate:"min=1,max=5"`
}

type ruleSpec struct {
	Kind     string     `yaml:"kind" validate:"omitempty,oneof=ratio currency grade flag"`
	Bands    []bandSpec `yaml:"bands" validate:"dive"`
	Fallback int        `yaml:"fallback" validate:"min=1,max=5"`
}

type itemSpec struct {
	Category string  `yaml:"category" validate:"required"`
	Item     string  `yaml:"item" validate:"required"`
	Rule     string  `yaml:"rule" validate:"required"`
	Weight   float64 `yaml:"weight" validate:"gt=0,lte=100"`
}

type moduleSpec struct {
	Name  string     `yaml:"name" validate:"required"`
	Items []itemSpec `yaml:"items" validate:"required,min=1,dive"`
}

type file struct {
	Version    int `yaml:"version" validate:"eq=1"`
	Thresholds struct {
		Warning float64 `yaml:"warning" validate:"gt=0"`
		Fail    float64 `yaml:"fail" validate:"gtfield=Warning"`
	} `yaml:"thresholds"`
	Propagation propagation.Config  `yaml:"propagation"`
	Categories  map[string]float64  `yaml:"categories" validate:"required,dive,gte=0,lte=1"`
	Rules       map[string]ruleSpec `yaml:"rules" validate:"required,min=1,dive"`
	Modules     []moduleSpec        `yaml:"modules" validate:"dive"`
}

// ModuleItem binds a KPI row to the rule that scores it.
type ModuleItem struct {
	Category string  `json:"category"`
	Item     string  `json:"item"`
	Rule     string  `json:"rule"`
	Weight   float64 `json:"weight"`
}

// ModuleDef is a configured KPI table.
type ModuleDef struct {
	Name  string       `json:"name"`
	Items []ModuleItem `json:"items"`
}

// Rulebook is a validated scoring configuration. It is read-only after load.
type Rulebook struct {
	Weights     scoring.CategoryWeights `json:"weights"`
	Thresholds  scoring.Thresholds      `json:"thresholds"`
	Propagation propagation.Config      `json:"propagation"`
	Rules       map[string]scoring.Rule `json:"rules"`
	Modules     []ModuleDef             `json:"modules"`

	modules map[string]int
}

// Default returns the embedded rulebook.
func Default() (*Rulebook, error) {
	return Parse(defaultYAML)
}

// Load reads the rulebook at path, or the embedded default when path is empty.
func Load(path string) (*Rulebook, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rulebook: read %s: %w", path, err)
	}
	rb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rb, nil
}

// Parse decodes and validates a YAML rulebook. Unknown keys are rejected.
// Propagation keys that are left out keep their default values.
func Parse(data []byte) (*Rulebook, error) {
	f := file{Propagation: propagation.DefaultConfig()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidRulebook, err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRulebook, describe(err))
	}
	return build(&f)
}

func build(f *file) (*Rulebook, error) {
	rb := &Rulebook{
		Weights:     make(scoring.CategoryWeights, len(f.Categories)),
		Thresholds:  scoring.Thresholds{Warning: f.Thresholds.Warning, Fail: f.Thresholds.Fail},
		Propagation: f.Propagation,
		Rules:       make(map[string]scoring.Rule, len(f.Rules)),
		modules:     make(map[string]int, len(f.Modules)),
	}

	for raw, w := range f.Categories {
		code, err := scoring.ParseCategoryCode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
		}
		rb.Weights[code] = w
	}
	if err := rb.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRulebook, err)
	}
	if err := rb.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
	}
	if err := rb.Propagation.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRulebook, err)
	}

	for name, spec := range f.Rules {
		r := scoring.Rule{Kind: evidence.Kind(spec.Kind), Fallback: spec.Fallback}
		for _, b := range spec.Bands {
			r.Bands = append(r.Bands, scoring.Band{Op: scoring.Op(b.Op), Threshold: b.Threshold, Score: b.Score})
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: rule %q: %w", ErrInvalidRulebook, name, err)
		}
		rb.Rules[name] = r
	}

	for _, ms := range f.Modules {
		if _, dup := rb.modules[ms.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrInvalidRulebook, ms.Name)
		}
		def := ModuleDef{Name: ms.Name}
		check := scoring.Module{Name: ms.Name}
		seen := make(map[string]bool, len(ms.Items))
		for _, it := range ms.Items {
			if seen[it.Item] {
				return nil, fmt.Errorf("%w: module %q lists item %q twice", ErrInvalidRulebook, ms.Name, it.Item)
			}
			seen[it.Item] = true
			if _, ok := rb.Rules[it.Rule]; !ok {
				return nil, fmt.Errorf("%w: module %q item %q: %w %q", ErrInvalidRulebook, ms.Name, it.Item, ErrUnknownRule, it.Rule)
			}
			def.Items = append(def.Items, ModuleItem(it))
			check.Items = append(check.Items, scoring.ScoreItem{Category: it.Category, Item: it.Item, Weight: it.Weight})
		}
		if err := check.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRulebook, err)
		}
		rb.modules[ms.Name] = len(rb.Modules)
		rb.Modules = append(rb.Modules, def)
	}
	return rb, nil
}

// describe flattens validator errors into one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// Rule returns a named rule.
func (rb *Rulebook) Rule(name string) (scoring.Rule, error) {
	r, ok := rb.Rules[name]
	if !ok {
		return scoring.Rule{}, fmt.Errorf("%w %q", ErrUnknownRule, name)
	}
	return r, nil
}

// Module returns a named module definition.
func (rb *Rulebook) Module(name string) (ModuleDef, error) {
	i, ok := rb.modules[name]
	if !ok {
		return ModuleDef{}, fmt.Errorf("%w %q", ErrUnknownModule, name)
	}
	return rb.Modules[i], nil
}

// RuleNames lists rule names sorted.
func (rb *Rulebook) RuleNames() []string {
	names := make([]string, 0, len(rb.Rules))
	for n := range rb.Rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EvaluateModule scores raw values keyed by item label against a module and
// summarises it. Items without a value are scored from the empty string and
// so take their rule's fallback.
func (rb *Rulebook) EvaluateModule(name string, values map[string]string) (scoring.ModuleSummary, error) {
	def, err := rb.Module(name)
	if err != nil {
		return scoring.ModuleSummary{}, err
	}
	m := scoring.Module{Name: def.Name, Items: make([]scoring.ScoreItem, 0, len(def.Items))}
	for _, it := range def.Items {
		raw := values[it.Item]
		res := scoring.EvaluateItem(raw, rb.Rules[it.Rule])
		m.Items = append(m.Items, scoring.ScoreItem{
			Category:    it.Category,
			Item:        it.Item,
			RawValue:    res.RetainedValue,
			Score:       res.Score,
			Weight:      it.Weight,
			ParseFailed: res.ParseFailed,
		})
	}
	return scoring.SummarizeModule(m), nil
}
