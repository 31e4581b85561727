// Package propagation computes how much of a company's neighbors' risk bleeds
// into its own total.
//
// Propagation reads only the neighbors' settled direct scores, never their
// propagated totals, so one pass over the edges suffices and cyclic relation
// graphs (A supplies B, B supplies A) terminate. The SourceTotal extension
// propagates totals instead and therefore requires an acyclic graph.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/scoring"
)

// Default model constants.
const (
	DefaultDamping   = 0.3
	DefaultTierDecay = 0.5
)

var (
	// ErrCyclicDependency is returned by SourceTotal propagation when the
	// relation graph contains a cycle.
	ErrCyclicDependency = errors.New("propagation: cyclic dependency")

	// ErrInvalidConfig is returned by Validate and NewEngine for a bad model.
	ErrInvalidConfig = errors.New("propagation: invalid config")
)

// Mode selects how edges are damped.
type Mode string

const (
	// ModeFlat applies Damping once to the sum of neighbor contributions and
	// ignores tiers.
	ModeFlat Mode = "flat"
	// ModeTiered damps each edge by Damping × TierDecay^(tier-1).
	ModeTiered Mode = "tiered"
)

// Source selects which neighbor score is propagated.
type Source string

const (
	SourceDirect Source = "direct"
	SourceTotal  Source = "total"
)

// Config is the propagation model.
type Config struct {
	Mode      Mode    `json:"mode" yaml:"mode"`
	Damping   float64 `json:"damping" yaml:"damping"`
	TierDecay float64 `json:"tierDecay" yaml:"tier_decay"`
	Source    Source  `json:"source" yaml:"source"`
}

// DefaultConfig is the flat 0.3 direct-score model.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeFlat,
		Damping:   DefaultDamping,
		TierDecay: DefaultTierDecay,
		Source:    SourceDirect,
	}
}

// Validate checks the config. Empty fields are filled by withDefaults first.
func (c Config) Validate() error {
	c = c.withDefaults()
	switch c.Mode {
	case ModeFlat, ModeTiered:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	switch c.Source {
	case SourceDirect, SourceTotal:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}
	if c.Damping < 0 || c.Damping > 1 || math.IsNaN(c.Damping) {
		return fmt.Errorf("%w: damping %v outside [0,1]", ErrInvalidConfig, c.Damping)
	}
	if c.TierDecay <= 0 || c.TierDecay > 1 || math.IsNaN(c.TierDecay) {
		return fmt.Errorf("%w: tier decay %v outside (0,1]", ErrInvalidConfig, c.TierDecay)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.TierDecay == 0 {
		c.TierDecay = d.TierDecay
	}
	return c
}

// RelationEdge says risk flows From a neighbor To a company.
type RelationEdge struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType,omitempty"`
	// TransferFactor is the share of From's risk that reaches To. Nil means 1.
	TransferFactor *float64 `json:"transferFactor,omitempty"`
	// Tier is the supply-chain distance. Zero means 1.
	Tier int `json:"tier,omitempty"`
}

// Transfer returns the effective transfer factor.
func (e RelationEdge) Transfer() float64 {
	if e.TransferFactor == nil {
		return 1
	}
	return *e.TransferFactor
}

func (e RelationEdge) tier() int {
	if e.Tier == 0 {
		return 1
	}
	return e.Tier
}

// Drop reasons.
const (
	ReasonUnknownFrom     = "unknown_from"
	ReasonUnknownTo       = "unknown_to"
	ReasonSelfLoop        = "self_loop"
	ReasonInvalidTransfer = "invalid_transfer"
	ReasonInvalidTier     = "invalid_tier"
)

// DroppedEdge is an edge that was skipped along with why.
type DroppedEdge struct {
	Edge   RelationEdge `json:"edge"`
	Reason string       `json:"reason"`
}

// Result holds the propagated score of every company in the input.
type Result struct {
	Scores  map[string]float64 `json:"scores"`
	Dropped []DroppedEdge      `json:"dropped,omitempty"`
}

// Engine runs one propagation model.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine validates cfg and returns an engine. A nil logger uses slog.Default.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), logger: logger}, nil
}

// Config returns the effective model.
func (e *Engine) Config() Config { return e.cfg }

// Propagate computes propagated scores over direct, a map of company id to its
// settled direct score. Bad edges are dropped and reported, never fatal. The
// only error is ErrCyclicDependency under SourceTotal. Drop warnings go to the
// logger carried by ctx, falling back to the engine's.
func (e *Engine) Propagate(ctx context.Context, direct map[string]float64, edges []RelationEdge) (Result, error) {
	valid, dropped := e.filter(logging.LOr(ctx, e.logger), direct, edges)

	var scores map[string]float64
	if e.cfg.Source == SourceTotal {
		var err error
		scores, err = e.propagateTotals(direct, valid)
		if err != nil {
			return Result{Dropped: dropped}, err
		}
	} else {
		incoming := groupByTarget(valid)
		scores = make(map[string]float64, len(direct))
		for id := range direct {
			scores[id] = e.combine(incoming[id], direct)
		}
	}
	return Result{Scores: scores, Dropped: dropped}, nil
}

// Propagate runs the default flat model over direct scores and returns only
// the propagated score per company.
func Propagate(direct map[string]float64, edges []RelationEdge) map[string]float64 {
	e := &Engine{cfg: DefaultConfig(), logger: slog.Default()}
	res, _ := e.Propagate(context.Background(), direct, edges)
	return res.Scores
}

func (e *Engine) filter(logger *slog.Logger, known map[string]float64, edges []RelationEdge) ([]RelationEdge, []DroppedEdge) {
	valid := make([]RelationEdge, 0, len(edges))
	var dropped []DroppedEdge
	for _, edge := range edges {
		reason := ""
		_, fromOK := known[edge.From]
		_, toOK := known[edge.To]
		tf := edge.Transfer()
		switch {
		case !fromOK:
			reason = ReasonUnknownFrom
		case !toOK:
			reason = ReasonUnknownTo
		case edge.From == edge.To:
			reason = ReasonSelfLoop
		case math.IsNaN(tf) || tf < 0 || tf > 1:
			reason = ReasonInvalidTransfer
		case edge.Tier < 0:
			reason = ReasonInvalidTier
		}
		if reason != "" {
			logger.Warn("dropping relation edge",
				"from", edge.From,
				"to", edge.To,
				"relation", edge.RelationType,
				"reason", reason,
			)
			dropped = append(dropped, DroppedEdge{Edge: edge, Reason: reason})
			continue
		}
		valid = append(valid, edge)
	}
	return valid, dropped
}

// combine sums the contributions of incoming edges using source scores and
// rounds once.
func (e *Engine) combine(incoming []RelationEdge, source map[string]float64) float64 {
	if len(incoming) == 0 {
		return 0
	}
	parts := make([]float64, len(incoming))
	switch e.cfg.Mode {
	case ModeTiered:
		for i, edge := range incoming {
			decay := math.Pow(e.cfg.TierDecay, float64(edge.tier()-1))
			parts[i] = source[edge.From] * edge.Transfer() * e.cfg.Damping * decay
		}
		return scoring.RoundHalfUp(scoring.StableSum(parts))
	default:
		for i, edge := range incoming {
			parts[i] = source[edge.From] * edge.Transfer()
		}
		return scoring.RoundHalfUp(scoring.StableSum(parts) * e.cfg.Damping)
	}
}

// propagateTotals walks companies in topological order so each neighbor's
// total is settled before it is read.
func (e *Engine) propagateTotals(direct map[string]float64, edges []RelationEdge) (map[string]float64, error) {
	order, err := TopologicalOrder(ids(direct), edges)
	if err != nil {
		return nil, err
	}
	incoming := groupByTarget(edges)
	totals := make(map[string]float64, len(direct))
	scores := make(map[string]float64, len(direct))
	for _, id := range order {
		p := e.combine(incoming[id], totals)
		scores[id] = p
		totals[id] = direct[id] + p
	}
	return scores, nil
}

// TopologicalOrder returns nodes so that every edge's From precedes its To
// (Kahn's algorithm, ties broken by id). Edges must reference known nodes.
func TopologicalOrder(nodes []string, edges []RelationEdge) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	out := make(map[string][]string, len(nodes))
	for _, edge := range edges {
		out[edge.From] = append(out[edge.From], edge.To)
		indegree[edge.To]++
	}

	var ready []string
	for _, n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var next []string
		for _, m := range out[n] {
			indegree[m]--
			if indegree[m] == 0 {
				next = append(next, m)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}

	if len(order) != len(indegree) {
		return nil, fmt.Errorf("%w: %d of %d companies are on a cycle", ErrCyclicDependency, len(indegree)-len(order), len(indegree))
	}
	return order, nil
}

func groupByTarget(edges []RelationEdge) map[string][]RelationEdge {
	m := make(map[string][]RelationEdge)
	for _, edge := range edges {
		m[edge.To] = append(m[edge.To], edge)
	}
	return m
}

func ids(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
