package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/dealscope/internal/idgen"
	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/metrics"
	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/rulebook"
	"github.com/mbd888/dealscope/internal/scoring"
	"github.com/mbd888/dealscope/internal/traces"
)

// Service runs evaluation passes against one rulebook.
type Service struct {
	rb          *rulebook.Rulebook
	engine      *propagation.Engine
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency bounds phase-one workers. Non-positive means GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides time.Now for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a service. A nil store records nothing.
func NewService(rb *rulebook.Rulebook, store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine, err := propagation.NewEngine(rb.Propagation, logger)
	if err != nil {
		return nil, err
	}
	s := &Service{
		rb:          rb,
		engine:      engine,
		store:       store,
		logger:      logger,
		now:         time.Now,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Rulebook returns the rulebook the service scores with.
func (s *Service) Rulebook() *rulebook.Rulebook { return s.rb }

// Store returns the audit store, or nil.
func (s *Service) Store() Store { return s.store }

type direct struct {
	categories []scoring.CategoryScore
	score      float64
}

// Assess evaluates a full snapshot and records it.
func (s *Service) Assess(ctx context.Context, snap Snapshot) (*Assessment, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}
	id := idgen.Assessment()
	ctx = logging.WithLogger(logging.WithAssessmentID(ctx, id), s.logger)
	ctx, span := traces.StartSpan(ctx, "assessment.Assess",
		traces.AssessmentID(id),
		traces.CompanyCount(len(snap.Companies)),
		traces.EdgeCount(len(snap.Edges)),
	)
	defer span.End()
	start := time.Now()

	// Phase one: independent per-company direct scores.
	settled := make([]direct, len(snap.Companies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range snap.Companies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			settled[i] = s.direct(snap.Companies[i].Categories)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	// Phase two: propagation over settled direct scores.
	scores := make(map[string]float64, len(settled))
	for i, c := range snap.Companies {
		scores[c.ID] = settled[i].score
	}
	res, err := s.engine.Propagate(ctx, scores, snap.Edges)
	s.countDropped(res.Dropped)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	a := &Assessment{
		ID:        id,
		Kind:      KindSnapshot,
		RequestID: logging.RequestID(ctx),
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		EdgeCount: len(snap.Edges),
		Companies: make([]CompanyResult, len(snap.Companies)),
		Dropped:   res.Dropped,
	}
	for i, c := range snap.Companies {
		a.Companies[i] = CompanyResult{
			Name:             c.Name,
			CompanyRiskScore: s.rb.Thresholds.Combine(c.ID, settled[i].score, res.Scores[c.ID], settled[i].categories),
		}
	}

	s.finish(ctx, a, start)
	return a, nil
}

// ScoreOne scores a single company against neighbors whose direct scores
// are supplied by the caller.
func (s *Service) ScoreOne(ctx context.Context, req ScoreRequest) (*Assessment, error) {
	companyID := req.CompanyID
	if companyID == "" {
		companyID = DefaultCompanyID
	}
	if err := validateCategories(companyID, req.Categories); err != nil {
		return nil, err
	}
	id := idgen.Assessment()
	ctx = logging.WithLogger(logging.WithAssessmentID(ctx, id), s.logger)
	ctx, span := traces.StartSpan(ctx, "assessment.ScoreOne", traces.AssessmentID(id), traces.CompanyID(companyID))
	defer span.End()
	start := time.Now()

	d := s.direct(req.Categories)

	scores := make(map[string]float64, len(req.Neighbors)+1)
	for _, n := range req.Neighbors {
		scores[n.ID] = n.DirectScore
	}
	scores[companyID] = d.score

	edges := req.Edges
	if len(edges) == 0 {
		edges = make([]propagation.RelationEdge, 0, len(req.Neighbors))
		for _, n := range req.Neighbors {
			edges = append(edges, propagation.RelationEdge{From: n.ID, To: companyID})
		}
	}

	res, err := s.engine.Propagate(ctx, scores, edges)
	s.countDropped(res.Dropped)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}

	a := &Assessment{
		ID:        id,
		Kind:      KindSingle,
		RequestID: logging.RequestID(ctx),
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		EdgeCount: len(edges),
		Companies: []CompanyResult{{
			CompanyRiskScore: s.rb.Thresholds.Combine(companyID, d.score, res.Scores[companyID], d.categories),
		}},
		Dropped: res.Dropped,
	}
	s.finish(ctx, a, start)
	return a, nil
}

func (s *Service) direct(inputs []CategoryInput) direct {
	cats := make([]scoring.CategoryScore, 0, len(inputs))
	for _, in := range inputs {
		cats = append(cats, scoring.AggregateCategory(in.Code, in.signals(), s.rb.Weights.Weight(in.Code), in.PreviousScore))
	}
	scoring.SortCategories(cats)
	return direct{categories: cats, score: scoring.AggregateCompany(cats).DirectScore}
}

func (s *Service) countDropped(dropped []propagation.DroppedEdge) {
	for _, d := range dropped {
		metrics.DroppedEdgesTotal.WithLabelValues(d.Reason).Inc()
	}
}

// finish records metrics and the audit entry. A store failure is logged and
// never fails the pass.
func (s *Service) finish(ctx context.Context, a *Assessment, start time.Time) {
	metrics.AssessmentsTotal.WithLabelValues(a.Kind).Inc()
	metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
	for _, c := range a.Companies {
		metrics.CompaniesScoredTotal.WithLabelValues(string(c.RiskLevel)).Inc()
	}

	log := logging.L(ctx)
	if s.store != nil {
		if err := s.store.Save(ctx, a); err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
			log.Error("failed to record assessment", "error", err)
		}
	}
	log.Info("assessment complete",
		"kind", a.Kind,
		"companies", len(a.Companies),
		"edges", a.EdgeCount,
		"dropped_edges", len(a.Dropped),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func validateSnapshot(snap Snapshot) error {
	if len(snap.Companies) == 0 {
		return fmt.Errorf("%w: no companies", ErrInvalidSnapshot)
	}
	seen := make(map[string]bool, len(snap.Companies))
	for _, c := range snap.Companies {
		if c.ID == "" {
			return fmt.Errorf("%w: company without id", ErrInvalidSnapshot)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate company %q", ErrInvalidSnapshot, c.ID)
		}
		seen[c.ID] = true
		if err := validateCategories(c.ID, c.Categories); err != nil {
			return err
		}
	}
	return nil
}

func validateCategories(companyID string, cats []CategoryInput) error {
	seen := make(map[scoring.CategoryCode]bool, len(cats))
	for _, c := range cats {
		if !c.Code.Valid() {
			return fmt.Errorf("%w: company %q has unknown category %q", ErrInvalidSnapshot, companyID, c.Code)
		}
		if seen[c.Code] {
			return fmt.Errorf("%w: company %q lists category %s twice", ErrInvalidSnapshot, companyID, c.Code)
		}
		seen[c.Code] = true
	}
	return nil
}
