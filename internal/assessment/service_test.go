package assessment

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/dealscope/internal/logging"
	"github.com/mbd888/dealscope/internal/metrics"
	"github.com/mbd888/dealscope/internal/pagination"
	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/rulebook"
	"github.com/mbd888/dealscope/internal/scoring"
)

func score(v float64) *float64 { return &v }

func cat(code scoring.CategoryCode, v float64) CategoryInput {
	return CategoryInput{Code: code, Score: score(v)}
}

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, store Store, mutate func(*rulebook.Rulebook)) *Service {
	t.Helper()
	rb, err := rulebook.Default()
	require.NoError(t, err)
	if mutate != nil {
		mutate(rb)
	}
	svc, err := NewService(rb, store, logging.Discard(), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return svc
}

// direct 56
func dealCompany() CompanyInput {
	return CompanyInput{ID: "deal", Name: "Target Co", Categories: []CategoryInput{
		cat(scoring.CategoryCredit, 100),
		cat(scoring.CategoryLegal, 80),
		cat(scoring.CategoryShare, 40),
		cat(scoring.CategoryGov, 100),
		cat(scoring.CategoryOps, 100),
	}}
}

// direct 60
func supplierCompany() CompanyInput {
	return CompanyInput{ID: "n1", Categories: []CategoryInput{
		cat(scoring.CategoryCredit, 100),
		cat(scoring.CategoryLegal, 100),
		cat(scoring.CategoryShare, 100),
		cat(scoring.CategoryGov, 100),
		cat(scoring.CategoryOther, 100),
	}}
}

// direct 40
func ownerCompany() CompanyInput {
	return CompanyInput{ID: "n2", Categories: []CategoryInput{
		cat(scoring.CategoryCredit, 100),
		cat(scoring.CategoryShare, 100),
		cat(scoring.CategoryGov, 100),
	}}
}

func dealSnapshot() Snapshot {
	return Snapshot{
		Companies: []CompanyInput{dealCompany(), supplierCompany(), ownerCompany()},
		Edges: []propagation.RelationEdge{
			{From: "n1", To: "deal", RelationType: "SUPPLIES_TO"},
			{From: "n2", To: "deal", RelationType: "OWNERSHIP"},
		},
	}
}

func TestAssessSnapshot(t *testing.T) {
	store := NewMemoryStore()
	svc := newService(t, store, nil)

	a, err := svc.Assess(context.Background(), dealSnapshot())
	require.NoError(t, err)

	assert.Contains(t, a.ID, "asm_")
	assert.Equal(t, KindSnapshot, a.Kind)
	assert.Equal(t, fixedNow, a.CreatedAt)
	assert.Equal(t, 2, a.EdgeCount)
	require.Len(t, a.Companies, 3)
	assert.Equal(t, []string{"deal", "n1", "n2"}, []string{a.Companies[0].CompanyID, a.Companies[1].CompanyID, a.Companies[2].CompanyID})

	deal := a.Companies[0]
	assert.Equal(t, "Target Co", deal.Name)
	assert.Equal(t, 56.0, deal.DirectScore)
	assert.Equal(t, 30.0, deal.PropagatedScore)
	assert.Equal(t, 86.0, deal.TotalScore)
	assert.Equal(t, scoring.LevelFail, deal.RiskLevel)
	require.Len(t, deal.Categories, 5)
	assert.Equal(t, scoring.CategoryShare, deal.Categories[0].Code, "categories are in canonical order")

	n1, ok := a.Company("n1")
	require.True(t, ok)
	assert.Equal(t, 60.0, n1.TotalScore)
	assert.Equal(t, scoring.LevelWarning, n1.RiskLevel)

	n2, _ := a.Company("n2")
	assert.Equal(t, 40.0, n2.TotalScore)
	assert.Equal(t, scoring.LevelPass, n2.RiskLevel)

	assert.Equal(t, map[scoring.RiskLevel]int{
		scoring.LevelPass: 1, scoring.LevelWarning: 1, scoring.LevelFail: 1,
	}, a.Distribution())

	stored, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)
}

func TestAssessOrderIndependent(t *testing.T) {
	svc := newService(t, nil, nil)
	base, err := svc.Assess(context.Background(), dealSnapshot())
	require.NoError(t, err)

	want := make(map[string]CompanyResult)
	for _, c := range base.Companies {
		want[c.CompanyID] = c
	}

	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 20; i++ {
		snap := dealSnapshot()
		r.Shuffle(len(snap.Companies), func(a, b int) { snap.Companies[a], snap.Companies[b] = snap.Companies[b], snap.Companies[a] })
		r.Shuffle(len(snap.Edges), func(a, b int) { snap.Edges[a], snap.Edges[b] = snap.Edges[b], snap.Edges[a] })
		for _, c := range snap.Companies {
			r.Shuffle(len(c.Categories), func(a, b int) { c.Categories[a], c.Categories[b] = c.Categories[b], c.Categories[a] })
		}

		got, err := svc.Assess(context.Background(), snap)
		require.NoError(t, err)
		for _, c := range got.Companies {
			assert.Equal(t, want[c.CompanyID].CompanyRiskScore, c.CompanyRiskScore)
		}
	}
}

func TestAssessConcurrencyLimitsAgree(t *testing.T) {
	rb, err := rulebook.Default()
	require.NoError(t, err)

	serial, err := NewService(rb, nil, logging.Discard(), WithConcurrency(1))
	require.NoError(t, err)
	wide, err := NewService(rb, nil, logging.Discard(), WithConcurrency(64))
	require.NoError(t, err)

	a, err := serial.Assess(context.Background(), dealSnapshot())
	require.NoError(t, err)
	b, err := wide.Assess(context.Background(), dealSnapshot())
	require.NoError(t, err)
	for i := range a.Companies {
		assert.Equal(t, a.Companies[i].CompanyRiskScore, b.Companies[i].CompanyRiskScore)
	}
}

func TestAssessDropsBadEdges(t *testing.T) {
	svc := newService(t, nil, nil)
	before := promtest.ToFloat64(metrics.DroppedEdgesTotal.WithLabelValues(propagation.ReasonUnknownFrom))

	snap := dealSnapshot()
	snap.Edges = append(snap.Edges,
		propagation.RelationEdge{From: "ghost", To: "deal"},
		propagation.RelationEdge{From: "deal", To: "deal"},
	)
	a, err := svc.Assess(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, a.Dropped, 2)
	deal, _ := a.Company("deal")
	assert.Equal(t, 86.0, deal.TotalScore)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.DroppedEdgesTotal.WithLabelValues(propagation.ReasonUnknownFrom)))
}

func TestAssessCompanyWithoutCategories(t *testing.T) {
	svc := newService(t, nil, nil)
	a, err := svc.Assess(context.Background(), Snapshot{Companies: []CompanyInput{{ID: "empty"}}})
	require.NoError(t, err)

	c := a.Companies[0]
	assert.Equal(t, 0.0, c.DirectScore)
	assert.Equal(t, 0.0, c.TotalScore)
	assert.Equal(t, scoring.LevelPass, c.RiskLevel)
}

func TestAssessRejectsInvalidSnapshots(t *testing.T) {
	svc := newService(t, nil, nil)
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"empty", Snapshot{}},
		{"missing id", Snapshot{Companies: []CompanyInput{{Name: "x"}}}},
		{"duplicate company", Snapshot{Companies: []CompanyInput{{ID: "a"}, {ID: "a"}}}},
		{"unknown category", Snapshot{Companies: []CompanyInput{{ID: "a", Categories: []CategoryInput{cat("FX", 10)}}}}},
		{"duplicate category", Snapshot{Companies: []CompanyInput{{ID: "a", Categories: []CategoryInput{
			cat(scoring.CategoryLegal, 10), cat(scoring.CategoryLegal, 20),
		}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Assess(context.Background(), tt.snap)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestAssessCycleWithTotalSource(t *testing.T) {
	svc := newService(t, nil, func(rb *rulebook.Rulebook) {
		rb.Propagation.Source = propagation.SourceTotal
	})
	snap := dealSnapshot()
	snap.Edges = append(snap.Edges, propagation.RelationEdge{From: "deal", To: "n1"})

	_, err := svc.Assess(context.Background(), snap)
	assert.ErrorIs(t, err, propagation.ErrCyclicDependency)
}

func TestAssessCancelledContext(t *testing.T) {
	svc := newService(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Assess(ctx, dealSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStore struct{ MemoryStore }

func (*failingStore) Save(context.Context, *Assessment) error { return errors.New("disk full") }

func TestAssessStoreFailureIsNotFatal(t *testing.T) {
	svc := newService(t, &failingStore{}, nil)
	before := promtest.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("save"))

	a, err := svc.Assess(context.Background(), dealSnapshot())
	require.NoError(t, err)
	assert.Len(t, a.Companies, 3)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("save")))
}

func TestAssessDropWarningsCarryIDs(t *testing.T) {
	rb, err := rulebook.Default()
	require.NoError(t, err)
	var buf bytes.Buffer
	svc, err := NewService(rb, nil, logging.NewWriter(&buf, "warn", "text"))
	require.NoError(t, err)

	snap := dealSnapshot()
	snap.Edges = append(snap.Edges, propagation.RelationEdge{From: "ghost", To: "deal"})
	a, err := svc.Assess(logging.WithRequestID(context.Background(), "req_abc"), snap)
	require.NoError(t, err)

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "dropping relation edge") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, "assessment_id="+a.ID)
	assert.Contains(t, line, "request_id=req_abc")
}

func TestAssessCarriesRequestID(t *testing.T) {
	svc := newService(t, nil, nil)
	ctx := logging.WithRequestID(context.Background(), "req_abc")

	a, err := svc.Assess(ctx, dealSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "req_abc", a.RequestID)
}

func TestScoreOneWithNeighbors(t *testing.T) {
	store := NewMemoryStore()
	svc := newService(t, store, nil)

	a, err := svc.ScoreOne(context.Background(), ScoreRequest{
		Categories: dealCompany().Categories,
		Neighbors:  []Neighbor{{ID: "n1", DirectScore: 60}, {ID: "n2", DirectScore: 40}},
	})
	require.NoError(t, err)

	assert.Equal(t, KindSingle, a.Kind)
	require.Len(t, a.Companies, 1)
	c := a.Companies[0]
	assert.Equal(t, DefaultCompanyID, c.CompanyID)
	assert.Equal(t, 56.0, c.DirectScore)
	assert.Equal(t, 30.0, c.PropagatedScore)
	assert.Equal(t, 86.0, c.TotalScore)
	assert.Equal(t, 86.0, c.DisplayScore)
	assert.Equal(t, scoring.LevelFail, c.RiskLevel)

	hist, err := store.History(context.Background(), DefaultCompanyID, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestScoreOneExplicitEdges(t *testing.T) {
	svc := newService(t, nil, nil)

	a, err := svc.ScoreOne(context.Background(), ScoreRequest{
		CompanyID:  "deal",
		Categories: dealCompany().Categories,
		Neighbors:  []Neighbor{{ID: "n1", DirectScore: 60}, {ID: "n2", DirectScore: 40}},
		Edges: []propagation.RelationEdge{
			{From: "n1", To: "deal", TransferFactor: score(0.5)},
		},
	})
	require.NoError(t, err)
	c := a.Companies[0]
	assert.Equal(t, 9.0, c.PropagatedScore) // round(0.3 × 30)
	assert.Equal(t, 65.0, c.TotalScore)
	assert.Equal(t, scoring.LevelWarning, c.RiskLevel)
}

func TestScoreOneDisplayClamp(t *testing.T) {
	svc := newService(t, nil, nil)
	all := make([]CategoryInput, 0, len(scoring.Categories))
	for _, code := range scoring.Categories {
		all = append(all, cat(code, 100))
	}

	a, err := svc.ScoreOne(context.Background(), ScoreRequest{
		Categories: all,
		Neighbors:  []Neighbor{{ID: "a", DirectScore: 100}},
	})
	require.NoError(t, err)
	c := a.Companies[0]
	assert.Equal(t, 130.0, c.TotalScore)
	assert.Equal(t, 100.0, c.DisplayScore)
}

func TestScoreOneRejectsUnknownCategory(t *testing.T) {
	svc := newService(t, nil, nil)
	_, err := svc.ScoreOne(context.Background(), ScoreRequest{Categories: []CategoryInput{cat("nope", 1)}})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestHistoryAcrossAssessments(t *testing.T) {
	store := NewMemoryStore()
	clock := fixedNow
	rb, err := rulebook.Default()
	require.NoError(t, err)
	svc, err := NewService(rb, store, logging.Discard(), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		a, err := svc.Assess(context.Background(), dealSnapshot())
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	page, err := store.History(context.Background(), "deal", 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].AssessmentID)
	assert.Equal(t, ids[1], page[1].AssessmentID)

	last := page[1]
	rest, err := store.History(context.Background(), "deal", 2, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.AssessmentID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].AssessmentID)
}
