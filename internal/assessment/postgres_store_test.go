package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/dealscope/internal/pagination"
	"github.com/mbd888/dealscope/internal/propagation"
	"github.com/mbd888/dealscope/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	svc := newService(t, store, nil)

	snap := dealSnapshot()
	snap.Edges = append(snap.Edges, propagation.RelationEdge{From: "ghost", To: "deal"})
	a, err := svc.Assess(context.Background(), snap)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = store.Get(context.Background(), "asm_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStoreHistoryPaging(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	clock := fixedNow
	svc := newService(t, store, nil)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

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
	assert.Equal(t, 86.0, page[0].TotalScore)

	cursor, err := pagination.Decode(pagination.Encode(page[1].Key()))
	require.NoError(t, err)
	rest, err := store.History(context.Background(), "deal", 2, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].AssessmentID)
}
