package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/piebot/internal/pie"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pie.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPie(id string, token pie.Token, value string) *pie.Pie {
	return &pie.Pie{
		ID:            id,
		Owner:         "alice",
		Channel:       "C1",
		Token:         token,
		DeclaredValue: decimal.RequireFromString(value),
		CreatedAt:     time.Now().UTC(),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestPieLookups(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.InsertPie(ctx, testPie("p1", "T1", "10.50")))

	byID, err := store.PieByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, pie.Token("T1"), byID.Token)
	assert.Equal(t, "10.5", byID.DeclaredValue.String())
	assert.False(t, byID.Settled)

	byToken, err := store.PieByToken(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "p1", byToken.ID)

	_, err = store.PieByID(ctx, "missing")
	assert.ErrorIs(t, err, pie.ErrPieNotFound)
	_, err = store.PieByToken(ctx, "missing")
	assert.ErrorIs(t, err, pie.ErrPieNotFound)
}

func TestInsertPieDuplicate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.InsertPie(ctx, testPie("p1", "T1", "1")))
	assert.ErrorIs(t, store.InsertPie(ctx, testPie("p1", "T2", "1")), pie.ErrPieExists)
	assert.ErrorIs(t, store.InsertPie(ctx, testPie("p2", "T1", "1")), pie.ErrPieExists)
}

func TestInsertSliceChecksPieState(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.InsertPie(ctx, testPie("p1", "T1", "10")))

	sl := &pie.Slice{ID: "s1", PieID: "p1", Claimant: "bob", Value: decimal.NewFromInt(5), CreatedAt: time.Now()}
	require.NoError(t, store.InsertSlice(ctx, sl))

	missing := &pie.Slice{ID: "s2", PieID: "nope", Claimant: "bob", Value: decimal.NewFromInt(5), CreatedAt: time.Now()}
	assert.ErrorIs(t, store.InsertSlice(ctx, missing), pie.ErrPieNotFound)

	require.NoError(t, store.MarkSettled(ctx, "p1"))
	late := &pie.Slice{ID: "s3", PieID: "p1", Claimant: "bob", Value: decimal.NewFromInt(5), CreatedAt: time.Now()}
	assert.ErrorIs(t, store.InsertSlice(ctx, late), pie.ErrPieAlreadySettled)

	slices, err := store.SlicesByPie(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Equal(t, "s1", slices[0].ID)
}

func TestMarkSettled(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.InsertPie(ctx, testPie("p1", "T1", "10")))

	require.NoError(t, store.MarkSettled(ctx, "p1"))
	assert.ErrorIs(t, store.MarkSettled(ctx, "p1"), pie.ErrPieAlreadySettled)
	assert.ErrorIs(t, store.MarkSettled(ctx, "missing"), pie.ErrPieNotFound)

	open, err := store.OpenPies(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenPiesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		p := testPie(id, pie.Token("T"+id), "1")
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertPie(ctx, p))
	}

	open, err := store.OpenPies(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{open[0].ID, open[1].ID, open[2].ID})
}

func TestUpsertSettlementReplaces(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	st := &pie.Settlement{
		PieID:      "p1",
		Claimant:   "alice",
		Total:      decimal.NewFromInt(20),
		SliceCount: 2,
		Average:    decimal.NewFromInt(20).Div(decimal.NewFromInt(3)),
		Percentage: decimal.NewFromInt(100),
		SettledAt:  time.Now(),
	}
	require.NoError(t, store.UpsertSettlement(ctx, st))

	st.Percentage = decimal.NewFromInt(75)
	require.NoError(t, store.UpsertSettlement(ctx, st))

	all, err := store.Settlements(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Percentage.Equal(decimal.NewFromInt(75)))
	assert.True(t, all[0].Average.Equal(st.Average))
	assert.Equal(t, 2, all[0].SliceCount)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.InsertPie(ctx, testPie("p1", "T1", "10")))
	require.NoError(t, store.InsertSlice(ctx, &pie.Slice{ID: "s1", PieID: "p1", Claimant: "bob", Value: decimal.NewFromInt(1), CreatedAt: time.Now()}))
	require.NoError(t, store.UpsertSettlement(ctx, &pie.Settlement{PieID: "p1", Claimant: "alice", SettledAt: time.Now()}))

	require.NoError(t, store.Clear(ctx))

	open, err := store.OpenPies(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := store.Settlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	slices, err := store.SlicesByPie(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, slices)
}

type threadGateway struct {
	mu sync.Mutex
	n  int
}

func (g *threadGateway) PostMessage(_ context.Context, _, _ string, thread pie.Token) (pie.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if thread != "" {
		return thread, nil
	}
	g.n++
	return pie.Token(fmt.Sprintf("thread-%d", g.n)), nil
}

func TestSettlementPassOverSQLite(t *testing.T) {
	ctx := context.Background()
	svc := pie.NewService(openTestStore(t), &threadGateway{}, pie.Options{AnnounceChannel: "pies"})

	p, err := svc.Registrar.CreatePie(ctx, pie.CreatePieInput{ID: "p1", Owner: "alice", RawValue: "10"})
	require.NoError(t, err)
	_, err = svc.Recorder.RecordSlice(ctx, pie.SliceInput{Token: p.Token, Claimant: "bob", RawValue: "5"})
	require.NoError(t, err)
	_, err = svc.Recorder.RecordSlice(ctx, pie.SliceInput{PieID: "p1", Claimant: "carol", RawValue: "5"})
	require.NoError(t, err)

	report, err := svc.Engine.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, report.Settled)
	require.Len(t, report.Pies, 1)
	assert.Equal(t, "6.67", report.Pies[0].Average.StringFixed(2))
	assert.Equal(t, 2, report.Pies[0].SliceCount)

	_, err = svc.Recorder.RecordSlice(ctx, pie.SliceInput{PieID: "p1", Claimant: "dave", RawValue: "1"})
	assert.ErrorIs(t, err, pie.ErrPieAlreadySettled)
}

func TestConcurrentSlicesAllPersist(t *testing.T) {
	ctx := context.Background()
	svc := pie.NewService(openTestStore(t), &threadGateway{}, pie.Options{AnnounceChannel: "pies"})
	p, err := svc.Registrar.CreatePie(ctx, pie.CreatePieInput{ID: "p1", Owner: "alice", RawValue: "10"})
	require.NoError(t, err)

	const writers = 50
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := pie.SliceInput{PieID: p.ID, Claimant: fmt.Sprintf("user%d", i), RawValue: "1"}
			if i%2 == 0 {
				in = pie.SliceInput{Token: p.Token, Claimant: in.Claimant, RawValue: "1"}
			}
			_, err := svc.Recorder.RecordSlice(ctx, in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := svc.Engine.Settle(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	require.Len(t, report.Pies, 1)
	assert.Equal(t, writers, report.Pies[0].SliceCount)
}

func TestSettleManyPiesInParallel(t *testing.T) {
	ctx := context.Background()
	svc := pie.NewService(openTestStore(t), &threadGateway{}, pie.Options{AnnounceChannel: "pies", SettleConcurrency: 8})

	const pies = 40
	for i := 0; i < pies; i++ {
		id := fmt.Sprintf("p%02d", i)
		_, err := svc.Registrar.CreatePie(ctx, pie.CreatePieInput{ID: id, Owner: "alice", RawValue: "10"})
		require.NoError(t, err)
		_, err = svc.Recorder.RecordSlice(ctx, pie.SliceInput{PieID: id, Claimant: "bob", RawValue: "2"})
		require.NoError(t, err)
	}

	report, err := svc.Engine.Settle(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Len(t, report.Settled, pies)
	assert.Len(t, report.Pies, pies)
}
