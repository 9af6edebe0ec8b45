package pie_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/piebot/internal/memstore"
	"github.com/susu3304/piebot/internal/pie"
)

func TestCreatePieBindsThreadToken(t *testing.T) {
	t.Parallel()
	svc, store, gw := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "p1", "alice", "10")

	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "alice", p.Owner)
	assert.False(t, p.Settled)
	assert.True(t, p.DeclaredValue.Equal(dec("10")))
	require.NotEmpty(t, p.Token)

	byToken, err := store.PieByToken(ctx, p.Token)
	require.NoError(t, err)
	assert.Equal(t, "p1", byToken.ID)

	posts := gw.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "pies", posts[0].Channel)
	assert.Contains(t, posts[0].Text, "Pie p1 has been added by alice")
}

func TestCreatePieGeneratesID(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)

	p := mustCreate(t, svc, "", "alice", "3")
	assert.True(t, strings.HasPrefix(p.ID, "pie_"), "got %q", p.ID)
}

func TestCreatePieFallsBackToCommandChannel(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	svc := pie.NewService(memstore.New(), gw, pie.Options{})

	_, err := svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: "p1", Owner: "alice", Channel: "general", RawValue: "1"})
	require.NoError(t, err)
	assert.Equal(t, "general", gw.Posts()[0].Channel)

	_, err = svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: "p2", Owner: "alice", RawValue: "1"})
	require.ErrorIs(t, err, pie.ErrGateway)
}

func TestCreatePieRejectsInvalidAmount(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"-1", "ten", "", "1e100000000"} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			svc, store, gw := newService(t)

			_, err := svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: "p1", Owner: "alice", RawValue: raw})
			require.ErrorIs(t, err, pie.ErrInvalidAmount)

			_, err = store.PieByID(context.Background(), "p1")
			require.ErrorIs(t, err, pie.ErrPieNotFound)
			assert.Empty(t, gw.Posts())
		})
	}
}

func TestCreatePieRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	svc, _, gw := newService(t)
	mustCreate(t, svc, "p1", "alice", "10")

	_, err := svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: "p1", Owner: "bob", RawValue: "1"})
	require.ErrorIs(t, err, pie.ErrPieExists)
	assert.Len(t, gw.Posts(), 1)
}

func TestCreatePieGatewayFailureLeavesNoPie(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	gw := &fakeGateway{err: errBoom}
	svc := pie.NewService(store, gw, pie.Options{AnnounceChannel: "pies"})

	_, err := svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: "p1", Owner: "alice", RawValue: "10"})
	require.ErrorIs(t, err, pie.ErrGateway)
	require.ErrorIs(t, err, errBoom)

	open, err := store.OpenPies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCreatePieStoreFailureAfterAnnounce(t *testing.T) {
	t.Parallel()
	store := &flakyStore{Store: memstore.New(), failInsertPie: true}
	gw := &fakeGateway{}
	svc := pie.NewService(store, gw, pie.Options{AnnounceChannel: "pies"})

	_, err := svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: "p1", Owner: "alice", RawValue: "10"})
	require.ErrorIs(t, err, pie.ErrStore)
	assert.Len(t, gw.Posts(), 1, "announcement is the accepted orphan")
}
