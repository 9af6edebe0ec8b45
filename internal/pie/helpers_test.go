package pie_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/piebot/internal/memstore"
	"github.com/susu3304/piebot/internal/pie"
)

type post struct {
	Channel string
	Text    string
	Thread  pie.Token
}

type fakeGateway struct {
	mu        sync.Mutex
	posts     []post
	next      int
	err       error
	threadErr error
}

func (g *fakeGateway) PostMessage(_ context.Context, channel, text string, thread pie.Token) (pie.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if thread == "" && g.err != nil {
		return "", g.err
	}
	if thread != "" && g.threadErr != nil {
		return "", g.threadErr
	}
	g.posts = append(g.posts, post{Channel: channel, Text: text, Thread: thread})
	if thread != "" {
		return thread, nil
	}
	g.next++
	return pie.Token(fmt.Sprintf("thread-%d", g.next)), nil
}

func (g *fakeGateway) Posts() []post {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]post(nil), g.posts...)
}

// flakyStore fails selected operations for selected pies.
type flakyStore struct {
	*memstore.Store
	failInsertPie  bool
	failSlicesFor  string
	failSettlement string
}

var errBoom = errors.New("boom")

func (s *flakyStore) InsertPie(ctx context.Context, p *pie.Pie) error {
	if s.failInsertPie {
		return errBoom
	}
	return s.Store.InsertPie(ctx, p)
}

func (s *flakyStore) SlicesByPie(ctx context.Context, pieID string) ([]*pie.Slice, error) {
	if pieID == s.failSlicesFor {
		return nil, errBoom
	}
	return s.Store.SlicesByPie(ctx, pieID)
}

func (s *flakyStore) UpsertSettlement(ctx context.Context, st *pie.Settlement) error {
	if st.PieID == s.failSettlement {
		return errBoom
	}
	return s.Store.UpsertSettlement(ctx, st)
}

func newService(t *testing.T) (*pie.Service, *memstore.Store, *fakeGateway) {
	t.Helper()
	store := memstore.New()
	gw := &fakeGateway{}
	return pie.NewService(store, gw, pie.Options{AnnounceChannel: "pies"}), store, gw
}

func mustCreate(t *testing.T, svc *pie.Service, id, owner, value string) *pie.Pie {
	t.Helper()
	p, err := svc.Registrar.CreatePie(context.Background(), pie.CreatePieInput{ID: id, Owner: owner, RawValue: value})
	require.NoError(t, err)
	return p
}

func mustSlice(t *testing.T, svc *pie.Service, pieID, claimant, value string) *pie.Slice {
	t.Helper()
	s, err := svc.Recorder.RecordSlice(context.Background(), pie.SliceInput{PieID: pieID, Claimant: claimant, RawValue: value})
	require.NoError(t, err)
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
