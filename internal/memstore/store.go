// Package memstore is an in-memory ledger store for tests and throwaway runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/susu3304/piebot/internal/pie"
)

var _ pie.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	pies        map[string]*pie.Pie
	tokens      map[pie.Token]string
	slices      map[string][]*pie.Slice
	settlements map[string]*pie.Settlement
}

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.pies = make(map[string]*pie.Pie)
	s.tokens = make(map[pie.Token]string)
	s.slices = make(map[string][]*pie.Slice)
	s.settlements = make(map[string]*pie.Settlement)
}

func (s *Store) InsertPie(_ context.Context, p *pie.Pie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pies[p.ID]; exists {
		return pie.ErrPieExists
	}
	if _, exists := s.tokens[p.Token]; exists {
		return pie.ErrPieExists
	}
	cp := *p
	s.pies[p.ID] = &cp
	s.tokens[p.Token] = p.ID
	return nil
}

func (s *Store) PieByID(_ context.Context, id string) (*pie.Pie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.pies[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, pie.ErrPieNotFound
}

func (s *Store) PieByToken(_ context.Context, token pie.Token) (*pie.Pie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.tokens[token]; ok {
		cp := *s.pies[id]
		return &cp, nil
	}
	return nil, pie.ErrPieNotFound
}

func (s *Store) OpenPies(_ context.Context) ([]*pie.Pie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pie.Pie, 0)
	for _, p := range s.pies {
		if !p.Settled {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) InsertSlice(_ context.Context, sl *pie.Slice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pies[sl.PieID]
	if !ok {
		return pie.ErrPieNotFound
	}
	if p.Settled {
		return pie.ErrPieAlreadySettled
	}
	cp := *sl
	s.slices[sl.PieID] = append(s.slices[sl.PieID], &cp)
	return nil
}

func (s *Store) SlicesByPie(_ context.Context, pieID string) ([]*pie.Slice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pie.Slice, 0, len(s.slices[pieID]))
	for _, sl := range s.slices[pieID] {
		cp := *sl
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) UpsertSettlement(_ context.Context, st *pie.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	s.settlements[st.PieID] = &cp
	return nil
}

func (s *Store) Settlements(_ context.Context) ([]*pie.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*pie.Settlement, 0, len(s.settlements))
	for _, st := range s.settlements {
		cp := *st
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PieID < result[j].PieID })
	return result, nil
}

func (s *Store) MarkSettled(_ context.Context, pieID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pies[pieID]
	if !ok {
		return pie.ErrPieNotFound
	}
	if p.Settled {
		return pie.ErrPieAlreadySettled
	}
	p.Settled = true
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }
