package pie

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SliceInput references a pie either by ID (command path) or by the
// correlation token of the thread the reply arrived in (event path).
type SliceInput struct {
	PieID    string
	Token    Token
	Claimant string
	RawValue string
}

// Recorder validates and records slices against open pies.
type Recorder struct {
	store   Store
	gateway Gateway
	locks   *Locks
	now     func() time.Time
}

func NewRecorder(store Store, gateway Gateway, locks *Locks) *Recorder {
	return &Recorder{
		store:   store,
		gateway: gateway,
		locks:   locks,
		now:     time.Now,
	}
}

func (r *Recorder) RecordSlice(ctx context.Context, in SliceInput) (*Slice, error) {
	value, err := ParseAmount(in.RawValue)
	if err != nil {
		return nil, err
	}

	p, err := r.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.RLock(p.ID)
	s, err := r.insert(ctx, p, in.Claimant, value)
	unlock()
	if err != nil {
		return nil, err
	}

	r.confirm(ctx, p, s)
	return s, nil
}

// Resolve looks up the pie a slice input refers to.
func (r *Recorder) Resolve(ctx context.Context, in SliceInput) (*Pie, error) {
	return r.resolve(ctx, in)
}

func (r *Recorder) resolve(ctx context.Context, in SliceInput) (*Pie, error) {
	var (
		p   *Pie
		err error
	)
	switch id := strings.TrimSpace(in.PieID); {
	case id != "":
		p, err = r.store.PieByID(ctx, id)
	case in.Token != "":
		p, err = r.store.PieByToken(ctx, in.Token)
	default:
		return nil, ErrMissingPieID
	}
	if err != nil {
		return nil, storeErr("lookup pie", err)
	}
	return p, nil
}

func (r *Recorder) insert(ctx context.Context, p *Pie, claimant string, value decimal.Decimal) (*Slice, error) {
	if p.Settled {
		return nil, fmt.Errorf("%w: %s", ErrPieAlreadySettled, p.ID)
	}
	s := &Slice{
		ID:        newID(prefixSlice),
		PieID:     p.ID,
		Claimant:  claimant,
		Value:     value,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.InsertSlice(ctx, s); err != nil {
		return nil, storeErr("insert slice", err)
	}
	return s, nil
}

// confirm posts into the pie's thread. Failures are logged only; the slice
// is already recorded.
func (r *Recorder) confirm(ctx context.Context, p *Pie, s *Slice) {
	if r.gateway == nil || p.Token == "" {
		return
	}
	text := fmt.Sprintf("Slice of %s for pie %s has been added by %s", FormatAmount(s.Value), p.ID, s.Claimant)
	if _, err := r.gateway.PostMessage(ctx, p.Channel, text, p.Token); err != nil {
		log.Printf("recorder: failed to confirm slice %s in thread %s: %v", s.ID, p.Token, err)
	}
}
