package pie

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const DefaultSettleConcurrency = 4

var hundred = decimal.NewFromInt(100)

// Engine settles open pies and builds the cumulative settlement report.
type Engine struct {
	store       Store
	locks       *Locks
	concurrency int
	now         func() time.Time
}

func NewEngine(store Store, locks *Locks, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = DefaultSettleConcurrency
	}
	return &Engine{
		store:       store,
		locks:       locks,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Settle settles every open pie and returns the report over all settlement
// records, including those written by earlier passes. A failure on one pie
// is recorded on the report and does not affect the others; only failing to
// list pies or settlements aborts the pass.
func (e *Engine) Settle(ctx context.Context) (*Report, error) {
	open, err := e.store.OpenPies(ctx)
	if err != nil {
		return nil, storeErr("list open pies", err)
	}

	var (
		mu       sync.Mutex
		settled  []string
		failures []SettlementFailure
		g        errgroup.Group
	)
	g.SetLimit(e.concurrency)
	for _, p := range open {
		g.Go(func() error {
			done, err := e.settlePie(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("settlement: failed to settle pie %s: %v", p.ID, err)
				failures = append(failures, SettlementFailure{PieID: p.ID, Err: err})
				return nil
			}
			if done {
				settled = append(settled, p.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	report, err := e.buildReport(ctx, true)
	if err != nil {
		return nil, err
	}
	sort.Strings(settled)
	report.Settled = settled
	report.Failures = append(failures, report.Failures...)
	sort.SliceStable(report.Failures, func(i, j int) bool {
		return report.Failures[i].PieID < report.Failures[j].PieID
	})
	return report, nil
}

// Report renders the cumulative report without settling anything or
// writing percentages back.
func (e *Engine) Report(ctx context.Context) (*Report, error) {
	return e.buildReport(ctx, false)
}

// settlePie reports false when another pass settled the pie first.
func (e *Engine) settlePie(ctx context.Context, p *Pie) (bool, error) {
	unlock := e.locks.Lock(p.ID)
	defer unlock()

	slices, err := e.store.SlicesByPie(ctx, p.ID)
	if err != nil {
		return false, storeErr("list slices", err)
	}
	s := Compute(p, slices)
	s.SettledAt = e.now().UTC()
	if err := e.store.UpsertSettlement(ctx, s); err != nil {
		return false, storeErr("upsert settlement", err)
	}
	if err := e.store.MarkSettled(ctx, p.ID); err != nil {
		if errors.Is(err, ErrPieAlreadySettled) {
			return false, nil
		}
		return false, storeErr("mark settled", err)
	}

	// Another process may have committed a slice between the read and the
	// mark. Slices are append-only and rejected once the pie is settled, so
	// a second read is final.
	final, err := e.store.SlicesByPie(ctx, p.ID)
	if err != nil {
		return true, storeErr("recount slices", err)
	}
	if len(final) != len(slices) {
		s = Compute(p, final)
		s.SettledAt = e.now().UTC()
		if err := e.store.UpsertSettlement(ctx, s); err != nil {
			return true, storeErr("upsert settlement", err)
		}
	}
	return true, nil
}

// Compute derives the settlement record for a pie. The declared value counts
// as an implicit first contribution, so the denominator is len(slices)+1.
func Compute(p *Pie, slices []*Slice) *Settlement {
	total := p.DeclaredValue
	for _, s := range slices {
		total = total.Add(s.Value)
	}
	denominator := decimal.NewFromInt(int64(len(slices) + 1))
	return &Settlement{
		PieID:      p.ID,
		Claimant:   p.Owner,
		Total:      total,
		SliceCount: len(slices),
		Average:    total.Div(denominator),
	}
}

// Percentage returns 100*value/grandTotal, or zero when grandTotal is zero.
func Percentage(value, grandTotal decimal.Decimal) decimal.Decimal {
	if grandTotal.IsZero() {
		return decimal.Zero
	}
	return value.Mul(hundred).Div(grandTotal)
}

func (e *Engine) buildReport(ctx context.Context, persist bool) (*Report, error) {
	records, err := e.store.Settlements(ctx)
	if err != nil {
		return nil, storeErr("list settlements", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PieID < records[j].PieID })

	grand := decimal.Zero
	for _, r := range records {
		grand = grand.Add(r.Average)
	}

	report := &Report{GrandTotal: grand}
	totals := make(map[string]decimal.Decimal)
	for _, r := range records {
		pct := Percentage(r.Average, grand)
		if persist && !pct.Equal(r.Percentage) {
			r.Percentage = pct
			if err := e.store.UpsertSettlement(ctx, r); err != nil {
				err = storeErr("update percentage", err)
				log.Printf("settlement: failed to store percentage for pie %s: %v", r.PieID, err)
				report.Failures = append(report.Failures, SettlementFailure{PieID: r.PieID, Err: err})
			}
		}
		report.Pies = append(report.Pies, PieLine{
			PieID:      r.PieID,
			Claimant:   r.Claimant,
			Total:      r.Total,
			SliceCount: r.SliceCount,
			Average:    r.Average,
			Percentage: pct,
		})
		totals[r.Claimant] = totals[r.Claimant].Add(r.Average)
	}

	for claimant, total := range totals {
		report.Claimants = append(report.Claimants, ClaimantLine{
			Claimant:   claimant,
			Total:      total,
			Percentage: Percentage(total, grand),
		})
	}
	sort.Slice(report.Claimants, func(i, j int) bool {
		return report.Claimants[i].Claimant < report.Claimants[j].Claimant
	})
	return report, nil
}
