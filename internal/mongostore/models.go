package mongostore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/susu3304/piebot/internal/pie"
)

// derivedScale is the number of decimal places kept for settlement figures.
const derivedScale = 16

type pieModel struct {
	ID            string          `bson:"_id"`
	Owner         string          `bson:"owner"`
	Channel       string          `bson:"channel"`
	Token         string          `bson:"ts"`
	DeclaredValue bson.Decimal128 `bson:"value"`
	Settled       bool            `bson:"settled"`
	CreatedAt     time.Time       `bson:"created_at"`
}

type sliceModel struct {
	ID        string          `bson:"_id"`
	PieID     string          `bson:"pie_id"`
	Claimant  string          `bson:"user"`
	Value     bson.Decimal128 `bson:"value"`
	CreatedAt time.Time       `bson:"created_at"`
}

type averageModel struct {
	PieID      string          `bson:"_id"`
	Claimant   string          `bson:"user"`
	Total      bson.Decimal128 `bson:"total"`
	SliceCount int             `bson:"slice_count"`
	Average    bson.Decimal128 `bson:"average"`
	Percentage bson.Decimal128 `bson:"percentage"`
	SettledAt  time.Time       `bson:"settled_at"`
}

func toPieModel(p *pie.Pie) (*pieModel, error) {
	v, err := toDecimal128(p.DeclaredValue)
	if err != nil {
		return nil, fmt.Errorf("pie %s value: %w", p.ID, err)
	}
	return &pieModel{
		ID:            p.ID,
		Owner:         p.Owner,
		Channel:       p.Channel,
		Token:         string(p.Token),
		DeclaredValue: v,
		Settled:       p.Settled,
		CreatedAt:     p.CreatedAt.UTC(),
	}, nil
}

func fromPieModel(m *pieModel) (*pie.Pie, error) {
	v, err := fromDecimal128(m.DeclaredValue)
	if err != nil {
		return nil, fmt.Errorf("pie %s value: %w", m.ID, err)
	}
	return &pie.Pie{
		ID:            m.ID,
		Owner:         m.Owner,
		Channel:       m.Channel,
		Token:         pie.Token(m.Token),
		DeclaredValue: v,
		Settled:       m.Settled,
		CreatedAt:     m.CreatedAt,
	}, nil
}

func toSliceModel(s *pie.Slice) (*sliceModel, error) {
	v, err := toDecimal128(s.Value)
	if err != nil {
		return nil, fmt.Errorf("slice %s value: %w", s.ID, err)
	}
	return &sliceModel{
		ID:        s.ID,
		PieID:     s.PieID,
		Claimant:  s.Claimant,
		Value:     v,
		CreatedAt: s.CreatedAt.UTC(),
	}, nil
}

func fromSliceModel(m *sliceModel) (*pie.Slice, error) {
	v, err := fromDecimal128(m.Value)
	if err != nil {
		return nil, fmt.Errorf("slice %s value: %w", m.ID, err)
	}
	return &pie.Slice{
		ID:        m.ID,
		PieID:     m.PieID,
		Claimant:  m.Claimant,
		Value:     v,
		CreatedAt: m.CreatedAt,
	}, nil
}

func toAverageModel(s *pie.Settlement) (*averageModel, error) {
	m := &averageModel{
		PieID:      s.PieID,
		Claimant:   s.Claimant,
		SliceCount: s.SliceCount,
		SettledAt:  s.SettledAt.UTC(),
	}
	var err error
	if m.Total, err = roundedDecimal128(s.Total); err != nil {
		return nil, fmt.Errorf("settlement %s total: %w", s.PieID, err)
	}
	if m.Average, err = roundedDecimal128(s.Average); err != nil {
		return nil, fmt.Errorf("settlement %s average: %w", s.PieID, err)
	}
	if m.Percentage, err = roundedDecimal128(s.Percentage); err != nil {
		return nil, fmt.Errorf("settlement %s percentage: %w", s.PieID, err)
	}
	return m, nil
}

func fromAverageModel(m *averageModel) (*pie.Settlement, error) {
	s := &pie.Settlement{
		PieID:      m.PieID,
		Claimant:   m.Claimant,
		SliceCount: m.SliceCount,
		SettledAt:  m.SettledAt,
	}
	var err error
	if s.Total, err = fromDecimal128(m.Total); err != nil {
		return nil, fmt.Errorf("settlement %s total: %w", m.PieID, err)
	}
	if s.Average, err = fromDecimal128(m.Average); err != nil {
		return nil, fmt.Errorf("settlement %s average: %w", m.PieID, err)
	}
	if s.Percentage, err = fromDecimal128(m.Percentage); err != nil {
		return nil, fmt.Errorf("settlement %s percentage: %w", m.PieID, err)
	}
	return s, nil
}

// toDecimal128 stores d exactly. Parsed amounts always fit the 34
// significant digits Decimal128 holds.
func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	return bson.ParseDecimal128(d.String())
}

// roundedDecimal128 is for derived values such as averages, which can
// repeat forever.
func roundedDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	return toDecimal128(d.Round(derivedScale))
}

func fromDecimal128(d bson.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}
