package pie

import (
	"time"

	"github.com/shopspring/decimal"
)

// Token is the opaque correlation token binding a chat thread to a pie.
// Tokens are compared by exact string match only.
type Token string

func (t Token) String() string { return string(t) }

type Pie struct {
	ID            string
	Owner         string
	Channel       string
	Token         Token
	DeclaredValue decimal.Decimal
	Settled       bool
	CreatedAt     time.Time
}

type Slice struct {
	ID        string
	PieID     string
	Claimant  string
	Value     decimal.Decimal
	CreatedAt time.Time
}

// Settlement is the per-pie average record written by a settlement pass.
// Claimant is copied from the owning pie.
type Settlement struct {
	PieID      string
	Claimant   string
	Total      decimal.Decimal
	SliceCount int
	Average    decimal.Decimal
	Percentage decimal.Decimal
	SettledAt  time.Time
}
