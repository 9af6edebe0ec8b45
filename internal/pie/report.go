package pie

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type PieLine struct {
	PieID      string
	Claimant   string
	Total      decimal.Decimal
	SliceCount int
	Average    decimal.Decimal
	Percentage decimal.Decimal
}

type ClaimantLine struct {
	Claimant   string
	Total      decimal.Decimal
	Percentage decimal.Decimal
}

// Report is the cumulative settlement report. Settled lists the pies closed
// by the pass that produced it and is not part of the rendered text, so
// repeated passes render identically.
type Report struct {
	Pies       []PieLine
	Claimants  []ClaimantLine
	GrandTotal decimal.Decimal
	Settled    []string
	Failures   []SettlementFailure
}

func (r *Report) Render() string {
	var b strings.Builder
	if len(r.Pies) == 0 {
		b.WriteString("No pies have been settled yet.\n")
	} else {
		b.WriteString("Averages:\n")
		for _, l := range r.Pies {
			fmt.Fprintf(&b, "Pie %s (%s): %s (%s%%)\n", l.PieID, l.Claimant, FormatAmount(l.Average), l.Percentage.StringFixed(2))
		}
		b.WriteString("Claimants:\n")
		for _, c := range r.Claimants {
			fmt.Fprintf(&b, "%s: %s (%s%%)\n", c.Claimant, FormatAmount(c.Total), c.Percentage.StringFixed(2))
		}
		fmt.Fprintf(&b, "Grand total: %s\n", FormatAmount(r.GrandTotal))
	}
	if len(r.Failures) > 0 {
		b.WriteString("Failed:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "Pie %s: %s\n", f.PieID, UserMessage(f.Err))
		}
	}
	return b.String()
}
