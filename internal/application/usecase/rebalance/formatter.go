package rebalance

import (
	"fmt"
	"strconv"
	"strings"

	"yieldopt/internal/domain/model"
)

// Formatter renders pipeline results as console report lines.
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

// AllocationLines renders one "market_key: $amount" line per market, in
// decision order.
func (f *Formatter) AllocationLines(dec model.AllocationDecision) []string {
	lines := make([]string, 0, len(dec.Lines)+1)
	lines = append(lines, "Optimized Allocations:")
	for _, l := range dec.Lines {
		lines = append(lines, fmt.Sprintf("%s: $%s", l.MarketKey, FormatUSD(l.Amount)))
	}
	return lines
}

// TrendLines renders a trend summary.
func (f *Formatter) TrendLines(ts model.TrendSummary) []string {
	return []string{
		fmt.Sprintf("Market %s (%d data points, %s .. %s)",
			ts.MarketKey, ts.DataPoints,
			ts.Start.Format("2006-01-02"), ts.End.Format("2006-01-02")),
		fmt.Sprintf("supply APY avg=%.4f min=%.4f max=%.4f", ts.AvgSupplyAPY, ts.MinSupplyAPY, ts.MaxSupplyAPY),
		fmt.Sprintf("utilization avg=%.4f", ts.AvgUtilization),
	}
}

// SnapshotLine renders one cached snapshot.
func (f *Formatter) SnapshotLine(s model.MarketSnapshot) string {
	return fmt.Sprintf("%s %s supply=%.4f borrow=%.4f util=%.4f lltv=%.2f max_supply=$%s",
		s.MarketKey, s.TokenSymbol, s.SupplyAPY, s.BorrowAPY, s.Utilization, s.Lltv, FormatUSD(s.MaxSupply))
}

// FormatUSD formats an amount with thousands separators and two decimals.
func FormatUSD(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	sb.WriteString(frac)
	return sb.String()
}
