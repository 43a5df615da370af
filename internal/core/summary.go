package core

import "math/bits"

// ColoredCategory is a CategoryTotal ready for charting.
type ColoredCategory struct {
	CategoryTotal
	Color Color
	// Share is the percentage of the total debit, rounded to one decimal.
	Share float64
}

// Summary bundles everything a renderer needs from one snapshot.
type Summary struct {
	Stats      AggregateStats
	Categories []ColoredCategory
}

// minLabelShare is the smallest share (percent) that gets a chart label.
const minLabelShare = 5.0

// ShowLabel reports whether the slice is large enough to carry a label.
func (c ColoredCategory) ShowLabel() bool {
	return c.Share >= minLabelShare
}

// Summarize computes stats and colored category groups for a snapshot.
func Summarize(s Snapshot) Summary {
	stats := Aggregate(s)
	groups := GroupByCategory(s)
	out := Summary{Stats: stats, Categories: make([]ColoredCategory, 0, len(groups))}
	for _, g := range groups {
		var share float64
		if stats.TotalDebit.Cents > 0 {
			share = float64(permille(g.TotalDebit.Cents, stats.TotalDebit.Cents)) / 10
		}
		out.Categories = append(out.Categories, ColoredCategory{
			CategoryTotal: g,
			Color:         ColorFor(g.Category),
			Share:         share,
		})
	}
	return out
}

// permille returns part/total in thousandths with half-up rounding. Both
// are non-negative and part <= total; the product is kept in 128 bits.
func permille(part, total int64) uint64 {
	hi, lo := bits.Mul64(uint64(part), 1000)
	lo, carry := bits.Add64(lo, uint64(total)/2, 0)
	q, _ := bits.Div64(hi+carry, lo, uint64(total))
	return q
}
