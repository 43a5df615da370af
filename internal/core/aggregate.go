package core

// AggregateStats holds the totals of a whole snapshot.
type AggregateStats struct {
	TotalDebit  Money
	TotalCredit Money
	Count       int
}

// CategoryTotal is the debit sum of one category.
type CategoryTotal struct {
	Category   string
	TotalDebit Money
}

// Aggregate sums debits and credits over the snapshot. Negative amounts
// count as zero so totals are never negative.
func Aggregate(s Snapshot) AggregateStats {
	stats := AggregateStats{Count: len(s)}
	for _, t := range s {
		stats.TotalDebit = stats.TotalDebit.Add(t.Debit.Positive())
		stats.TotalCredit = stats.TotalCredit.Add(t.Credit.Positive())
	}
	return stats
}

// GroupByCategory sums positive debits per normalized category. Groups are
// emitted in order of first occurrence so chart legends stay stable across
// renders of the same snapshot. Credits never contribute.
func GroupByCategory(s Snapshot) []CategoryTotal {
	index := make(map[string]int)
	var out []CategoryTotal
	for _, t := range s {
		debit := t.Debit.Positive()
		if debit.IsZero() {
			continue
		}
		cat := NormalizeCategory(t.Category)
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, CategoryTotal{Category: cat})
		}
		out[i].TotalDebit = out[i].TotalDebit.Add(debit)
	}
	return out
}
