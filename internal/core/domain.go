package core

import (
	"math"
	"strings"
	"time"
)

// OtherCategory is the bucket for movements with no category.
const OtherCategory = "Otros"

type (
	Money struct {
		Cents int64
	}

	// Transaction is one movement of a bank statement as produced by the
	// extraction backend. Date and Description are display-only.
	Transaction struct {
		ID          string
		Date        string
		Description string
		Debit       Money // cargos
		Credit      Money // abonos
		Category    string
	}

	// Snapshot is the ordered list returned by a single fetch.
	Snapshot []Transaction

	// UploadResult is the backend acknowledgment of an ingested statement.
	UploadResult struct {
		OK             bool
		Inserted       int
		OpeningBalance *Money
		ClosingBalance *Money
		// Reload is the reload counter value this upload produced.
		Reload uint64
	}

	// UploadRecord is the local history entry of an accepted upload.
	UploadRecord struct {
		ID             string
		Filename       string
		SizeBytes      int64
		Inserted       int
		OpeningBalance *Money
		ClosingBalance *Money
		Reload         uint64
		// Origin identifies the process that performed the upload.
		Origin     string
		UploadedAt time.Time
	}
)

// NormalizeCategory maps empty or blank categories to OtherCategory.
func NormalizeCategory(c string) string {
	if strings.TrimSpace(c) == "" {
		return OtherCategory
	}
	return c
}

// Positive returns m clamped at zero.
func (m Money) Positive() Money {
	if m.Cents < 0 {
		return Money{}
	}
	return m
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Add returns the sum of two amounts, saturating at the int64 limits.
func (m Money) Add(o Money) Money {
	sum := m.Cents + o.Cents
	switch {
	case o.Cents > 0 && sum < m.Cents:
		sum = math.MaxInt64
	case o.Cents < 0 && sum > m.Cents:
		sum = math.MinInt64
	}
	return Money{Cents: sum}
}

// Categories returns the distinct raw categories of the snapshot in
// first-occurrence order, including credit-only rows. These are the values a
// category filter can match, so blank categories are left out: filtering is
// exact, and "Otros" only matches rows literally labeled that way.
func (s Snapshot) Categories() []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, t := range s {
		c := t.Category
		if strings.TrimSpace(c) == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
