// Package view holds the dashboard state: the current category filter, the
// last committed snapshot and its aggregates.
//
// Every filter change or reload issues a fetch tagged with a new
// generation. Results are committed only when their generation is still the
// latest one, so a slow response can never overwrite a newer one.
package view

import (
	"context"
	"sync"
	"time"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/reload"
	"finbot/internal/source"
)

type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is a point-in-time copy of the view.
type State struct {
	Phase  Phase
	Filter string
	// Reload is the last reload counter value the view acted on.
	Reload uint64
	// Generation is the latest issued fetch; Committed is the fetch whose
	// result is held in Snapshot.
	Generation uint64
	Committed  uint64
	Snapshot   core.Snapshot
	Summary    core.Summary
	// Categories are the known categories for the filter selector,
	// refreshed by every unfiltered fetch.
	Categories []string
	Err        error
	UpdatedAt  time.Time
}

type View struct {
	fetcher source.TransactionFetcher
	logger  *log.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

func New(fetcher source.TransactionFetcher, logger *log.Logger) *View {
	if logger == nil {
		logger = log.Discard()
	}
	return &View{
		fetcher: fetcher,
		logger:  logger.WithComponent(log.ComponentView),
		now:     time.Now,
	}
}

// State returns a copy of the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.clone()
}

// SetFilter switches the category filter and fetches under it. An empty
// filter means all movements. It returns the state once its fetch settles.
func (v *View) SetFilter(ctx context.Context, filter string) State {
	v.mu.Lock()
	v.state.Filter = filter
	gen := v.begin()
	v.mu.Unlock()
	return v.fetch(ctx, gen, filter, log.OpFilter)
}

// Reload records counter n and re-fetches under the current filter.
func (v *View) Reload(ctx context.Context, n uint64) State {
	v.mu.Lock()
	if n > v.state.Reload {
		v.state.Reload = n
	}
	filter := v.state.Filter
	gen := v.begin()
	v.mu.Unlock()
	return v.fetch(ctx, gen, filter, log.OpReload)
}

// Watch reloads the view every time sig changes, until ctx is done. A
// change that happened before Watch started is picked up immediately.
func (v *View) Watch(ctx context.Context, sig *reload.Signal) error {
	for {
		changed := sig.Changed()
		n := sig.Value()
		v.mu.Lock()
		seen := v.state.Reload
		v.mu.Unlock()
		if n > seen {
			v.Reload(ctx, n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// begin moves to Loading under a new generation. Callers hold v.mu.
func (v *View) begin() uint64 {
	v.state.Generation++
	v.state.Phase = Loading
	return v.state.Generation
}

func (v *View) fetch(ctx context.Context, gen uint64, filter, op string) State {
	snap, err := v.fetcher.FetchTransactions(ctx, filter)

	v.mu.Lock()
	defer v.mu.Unlock()
	fields := log.NewFields().WithOperation(op).WithFetch(filter, gen)
	if gen != v.state.Generation {
		v.logger.DebugContext(ctx, "Discarding stale fetch result", fields.ToSlice()...)
		return v.state.clone()
	}
	v.state.UpdatedAt = v.now()
	v.state.Committed = gen
	if err != nil {
		v.state.Phase = Failed
		v.state.Err = err
		v.state.Snapshot = nil
		v.state.Summary = core.Summary{}
		v.logger.WarnContext(ctx, "Fetch failed", fields.WithError(err).ToSlice()...)
		return v.state.clone()
	}
	if snap == nil {
		snap = core.Snapshot{}
	}
	v.state.Phase = Ready
	v.state.Err = nil
	v.state.Snapshot = snap
	v.state.Summary = core.Summarize(snap)
	v.state.Categories = mergeCategories(v.state.Categories, snap, filter)
	st := v.state.Summary.Stats
	v.logger.DebugContext(ctx, "Committed snapshot",
		fields.WithTotals(st.Count, st.TotalDebit.Cents, st.TotalCredit.Cents).ToSlice()...)
	return v.state.clone()
}

// mergeCategories replaces the known list on unfiltered fetches and only
// makes sure the active filter stays selectable otherwise.
func mergeCategories(known []string, snap core.Snapshot, filter string) []string {
	if filter == "" {
		return snap.Categories()
	}
	for _, c := range known {
		if c == filter {
			return known
		}
	}
	return append(append([]string(nil), known...), filter)
}

func (s State) clone() State {
	out := s
	if s.Snapshot != nil {
		out.Snapshot = append(make(core.Snapshot, 0, len(s.Snapshot)), s.Snapshot...)
	}
	if s.Summary.Categories != nil {
		out.Summary.Categories = append(make([]core.ColoredCategory, 0, len(s.Summary.Categories)), s.Summary.Categories...)
	}
	if s.Categories != nil {
		out.Categories = append(make([]string, 0, len(s.Categories)), s.Categories...)
	}
	return out
}
