// Package memory is an in-process transaction source. It stands in for the
// extraction backend during development and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"finbot/internal/core"
	"finbot/internal/source"
)

// SeedFile is the snapshot loaded by NewFromDir when present.
const SeedFile = "movimientos.json"

type Store struct {
	mu    sync.RWMutex
	items core.Snapshot
}

var (
	_ source.Source         = (*Store)(nil)
	_ source.StatementTypes = (*Store)(nil)
)

// New returns a store holding a copy of seed.
func New(seed core.Snapshot) *Store {
	return &Store{items: clone(seed)}
}

// NewFromDir seeds the store from dir/movimientos.json. A missing file
// yields an empty store; a malformed one is an error.
func NewFromDir(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, SeedFile))
	if errors.Is(err, os.ErrNotExist) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", SeedFile, err)
	}
	return New(snap), nil
}

// FetchTransactions returns the snapshot, keeping only rows whose raw
// category equals the filter when one is given.
func (s *Store) FetchTransactions(ctx context.Context, categoryFilter string) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.FetchError{Filter: categoryFilter, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(core.Snapshot, 0, len(s.items))
	for _, t := range s.items {
		if categoryFilter != "" && t.Category != categoryFilter {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// UploadStatement replaces the whole snapshot with the JSON array in the
// statement. PDF statements cannot be parsed here and are rejected.
func (s *Store) UploadStatement(ctx context.Context, st source.Statement, _ string) (core.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return core.UploadResult{}, &core.UploadError{Err: err}
	}
	if isPDF(st) {
		return core.UploadResult{}, &core.UploadError{
			StatusCode: 415,
			Cause:      "El backend en memoria sólo acepta movimientos en JSON.",
		}
	}
	data, err := io.ReadAll(st.Content)
	if err != nil {
		return core.UploadResult{}, &core.UploadError{Cause: core.MsgUploadFailed, Err: err}
	}
	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		return core.UploadResult{}, &core.UploadError{StatusCode: 400, Cause: core.MsgUploadFailed, Err: err}
	}
	s.mu.Lock()
	s.items = snap
	s.mu.Unlock()
	return core.UploadResult{OK: true, Inserted: len(snap)}, nil
}

// StatementTypes adds JSON to the default statement media types.
func (s *Store) StatementTypes() []string {
	return append(append([]string(nil), source.DefaultStatementTypes...), source.TypeJSON)
}

// Len reports the number of stored movements.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func isPDF(st source.Statement) bool {
	if st.ContentType == source.TypePDF {
		return true
	}
	return st.ContentType != source.TypeJSON && strings.EqualFold(filepath.Ext(st.Filename), ".pdf")
}

func clone(s core.Snapshot) core.Snapshot {
	out := make(core.Snapshot, len(s))
	copy(out, s)
	return out
}
