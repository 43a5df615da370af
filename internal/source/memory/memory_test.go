package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"finbot/internal/core"
	"finbot/internal/source"
)

func seed() core.Snapshot {
	return core.Snapshot{
		{ID: "1", Debit: core.Money{Cents: 1000}, Category: "Super"},
		{ID: "2", Credit: core.Money{Cents: 500}},
		{ID: "3", Debit: core.Money{Cents: 200}, Category: "Super"},
	}
}

func TestMemoryStoreFetchAndFilter(t *testing.T) {
	s := New(seed())
	all, err := s.FetchTransactions(context.Background(), "")
	if err != nil || len(all) != 3 {
		t.Fatalf("unexpected fetch: %v err=%v", all, err)
	}
	super, err := s.FetchTransactions(context.Background(), "Super")
	if err != nil || len(super) != 2 {
		t.Fatalf("unexpected filtered fetch: %v err=%v", super, err)
	}
	none, err := s.FetchTransactions(context.Background(), "Viajes")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil snapshot, got %v err=%v", none, err)
	}

	// Callers must not be able to mutate the store through a snapshot.
	all[0].Category = "changed"
	again, _ := s.FetchTransactions(context.Background(), "")
	if again[0].Category != "Super" {
		t.Fatalf("store mutated through returned snapshot")
	}
}

func TestMemoryStoreJSONUploadReplaces(t *testing.T) {
	s := New(seed())
	res, err := s.UploadStatement(context.Background(), source.Statement{
		Filename:    "movs.json",
		ContentType: source.TypeJSON,
		Content:     strings.NewReader(`[{"fecha":"01","detalle":"a","cargos":5,"abonos":0,"categoria":"Viajes"}]`),
	}, "")
	if err != nil || !res.OK || res.Inserted != 1 {
		t.Fatalf("unexpected upload: %+v err=%v", res, err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected snapshot to be replaced, len=%d", s.Len())
	}
}

func TestMemoryStoreRejectsPDF(t *testing.T) {
	s := New(seed())
	for _, st := range []source.Statement{
		{Filename: "cartola.pdf", ContentType: source.TypePDF, Content: strings.NewReader("%PDF")},
		{Filename: "cartola.PDF", ContentType: source.TypeOctetStream, Content: strings.NewReader("%PDF")},
	} {
		_, err := s.UploadStatement(context.Background(), st, "")
		var ue *core.UploadError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UploadError for %s, got %v", st.Filename, err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("rejected upload must not touch the snapshot")
	}
}

func TestMemoryStoreMalformedUpload(t *testing.T) {
	s := New(seed())
	_, err := s.UploadStatement(context.Background(), source.Statement{
		Filename: "x.json", ContentType: source.TypeJSON, Content: strings.NewReader(`{`),
	}, "")
	var ue *core.UploadError
	if !errors.As(err, &ue) || s.Len() != 3 {
		t.Fatalf("expected UploadError and untouched store, got %v len=%d", err, s.Len())
	}
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromDir(dir)
	if err != nil {
		t.Fatalf("missing seed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("missing seed should give empty store, len=%d", s.Len())
	}

	mustWrite := func(content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644); err != nil {
			t.Fatalf("write seed: %v", err)
		}
	}
	mustWrite(`[{"id":1,"cargos":10,"categoria":"Super"},{"id":2,"abonos":3}]`)
	s, err = NewFromDir(dir)
	if err != nil {
		t.Fatalf("seeded store: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("unexpected seeded store len=%d", s.Len())
	}

	mustWrite(`{broken`)
	if _, err := NewFromDir(dir); err == nil {
		t.Fatal("expected error for malformed seed")
	}
}

func TestStatementTypesIncludeJSON(t *testing.T) {
	types := source.AcceptedTypes(New(nil))
	found := false
	for _, ct := range types {
		if ct == source.TypeJSON {
			found = true
		}
	}
	if !found || len(types) != 3 {
		t.Fatalf("unexpected statement types: %v", types)
	}
}

func TestFetchHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(seed()).FetchTransactions(ctx, "")
	var fe *core.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}
