package google

import (
	"testing"
)

func TestParseRows_StatementSheet(t *testing.T) {
	values := [][]interface{}{
		{"Fecha", "Detalle", "Cargos", "Abonos", "Categoría"},
		{"01/03", "LIDER EXPRESS", 15990.0, 0.0, "Supermercado"},
		{"02/03", "TRANSFERENCIA", "", "$1.200.000", ""},
		{"", "", "", ""},
		{"03/03", "UBER", "4.500", nil, "Transporte"},
		{"04/03", "REVERSO", -1000.0},
	}
	snap, err := parseRows(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(snap) != 4 {
		t.Fatalf("expected 4 rows (blank skipped), got %d", len(snap))
	}
	if snap[0].Debit.Cents != 1599000 || snap[0].Category != "Supermercado" {
		t.Fatalf("unexpected first row: %+v", snap[0])
	}
	if snap[1].Credit.Cents != 120000000 || snap[1].Debit.Cents != 0 {
		t.Fatalf("unexpected credit row: %+v", snap[1])
	}
	if snap[2].Debit.Cents != 450000 {
		t.Fatalf("string amount: got %d", snap[2].Debit.Cents)
	}
	// Negative amounts are kept raw; clamping happens at aggregation.
	if snap[3].Debit.Cents != -100000 || snap[3].Category != "" {
		t.Fatalf("unexpected short row: %+v", snap[3])
	}
	if snap[0].ID != "2" || snap[3].ID != "6" {
		t.Fatalf("expected row-number ids, got %q and %q", snap[0].ID, snap[3].ID)
	}
}

func TestParseRows_HeaderErrors(t *testing.T) {
	if _, err := parseRows([][]interface{}{{"Fecha", "Detalle", "Monto"}}); err == nil {
		t.Fatal("expected error for missing Cargos/Abonos")
	}
	snap, err := parseRows(nil)
	if err != nil || snap == nil || len(snap) != 0 {
		t.Fatalf("empty sheet should be an empty snapshot, got %v err=%v", snap, err)
	}
}

func TestParseRows_BadAmount(t *testing.T) {
	values := [][]interface{}{
		{"Fecha", "Detalle", "Cargos", "Abonos"},
		{"01/03", "X", "mucho", 0.0},
	}
	if _, err := parseRows(values); err == nil {
		t.Fatal("expected error for unparseable amount")
	}
}

func TestParseRows_IDColumn(t *testing.T) {
	values := [][]interface{}{
		{"ID", "Cargos", "Abonos"},
		{42.0, 1.5, 0.0},
	}
	snap, err := parseRows(values)
	if err != nil || len(snap) != 1 {
		t.Fatalf("unexpected: %v err=%v", snap, err)
	}
	if snap[0].ID != "42" || snap[0].Debit.Cents != 150 {
		t.Fatalf("unexpected row: %+v", snap[0])
	}
}
