package google

import (
	"fmt"
	"strconv"
	"strings"

	"finbot/internal/core"
)

// Header names of the movements sheet.
var (
	headerDate     = []string{"Fecha"}
	headerDetail   = []string{"Detalle", "Descripcion", "Descripción"}
	headerDebit    = []string{"Cargos", "Cargo"}
	headerCredit   = []string{"Abonos", "Abono"}
	headerCategory = []string{"Categoria", "Categoría"}
	headerID       = []string{"ID", "Id"}
)

// parseRows converts a values matrix (as returned by the Sheets API) into a
// snapshot. The first row must be a header naming at least the Cargos and
// Abonos columns. Rows with no detail and no amounts are skipped.
func parseRows(values [][]interface{}) (core.Snapshot, error) {
	if len(values) == 0 {
		return core.Snapshot{}, nil
	}
	headers := toStrings(values[0])
	col := func(names []string) int {
		for _, n := range names {
			if i := indexOf(headers, n); i >= 0 {
				return i
			}
		}
		return -1
	}
	colDate, colDetail := col(headerDate), col(headerDetail)
	colDebit, colCredit := col(headerDebit), col(headerCredit)
	colCategory, colID := col(headerCategory), col(headerID)
	if colDebit == -1 || colCredit == -1 {
		return nil, fmt.Errorf("unexpected movements header: need Cargos and Abonos, got headers=%v", headers)
	}

	out := make(core.Snapshot, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := values[i]
		debit, err := cellAmount(safeGet(row, colDebit))
		if err != nil {
			return nil, fmt.Errorf("row %d cargos: %w", i+1, err)
		}
		credit, err := cellAmount(safeGet(row, colCredit))
		if err != nil {
			return nil, fmt.Errorf("row %d abonos: %w", i+1, err)
		}
		t := core.Transaction{
			ID:          cellString(safeGet(row, colID)),
			Date:        cellString(safeGet(row, colDate)),
			Description: cellString(safeGet(row, colDetail)),
			Debit:       debit,
			Credit:      credit,
			Category:    cellString(safeGet(row, colCategory)),
		}
		if t.Description == "" && t.Debit.IsZero() && t.Credit.IsZero() {
			continue
		}
		if t.ID == "" {
			t.ID = strconv.Itoa(i + 1)
		}
		out = append(out, t)
	}
	return out, nil
}

// cellAmount accepts unformatted numbers and statement-style strings.
func cellAmount(v interface{}) (core.Money, error) {
	switch x := v.(type) {
	case nil:
		return core.Money{}, nil
	case float64:
		return core.MoneyFromFloat(x)
	case string:
		if strings.TrimSpace(x) == "" {
			return core.Money{}, nil
		}
		cents, err := core.ParseAmount(x)
		if err != nil {
			return core.Money{}, fmt.Errorf("%q: %w", x, err)
		}
		return core.Money{Cents: cents}, nil
	}
	return core.Money{}, fmt.Errorf("unsupported cell %T", v)
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(row []interface{}, idx int) interface{} {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}
