package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// wireTransaction is the backend JSON shape of a movement.
type wireTransaction struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Date     string          `json:"fecha"`
	Detail   string          `json:"detalle"`
	Debit    *float64        `json:"cargos"`
	Credit   *float64        `json:"abonos"`
	Category *string         `json:"categoria"`
}

// UnmarshalJSON decodes {id, fecha, detalle, cargos, abonos, categoria}.
// The id may be a number or a string; null amounts decode as zero.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := decodeID(w.ID)
	if err != nil {
		return err
	}
	*t = Transaction{
		ID:          id,
		Date:        w.Date,
		Description: w.Detail,
	}
	if w.Debit != nil {
		if t.Debit, err = MoneyFromFloat(*w.Debit); err != nil {
			return fmt.Errorf("decode cargos: %w", err)
		}
	}
	if w.Credit != nil {
		if t.Credit, err = MoneyFromFloat(*w.Credit); err != nil {
			return fmt.Errorf("decode abonos: %w", err)
		}
	}
	if w.Category != nil {
		t.Category = *w.Category
	}
	return nil
}

// MarshalJSON encodes the backend shape. Ids in canonical integer form are
// emitted as numbers, anything else as a string.
func (t Transaction) MarshalJSON() ([]byte, error) {
	debit, credit := t.Debit.Float(), t.Credit.Float()
	w := wireTransaction{
		Date:   t.Date,
		Detail: t.Description,
		Debit:  &debit,
		Credit: &credit,
	}
	if t.Category != "" {
		c := t.Category
		w.Category = &c
	}
	if t.ID != "" {
		if n, err := strconv.ParseInt(t.ID, 10, 64); err == nil && strconv.FormatInt(n, 10) == t.ID {
			w.ID = json.RawMessage(t.ID)
		} else {
			raw, err := json.Marshal(t.ID)
			if err != nil {
				return nil, err
			}
			w.ID = raw
		}
	}
	return json.Marshal(w)
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	return n.String(), nil
}

// DecodeSnapshot parses a JSON array of movements. A JSON null decodes as
// an empty snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode movements: %w", err)
	}
	if s == nil {
		s = Snapshot{}
	}
	return s, nil
}
