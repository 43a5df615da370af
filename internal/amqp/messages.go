package amqp

import (
	"encoding/json"
	"time"

	"finbot/internal/core"
)

// RoutingKey is the routing key of upload events.
const RoutingKey = "statement.uploaded"

// StatementUploadedMessage announces that a statement was ingested by some
// dashboard instance. Receivers bump their reload signal; the movements
// themselves are always re-fetched from the backend.
type StatementUploadedMessage struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Inserted  int       `json:"inserted"`
	Opening   *int64    `json:"saldo_inicial_cents,omitempty"`
	Closing   *int64    `json:"saldo_final_cents,omitempty"`
	Reload    uint64    `json:"reload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatementUploadedMessage builds the event for an upload record.
func NewStatementUploadedMessage(rec core.UploadRecord) *StatementUploadedMessage {
	ts := rec.UploadedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := &StatementUploadedMessage{
		ID:        rec.ID,
		Origin:    rec.Origin,
		Filename:  rec.Filename,
		SizeBytes: rec.SizeBytes,
		Inserted:  rec.Inserted,
		Reload:    rec.Reload,
		Timestamp: ts,
	}
	if rec.OpeningBalance != nil {
		c := rec.OpeningBalance.Cents
		msg.Opening = &c
	}
	if rec.ClosingBalance != nil {
		c := rec.ClosingBalance.Cents
		msg.Closing = &c
	}
	return msg
}

// Record converts the event back into a history entry.
func (m *StatementUploadedMessage) Record() core.UploadRecord {
	rec := core.UploadRecord{
		ID:         m.ID,
		Filename:   m.Filename,
		SizeBytes:  m.SizeBytes,
		Inserted:   m.Inserted,
		Reload:     m.Reload,
		Origin:     m.Origin,
		UploadedAt: m.Timestamp,
	}
	if m.Opening != nil {
		rec.OpeningBalance = &core.Money{Cents: *m.Opening}
	}
	if m.Closing != nil {
		rec.ClosingBalance = &core.Money{Cents: *m.Closing}
	}
	return rec
}

// ToJSON converts the message to JSON bytes
func (m *StatementUploadedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatementUploadedMessageFromJSON parses an event body.
func StatementUploadedMessageFromJSON(data []byte) (*StatementUploadedMessage, error) {
	var msg StatementUploadedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
