package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Upload is a row of the uploads table.
type Upload struct {
	ID                  string
	Filename            string
	SizeBytes           int64
	Inserted            int64
	OpeningBalanceCents sql.NullInt64
	ClosingBalanceCents sql.NullInt64
	Reload              int64
	Origin              string
	UploadedAt          string
}

const getValue = `SELECT value FROM kv WHERE key = ?`

func (q *Queries) GetValue(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getValue, key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const setValue = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

type SetValueParams struct {
	Key       string
	Value     string
	UpdatedAt string
}

func (q *Queries) SetValue(ctx context.Context, arg SetValueParams) error {
	_, err := q.db.ExecContext(ctx, setValue, arg.Key, arg.Value, arg.UpdatedAt)
	return err
}

const deleteValue = `DELETE FROM kv WHERE key = ?`

func (q *Queries) DeleteValue(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteValue, key)
	return err
}

const createUpload = `INSERT INTO uploads (
    id, filename, size_bytes, inserted, opening_balance_cents,
    closing_balance_cents, reload, origin, uploaded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`

func (q *Queries) CreateUpload(ctx context.Context, arg Upload) error {
	_, err := q.db.ExecContext(ctx, createUpload,
		arg.ID,
		arg.Filename,
		arg.SizeBytes,
		arg.Inserted,
		arg.OpeningBalanceCents,
		arg.ClosingBalanceCents,
		arg.Reload,
		arg.Origin,
		arg.UploadedAt,
	)
	return err
}

const listUploads = `SELECT id, filename, size_bytes, inserted, opening_balance_cents,
    closing_balance_cents, reload, origin, uploaded_at
FROM uploads
ORDER BY uploaded_at DESC, rowid DESC
LIMIT ?`

func (q *Queries) ListUploads(ctx context.Context, limit int64) ([]Upload, error) {
	rows, err := q.db.QueryContext(ctx, listUploads, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Upload
	for rows.Next() {
		var i Upload
		if err := rows.Scan(
			&i.ID,
			&i.Filename,
			&i.SizeBytes,
			&i.Inserted,
			&i.OpeningBalanceCents,
			&i.ClosingBalanceCents,
			&i.Reload,
			&i.Origin,
			&i.UploadedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
