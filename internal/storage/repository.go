// Package storage keeps the small amount of state the dashboard owns: the
// backend bearer token and the history of accepted uploads. Movements
// themselves are never stored here.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finbot/internal/core"
	"finbot/internal/log"

	_ "modernc.org/sqlite"
)

// TokenKey is the fixed kv key holding the bearer token.
const TokenKey = "token"

// TokenStore persists the backend bearer token. An empty token means
// logged out.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

var _ TokenStore = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the server and background work.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("SQLite ready", log.FieldOperation, log.OpMigrate, "path", dbPath)
	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Token returns the stored bearer token, or "" when logged out. It makes the
// repository usable as the API client's token source.
func (r *SQLiteRepository) Token(ctx context.Context) (string, error) {
	tok, err := r.queries.GetValue(ctx, TokenKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return tok, nil
}

// SaveToken stores the bearer token, replacing any previous one.
func (r *SQLiteRepository) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return r.DeleteToken(ctx)
	}
	err := r.queries.SetValue(ctx, SetValueParams{
		Key:       TokenKey,
		Value:     token,
		UpdatedAt: r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// DeleteToken forgets the bearer token. Deleting a missing token is not an error.
func (r *SQLiteRepository) DeleteToken(ctx context.Context) error {
	if err := r.queries.DeleteValue(ctx, TokenKey); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// RecordUpload appends an upload to the local history. Recording the same
// ID twice keeps the first entry.
func (r *SQLiteRepository) RecordUpload(ctx context.Context, rec core.UploadRecord) error {
	at := rec.UploadedAt
	if at.IsZero() {
		at = r.now()
	}
	err := r.queries.CreateUpload(ctx, Upload{
		ID:                  rec.ID,
		Filename:            rec.Filename,
		SizeBytes:           rec.SizeBytes,
		Inserted:            int64(rec.Inserted),
		OpeningBalanceCents: nullMoney(rec.OpeningBalance),
		ClosingBalanceCents: nullMoney(rec.ClosingBalance),
		Reload:              int64(rec.Reload),
		Origin:              rec.Origin,
		UploadedAt:          at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	r.logger.DebugContext(ctx, "Upload recorded",
		log.FieldFilename, rec.Filename,
		log.FieldInserted, rec.Inserted,
		log.FieldOrigin, rec.Origin)
	return nil
}

// RecentUploads returns up to limit uploads, newest first.
func (r *SQLiteRepository) RecentUploads(ctx context.Context, limit int) ([]core.UploadRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.queries.ListUploads(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	out := make([]core.UploadRecord, 0, len(rows))
	for _, row := range rows {
		at, err := time.Parse(time.RFC3339Nano, row.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("upload %s: parse time: %w", row.ID, err)
		}
		out = append(out, core.UploadRecord{
			ID:             row.ID,
			Filename:       row.Filename,
			SizeBytes:      row.SizeBytes,
			Inserted:       int(row.Inserted),
			OpeningBalance: moneyFromNull(row.OpeningBalanceCents),
			ClosingBalance: moneyFromNull(row.ClosingBalanceCents),
			Reload:         uint64(row.Reload),
			Origin:         row.Origin,
			UploadedAt:     at,
		})
	}
	return out, nil
}

// LastUpload returns the newest upload, or nil when there is none.
func (r *SQLiteRepository) LastUpload(ctx context.Context) (*core.UploadRecord, error) {
	recs, err := r.RecentUploads(ctx, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func nullMoney(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func moneyFromNull(n sql.NullInt64) *core.Money {
	if !n.Valid {
		return nil
	}
	return &core.Money{Cents: n.Int64}
}
