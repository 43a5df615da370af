// Package google reads movements from a Google Sheet. It is a read-only
// source: statements cannot be uploaded through it.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/source"
)

// DefaultSheetName is the tab read when none is configured.
const DefaultSheetName = "Movimientos"

// Options configures a Source. Credentials are taken from CredentialsJSON,
// then CredentialsFile. Endpoint is only set by tests.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Endpoint        string
	Logger          *log.Logger
}

type Source struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ source.Source = (*Source)(nil)

// New creates a Sheets-backed source with read-only scope.
func New(ctx context.Context, opts Options) (*Source, error) {
	id := strings.TrimSpace(opts.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	name := strings.TrimSpace(opts.SheetName)
	if name == "" {
		name = DefaultSheetName
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	clientOpts, err := clientOptions(opts)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets source ready", "spreadsheet_id", id, "sheet", name)
	return &Source{svc: svc, spreadsheetID: id, sheetName: name, logger: logger}, nil
}

func clientOptions(opts Options) ([]goption.ClientOption, error) {
	if opts.Endpoint != "" {
		return []goption.ClientOption{
			goption.WithEndpoint(opts.Endpoint),
			goption.WithoutAuthentication(),
		}, nil
	}
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE)")
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
	}, nil
}

// FetchTransactions reads the whole sheet and keeps the rows whose
// category equals the filter when one is set.
func (s *Source) FetchTransactions(ctx context.Context, categoryFilter string) (core.Snapshot, error) {
	rng := fmt.Sprintf("%s!A:F", s.sheetName)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, &core.FetchError{Filter: categoryFilter, Err: fmt.Errorf("read %s: %w", rng, err)}
	}
	snap, err := parseRows(resp.Values)
	if err != nil {
		return nil, &core.FetchError{Filter: categoryFilter, Err: err}
	}
	if categoryFilter == "" {
		return snap, nil
	}
	out := make(core.Snapshot, 0, len(snap))
	for _, t := range snap {
		if t.Category == categoryFilter {
			out = append(out, t)
		}
	}
	return out, nil
}

// UploadStatement always fails: the sheet is maintained by hand.
func (s *Source) UploadStatement(context.Context, source.Statement, string) (core.UploadResult, error) {
	return core.UploadResult{}, &core.UploadError{
		StatusCode: 405,
		Cause:      "La hoja de cálculo es de sólo lectura.",
	}
}
