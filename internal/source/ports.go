package source

import (
	"context"
	"io"

	"finbot/internal/core"
)

// Media types accepted for statement uploads by default.
const (
	TypePDF         = "application/pdf"
	TypeOctetStream = "application/octet-stream"
	TypeJSON        = "application/json"
)

// Statement is a bank statement file to be ingested.
type Statement struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// Ports for outbound adapters.
type (
	// TransactionFetcher returns the current snapshot of movements, filtered
	// by category on the source side when categoryFilter is non-empty.
	TransactionFetcher interface {
		FetchTransactions(ctx context.Context, categoryFilter string) (core.Snapshot, error)
	}

	// StatementUploader hands a statement to the extraction backend.
	StatementUploader interface {
		UploadStatement(ctx context.Context, st Statement, passphrase string) (core.UploadResult, error)
	}

	// StatementTypes is implemented by uploaders that accept media types
	// beyond the default PDF ones.
	StatementTypes interface {
		StatementTypes() []string
	}

	// Source is a full backend: it serves snapshots and accepts uploads.
	Source interface {
		TransactionFetcher
		StatementUploader
	}
)

// DefaultStatementTypes are accepted by every uploader.
var DefaultStatementTypes = []string{TypePDF, TypeOctetStream}

// AcceptedTypes returns the media types u accepts for uploads.
func AcceptedTypes(u StatementUploader) []string {
	if st, ok := u.(StatementTypes); ok {
		return st.StatementTypes()
	}
	return DefaultStatementTypes
}
