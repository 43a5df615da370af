package backend

import (
	"context"
	"fmt"

	"finbot/internal/log"
	"finbot/internal/source/api"
	"finbot/internal/source/google"
	"finbot/internal/source/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	l := f.logger.WithComponent(log.ComponentBackend)

	switch config.Type {
	case APIBackend:
		cli, err := api.New(api.Options{
			BaseURL:       config.APIURL,
			FetchTimeout:  config.FetchTimeout,
			UploadTimeout: config.UploadTimeout,
			Tokens:        config.Tokens,
			Logger:        f.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize API client: %w", err)
		}
		l.InfoContext(ctx, "Initialized API backend", "api_url", config.APIURL)
		return &BackendResult{Source: cli}, nil

	case SheetsBackend:
		src, err := google.New(ctx, google.Options{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleCredentialsJSON,
			CredentialsFile: config.GoogleCredentialsFile,
			Logger:          f.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		l.InfoContext(ctx, "Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
		return &BackendResult{Source: src}, nil

	default:
		dir := config.DataDirectory
		if dir == "" {
			dir = "data"
		}
		store, err := memory.NewFromDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory backend: %w", err)
		}
		l.InfoContext(ctx, "Initialized memory backend", "data_directory", dir, log.FieldCount, store.Len())
		return &BackendResult{Source: store}, nil
	}
}
