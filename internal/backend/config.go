package backend

import (
	"errors"
	"fmt"
	"time"

	"finbot/internal/config"
	"finbot/internal/source/api"
)

// Config holds what any backend type may need.
type Config struct {
	Type BackendType

	// api
	APIURL        string
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	Tokens        api.TokenSource

	// memory
	DataDirectory string

	// sheets
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

// FromAppConfig converts the application config to backend config. Tokens
// is only consulted by the api backend.
func FromAppConfig(appConfig *config.Config, tokens api.TokenSource) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	return Config{
		Type: backendType,

		APIURL:        appConfig.APIURL,
		FetchTimeout:  appConfig.FetchTimeout,
		UploadTimeout: appConfig.UploadTimeout,
		Tokens:        tokens,

		DataDirectory: appConfig.DataDir,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
	}, nil
}

// Validate checks the fields required by the selected type.
func (c Config) Validate() error {
	switch c.Type {
	case APIBackend:
		if c.APIURL == "" {
			return errors.New("API URL is required for api backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			return errors.New("either GoogleCredentialsFile or GoogleCredentialsJSON must be provided for sheets backend")
		}
	case MemoryBackend:
	default:
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	return nil
}
