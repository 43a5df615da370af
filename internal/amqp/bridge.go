package amqp

import (
	"context"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/reload"
)

// HistoryRecorder stores upload history entries.
type HistoryRecorder interface {
	RecordUpload(ctx context.Context, rec core.UploadRecord) error
}

// ReloadBridge returns a Handler that turns a remote upload into a local
// reload. History is recorded too when recorder is non-nil; a failure to
// record is logged, the reload still happens.
func ReloadBridge(sig *reload.Signal, recorder HistoryRecorder, logger *log.Logger) Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAMQP)
	return func(ctx context.Context, msg *StatementUploadedMessage) error {
		n := sig.Bump()
		logger.InfoContext(ctx, "Remote upload received, reloading",
			log.FieldOrigin, msg.Origin,
			log.FieldFilename, msg.Filename,
			log.FieldReload, n)
		if recorder != nil {
			if err := recorder.RecordUpload(ctx, msg.Record()); err != nil {
				logger.WarnContext(ctx, "Failed to record remote upload", log.FieldError, err.Error())
			}
		}
		return nil
	}
}
