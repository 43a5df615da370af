// Package upload hands bank statements to the extraction backend and, on
// success, announces that the data changed.
package upload

import (
	"context"
	"errors"
	"io"
	"mime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/reload"
	"finbot/internal/source"
)

// Recorder keeps the local history of accepted uploads.
type Recorder interface {
	RecordUpload(ctx context.Context, rec core.UploadRecord) error
}

// Notifier tells other processes that an upload happened.
type Notifier interface {
	NotifyUploaded(ctx context.Context, rec core.UploadRecord) error
}

// Options holds the optional collaborators of a Trigger.
type Options struct {
	Recorder Recorder
	Notifier Notifier
	Logger   *log.Logger
	// Origin identifies this process in history and broadcast events.
	Origin string
	Now    func() time.Time
}

// Trigger runs at most one upload at a time.
type Trigger struct {
	uploader source.StatementUploader
	signal   *reload.Signal
	accepted []string
	recorder Recorder
	notifier Notifier
	logger   *log.Logger
	origin   string
	now      func() time.Time

	busy atomic.Bool
}

func New(uploader source.StatementUploader, signal *reload.Signal, opts Options) *Trigger {
	t := &Trigger{
		uploader: uploader,
		signal:   signal,
		accepted: source.AcceptedTypes(uploader),
		recorder: opts.Recorder,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		origin:   opts.Origin,
		now:      opts.Now,
	}
	if t.logger == nil {
		t.logger = log.Discard()
	}
	t.logger = t.logger.WithComponent(log.ComponentUpload)
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Busy reports whether an upload is in flight.
func (t *Trigger) Busy() bool { return t.busy.Load() }

// Accepted returns the media types the backend takes.
func (t *Trigger) Accepted() []string {
	return append([]string(nil), t.accepted...)
}

// Upload validates the statement, sends it and bumps the reload signal on
// success. A call made while another is running fails with
// core.ErrUploadBusy without waiting. Failures never touch the signal.
func (t *Trigger) Upload(ctx context.Context, st source.Statement, passphrase string) (core.UploadResult, error) {
	if err := t.validate(st); err != nil {
		t.logger.InfoContext(ctx, "Statement rejected before upload",
			log.FieldFilename, st.Filename, log.FieldErrorType, log.ErrorTypeValidation, log.FieldError, err.Error())
		return core.UploadResult{}, err
	}
	if !t.busy.CompareAndSwap(false, true) {
		t.logger.WarnContext(ctx, "Upload rejected, another one is running",
			log.FieldFilename, st.Filename, log.FieldErrorType, log.ErrorTypeBusy)
		return core.UploadResult{}, core.ErrUploadBusy
	}
	defer t.busy.Store(false)

	counter := &countingReader{r: st.Content}
	st.Content = counter
	start := t.now()

	res, err := t.uploader.UploadStatement(ctx, st, passphrase)
	if err == nil && !res.OK {
		err = &core.UploadError{Cause: core.MsgUploadFailed}
	}
	if err != nil {
		var ue *core.UploadError
		if !errors.As(err, &ue) {
			err = &core.UploadError{Cause: core.MsgConnection, Err: err}
		}
		t.logger.ErrorContext(ctx, "Statement upload failed", log.NewFields().
			WithOperation(log.OpUpload).
			WithStatement(st.Filename, counter.n).
			WithError(err).ToSlice()...)
		return core.UploadResult{}, err
	}

	res.Reload = t.signal.Bump()
	rec := core.UploadRecord{
		ID:             uuid.NewString(),
		Filename:       st.Filename,
		SizeBytes:      counter.n,
		Inserted:       res.Inserted,
		OpeningBalance: res.OpeningBalance,
		ClosingBalance: res.ClosingBalance,
		Reload:         res.Reload,
		Origin:         t.origin,
		UploadedAt:     t.now().UTC(),
	}
	fields := log.NewFields().WithOperation(log.OpUpload).WithStatement(st.Filename, counter.n)
	fields[log.FieldInserted] = res.Inserted
	fields[log.FieldReload] = res.Reload
	fields[log.FieldDuration] = t.now().Sub(start).Milliseconds()
	t.logger.InfoContext(ctx, "Statement uploaded", fields.ToSlice()...)

	// History and broadcast are best effort; the backend already holds the data.
	if t.recorder != nil {
		if err := t.recorder.RecordUpload(ctx, rec); err != nil {
			t.logger.WarnContext(ctx, "Failed to record upload history", log.FieldError, err.Error())
		}
	}
	if t.notifier != nil {
		if err := t.notifier.NotifyUploaded(ctx, rec); err != nil {
			t.logger.WarnContext(ctx, "Failed to broadcast upload", log.FieldError, err.Error())
		}
	}
	return res, nil
}

func (t *Trigger) validate(st source.Statement) error {
	if st.Content == nil || strings.TrimSpace(st.Filename) == "" {
		return &core.ValidationError{Field: "file", Message: core.MsgNoFile}
	}
	if st.ContentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(st.ContentType)
	if err != nil {
		return &core.ValidationError{Field: "file", Message: core.MsgBadFileType}
	}
	for _, ok := range t.accepted {
		if mediaType == ok {
			return nil
		}
	}
	return &core.ValidationError{Field: "file", Message: core.MsgBadFileType}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
