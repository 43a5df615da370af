package core

import (
	"errors"
	"fmt"
)

// ErrUploadBusy is returned when an upload is already in flight on the
// same trigger.
var ErrUploadBusy = errors.New("upload already in progress")

// FetchError means no snapshot is available. It must never be rendered as
// an empty list of movements.
type FetchError struct {
	Filter     string
	StatusCode int    // 0 when the request never got a response
	Detail     string // backend "detail" message, if any
	Err        error
}

func (e *FetchError) Error() string {
	msg := "fetch movements"
	if e.Filter != "" {
		msg += fmt.Sprintf(" (categoria=%q)", e.Filter)
	}
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: status %d: %s", msg, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg + ": failed"
}

func (e *FetchError) Unwrap() error { return e.Err }

// UploadError describes a statement upload the backend did not accept.
type UploadError struct {
	StatusCode int
	// Cause is a human-readable message suitable for the user.
	Cause string
	Err   error
}

func (e *UploadError) Error() string {
	msg := "upload statement"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Cause != "" {
		msg += ": " + e.Cause
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *UploadError) Unwrap() error { return e.Err }

// ValidationError is a local precondition failure; nothing was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
