package core

import "errors"

// User-facing messages, kept in the backend's language.
const (
	MsgNoFile       = "Selecciona un archivo PDF primero."
	MsgConnection   = "Error de conexión con el servidor."
	MsgFetchFailed  = "No se pudieron procesar los movimientos."
	MsgUploadFailed = "No se pudo procesar la cartola."
	MsgUploadBusy   = "Ya hay una carga en curso."
	MsgBadFileType  = "Sube un PDF válido"
)

// userMessager is implemented by errors that carry their own user text.
type userMessager interface {
	UserMessage() string
}

// UserMessage maps an error to a message fit for the dashboard or CLI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		ue *UploadError
		fe *FetchError
		um userMessager
	)
	switch {
	case errors.Is(err, ErrUploadBusy):
		return MsgUploadBusy
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &ue):
		if ue.Cause != "" {
			return ue.Cause
		}
		return MsgUploadFailed
	case errors.As(err, &fe):
		if fe.StatusCode == 0 {
			return MsgConnection
		}
		return MsgFetchFailed
	case errors.As(err, &um):
		return um.UserMessage()
	}
	return MsgConnection
}
