// Package apperr defines the user-facing error taxonomy.
package apperr

import (
	"errors"
	"fmt"

	"github.com/vitwang05/lexreview/pkg/client"
)

// Kind classifies a failed operation.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindFetch
	KindUpload
	KindProcessing
	KindNotFound
	KindExport
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "AuthError"
	case KindFetch:
		return "FetchError"
	case KindUpload:
		return "UploadError"
	case KindProcessing:
		return "ProcessingError"
	case KindNotFound:
		return "NotFoundError"
	case KindExport:
		return "ExportError"
	default:
		return "Error"
	}
}

var fallbacks = map[Kind]string{
	KindAuth:       "login failed",
	KindFetch:      "could not load data from the server",
	KindUpload:     "upload failed",
	KindProcessing: "processing failed",
	KindNotFound:   "not found",
	KindExport:     "export failed",
}

// Error is a failed operation surfaced to the user.
type Error struct {
	Kind Kind
	// Op names the operation, e.g. "list files".
	Op string
	// Subject is the file path or result name involved, if any.
	Subject string
	// Detail is the backend's structured message, if it sent one.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Subject != "" {
		msg = e.Subject + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the single line shown to the user. The backend detail wins over
// the generic fallback for the kind.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if f, ok := fallbacks[e.Kind]; ok {
		return f
	}
	return "unexpected error"
}

// New builds an error that has no underlying cause.
func New(kind Kind, op, subject, detail string) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Detail: detail}
}

// Wrap classifies err. A missing session or a 401/403 becomes KindAuth;
// anything else, a 404 included, takes kind. An err that is already an *Error
// is returned unchanged. Wrap(nil) is nil.
func Wrap(kind Kind, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	if client.IsUnauthorized(err) {
		kind = KindAuth
	}
	return wrap(kind, op, subject, err)
}

// WrapNotFound is Wrap for calls that name a result set: a 404 means the set
// is absent and becomes KindNotFound.
func WrapNotFound(kind Kind, op, subject string, err error) error {
	if client.IsNotFound(err) {
		kind = KindNotFound
	}
	return Wrap(kind, op, subject, err)
}

// WrapAs classifies err as kind with no reclassification. A rejected session
// keeps kind and carries the rejection as its detail.
func WrapAs(kind Kind, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(kind, op, subject, err)
}

func wrap(kind Kind, op, subject string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	detail := client.Detail(err)
	if detail == "" && client.IsUnauthorized(err) {
		detail = unauthorized
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Subject: subject,
		Detail:  detail,
		Err:     err,
	}
}

const unauthorized = "not authorized, log in again"

// Summary is Message prefixed with the subject for upload failures, so the
// line names the file that failed.
func Summary(err error) string {
	if ae, ok := As(err); ok && ae.Kind == KindUpload && ae.Subject != "" {
		return ae.Subject + ": " + ae.Message()
	}
	return Message(err)
}

// As returns err as an *Error if it is one.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// Message returns the user-facing line for any error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Message()
	}
	return err.Error()
}
