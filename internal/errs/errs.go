// Package errs defines common error variables used across the application.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	// KindInvalidInput is a malformed URL or a missing field.
	KindInvalidInput Kind = "invalid_input"
	// KindResourceUnavailable is a private, deleted or restricted video.
	KindResourceUnavailable Kind = "resource_unavailable"
	// KindStreamNotFound is a requested variant that is no longer resolvable.
	KindStreamNotFound Kind = "stream_not_found"
	// KindTransferFailure is an I/O or network failure mid-download.
	KindTransferFailure Kind = "transfer_failure"
	// KindInternal is anything unexpected.
	KindInternal Kind = "internal_error"
)

// Error is a classified error carrying a user-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}

	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}

	if err == nil {
		return ""
	}

	return err.Error()
}

var (
	// ErrInvalidRequestBody indicates that the request body is invalid or cannot be parsed.
	ErrInvalidRequestBody = errors.New("invalid request body")
)

// Valid request errors.
var (
	// ErrInvalidURL indicates that the URL field in the request is invalid.
	ErrInvalidURL = errors.New("invalid url field")
	// ErrInvalidMediaKind indicates that the media kind is neither video nor audio.
	ErrInvalidMediaKind = errors.New("invalid media kind")
	// ErrInvalidFilename indicates a filename that escapes the storage directory.
	ErrInvalidFilename = errors.New("invalid filename")
)

// Progress registry errors.
var (
	// ErrRecordNotFound indicates that there is no progress record for the key.
	ErrRecordNotFound = errors.New("progress record not found")
	// ErrTerminal indicates that the record already reached completed or error.
	ErrTerminal = errors.New("progress record is terminal")
	// ErrInvalidTransition indicates a backward status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Provider errors.
var (
	// ErrVideoUnavailable indicates that the video is private, deleted or restricted.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrStreamNotFound indicates that the requested variant does not exist.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrProviderNotFound indicates that no provider is registered under the name.
	ErrProviderNotFound = errors.New("no suitable provider found")
	// ErrUnexpectedStatus indicates a non-2xx response from the media host.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// File store errors.
var (
	// ErrFileNotFound indicates that the file is not in the storage directory.
	ErrFileNotFound = errors.New("file not found")
)

// Proxy errors.
var (
	// ErrNoProxiesAvailable indicates that no proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)
