package syncapi

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a sync API failure
type ErrorKind string

const (
	KindConnection            ErrorKind = "connection"
	KindAuthentication        ErrorKind = "authentication"
	KindServer                ErrorKind = "server"
	KindVersionMismatch       ErrorKind = "version_mismatch"
	KindIntegrationInProgress ErrorKind = "integration_in_progress"
	KindFileNotFound          ErrorKind = "file_not_found"
	KindParse                 ErrorKind = "parse"
)

// Error is returned by every Client method that fails
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Body       *ErrorBody
	Version    *VersionMismatch
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sync api %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	switch {
	case e.Version != nil:
		msg += fmt.Sprintf(": server accepts versions %d-%d, got %d",
			e.Version.MinVersion, e.Version.MaxVersion, e.Version.ReceivedVersion)
	case e.Body != nil && e.Body.Message != "":
		msg += ": " + e.Body.Message
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the next sync cycle may succeed without intervention
func (e *Error) Retryable() bool {
	return e.Kind == KindConnection || e.Kind == KindIntegrationInProgress
}

// KindOf extracts the kind of a sync API error anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a transient sync API error
func IsRetryable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
