package syncer

import (
	"errors"
	"fmt"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/translations"
)

// PushRejectedError stops a push at the first record the remote did not accept.
// The push cursor is left just before Cursor.
type PushRejectedError struct {
	Cursor    int64
	TableName string
	RecordID  string
	Reason    string
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push rejected at cursor %d (%s %s): %s", e.Cursor, e.TableName, e.RecordID, e.Reason)
}

// IntegrationError is a record that could not be translated or applied.
// The whole integration transaction was rolled back.
type IntegrationError struct {
	TableName string
	RecordID  string
	Err       error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integrate %s %s: %v", e.TableName, e.RecordID, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// ErrorCodeOf classifies the terminal error of a sync cycle
func ErrorCodeOf(err error) models.SyncErrorCode {
	if err == nil {
		return ""
	}

	var rejected *PushRejectedError
	if errors.As(err, &rejected) {
		return models.SyncErrorPushRejected
	}

	var integration *IntegrationError
	var translation *translations.Error
	if errors.As(err, &integration) || errors.As(err, &translation) {
		return models.SyncErrorIntegration
	}

	if kind, ok := syncapi.KindOf(err); ok {
		switch kind {
		case syncapi.KindConnection:
			return models.SyncErrorConnection
		case syncapi.KindAuthentication:
			return models.SyncErrorAuthentication
		case syncapi.KindVersionMismatch:
			return models.SyncErrorVersionMismatch
		case syncapi.KindIntegrationInProgress:
			return models.SyncErrorIntegrationInProgress
		default:
			return models.SyncErrorServer
		}
	}

	return models.SyncErrorUnknown
}
