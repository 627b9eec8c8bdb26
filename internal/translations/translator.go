package translations

import (
	"encoding/json"
	"fmt"

	"github.com/supplysync/server/internal/models"
)

// IntegrationRecord is a translated inbound change, ready to be applied
type IntegrationRecord struct {
	Action    models.RowAction
	TableName models.TableName
	RecordID  string
	// Row is nil for deletes
	Row models.SyncRow
}

// PushRecord is an outbound change in the remote server's wire shape
type PushRecord struct {
	Cursor    int64            `json:"-"`
	TableName string           `json:"table_name"`
	RecordID  string           `json:"record_id"`
	Action    models.RowAction `json:"action"`
	StoreID   *string          `json:"store_id,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

// Translator converts one table between the local model and the legacy wire
// shape. Each method returns nil, nil when the input belongs to another table.
type Translator interface {
	TableName() models.TableName
	LegacyTableName() string
	// PullDependencies lists the tables whose records must be integrated first
	PullDependencies() []models.TableName

	TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error)
	TryTranslateFromDelete(row *models.SyncBufferRow) (*IntegrationRecord, error)
	TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error)
	TryTranslateToDelete(changelog *models.ChangelogRow) (*PushRecord, error)
}

// Error is a translation failure for a single record
type Error struct {
	TableName string
	RecordID  string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translate %s %s: %v", e.TableName, e.RecordID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// base implements the parts every table shares
type base struct {
	table  models.TableName
	legacy string
	deps   []models.TableName
}

func (b base) TableName() models.TableName         { return b.table }
func (b base) LegacyTableName() string              { return b.legacy }
func (b base) PullDependencies() []models.TableName { return b.deps }

func (b base) TryTranslateFromDelete(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	if row.TableName != b.legacy {
		return nil, nil
	}
	return &IntegrationRecord{
		Action:    models.RowActionDelete,
		TableName: b.table,
		RecordID:  row.RecordID,
	}, nil
}

func (b base) TryTranslateToDelete(changelog *models.ChangelogRow) (*PushRecord, error) {
	if changelog.TableName != b.table {
		return nil, nil
	}
	return &PushRecord{
		Cursor:    changelog.Cursor,
		TableName: b.legacy,
		RecordID:  changelog.RecordID,
		Action:    models.RowActionDelete,
		StoreID:   changelog.StoreID,
		Data:      json.RawMessage(`{}`),
	}, nil
}

// decode unmarshals the buffered payload of an upsert addressed to this table
func (b base) decode(row *models.SyncBufferRow, v interface{}) (bool, error) {
	if row.TableName != b.legacy {
		return false, nil
	}
	if err := json.Unmarshal(row.Data, v); err != nil {
		return true, b.fail(row.RecordID, err)
	}
	return true, nil
}

func (b base) upsert(row models.SyncRow) *IntegrationRecord {
	return &IntegrationRecord{
		Action:    models.RowActionUpsert,
		TableName: b.table,
		RecordID:  row.RecordID(),
		Row:       row,
	}
}

func (b base) push(changelog *models.ChangelogRow, legacy interface{}) (*PushRecord, error) {
	data, err := json.Marshal(legacy)
	if err != nil {
		return nil, b.fail(changelog.RecordID, err)
	}
	return &PushRecord{
		Cursor:    changelog.Cursor,
		TableName: b.legacy,
		RecordID:  changelog.RecordID,
		Action:    models.RowActionUpsert,
		StoreID:   changelog.StoreID,
		Data:      data,
	}, nil
}

func (b base) fail(recordID string, err error) error {
	return &Error{TableName: b.legacy, RecordID: recordID, Err: err}
}

func (b base) failf(recordID, format string, args ...interface{}) error {
	return b.fail(recordID, fmt.Errorf(format, args...))
}
