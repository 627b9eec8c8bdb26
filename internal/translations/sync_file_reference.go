package translations

import (
	"github.com/supplysync/server/internal/models"
)

const LegacySyncFileReferenceTable = "sync_file_reference"

// LegacySyncFileReferenceRow only exists on v7 servers so it keeps the local
// shape. Transfer status is local state and is not sent.
type LegacySyncFileReferenceRow struct {
	ID              string         `json:"id"`
	TableName       string         `json:"table_name"`
	RecordID        string         `json:"record_id"`
	StoreID         LegacyString   `json:"store_id"`
	FileName        string         `json:"file_name"`
	MimeType        LegacyString   `json:"mime_type"`
	TotalBytes      int64          `json:"total_bytes"`
	CreatedDatetime LegacyDateTime `json:"created_datetime"`
}

type syncFileReferenceTranslator struct{ base }

func NewSyncFileReferenceTranslator() Translator {
	return syncFileReferenceTranslator{base{
		table:  models.TableNameSyncFileRef,
		legacy: LegacySyncFileReferenceTable,
		deps: []models.TableName{
			models.TableNameStore,
			models.TableNameStocktake,
			models.TableNameInvoice,
			models.TableNameRequisition,
		},
	}}
}

func (t syncFileReferenceTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacySyncFileReferenceRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	owner := models.TableName(legacy.TableName)
	if !owner.IsValid() {
		return nil, t.fail(row.RecordID, models.ErrUnknownTable)
	}
	if !legacy.CreatedDatetime.Valid {
		return nil, t.failf(row.RecordID, "missing created datetime")
	}

	return t.upsert(&models.SyncFileReferenceRow{
		ID:              legacy.ID,
		OwnerTable:      owner,
		OwnerRecordID:   legacy.RecordID,
		StoreID:         legacy.StoreID.Ptr(),
		FileName:        legacy.FileName,
		MimeType:        legacy.MimeType.Ptr(),
		TotalBytes:      legacy.TotalBytes,
		Status:          models.SyncFileStatusNew,
		CreatedDatetime: legacy.CreatedDatetime.Time,
	}), nil
}

func (t syncFileReferenceTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	ref, ok := row.(*models.SyncFileReferenceRow)
	if !ok {
		return nil, nil
	}

	return t.push(changelog, LegacySyncFileReferenceRow{
		ID:              ref.ID,
		TableName:       string(ref.OwnerTable),
		RecordID:        ref.OwnerRecordID,
		StoreID:         NewLegacyString(ref.StoreID),
		FileName:        ref.FileName,
		MimeType:        NewLegacyString(ref.MimeType),
		TotalBytes:      ref.TotalBytes,
		CreatedDatetime: NewLegacyDateTime(&ref.CreatedDatetime),
	})
}
