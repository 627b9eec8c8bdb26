package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncFileStatus tracks the transfer state of an attachment
type SyncFileStatus string

const (
	SyncFileStatusNew        SyncFileStatus = "NEW"
	SyncFileStatusInProgress SyncFileStatus = "IN_PROGRESS"
	SyncFileStatusDone       SyncFileStatus = "DONE"
	SyncFileStatusError      SyncFileStatus = "ERROR"
)

// SyncFileReferenceRow points at a binary attachment owned by another record
type SyncFileReferenceRow struct {
	ID              string         `json:"id"`
	OwnerTable      TableName      `json:"ownerTable"`
	OwnerRecordID   string         `json:"ownerRecordId"`
	StoreID         *string        `json:"storeId,omitempty"`
	FileName        string         `json:"fileName"`
	MimeType        *string        `json:"mimeType,omitempty"`
	TotalBytes      int64          `json:"totalBytes"`
	Status          SyncFileStatus `json:"status"`
	CreatedDatetime time.Time      `json:"createdDatetime"`
}

func (r *SyncFileReferenceRow) Table() TableName { return TableNameSyncFileRef }
func (r *SyncFileReferenceRow) RecordID() string { return r.ID }

// NewSyncFileReference creates a reference for a file attached to a record
func NewSyncFileReference(ownerTable TableName, ownerRecordID, fileName string, totalBytes int64, storeID *string) (*SyncFileReferenceRow, error) {
	if !ownerTable.IsValid() {
		return nil, ErrUnknownTable
	}
	if strings.TrimSpace(ownerRecordID) == "" {
		return nil, ErrEmptyRecordID
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, ErrEmptyFilename
	}
	if totalBytes <= 0 {
		return nil, ErrInvalidFileSize
	}

	return &SyncFileReferenceRow{
		ID:              uuid.New().String(),
		OwnerTable:      ownerTable,
		OwnerRecordID:   ownerRecordID,
		StoreID:         storeID,
		FileName:        sanitizeFilename(fileName),
		TotalBytes:      totalBytes,
		Status:          SyncFileStatusNew,
		CreatedDatetime: time.Now().UTC().Truncate(time.Second),
	}, nil
}

// StoredPath is the relative location of the file in file storage
func (r *SyncFileReferenceRow) StoredPath() string {
	return string(r.OwnerTable) + "/" + r.OwnerRecordID + "/" + r.ID + "_" + r.FileName
}

// sanitizeFilename removes path components and invalid characters
func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	return replacer.Replace(name)
}

// Errors
type ModelError struct {
	Message string
}

func (e ModelError) Error() string {
	return e.Message
}

var (
	ErrUnknownTable     = ModelError{"unknown table name"}
	ErrEmptyRecordID    = ModelError{"record id cannot be empty"}
	ErrEmptyFilename    = ModelError{"file name cannot be empty"}
	ErrInvalidFileSize  = ModelError{"file size must be positive"}
	ErrFileNotFound     = ModelError{"file not found"}
	ErrFileTooLarge     = ModelError{"file size exceeds maximum allowed"}
	ErrPathTraversal    = ModelError{"invalid path - path traversal detected"}
	ErrRecordNotFound   = ModelError{"record not found"}
	ErrUnsupportedTable = ModelError{"table is not supported for this operation"}
	ErrChecksumMismatch = ModelError{"file content does not match checksum"}
)
