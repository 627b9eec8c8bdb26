package syncapi

import (
	"encoding/json"

	"github.com/supplysync/server/internal/models"
)

const (
	// Version is the protocol version this build speaks
	Version = 7
	// MinSupportedVersion is the oldest client version the server accepts
	MinSupportedVersion = 6

	HeaderSyncVersion = "X-Sync-Version"
	BasePath          = "/sync/v7"
)

// Scope splits pulls into central data (names, stores) and data owned by
// other sites' stores
type Scope string

const (
	ScopeCentral Scope = "central"
	ScopeRemote  Scope = "remote"
)

// Envelope wraps every response body: exactly one of Data and Error is set
type Envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the structured error a server returns
type ErrorBody struct {
	Code    ErrorKind       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// VersionMismatch is the data of a version_mismatch error
type VersionMismatch struct {
	MinVersion      int `json:"min_version"`
	MaxVersion      int `json:"max_version"`
	ReceivedVersion int `json:"received_version"`
}

// Record is one change on the wire, in either direction
type Record struct {
	Cursor    int64            `json:"cursor"`
	TableName string           `json:"table_name"`
	RecordID  string           `json:"record_id"`
	Action    models.RowAction `json:"action"`
	StoreID   *string          `json:"store_id,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

// PullRequest asks for the next batch after Cursor
type PullRequest struct {
	Cursor    int64 `json:"cursor"`
	BatchSize int   `json:"batch_size"`
	Scope     Scope `json:"scope"`
}

// PullBatch is one page of a pull. EndCursor is where the next pull starts.
type PullBatch struct {
	Records      []Record `json:"records"`
	EndCursor    int64    `json:"end_cursor"`
	TotalRecords int64    `json:"total_records"`
	IsLastBatch  bool     `json:"is_last_batch"`
}

type PushRequest struct {
	Records []Record `json:"records"`
}

// RecordResult is the server's verdict on one pushed record
type RecordResult struct {
	Cursor   int64  `json:"cursor"`
	RecordID string `json:"record_id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

type PushResponse struct {
	Results []RecordResult `json:"results"`
}

type AcknowledgeRequest struct {
	Scope  Scope `json:"scope"`
	Cursor int64 `json:"cursor"`
}

// SiteStatus describes the calling site as the central server sees it
type SiteStatus struct {
	SiteID        int32 `json:"site_id"`
	CentralSiteID int32 `json:"central_site_id"`
	IsIntegrating bool  `json:"is_integrating"`
}

// FileUpload describes the reference a file upload belongs to
type FileUpload struct {
	ReferenceID string
	FileName    string
}
