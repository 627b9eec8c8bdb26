package models

import (
	"encoding/json"
	"time"
)

// SyncBufferRow stages a record received from the remote side until it is integrated
type SyncBufferRow struct {
	TableName           string          `json:"tableName"`
	RecordID            string          `json:"recordId"`
	Action              RowAction       `json:"action"`
	Data                json.RawMessage `json:"data"`
	ReceivedDatetime    time.Time       `json:"receivedDatetime"`
	IntegrationDatetime *time.Time      `json:"integrationDatetime,omitempty"`
	IntegrationError    *string         `json:"integrationError,omitempty"`
	SourceSiteID        *int32          `json:"sourceSiteId,omitempty"`
}
