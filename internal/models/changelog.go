package models

import "time"

// TableName identifies the record type a changelog entry refers to
type TableName string

const (
	TableNameName          TableName = "name"
	TableNameStore         TableName = "store"
	TableNameNameStoreJoin TableName = "name_store_join"
	TableNameStocktake     TableName = "stocktake"
	TableNameInvoice       TableName = "invoice"
	TableNameInvoiceLine   TableName = "invoice_line"
	TableNameRequisition   TableName = "requisition"
	TableNameSyncFileRef   TableName = "sync_file_reference"
)

// AllTableNames lists every table that is tracked by the changelog
var AllTableNames = []TableName{
	TableNameName,
	TableNameStore,
	TableNameNameStoreJoin,
	TableNameStocktake,
	TableNameInvoice,
	TableNameInvoiceLine,
	TableNameRequisition,
	TableNameSyncFileRef,
}

// IsValid returns true if the table name is a known changelog table
func (t TableName) IsValid() bool {
	for _, name := range AllTableNames {
		if name == t {
			return true
		}
	}
	return false
}

// RowAction is the kind of mutation a changelog entry records
type RowAction string

const (
	RowActionUpsert RowAction = "UPSERT"
	RowActionDelete RowAction = "DELETE"
)

// ChangelogRow is one immutable entry in the changelog.
// Cursor is assigned by the store on insert and is never reused.
type ChangelogRow struct {
	Cursor         int64     `json:"cursor"`
	TableName      TableName `json:"tableName"`
	RecordID       string    `json:"recordId"`
	RowAction      RowAction `json:"rowAction"`
	StoreID        *string   `json:"storeId,omitempty"`
	NameLinkID     *string   `json:"nameLinkId,omitempty"`
	LastSyncSiteID *int32    `json:"lastSyncSiteId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChangelogEntry is what a mutation hands to the changelog store
type ChangelogEntry struct {
	TableName      TableName
	RecordID       string
	RowAction      RowAction
	StoreID        *string
	NameLinkID     *string
	LastSyncSiteID *int32
}

// ChangelogFilter narrows a changelog query.
// Store and name-link sets are OR-ed together; IncludeNullStore adds entries
// without a store (central data). MaxCursor of 0 means no upper bound.
type ChangelogFilter struct {
	TableNames            []TableName
	RowAction             *RowAction
	StoreIDs              []string
	NameLinkIDs           []string
	IncludeNullStore      bool
	ExcludeLastSyncSiteID *int32
	MaxCursor             int64
}

// HasRouting returns true if any store/name routing rule is set
func (f *ChangelogFilter) HasRouting() bool {
	return len(f.StoreIDs) > 0 || len(f.NameLinkIDs) > 0 || f.IncludeNullStore
}

// SyncRow is implemented by every row type that moves through sync
type SyncRow interface {
	Table() TableName
	RecordID() string
}
