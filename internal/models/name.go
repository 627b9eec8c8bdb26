package models

// NameType is the kind of party a name row represents
type NameType string

const (
	NameTypeFacility NameType = "FACILITY"
	NameTypePatient  NameType = "PATIENT"
	NameTypeStore    NameType = "STORE"
	NameTypeBuild    NameType = "BUILD"
	NameTypeInvad    NameType = "INVAD"
	NameTypeRepack   NameType = "REPACK"
	NameTypeOthers   NameType = "OTHERS"
)

// NameRow is a customer, supplier, patient or store counter-party
type NameRow struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	Type       NameType `json:"type"`
	IsCustomer bool     `json:"isCustomer"`
	IsSupplier bool     `json:"isSupplier"`
	IsOnHold   bool     `json:"isOnHold"`
}

func (r *NameRow) Table() TableName { return TableNameName }
func (r *NameRow) RecordID() string { return r.ID }

// StoreMode distinguishes regular stores from dispensaries
type StoreMode string

const (
	StoreModeStore      StoreMode = "STORE"
	StoreModeDispensary StoreMode = "DISPENSARY"
)

// StoreRow is a store; SiteID is the site that is authoritative for it
type StoreRow struct {
	ID         string    `json:"id"`
	NameLinkID string    `json:"nameLinkId"`
	Code       string    `json:"code"`
	SiteID     int32     `json:"siteId"`
	StoreMode  StoreMode `json:"storeMode"`
	IsDisabled bool      `json:"isDisabled"`
}

func (r *StoreRow) Table() TableName { return TableNameStore }
func (r *StoreRow) RecordID() string { return r.ID }

// NameStoreJoinRow makes a name visible to a store
type NameStoreJoinRow struct {
	ID         string `json:"id"`
	NameLinkID string `json:"nameLinkId"`
	StoreID    string `json:"storeId"`
	IsInactive bool   `json:"isInactive"`
}

func (r *NameStoreJoinRow) Table() TableName { return TableNameNameStoreJoin }
func (r *NameStoreJoinRow) RecordID() string { return r.ID }
