package translations

import (
	"github.com/supplysync/server/internal/models"
)

const (
	LegacyNameTable          = "name"
	LegacyStoreTable         = "store"
	LegacyNameStoreJoinTable = "name_store_join"
)

// LegacyNameRow is a name as the remote server sends it
type LegacyNameRow struct {
	ID       string       `json:"ID"`
	Name     LegacyString `json:"name"`
	Code     LegacyString `json:"code"`
	Type     string       `json:"type"`
	Customer bool         `json:"customer"`
	Supplier bool         `json:"supplier"`
	Hold     bool         `json:"hold"`
}

var legacyNameTypes = map[string]models.NameType{
	"facility": models.NameTypeFacility,
	"patient":  models.NameTypePatient,
	"store":    models.NameTypeStore,
	"build":    models.NameTypeBuild,
	"invad":    models.NameTypeInvad,
	"repack":   models.NameTypeRepack,
}

type nameTranslator struct{ base }

func NewNameTranslator() Translator {
	return nameTranslator{base{table: models.TableNameName, legacy: LegacyNameTable}}
}

func (t nameTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyNameRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	nameType, ok := legacyNameTypes[legacy.Type]
	if !ok {
		nameType = models.NameTypeOthers
	}

	return t.upsert(&models.NameRow{
		ID:         legacy.ID,
		Name:       string(legacy.Name),
		Code:       string(legacy.Code),
		Type:       nameType,
		IsCustomer: legacy.Customer,
		IsSupplier: legacy.Supplier,
		IsOnHold:   legacy.Hold,
	}), nil
}

func (t nameTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	name, ok := row.(*models.NameRow)
	if !ok {
		return nil, nil
	}

	legacyType := ""
	for legacy, nameType := range legacyNameTypes {
		if nameType == name.Type {
			legacyType = legacy
			break
		}
	}

	return t.push(changelog, LegacyNameRow{
		ID:       name.ID,
		Name:     LegacyString(name.Name),
		Code:     LegacyString(name.Code),
		Type:     legacyType,
		Customer: name.IsCustomer,
		Supplier: name.IsSupplier,
		Hold:     name.IsOnHold,
	})
}

// LegacyStoreRow is a store as the remote server sends it
type LegacyStoreRow struct {
	ID        string `json:"ID"`
	NameID    string `json:"name_ID"`
	Code      string `json:"code"`
	SiteID    int32  `json:"sync_id_remote_site"`
	StoreMode string `json:"store_mode"`
	Disabled  bool   `json:"disabled"`
}

type storeTranslator struct{ base }

func NewStoreTranslator() Translator {
	return storeTranslator{base{
		table:  models.TableNameStore,
		legacy: LegacyStoreTable,
		deps:   []models.TableName{models.TableNameName},
	}}
}

func (t storeTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyStoreRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	// System stores on the remote server have no name and never sync
	if legacy.NameID == "" {
		return nil, nil
	}

	mode := models.StoreModeStore
	switch legacy.StoreMode {
	case "", "store":
	case "dispensary":
		mode = models.StoreModeDispensary
	default:
		return nil, t.failf(row.RecordID, "unknown store mode %q", legacy.StoreMode)
	}

	return t.upsert(&models.StoreRow{
		ID:         legacy.ID,
		NameLinkID: legacy.NameID,
		Code:       legacy.Code,
		SiteID:     legacy.SiteID,
		StoreMode:  mode,
		IsDisabled: legacy.Disabled,
	}), nil
}

func (t storeTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	store, ok := row.(*models.StoreRow)
	if !ok {
		return nil, nil
	}

	mode := "store"
	if store.StoreMode == models.StoreModeDispensary {
		mode = "dispensary"
	}

	return t.push(changelog, LegacyStoreRow{
		ID:        store.ID,
		NameID:    store.NameLinkID,
		Code:      store.Code,
		SiteID:    store.SiteID,
		StoreMode: mode,
		Disabled:  store.IsDisabled,
	})
}

// LegacyNameStoreJoinRow is a name/store visibility join as the remote server sends it
type LegacyNameStoreJoinRow struct {
	ID       string `json:"ID"`
	NameID   string `json:"name_ID"`
	StoreID  string `json:"store_ID"`
	Inactive bool   `json:"inactive"`
}

type nameStoreJoinTranslator struct{ base }

func NewNameStoreJoinTranslator() Translator {
	return nameStoreJoinTranslator{base{
		table:  models.TableNameNameStoreJoin,
		legacy: LegacyNameStoreJoinTable,
		deps:   []models.TableName{models.TableNameName, models.TableNameStore},
	}}
}

func (t nameStoreJoinTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyNameStoreJoinRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	return t.upsert(&models.NameStoreJoinRow{
		ID:         legacy.ID,
		NameLinkID: legacy.NameID,
		StoreID:    legacy.StoreID,
		IsInactive: legacy.Inactive,
	}), nil
}

func (t nameStoreJoinTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	join, ok := row.(*models.NameStoreJoinRow)
	if !ok {
		return nil, nil
	}

	return t.push(changelog, LegacyNameStoreJoinRow{
		ID:       join.ID,
		NameID:   join.NameLinkID,
		StoreID:  join.StoreID,
		Inactive: join.IsInactive,
	})
}
