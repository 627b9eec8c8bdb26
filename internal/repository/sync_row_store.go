package repository

import (
	"context"
	"fmt"

	"github.com/supplysync/server/internal/models"
)

// SyncRowStore is the write path for every row that moves through sync.
// Each upsert or delete is followed by a changelog insert on the same DBTX,
// so callers get atomic data+changelog writes by passing a transaction.
type SyncRowStore struct {
	siteID    int32
	changelog *ChangelogRepository

	Names          *NameRepository
	Stores         *StoreRepository
	NameStoreJoins *NameStoreJoinRepository
	Stocktakes     *StocktakeRepository
	Invoices       *InvoiceRepository
	InvoiceLines   *InvoiceLineRepository
	Requisitions   *RequisitionRepository
	SyncFileRefs   *SyncFileReferenceRepository
}

// NewSyncRowStore creates a store bound to db for the given site
func NewSyncRowStore(db DBTX, siteID int32) *SyncRowStore {
	return &SyncRowStore{
		siteID:         siteID,
		changelog:      NewChangelogRepository(db),
		Names:          NewNameRepository(db),
		Stores:         NewStoreRepository(db),
		NameStoreJoins: NewNameStoreJoinRepository(db),
		Stocktakes:     NewStocktakeRepository(db),
		Invoices:       NewInvoiceRepository(db),
		InvoiceLines:   NewInvoiceLineRepository(db),
		Requisitions:   NewRequisitionRepository(db),
		SyncFileRefs:   NewSyncFileReferenceRepository(db),
	}
}

// SiteID returns the site this store writes as
func (s *SyncRowStore) SiteID() int32 {
	return s.siteID
}

// Changelog returns the changelog repository on the same DBTX
func (s *SyncRowStore) Changelog() *ChangelogRepository {
	return s.changelog
}

// ActiveStores returns the stores this site is authoritative for
func (s *SyncRowStore) ActiveStores(ctx context.Context) ([]*models.StoreRow, error) {
	return s.Stores.FindBySiteID(ctx, s.siteID)
}

// Upsert writes a row and logs it. originSiteID is the site the data came
// from; nil means a local mutation.
func (s *SyncRowStore) Upsert(ctx context.Context, row models.SyncRow, originSiteID *int32) (int64, error) {
	var err error
	switch r := row.(type) {
	case *models.NameRow:
		err = s.Names.Upsert(ctx, r)
	case *models.StoreRow:
		err = s.Stores.Upsert(ctx, r)
	case *models.NameStoreJoinRow:
		err = s.NameStoreJoins.Upsert(ctx, r)
	case *models.StocktakeRow:
		err = s.Stocktakes.Upsert(ctx, r)
	case *models.InvoiceRow:
		err = s.Invoices.Upsert(ctx, r)
	case *models.InvoiceLineRow:
		err = s.InvoiceLines.Upsert(ctx, r)
	case *models.RequisitionRow:
		err = s.Requisitions.Upsert(ctx, r)
	case *models.SyncFileReferenceRow:
		err = s.SyncFileRefs.Upsert(ctx, r)
	default:
		return 0, fmt.Errorf("upsert %T: %w", row, models.ErrUnsupportedTable)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert %s %s: %w", row.Table(), row.RecordID(), err)
	}

	storeID, nameLinkID, err := s.routing(ctx, row)
	if err != nil {
		return 0, err
	}

	return s.changelog.Insert(ctx, models.ChangelogEntry{
		TableName:      row.Table(),
		RecordID:       row.RecordID(),
		RowAction:      models.RowActionUpsert,
		StoreID:        storeID,
		NameLinkID:     nameLinkID,
		LastSyncSiteID: s.origin(originSiteID),
	})
}

// Delete removes a row and logs it. Deleting a missing row is a no-op that
// returns cursor 0.
func (s *SyncRowStore) Delete(ctx context.Context, table models.TableName, id string, originSiteID *int32) (int64, error) {
	row, err := s.Find(ctx, table, id)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}

	// Routing has to be read before the row (or its parent) is gone
	storeID, nameLinkID, err := s.routing(ctx, row)
	if err != nil {
		return 0, err
	}

	switch table {
	case models.TableNameName:
		err = s.Names.Delete(ctx, id)
	case models.TableNameStore:
		err = s.Stores.Delete(ctx, id)
	case models.TableNameNameStoreJoin:
		err = s.NameStoreJoins.Delete(ctx, id)
	case models.TableNameStocktake:
		err = s.Stocktakes.Delete(ctx, id)
	case models.TableNameInvoice:
		err = s.Invoices.Delete(ctx, id)
	case models.TableNameInvoiceLine:
		err = s.InvoiceLines.Delete(ctx, id)
	case models.TableNameRequisition:
		err = s.Requisitions.Delete(ctx, id)
	case models.TableNameSyncFileRef:
		err = s.SyncFileRefs.Delete(ctx, id)
	}
	if err != nil {
		return 0, fmt.Errorf("delete %s %s: %w", table, id, err)
	}

	return s.changelog.Insert(ctx, models.ChangelogEntry{
		TableName:      table,
		RecordID:       id,
		RowAction:      models.RowActionDelete,
		StoreID:        storeID,
		NameLinkID:     nameLinkID,
		LastSyncSiteID: s.origin(originSiteID),
	})
}

// Find loads a row by table and id, returning nil when it does not exist
func (s *SyncRowStore) Find(ctx context.Context, table models.TableName, id string) (models.SyncRow, error) {
	switch table {
	case models.TableNameName:
		row, err := s.Names.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameStore:
		row, err := s.Stores.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameNameStoreJoin:
		row, err := s.NameStoreJoins.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameStocktake:
		row, err := s.Stocktakes.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameInvoice:
		row, err := s.Invoices.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameInvoiceLine:
		row, err := s.InvoiceLines.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameRequisition:
		row, err := s.Requisitions.FindByID(ctx, id)
		return found(row, err)
	case models.TableNameSyncFileRef:
		row, err := s.SyncFileRefs.FindByID(ctx, id)
		return found(row, err)
	default:
		return nil, fmt.Errorf("find %s: %w", table, models.ErrUnsupportedTable)
	}
}

// routing returns the store and counter-party name that decide which sites see a change
func (s *SyncRowStore) routing(ctx context.Context, row models.SyncRow) (storeID, nameLinkID *string, err error) {
	switch r := row.(type) {
	case *models.NameStoreJoinRow:
		return &r.StoreID, &r.NameLinkID, nil
	case *models.StocktakeRow:
		return &r.StoreID, nil, nil
	case *models.InvoiceRow:
		return &r.StoreID, &r.NameLinkID, nil
	case *models.InvoiceLineRow:
		invoice, err := s.Invoices.FindByID(ctx, r.InvoiceID)
		if err != nil {
			return nil, nil, err
		}
		if invoice == nil {
			return nil, nil, nil
		}
		return &invoice.StoreID, &invoice.NameLinkID, nil
	case *models.RequisitionRow:
		return &r.StoreID, &r.NameLinkID, nil
	case *models.SyncFileReferenceRow:
		return r.StoreID, nil, nil
	default:
		// name and store rows are central data
		return nil, nil, nil
	}
}

func (s *SyncRowStore) origin(originSiteID *int32) *int32 {
	if originSiteID != nil {
		return originSiteID
	}
	siteID := s.siteID
	return &siteID
}

func found[R any](row *R, err error) (models.SyncRow, error) {
	if err != nil || row == nil {
		return nil, err
	}
	return any(row).(models.SyncRow), nil
}
