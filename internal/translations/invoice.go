package translations

import (
	"github.com/supplysync/server/internal/models"
)

const (
	LegacyInvoiceTable     = "transact"
	LegacyInvoiceLineTable = "trans_line"
)

// LegacyTransactRow is an invoice as the remote server sends it
type LegacyTransactRow struct {
	ID                  string         `json:"ID"`
	NameID              string         `json:"name_ID"`
	StoreID             string         `json:"store_ID"`
	UserID              LegacyString   `json:"user_ID"`
	InvoiceNum          int64          `json:"invoice_num"`
	Type                string         `json:"type"`
	Mode                string         `json:"mode"`
	Status              string         `json:"status"`
	Hold                bool           `json:"hold"`
	Comment             LegacyString   `json:"comment"`
	TheirRef            LegacyString   `json:"their_ref"`
	EntryDate           LegacyDate     `json:"entry_date"`
	EntryTime           int64          `json:"entry_time"`
	ShipDate            LegacyDate     `json:"ship_date"`
	ArrivalDateActual   LegacyDate     `json:"arrival_date_actual"`
	ConfirmDate         LegacyDate     `json:"confirm_date"`
	ConfirmTime         int64          `json:"confirm_time"`
	LinkedTransactionID LegacyString   `json:"linked_transaction_id"`
	RequisitionID       LegacyString   `json:"requisition_ID"`
	OmStatus            LegacyString   `json:"om_status"`
	OmCreatedDatetime   LegacyDateTime `json:"om_created_datetime"`
	OmPickedDatetime    LegacyDateTime `json:"om_picked_datetime"`
	OmShippedDatetime   LegacyDateTime `json:"om_shipped_datetime"`
	OmDeliveredDatetime LegacyDateTime `json:"om_delivered_datetime"`
	OmVerifiedDatetime  LegacyDateTime `json:"om_verified_datetime"`
}

var invoiceStatuses = map[models.InvoiceStatus]bool{
	models.InvoiceStatusNew:       true,
	models.InvoiceStatusAllocated: true,
	models.InvoiceStatusPicked:    true,
	models.InvoiceStatusShipped:   true,
	models.InvoiceStatusDelivered: true,
	models.InvoiceStatusVerified:  true,
}

type invoiceTranslator struct{ base }

func NewInvoiceTranslator() Translator {
	return invoiceTranslator{base{
		table:  models.TableNameInvoice,
		legacy: LegacyInvoiceTable,
		deps:   []models.TableName{models.TableNameName, models.TableNameStore, models.TableNameRequisition},
	}}
}

func (t invoiceTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyTransactRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	var invoiceType models.InvoiceType
	switch {
	case legacy.Type == "ci" && legacy.Mode == "dispensary":
		invoiceType = models.InvoiceTypePrescription
	case legacy.Type == "ci":
		invoiceType = models.InvoiceTypeOutboundShipment
	case legacy.Type == "si":
		invoiceType = models.InvoiceTypeInboundShipment
	default:
		// Credits, builds and inventory adjustments are not synced as invoices
		return nil, nil
	}

	status, err := t.status(row.RecordID, invoiceType, &legacy)
	if err != nil {
		return nil, err
	}

	created := firstOf(legacy.OmCreatedDatetime, combineDateAndTime(legacy.EntryDate, legacy.EntryTime))
	if created == nil {
		return nil, t.failf(row.RecordID, "missing entry date")
	}
	confirmed := combineDateAndTime(legacy.ConfirmDate, legacy.ConfirmTime)

	invoice := &models.InvoiceRow{
		ID:                legacy.ID,
		NameLinkID:        legacy.NameID,
		StoreID:           legacy.StoreID,
		UserID:            legacy.UserID.Ptr(),
		InvoiceNumber:     legacy.InvoiceNum,
		Type:              invoiceType,
		Status:            status,
		OnHold:            legacy.Hold,
		Comment:           legacy.Comment.Ptr(),
		TheirReference:    legacy.TheirRef.Ptr(),
		CreatedDatetime:   *created,
		ShippedDatetime:   firstOf(legacy.OmShippedDatetime, legacy.ShipDate.Ptr()),
		DeliveredDatetime: firstOf(legacy.OmDeliveredDatetime, legacy.ArrivalDateActual.Ptr()),
		LinkedInvoiceID:   legacy.LinkedTransactionID.Ptr(),
		RequisitionID:     legacy.RequisitionID.Ptr(),
	}

	// The legacy confirm date means picked for outgoing stock and verified for incoming
	if invoiceType == models.InvoiceTypeInboundShipment {
		invoice.PickedDatetime = legacy.OmPickedDatetime.Ptr()
		invoice.VerifiedDatetime = firstOf(legacy.OmVerifiedDatetime, confirmed)
	} else {
		invoice.PickedDatetime = firstOf(legacy.OmPickedDatetime, confirmed)
		invoice.VerifiedDatetime = legacy.OmVerifiedDatetime.Ptr()
	}

	return t.upsert(invoice), nil
}

func (t invoiceTranslator) status(recordID string, invoiceType models.InvoiceType, legacy *LegacyTransactRow) (models.InvoiceStatus, error) {
	if legacy.OmStatus != "" {
		status := models.InvoiceStatus(legacy.OmStatus)
		if !invoiceStatuses[status] {
			return "", t.failf(recordID, "unknown invoice status %q", legacy.OmStatus)
		}
		return status, nil
	}

	inbound := invoiceType == models.InvoiceTypeInboundShipment
	switch legacy.Status {
	case "sg", "nw":
		return models.InvoiceStatusNew, nil
	case "cn":
		if inbound {
			return models.InvoiceStatusDelivered, nil
		}
		return models.InvoiceStatusPicked, nil
	case "fn":
		switch invoiceType {
		case models.InvoiceTypeOutboundShipment:
			return models.InvoiceStatusShipped, nil
		default:
			return models.InvoiceStatusVerified, nil
		}
	}
	return "", t.failf(recordID, "unknown legacy invoice status %q", legacy.Status)
}

func legacyInvoiceStatus(invoice *models.InvoiceRow) string {
	if invoice.Type == models.InvoiceTypeInboundShipment {
		switch invoice.Status {
		case models.InvoiceStatusDelivered:
			return "cn"
		case models.InvoiceStatusVerified:
			return "fn"
		default:
			return "nw"
		}
	}

	switch invoice.Status {
	case models.InvoiceStatusNew, models.InvoiceStatusAllocated:
		return "sg"
	case models.InvoiceStatusPicked:
		return "cn"
	default:
		return "fn"
	}
}

func (t invoiceTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	invoice, ok := row.(*models.InvoiceRow)
	if !ok {
		return nil, nil
	}

	legacyType, mode := "ci", "store"
	switch invoice.Type {
	case models.InvoiceTypeInboundShipment:
		legacyType = "si"
	case models.InvoiceTypePrescription:
		mode = "dispensary"
	}

	entryDate, entryTime := splitDateTime(&invoice.CreatedDatetime)
	confirmed := invoice.PickedDatetime
	if invoice.Type == models.InvoiceTypeInboundShipment {
		confirmed = invoice.VerifiedDatetime
	}
	confirmDate, confirmTime := splitDateTime(confirmed)

	return t.push(changelog, LegacyTransactRow{
		ID:                  invoice.ID,
		NameID:              invoice.NameLinkID,
		StoreID:             invoice.StoreID,
		UserID:              NewLegacyString(invoice.UserID),
		InvoiceNum:          invoice.InvoiceNumber,
		Type:                legacyType,
		Mode:                mode,
		Status:              legacyInvoiceStatus(invoice),
		Hold:                invoice.OnHold,
		Comment:             NewLegacyString(invoice.Comment),
		TheirRef:            NewLegacyString(invoice.TheirReference),
		EntryDate:           entryDate,
		EntryTime:           entryTime,
		ShipDate:            NewLegacyDate(invoice.ShippedDatetime),
		ArrivalDateActual:   NewLegacyDate(invoice.DeliveredDatetime),
		ConfirmDate:         confirmDate,
		ConfirmTime:         confirmTime,
		LinkedTransactionID: NewLegacyString(invoice.LinkedInvoiceID),
		RequisitionID:       NewLegacyString(invoice.RequisitionID),
		OmStatus:            LegacyString(invoice.Status),
		OmCreatedDatetime:   NewLegacyDateTime(&invoice.CreatedDatetime),
		OmPickedDatetime:    NewLegacyDateTime(invoice.PickedDatetime),
		OmShippedDatetime:   NewLegacyDateTime(invoice.ShippedDatetime),
		OmDeliveredDatetime: NewLegacyDateTime(invoice.DeliveredDatetime),
		OmVerifiedDatetime:  NewLegacyDateTime(invoice.VerifiedDatetime),
	})
}

// LegacyTransLineRow is an invoice line as the remote server sends it
type LegacyTransLineRow struct {
	ID            string       `json:"ID"`
	TransactionID string       `json:"transaction_ID"`
	ItemID        string       `json:"item_ID"`
	ItemName      LegacyString `json:"item_name"`
	ItemLineID    LegacyString `json:"item_line_ID"`
	LocationID    LegacyString `json:"location_ID"`
	Batch         LegacyString `json:"batch"`
	ExpiryDate    LegacyDate   `json:"expiry_date"`
	PackSize      float64      `json:"pack_size"`
	CostPrice     float64      `json:"cost_price"`
	SellPrice     float64      `json:"sell_price"`
	Quantity      float64      `json:"quantity"`
	Type          string       `json:"type"`
	Note          LegacyString `json:"note"`
	OmItemCode    LegacyString `json:"om_item_code"`
}

var legacyLineTypes = map[string]models.InvoiceLineType{
	"stock_in":    models.InvoiceLineTypeStockIn,
	"stock_out":   models.InvoiceLineTypeStockOut,
	"placeholder": models.InvoiceLineTypeUnallocatedStock,
	"service":     models.InvoiceLineTypeService,
	"non_stock":   models.InvoiceLineTypeService,
}

type invoiceLineTranslator struct{ base }

func NewInvoiceLineTranslator() Translator {
	return invoiceLineTranslator{base{
		table:  models.TableNameInvoiceLine,
		legacy: LegacyInvoiceLineTable,
		deps:   []models.TableName{models.TableNameInvoice},
	}}
}

func (t invoiceLineTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyTransLineRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	lineType, ok := legacyLineTypes[legacy.Type]
	if !ok {
		return nil, t.failf(row.RecordID, "unknown line type %q", legacy.Type)
	}

	return t.upsert(&models.InvoiceLineRow{
		ID:               legacy.ID,
		InvoiceID:        legacy.TransactionID,
		ItemLinkID:       legacy.ItemID,
		ItemName:         string(legacy.ItemName),
		ItemCode:         string(legacy.OmItemCode),
		StockLineID:      legacy.ItemLineID.Ptr(),
		LocationID:       legacy.LocationID.Ptr(),
		BatchNumber:      legacy.Batch.Ptr(),
		ExpiryDate:       legacy.ExpiryDate.Ptr(),
		PackSize:         legacy.PackSize,
		CostPricePerPack: legacy.CostPrice,
		SellPricePerPack: legacy.SellPrice,
		NumberOfPacks:    legacy.Quantity,
		Type:             lineType,
		Note:             legacy.Note.Ptr(),
	}), nil
}

func (t invoiceLineTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	line, ok := row.(*models.InvoiceLineRow)
	if !ok {
		return nil, nil
	}

	var legacyType string
	switch line.Type {
	case models.InvoiceLineTypeStockIn:
		legacyType = "stock_in"
	case models.InvoiceLineTypeStockOut:
		legacyType = "stock_out"
	case models.InvoiceLineTypeUnallocatedStock:
		legacyType = "placeholder"
	default:
		legacyType = "service"
	}

	return t.push(changelog, LegacyTransLineRow{
		ID:            line.ID,
		TransactionID: line.InvoiceID,
		ItemID:        line.ItemLinkID,
		ItemName:      LegacyString(line.ItemName),
		ItemLineID:    NewLegacyString(line.StockLineID),
		LocationID:    NewLegacyString(line.LocationID),
		Batch:         NewLegacyString(line.BatchNumber),
		ExpiryDate:    NewLegacyDate(line.ExpiryDate),
		PackSize:      line.PackSize,
		CostPrice:     line.CostPricePerPack,
		SellPrice:     line.SellPricePerPack,
		Quantity:      line.NumberOfPacks,
		Type:          legacyType,
		Note:          NewLegacyString(line.Note),
		OmItemCode:    LegacyString(line.ItemCode),
	})
}
