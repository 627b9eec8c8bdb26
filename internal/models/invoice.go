package models

import "time"

// InvoiceType is the kind of stock movement an invoice records
type InvoiceType string

const (
	InvoiceTypeOutboundShipment InvoiceType = "OUTBOUND_SHIPMENT"
	InvoiceTypeInboundShipment  InvoiceType = "INBOUND_SHIPMENT"
	InvoiceTypePrescription     InvoiceType = "PRESCRIPTION"
)

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusNew       InvoiceStatus = "NEW"
	InvoiceStatusAllocated InvoiceStatus = "ALLOCATED"
	InvoiceStatusPicked    InvoiceStatus = "PICKED"
	InvoiceStatusShipped   InvoiceStatus = "SHIPPED"
	InvoiceStatusDelivered InvoiceStatus = "DELIVERED"
	InvoiceStatusVerified  InvoiceStatus = "VERIFIED"
)

// InvoiceRow is a shipment or prescription header
type InvoiceRow struct {
	ID                string        `json:"id"`
	NameLinkID        string        `json:"nameLinkId"`
	StoreID           string        `json:"storeId"`
	UserID            *string       `json:"userId,omitempty"`
	InvoiceNumber     int64         `json:"invoiceNumber"`
	Type              InvoiceType   `json:"type"`
	Status            InvoiceStatus `json:"status"`
	OnHold            bool          `json:"onHold"`
	Comment           *string       `json:"comment,omitempty"`
	TheirReference    *string       `json:"theirReference,omitempty"`
	CreatedDatetime   time.Time     `json:"createdDatetime"`
	PickedDatetime    *time.Time    `json:"pickedDatetime,omitempty"`
	ShippedDatetime   *time.Time    `json:"shippedDatetime,omitempty"`
	DeliveredDatetime *time.Time    `json:"deliveredDatetime,omitempty"`
	VerifiedDatetime  *time.Time    `json:"verifiedDatetime,omitempty"`
	LinkedInvoiceID   *string       `json:"linkedInvoiceId,omitempty"`
	RequisitionID     *string       `json:"requisitionId,omitempty"`
}

func (r *InvoiceRow) Table() TableName { return TableNameInvoice }
func (r *InvoiceRow) RecordID() string { return r.ID }

// InvoiceLineType distinguishes stock movements from service lines
type InvoiceLineType string

const (
	InvoiceLineTypeStockIn          InvoiceLineType = "STOCK_IN"
	InvoiceLineTypeStockOut         InvoiceLineType = "STOCK_OUT"
	InvoiceLineTypeUnallocatedStock InvoiceLineType = "UNALLOCATED_STOCK"
	InvoiceLineTypeService          InvoiceLineType = "SERVICE"
)

// InvoiceLineRow is one line of an invoice
type InvoiceLineRow struct {
	ID               string          `json:"id"`
	InvoiceID        string          `json:"invoiceId"`
	ItemLinkID       string          `json:"itemLinkId"`
	ItemName         string          `json:"itemName"`
	ItemCode         string          `json:"itemCode"`
	StockLineID      *string         `json:"stockLineId,omitempty"`
	LocationID       *string         `json:"locationId,omitempty"`
	BatchNumber      *string         `json:"batch,omitempty"`
	ExpiryDate       *time.Time      `json:"expiryDate,omitempty"`
	PackSize         float64         `json:"packSize"`
	CostPricePerPack float64         `json:"costPricePerPack"`
	SellPricePerPack float64         `json:"sellPricePerPack"`
	NumberOfPacks    float64         `json:"numberOfPacks"`
	Type             InvoiceLineType `json:"type"`
	Note             *string         `json:"note,omitempty"`
}

func (r *InvoiceLineRow) Table() TableName { return TableNameInvoiceLine }
func (r *InvoiceLineRow) RecordID() string { return r.ID }
