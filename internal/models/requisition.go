package models

import "time"

// RequisitionType is request (to a supplier) or response (from a supplier)
type RequisitionType string

const (
	RequisitionTypeRequest  RequisitionType = "REQUEST"
	RequisitionTypeResponse RequisitionType = "RESPONSE"
)

// RequisitionStatus is the lifecycle state of a requisition
type RequisitionStatus string

const (
	RequisitionStatusDraft     RequisitionStatus = "DRAFT"
	RequisitionStatusNew       RequisitionStatus = "NEW"
	RequisitionStatusSent      RequisitionStatus = "SENT"
	RequisitionStatusFinalised RequisitionStatus = "FINALISED"
)

// RequisitionRow is an order between two stores
type RequisitionRow struct {
	ID                   string            `json:"id"`
	RequisitionNumber    int64             `json:"requisitionNumber"`
	NameLinkID           string            `json:"nameLinkId"`
	StoreID              string            `json:"storeId"`
	UserID               *string           `json:"userId,omitempty"`
	Type                 RequisitionType   `json:"type"`
	Status               RequisitionStatus `json:"status"`
	CreatedDatetime      time.Time         `json:"createdDatetime"`
	SentDatetime         *time.Time        `json:"sentDatetime,omitempty"`
	FinalisedDatetime    *time.Time        `json:"finalisedDatetime,omitempty"`
	ExpectedDeliveryDate *time.Time        `json:"expectedDeliveryDate,omitempty"`
	Comment              *string           `json:"comment,omitempty"`
	TheirReference       *string           `json:"theirReference,omitempty"`
	MaxMonthsOfStock     float64           `json:"maxMonthsOfStock"`
	MinMonthsOfStock     float64           `json:"minMonthsOfStock"`
	LinkedRequisitionID  *string           `json:"linkedRequisitionId,omitempty"`
}

func (r *RequisitionRow) Table() TableName { return TableNameRequisition }
func (r *RequisitionRow) RecordID() string { return r.ID }
