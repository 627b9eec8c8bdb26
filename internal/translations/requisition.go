package translations

import (
	"github.com/supplysync/server/internal/models"
)

const LegacyRequisitionTable = "requisition"

// LegacyRequisitionRow is a requisition as the remote server sends it
type LegacyRequisitionRow struct {
	ID                   string         `json:"ID"`
	SerialNumber         int64          `json:"serial_number"`
	NameID               string         `json:"name_ID"`
	StoreID              string         `json:"store_ID"`
	UserID               LegacyString   `json:"user_ID"`
	Type                 string         `json:"type"`
	Status               string         `json:"status"`
	DateEntered          LegacyDate     `json:"date_entered"`
	RequesterReference   LegacyString   `json:"requester_reference"`
	Comment              LegacyString   `json:"comment"`
	DaysToSupply         float64        `json:"daysToSupply"`
	ThresholdMOS         float64        `json:"thresholdMOS"`
	LinkedRequisitionID  LegacyString   `json:"linked_requisition_id"`
	ExpectedDeliveryDate LegacyDate     `json:"expected_delivery_date"`
	OmStatus             LegacyString   `json:"om_status"`
	OmMaxMonthsOfStock   *float64       `json:"om_max_months_of_stock"`
	OmCreatedDatetime    LegacyDateTime `json:"om_created_datetime"`
	OmSentDatetime       LegacyDateTime `json:"om_sent_datetime"`
	OmFinalisedDatetime  LegacyDateTime `json:"om_finalised_datetime"`
}

var requisitionStatuses = map[models.RequisitionStatus]bool{
	models.RequisitionStatusDraft:     true,
	models.RequisitionStatusNew:       true,
	models.RequisitionStatusSent:      true,
	models.RequisitionStatusFinalised: true,
}

type requisitionTranslator struct{ base }

func NewRequisitionTranslator() Translator {
	return requisitionTranslator{base{
		table:  models.TableNameRequisition,
		legacy: LegacyRequisitionTable,
		deps:   []models.TableName{models.TableNameName, models.TableNameStore},
	}}
}

func (t requisitionTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyRequisitionRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	var reqType models.RequisitionType
	switch legacy.Type {
	case "request", "im", "sh":
		reqType = models.RequisitionTypeRequest
	case "response":
		reqType = models.RequisitionTypeResponse
	default:
		// Reports and other legacy kinds have no local equivalent
		return nil, nil
	}

	status, err := t.status(row.RecordID, reqType, &legacy)
	if err != nil {
		return nil, err
	}

	created := firstOf(legacy.OmCreatedDatetime, legacy.DateEntered.Ptr())
	if created == nil {
		return nil, t.failf(row.RecordID, "missing date entered")
	}

	maxMonths := legacy.DaysToSupply / daysPerMonthLegacy
	if legacy.OmMaxMonthsOfStock != nil {
		maxMonths = *legacy.OmMaxMonthsOfStock
	}

	return t.upsert(&models.RequisitionRow{
		ID:                   legacy.ID,
		RequisitionNumber:    legacy.SerialNumber,
		NameLinkID:           legacy.NameID,
		StoreID:              legacy.StoreID,
		UserID:               legacy.UserID.Ptr(),
		Type:                 reqType,
		Status:               status,
		CreatedDatetime:      *created,
		SentDatetime:         legacy.OmSentDatetime.Ptr(),
		FinalisedDatetime:    legacy.OmFinalisedDatetime.Ptr(),
		ExpectedDeliveryDate: legacy.ExpectedDeliveryDate.Ptr(),
		Comment:              legacy.Comment.Ptr(),
		TheirReference:       legacy.RequesterReference.Ptr(),
		MaxMonthsOfStock:     maxMonths,
		MinMonthsOfStock:     legacy.ThresholdMOS,
		LinkedRequisitionID:  legacy.LinkedRequisitionID.Ptr(),
	}), nil
}

func (t requisitionTranslator) status(recordID string, reqType models.RequisitionType, legacy *LegacyRequisitionRow) (models.RequisitionStatus, error) {
	if legacy.OmStatus != "" {
		status := models.RequisitionStatus(legacy.OmStatus)
		if !requisitionStatuses[status] {
			return "", t.failf(recordID, "unknown requisition status %q", legacy.OmStatus)
		}
		return status, nil
	}

	switch legacy.Status {
	case "sg":
		if reqType == models.RequisitionTypeResponse {
			return models.RequisitionStatusNew, nil
		}
		return models.RequisitionStatusDraft, nil
	case "cn", "wp":
		if reqType == models.RequisitionTypeResponse {
			return models.RequisitionStatusNew, nil
		}
		return models.RequisitionStatusSent, nil
	case "fn":
		return models.RequisitionStatusFinalised, nil
	}
	return "", t.failf(recordID, "unknown legacy requisition status %q", legacy.Status)
}

func (t requisitionTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	req, ok := row.(*models.RequisitionRow)
	if !ok {
		return nil, nil
	}

	legacyType := "request"
	if req.Type == models.RequisitionTypeResponse {
		legacyType = "response"
	}

	var status string
	switch req.Status {
	case models.RequisitionStatusDraft:
		status = "sg"
	case models.RequisitionStatusFinalised:
		status = "fn"
	default:
		status = "cn"
	}

	maxMonths := req.MaxMonthsOfStock
	return t.push(changelog, LegacyRequisitionRow{
		ID:                   req.ID,
		SerialNumber:         req.RequisitionNumber,
		NameID:               req.NameLinkID,
		StoreID:              req.StoreID,
		UserID:               NewLegacyString(req.UserID),
		Type:                 legacyType,
		Status:               status,
		DateEntered:          NewLegacyDate(&req.CreatedDatetime),
		RequesterReference:   NewLegacyString(req.TheirReference),
		Comment:              NewLegacyString(req.Comment),
		DaysToSupply:         req.MaxMonthsOfStock * daysPerMonthLegacy,
		ThresholdMOS:         req.MinMonthsOfStock,
		LinkedRequisitionID:  NewLegacyString(req.LinkedRequisitionID),
		ExpectedDeliveryDate: NewLegacyDate(req.ExpectedDeliveryDate),
		OmStatus:             LegacyString(req.Status),
		OmMaxMonthsOfStock:   &maxMonths,
		OmCreatedDatetime:    NewLegacyDateTime(&req.CreatedDatetime),
		OmSentDatetime:       NewLegacyDateTime(req.SentDatetime),
		OmFinalisedDatetime:  NewLegacyDateTime(req.FinalisedDatetime),
	})
}
