package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

var requisitionCursor = models.ProcessorCursorKey("requisition")


// CreateResponseRequisition answers a sent request addressed to one of this
// site's stores with a new response requisition
type CreateResponseRequisition struct {
	now func() time.Time
}

func (p *CreateResponseRequisition) Name() string              { return "create_response_requisition" }
func (p *CreateResponseRequisition) CursorKey() models.KeyType { return requisitionCursor }

// ChangelogFilter loads requests whose supplier is an active store
func (p *CreateResponseRequisition) ChangelogFilter(active []*models.StoreRow) *models.ChangelogFilter {
	return counterpartyFilter(models.TableNameRequisition, active)
}

func (p *CreateResponseRequisition) TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error) {
	request, err := store.Requisitions.FindByID(ctx, changelog.RecordID)
	if err != nil || request == nil {
		return "", err
	}
	if request.Type != models.RequisitionTypeRequest || request.Status != models.RequisitionStatusSent {
		return "", nil
	}

	supplier, err := activeStore(ctx, store, request.NameLinkID)
	if err != nil || supplier == nil {
		return "", err
	}

	existing, err := store.Requisitions.FindByLinkedID(ctx, request.ID)
	if err != nil || existing != nil {
		return "", err
	}

	requester, err := store.Stores.FindByID(ctx, request.StoreID)
	if err != nil {
		return "", err
	}
	if requester == nil {
		return "", fmt.Errorf("store %s of request %s not found", request.StoreID, request.ID)
	}

	number, err := store.Requisitions.NextNumber(ctx, supplier.ID, models.RequisitionTypeResponse)
	if err != nil {
		return "", err
	}

	response := &models.RequisitionRow{
		ID:                   uuid.New().String(),
		RequisitionNumber:    number,
		NameLinkID:           requester.NameLinkID,
		StoreID:              supplier.ID,
		Type:                 models.RequisitionTypeResponse,
		Status:               models.RequisitionStatusNew,
		CreatedDatetime:      p.now(),
		ExpectedDeliveryDate: request.ExpectedDeliveryDate,
		Comment:              request.Comment,
		TheirReference:       request.TheirReference,
		MaxMonthsOfStock:     request.MaxMonthsOfStock,
		MinMonthsOfStock:     request.MinMonthsOfStock,
		LinkedRequisitionID:  &request.ID,
	}
	if _, err := store.Upsert(ctx, response, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("created response requisition %d for request %s", number, request.ID), nil
}

// FinaliseRequestRequisition finalises a request once its response has been
// finalised by the supplier
type FinaliseRequestRequisition struct {
	now func() time.Time
}

func (p *FinaliseRequestRequisition) Name() string              { return "finalise_request_requisition" }
func (p *FinaliseRequestRequisition) CursorKey() models.KeyType { return requisitionCursor }

// ChangelogFilter loads responses made out to an active store
func (p *FinaliseRequestRequisition) ChangelogFilter(active []*models.StoreRow) *models.ChangelogFilter {
	return counterpartyFilter(models.TableNameRequisition, active)
}

func (p *FinaliseRequestRequisition) TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error) {
	response, err := store.Requisitions.FindByID(ctx, changelog.RecordID)
	if err != nil || response == nil {
		return "", err
	}
	if response.Type != models.RequisitionTypeResponse || response.Status != models.RequisitionStatusFinalised || response.LinkedRequisitionID == nil {
		return "", nil
	}

	request, err := store.Requisitions.FindByID(ctx, *response.LinkedRequisitionID)
	if err != nil || request == nil {
		return "", err
	}
	if request.Status == models.RequisitionStatusFinalised {
		return "", nil
	}

	requester, err := store.Stores.FindByID(ctx, request.StoreID)
	if err != nil || requester == nil || requester.SiteID != store.SiteID() {
		return "", err
	}

	now := p.now()
	request.Status = models.RequisitionStatusFinalised
	request.FinalisedDatetime = &now
	if _, err := store.Upsert(ctx, request, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("finalised request requisition %s", request.ID), nil
}
