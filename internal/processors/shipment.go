package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplysync/server/internal/models"
	"github.com/supplysync/server/internal/repository"
)

// CreateInboundShipment receives an outbound shipment addressed to one of
// this site's stores. The inbound shipment follows the outbound until it has
// been delivered.
type CreateInboundShipment struct {
	now func() time.Time
}

func (p *CreateInboundShipment) Name() string              { return "create_inbound_shipment" }
func (p *CreateInboundShipment) CursorKey() models.KeyType { return models.ProcessorCursorKey("shipment") }

// ChangelogFilter loads invoices addressed to an active store
func (p *CreateInboundShipment) ChangelogFilter(active []*models.StoreRow) *models.ChangelogFilter {
	return counterpartyFilter(models.TableNameInvoice, active)
}

func (p *CreateInboundShipment) TryProcessRecord(ctx context.Context, store *repository.SyncRowStore, changelog *models.ChangelogRow) (string, error) {
	outbound, err := store.Invoices.FindByID(ctx, changelog.RecordID)
	if err != nil || outbound == nil {
		return "", err
	}
	if outbound.Type != models.InvoiceTypeOutboundShipment {
		return "", nil
	}
	if outbound.Status != models.InvoiceStatusPicked && outbound.Status != models.InvoiceStatusShipped {
		return "", nil
	}

	receiver, err := activeStore(ctx, store, outbound.NameLinkID)
	if err != nil || receiver == nil {
		return "", err
	}

	inbound, err := store.Invoices.FindByLinkedID(ctx, outbound.ID)
	if err != nil {
		return "", err
	}
	if inbound == nil {
		return p.create(ctx, store, outbound, receiver)
	}
	return p.update(ctx, store, outbound, inbound)
}

func (p *CreateInboundShipment) create(ctx context.Context, store *repository.SyncRowStore, outbound *models.InvoiceRow, receiver *models.StoreRow) (string, error) {
	supplier, err := store.Stores.FindByID(ctx, outbound.StoreID)
	if err != nil {
		return "", err
	}
	if supplier == nil {
		return "", fmt.Errorf("store %s of shipment %s not found", outbound.StoreID, outbound.ID)
	}

	number, err := store.Invoices.NextNumber(ctx, receiver.ID, models.InvoiceTypeInboundShipment)
	if err != nil {
		return "", err
	}

	requestID, err := p.requestID(ctx, store, outbound)
	if err != nil {
		return "", err
	}

	inbound := &models.InvoiceRow{
		ID:              uuid.New().String(),
		NameLinkID:      supplier.NameLinkID,
		StoreID:         receiver.ID,
		InvoiceNumber:   number,
		Type:            models.InvoiceTypeInboundShipment,
		Status:          outbound.Status,
		TheirReference:  outbound.TheirReference,
		CreatedDatetime: p.now(),
		PickedDatetime:  outbound.PickedDatetime,
		ShippedDatetime: outbound.ShippedDatetime,
		LinkedInvoiceID: &outbound.ID,
		RequisitionID:   requestID,
	}
	if _, err := store.Upsert(ctx, inbound, nil); err != nil {
		return "", err
	}

	lines, err := p.copyLines(ctx, store, outbound, inbound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created inbound shipment %d with %d lines for %s", number, lines, outbound.ID), nil
}

// update brings a not yet delivered inbound shipment in line with a changed outbound
func (p *CreateInboundShipment) update(ctx context.Context, store *repository.SyncRowStore, outbound, inbound *models.InvoiceRow) (string, error) {
	if inbound.Status != models.InvoiceStatusPicked && inbound.Status != models.InvoiceStatusShipped {
		return "", nil
	}
	if inbound.Status == outbound.Status {
		return "", nil
	}

	existing, err := store.InvoiceLines.FindByInvoiceID(ctx, inbound.ID)
	if err != nil {
		return "", err
	}
	for _, line := range existing {
		if _, err := store.Delete(ctx, models.TableNameInvoiceLine, line.ID, nil); err != nil {
			return "", err
		}
	}

	inbound.Status = outbound.Status
	inbound.PickedDatetime = outbound.PickedDatetime
	inbound.ShippedDatetime = outbound.ShippedDatetime
	if _, err := store.Upsert(ctx, inbound, nil); err != nil {
		return "", err
	}

	lines, err := p.copyLines(ctx, store, outbound, inbound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("updated inbound shipment %d to %s with %d lines", inbound.InvoiceNumber, inbound.Status, lines), nil
}

// copyLines adds a stock in line to inbound for every stock out line of outbound
func (p *CreateInboundShipment) copyLines(ctx context.Context, store *repository.SyncRowStore, outbound, inbound *models.InvoiceRow) (int, error) {
	lines, err := store.InvoiceLines.FindByInvoiceID(ctx, outbound.ID)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, line := range lines {
		if line.Type != models.InvoiceLineTypeStockOut {
			continue
		}
		in := &models.InvoiceLineRow{
			ID:               uuid.New().String(),
			InvoiceID:        inbound.ID,
			ItemLinkID:       line.ItemLinkID,
			ItemName:         line.ItemName,
			ItemCode:         line.ItemCode,
			BatchNumber:      line.BatchNumber,
			ExpiryDate:       line.ExpiryDate,
			PackSize:         line.PackSize,
			CostPricePerPack: line.SellPricePerPack,
			SellPricePerPack: line.SellPricePerPack,
			NumberOfPacks:    line.NumberOfPacks,
			Type:             models.InvoiceLineTypeStockIn,
			Note:             line.Note,
		}
		if _, err := store.Upsert(ctx, in, nil); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// requestID links the inbound shipment to the request its outbound answers
func (p *CreateInboundShipment) requestID(ctx context.Context, store *repository.SyncRowStore, outbound *models.InvoiceRow) (*string, error) {
	if outbound.RequisitionID == nil {
		return nil, nil
	}
	response, err := store.Requisitions.FindByID(ctx, *outbound.RequisitionID)
	if err != nil || response == nil {
		return nil, err
	}
	return response.LinkedRequisitionID, nil
}
