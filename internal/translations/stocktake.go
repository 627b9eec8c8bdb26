package translations

import (
	"github.com/supplysync/server/internal/models"
)

const LegacyStocktakeTable = "Stock_take"

// LegacyStocktakeRow is a stocktake as the remote server sends it.
// The om_* fields carry values the legacy schema cannot express.
type LegacyStocktakeRow struct {
	ID                  string         `json:"ID"`
	StoreID             string         `json:"store_ID"`
	CreatedByID         string         `json:"created_by_ID"`
	SerialNumber        int64          `json:"serial_number"`
	Comment             LegacyString   `json:"comment"`
	Description         LegacyString   `json:"Description"`
	Status              string         `json:"status"`
	CreatedDate         LegacyDate     `json:"stock_take_created_date"`
	StocktakeTime       int64          `json:"stock_take_time"`
	StocktakeDate       LegacyDate     `json:"stock_take_date"`
	AdditionsID         LegacyString   `json:"invad_additions_ID"`
	ReductionsID        LegacyString   `json:"invad_reductions_ID"`
	Locked              bool           `json:"Locked"`
	OmCreatedDatetime   LegacyDateTime `json:"om_created_datetime"`
	OmFinalisedDatetime LegacyDateTime `json:"om_finalised_datetime"`
}

type stocktakeTranslator struct{ base }

func NewStocktakeTranslator() Translator {
	return stocktakeTranslator{base{
		table:  models.TableNameStocktake,
		legacy: LegacyStocktakeTable,
		deps:   []models.TableName{models.TableNameStore},
	}}
}

func (t stocktakeTranslator) TryTranslateFromUpsert(row *models.SyncBufferRow) (*IntegrationRecord, error) {
	var legacy LegacyStocktakeRow
	if ok, err := t.decode(row, &legacy); !ok || err != nil {
		return nil, err
	}

	var status models.StocktakeStatus
	switch legacy.Status {
	case "sg":
		status = models.StocktakeStatusNew
	case "fn":
		status = models.StocktakeStatusFinalised
	default:
		return nil, t.failf(row.RecordID, "unknown stocktake status %q", legacy.Status)
	}

	created := firstOf(legacy.OmCreatedDatetime, combineDateAndTime(legacy.CreatedDate, legacy.StocktakeTime))
	if created == nil {
		return nil, t.failf(row.RecordID, "missing created date")
	}

	finalised := legacy.OmFinalisedDatetime.Ptr()
	if finalised == nil && status == models.StocktakeStatusFinalised {
		finalised = combineDateAndTime(legacy.StocktakeDate, legacy.StocktakeTime)
	}

	return t.upsert(&models.StocktakeRow{
		ID:                   legacy.ID,
		StoreID:              legacy.StoreID,
		UserID:               legacy.CreatedByID,
		StocktakeNumber:      legacy.SerialNumber,
		Comment:              legacy.Comment.Ptr(),
		Description:          legacy.Description.Ptr(),
		Status:               status,
		CreatedDatetime:      *created,
		StocktakeDate:        legacy.StocktakeDate.Ptr(),
		FinalisedDatetime:    finalised,
		InventoryAdditionID:  legacy.AdditionsID.Ptr(),
		InventoryReductionID: legacy.ReductionsID.Ptr(),
		IsLocked:             legacy.Locked,
	}), nil
}

func (t stocktakeTranslator) TryTranslateToUpsert(row models.SyncRow, changelog *models.ChangelogRow) (*PushRecord, error) {
	stocktake, ok := row.(*models.StocktakeRow)
	if !ok {
		return nil, nil
	}

	status := "sg"
	if stocktake.Status == models.StocktakeStatusFinalised {
		status = "fn"
	}
	createdDate, createdTime := splitDateTime(&stocktake.CreatedDatetime)

	return t.push(changelog, LegacyStocktakeRow{
		ID:                  stocktake.ID,
		StoreID:             stocktake.StoreID,
		CreatedByID:         stocktake.UserID,
		SerialNumber:        stocktake.StocktakeNumber,
		Comment:             NewLegacyString(stocktake.Comment),
		Description:         NewLegacyString(stocktake.Description),
		Status:              status,
		CreatedDate:         createdDate,
		StocktakeTime:       createdTime,
		StocktakeDate:       NewLegacyDate(stocktake.StocktakeDate),
		AdditionsID:         NewLegacyString(stocktake.InventoryAdditionID),
		ReductionsID:        NewLegacyString(stocktake.InventoryReductionID),
		Locked:              stocktake.IsLocked,
		OmCreatedDatetime:   NewLegacyDateTime(&stocktake.CreatedDatetime),
		OmFinalisedDatetime: NewLegacyDateTime(stocktake.FinalisedDatetime),
	})
}
