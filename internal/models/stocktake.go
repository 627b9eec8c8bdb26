package models

import "time"

// StocktakeStatus is the lifecycle state of a stocktake
type StocktakeStatus string

const (
	StocktakeStatusNew       StocktakeStatus = "NEW"
	StocktakeStatusFinalised StocktakeStatus = "FINALISED"
)

// StocktakeRow is a stock count for one store
type StocktakeRow struct {
	ID                   string          `json:"id"`
	StoreID              string          `json:"storeId"`
	UserID               string          `json:"userId"`
	StocktakeNumber      int64           `json:"stocktakeNumber"`
	Comment              *string         `json:"comment,omitempty"`
	Description          *string         `json:"description,omitempty"`
	Status               StocktakeStatus `json:"status"`
	CreatedDatetime      time.Time       `json:"createdDatetime"`
	StocktakeDate        *time.Time      `json:"stocktakeDate,omitempty"`
	FinalisedDatetime    *time.Time      `json:"finalisedDatetime,omitempty"`
	InventoryAdditionID  *string         `json:"inventoryAdditionId,omitempty"`
	InventoryReductionID *string         `json:"inventoryReductionId,omitempty"`
	IsLocked             bool            `json:"isLocked"`
}

func (r *StocktakeRow) Table() TableName { return TableNameStocktake }
func (r *StocktakeRow) RecordID() string { return r.ID }
