// Package costing implements FIFO stock-lot costing with support for
// backdated transactions. Every unit sold is attributed to the purchase lot
// it was drawn from; inserting history in the past reverses and replays all
// affected draws so lot remainders and COGS stay consistent.
package costing

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// LotSource describes how inventory entered a lot.
type LotSource string

const (
	LotSourcePurchase   LotSource = "purchase"
	LotSourceAdjustment LotSource = "adjustment"
	LotSourceReturn     LotSource = "return"
	LotSourceTransferIn LotSource = "transfer_in"
	LotSourceOpening    LotSource = "opening"
)

// StockLot is one inbound batch of inventory carrying its own cost basis.
//
// RemainingQuantity only decreases via consumption and only increases via
// reversal. A lot is never deleted while consumptions reference it; it is
// logically retired when remaining reaches zero but the row persists for
// history.
type StockLot struct {
	ID        id.ID `db:"id" json:"id"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// WarehouseID is nil for global/unscoped stock. Lots recorded before an
	// organization enabled multi-warehouse tracking have no warehouse and
	// stay visible to every scoped query.
	WarehouseID *id.ID `db:"warehouse_id" json:"warehouseId,omitempty"`

	Source LotSource `db:"source" json:"source"`

	// LotDate is the date the inventory became available, not the date the
	// row was created. FIFO ordering and backdating checks key off it.
	LotDate time.Time `db:"lot_date" json:"lotDate"`

	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// InitialQuantity is immutable after creation.
	InitialQuantity   types.Quantity `db:"initial_quantity" json:"initialQuantity"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewStockLot creates a lot with remaining equal to initial quantity.
func NewStockLot(productID id.ID, warehouseID *id.ID, source LotSource, lotDate time.Time, unitCost types.Money, quantity types.Quantity) *StockLot {
	return &StockLot{
		ID:                id.New(),
		ProductID:         productID,
		WarehouseID:       warehouseID,
		Source:            source,
		LotDate:           lotDate,
		UnitCost:          unitCost,
		InitialQuantity:   quantity,
		RemainingQuantity: quantity,
		CreatedAt:         time.Now().UTC(),
	}
}

// Validate checks lot invariants.
func (l *StockLot) Validate(ctx context.Context) error {
	if id.IsNil(l.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if !l.InitialQuantity.IsPositive() {
		return apperror.NewValidation("initial quantity must be positive").
			WithDetail("field", "initialQuantity")
	}
	if l.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").
			WithDetail("field", "unitCost")
	}
	if l.RemainingQuantity.IsNegative() || l.RemainingQuantity.GreaterThan(l.InitialQuantity) {
		return apperror.NewValidation("remaining quantity out of range").
			WithDetail("field", "remainingQuantity")
	}
	if l.LotDate.IsZero() {
		return apperror.NewValidation("lot date is required").
			WithDetail("field", "lotDate")
	}
	switch l.Source {
	case LotSourcePurchase, LotSourceAdjustment, LotSourceReturn, LotSourceTransferIn, LotSourceOpening:
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown lot source %q", l.Source)).
			WithDetail("field", "source")
	}
	return nil
}

// IsExhausted reports whether the lot has no remaining stock.
func (l *StockLot) IsExhausted() bool {
	return !l.RemainingQuantity.IsPositive()
}

// LotConsumption is one draw against one lot by one demand line.
// UnitCost is a snapshot of the lot's cost at the time of the draw, not a
// live reference.
type LotConsumption struct {
	ID           id.ID          `db:"id" json:"id"`
	StockLotID   id.ID          `db:"stock_lot_id" json:"stockLotId"`
	DemandLineID id.ID          `db:"demand_line_id" json:"demandLineId"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	UnitCost     types.Money    `db:"unit_cost" json:"unitCost"`
	TotalCost    types.Money    `db:"total_cost" json:"totalCost"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// NewLotConsumption snapshots the lot's unit cost for the drawn quantity.
// TotalCost is kept unrounded; currency rounding happens once on the final
// COGS total.
func NewLotConsumption(lot *StockLot, demandLineID id.ID, quantity types.Quantity) LotConsumption {
	return LotConsumption{
		ID:           id.New(),
		StockLotID:   lot.ID,
		DemandLineID: demandLineID,
		Quantity:     quantity,
		UnitCost:     lot.UnitCost,
		TotalCost:    quantity.Mul(lot.UnitCost),
		CreatedAt:    time.Now().UTC(),
	}
}

// DemandLine is a consuming event, typically an invoice line. It owns its
// consumptions; CostOfGoodsSold is denormalized and must equal the sum of
// those consumptions' total cost (or zero when unresolved).
type DemandLine struct {
	ID          id.ID          `db:"id" json:"id"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	WarehouseID *id.ID         `db:"warehouse_id" json:"warehouseId,omitempty"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`

	// TransactionDate is the business date of the sale. It may legitimately
	// precede already-recorded history (backdating).
	TransactionDate time.Time `db:"transaction_date" json:"transactionDate"`

	CostOfGoodsSold types.Money `db:"cost_of_goods_sold" json:"costOfGoodsSold"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
}

// NewDemandLine creates a demand line with unresolved COGS.
func NewDemandLine(productID id.ID, warehouseID *id.ID, quantity types.Quantity, transactionDate time.Time) *DemandLine {
	return &DemandLine{
		ID:              id.New(),
		ProductID:       productID,
		WarehouseID:     warehouseID,
		Quantity:        quantity,
		TransactionDate: transactionDate,
		CostOfGoodsSold: types.Zero(),
		CreatedAt:       time.Now().UTC(),
	}
}

// Validate checks demand line invariants.
func (d *DemandLine) Validate(ctx context.Context) error {
	if id.IsNil(d.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if !d.Quantity.IsPositive() {
		return apperror.NewInvalidQuantity(d.Quantity.String())
	}
	if d.TransactionDate.IsZero() {
		return apperror.NewValidation("transaction date is required").
			WithDetail("field", "transactionDate")
	}
	return nil
}

// RecalcReason classifies what triggered a recalculation.
type RecalcReason string

const (
	// ReasonBackdatedDemand - a demand line was recorded with a date earlier
	// than existing lot/consumption history.
	ReasonBackdatedDemand RecalcReason = "backdated_demand"
	// ReasonBackdatedLot - a lot was inserted before demands already
	// consumed against newer lots, shifting the FIFO draw order.
	ReasonBackdatedLot RecalcReason = "backdated_lot"
	// ReasonManual - admin correction via the maintenance tooling.
	ReasonManual RecalcReason = "manual"
)

// RecalculationAudit is an immutable record of one recalculation run.
// One entry summarizes the whole run, not one per affected transaction.
type RecalculationAudit struct {
	ID          id.ID        `db:"id" json:"id"`
	ProductID   id.ID        `db:"product_id" json:"productId"`
	TriggerDate time.Time    `db:"trigger_date" json:"triggerDate"`
	ReasonCode  RecalcReason `db:"reason_code" json:"reasonCode"`
	Note        string       `db:"note" json:"note"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
}

// NewRecalculationAudit creates an audit entry for a recalculation run.
func NewRecalculationAudit(productID id.ID, triggerDate time.Time, reason RecalcReason, note string) *RecalculationAudit {
	return &RecalculationAudit{
		ID:          id.New(),
		ProductID:   productID,
		TriggerDate: triggerDate,
		ReasonCode:  reason,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
	}
}

// ConsumeRequest describes one FIFO draw.
type ConsumeRequest struct {
	ProductID    id.ID
	DemandLineID id.ID

	// WarehouseID scopes the draw. Scoped requests see that warehouse's
	// lots plus warehouse-less lots; unscoped requests see everything.
	WarehouseID *id.ID

	Quantity types.Quantity

	// TransactionDate bounds lot eligibility: lots dated strictly after it
	// did not exist as of the sale and must not be drawn.
	TransactionDate time.Time
}

// ConsumeResult is the outcome of one FIFO draw.
type ConsumeResult struct {
	// TotalCost is the COGS for the full requested quantity, rounded to
	// currency precision, including any default-cost fallback portion.
	TotalCost types.Money `json:"totalCost"`

	Consumptions []LotConsumption `json:"consumptions"`

	// Warnings carries non-fatal shortfall notices. A shortfall never fails
	// the draw: a sale must be recordable even when inventory bookkeeping
	// is imperfect.
	Warnings []string `json:"warnings,omitempty"`
}
