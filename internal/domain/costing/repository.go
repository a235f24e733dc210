package costing

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines storage operations for the costing ledger.
//
// All mutating methods are expected to run inside a transaction owned by the
// caller; the engine never opens or commits one itself. Serialization of
// concurrent draws against the same product relies on the storage layer's
// row locks (ListEligibleLotsForUpdate / GetLotForUpdate).
type Repository interface {
	// Lot operations

	// CreateLot persists a new lot.
	CreateLot(ctx context.Context, lot *StockLot) error

	// GetLotForUpdate loads a lot with a row lock for reversal.
	GetLotForUpdate(ctx context.Context, lotID id.ID) (*StockLot, error)

	// ListEligibleLotsForUpdate returns lots eligible for a draw, locked,
	// ordered by lot_date ascending with id (creation order) as tie-break.
	//
	// Eligibility: product matches, remaining_quantity > 0, lot_date <= asOf,
	// and — when warehouseID is given — the lot belongs to that warehouse OR
	// has no warehouse at all. The second clause is intentional
	// legacy-compatibility behavior: stock recorded before multi-warehouse
	// tracking was enabled is treated as visible everywhere.
	ListEligibleLotsForUpdate(ctx context.Context, productID id.ID, warehouseID *id.ID, asOf time.Time) ([]StockLot, error)

	// UpdateLotRemaining writes a lot's remaining quantity.
	UpdateLotRemaining(ctx context.Context, lotID id.ID, remaining types.Quantity) error

	// ListLotsByProduct returns all lots for a product, oldest first.
	ListLotsByProduct(ctx context.Context, productID id.ID) ([]StockLot, error)

	// SumEligibleRemaining totals remaining quantity across eligible lots
	// (same warehouse rule as ListEligibleLotsForUpdate, no date bound).
	SumEligibleRemaining(ctx context.Context, productID id.ID, warehouseID *id.ID) (types.Quantity, error)

	// MaxLotDate returns the latest lot_date recorded for a product,
	// or nil when the product has no lots.
	MaxLotDate(ctx context.Context, productID id.ID) (*time.Time, error)

	// Consumption operations

	// CreateConsumptions batch inserts consumption records.
	CreateConsumptions(ctx context.Context, consumptions []LotConsumption) error

	// ListConsumptionsFromDate returns all consumptions whose owning demand
	// line is dated on or after fromDate, ordered oldest demand first
	// (transaction_date, then creation order).
	ListConsumptionsFromDate(ctx context.Context, productID id.ID, fromDate time.Time) ([]LotConsumption, error)

	// ListConsumptionsByDemand returns the consumptions owned by one demand line.
	ListConsumptionsByDemand(ctx context.Context, demandLineID id.ID) ([]LotConsumption, error)

	// DeleteConsumption removes one consumption during reversal.
	DeleteConsumption(ctx context.Context, consumptionID id.ID) error

	// MaxConsumedDemandDate returns the latest transaction date among demand
	// lines that have consumptions, or nil when none exist.
	MaxConsumedDemandDate(ctx context.Context, productID id.ID) (*time.Time, error)

	// Demand line operations

	// CreateDemandLine persists a new demand line.
	CreateDemandLine(ctx context.Context, line *DemandLine) error

	// GetDemandLine loads one demand line.
	GetDemandLine(ctx context.Context, lineID id.ID) (*DemandLine, error)

	// ListDemandsFromDate returns demand lines dated on or after fromDate,
	// ordered strictly oldest first with creation order as tie-break, so
	// replay is deterministic.
	ListDemandsFromDate(ctx context.Context, productID id.ID, fromDate time.Time) ([]DemandLine, error)

	// UpdateDemandCOGS writes the denormalized cost_of_goods_sold.
	UpdateDemandCOGS(ctx context.Context, lineID id.ID, cogs types.Money) error

	// Product settings

	// GetProductDefaultCost returns the product's configured fallback unit
	// cost, or zero when none is set.
	GetProductDefaultCost(ctx context.Context, productID id.ID) (types.Money, error)

	// Audit trail

	// AppendRecalculationAudit appends one immutable audit entry.
	AppendRecalculationAudit(ctx context.Context, entry *RecalculationAudit) error

	// ListRecalculationAudit returns audit entries for a product, newest
	// first, up to limit (0 = no limit).
	ListRecalculationAudit(ctx context.Context, productID id.ID, limit int) ([]RecalculationAudit, error)
}
