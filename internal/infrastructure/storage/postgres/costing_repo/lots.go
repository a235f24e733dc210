package costing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/costing"
)

var lotColumns = []string{
	"id", "product_id", "warehouse_id", "source", "lot_date",
	"unit_cost", "initial_quantity", "remaining_quantity", "created_at",
}

// CreateLot persists a new lot.
func (r *Repo) CreateLot(ctx context.Context, lot *costing.StockLot) error {
	q := r.builder.Insert(stockLotsTable).
		Columns(lotColumns...).
		Values(
			lot.ID, lot.ProductID, lot.WarehouseID, lot.Source, lot.LotDate,
			lot.UnitCost, lot.InitialQuantity, lot.RemainingQuantity, lot.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}

	return nil
}

// GetLotForUpdate loads a lot with a row lock.
func (r *Repo) GetLotForUpdate(ctx context.Context, lotID id.ID) (*costing.StockLot, error) {
	sql := `
		SELECT id, product_id, warehouse_id, source, lot_date,
		       unit_cost, initial_quantity, remaining_quantity, created_at
		FROM stock_lots
		WHERE id = $1
		FOR UPDATE
	`

	var lot costing.StockLot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &lot, sql, lotID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock lot", lotID)
		}
		return nil, fmt.Errorf("get lot for update: %w", err)
	}

	return &lot, nil
}

// ListEligibleLotsForUpdate returns eligible lots, locked, in strict FIFO
// order: lot_date ascending, then id (UUIDv7, creation order) as the
// explicit tie-break.
func (r *Repo) ListEligibleLotsForUpdate(ctx context.Context, productID id.ID, warehouseID *id.ID, asOf time.Time) ([]costing.StockLot, error) {
	q := r.builder.Select(lotColumns...).
		From(stockLotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		Where(squirrel.LtOrEq{"lot_date": asOf})

	q = applyWarehouseFilter(q, warehouseID)

	q = q.OrderBy("lot_date", "id").Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []costing.StockLot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select eligible lots: %w", err)
	}

	return lots, nil
}

// UpdateLotRemaining writes a lot's remaining quantity.
func (r *Repo) UpdateLotRemaining(ctx context.Context, lotID id.ID, remaining types.Quantity) error {
	q := r.builder.Update(stockLotsTable).
		Set("remaining_quantity", remaining).
		Where(squirrel.Eq{"id": lotID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update lot remaining: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock lot", lotID)
	}

	return nil
}

// ListLotsByProduct returns all lots for a product, oldest first.
func (r *Repo) ListLotsByProduct(ctx context.Context, productID id.ID) ([]costing.StockLot, error) {
	q := r.builder.Select(lotColumns...).
		From(stockLotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("lot_date", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []costing.StockLot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}

	return lots, nil
}

// SumEligibleRemaining totals remaining quantity across eligible lots.
func (r *Repo) SumEligibleRemaining(ctx context.Context, productID id.ID, warehouseID *id.ID) (types.Quantity, error) {
	q := r.builder.Select("COALESCE(SUM(remaining_quantity), 0)").
		From(stockLotsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Gt{"remaining_quantity": 0})

	q = applyWarehouseFilter(q, warehouseID)

	sql, args, err := q.ToSql()
	if err != nil {
		return types.Zero(), fmt.Errorf("build query: %w", err)
	}

	var total decimal.Decimal
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return types.Zero(), fmt.Errorf("sum remaining: %w", err)
	}

	return total, nil
}

// MaxLotDate returns the latest lot_date for a product, nil when no lots exist.
func (r *Repo) MaxLotDate(ctx context.Context, productID id.ID) (*time.Time, error) {
	sql := `SELECT MAX(lot_date) FROM stock_lots WHERE product_id = $1`

	var maxDate *time.Time
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&maxDate); err != nil {
		return nil, fmt.Errorf("max lot date: %w", err)
	}

	return maxDate, nil
}

// applyWarehouseFilter appends the warehouse visibility predicate.
// Scoped queries see the warehouse's own lots OR lots with no warehouse at
// all - intentional legacy-compatibility behavior for stock recorded before
// multi-warehouse tracking was enabled, not a bug. Unscoped queries see
// every lot.
func applyWarehouseFilter(q squirrel.SelectBuilder, warehouseID *id.ID) squirrel.SelectBuilder {
	if warehouseID == nil {
		return q
	}
	return q.Where(squirrel.Or{
		squirrel.Eq{"warehouse_id": *warehouseID},
		squirrel.Eq{"warehouse_id": nil},
	})
}
