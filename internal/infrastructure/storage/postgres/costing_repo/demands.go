package costing_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/costing"
)

var demandColumns = []string{
	"id", "product_id", "warehouse_id", "quantity",
	"transaction_date", "cost_of_goods_sold", "created_at",
}

// CreateDemandLine persists a new demand line.
func (r *Repo) CreateDemandLine(ctx context.Context, line *costing.DemandLine) error {
	q := r.builder.Insert(demandLinesTable).
		Columns(demandColumns...).
		Values(
			line.ID, line.ProductID, line.WarehouseID, line.Quantity,
			line.TransactionDate, line.CostOfGoodsSold, line.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert demand line: %w", err)
	}

	return nil
}

// GetDemandLine loads one demand line.
func (r *Repo) GetDemandLine(ctx context.Context, lineID id.ID) (*costing.DemandLine, error) {
	q := r.builder.Select(demandColumns...).
		From(demandLinesTable).
		Where(squirrel.Eq{"id": lineID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var line costing.DemandLine
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &line, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("demand line", lineID)
		}
		return nil, fmt.Errorf("get demand line: %w", err)
	}

	return &line, nil
}

// ListDemandsFromDate returns demand lines dated on or after fromDate,
// oldest first with creation order as tie-break so replay is deterministic.
func (r *Repo) ListDemandsFromDate(ctx context.Context, productID id.ID, fromDate time.Time) ([]costing.DemandLine, error) {
	q := r.builder.Select(demandColumns...).
		From(demandLinesTable).
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.GtOrEq{"transaction_date": fromDate}).
		OrderBy("transaction_date", "created_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []costing.DemandLine
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select demand lines: %w", err)
	}

	return lines, nil
}

// UpdateDemandCOGS writes the denormalized cost_of_goods_sold.
func (r *Repo) UpdateDemandCOGS(ctx context.Context, lineID id.ID, cogs types.Money) error {
	q := r.builder.Update(demandLinesTable).
		Set("cost_of_goods_sold", cogs).
		Where(squirrel.Eq{"id": lineID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update demand cogs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("demand line", lineID)
	}

	return nil
}

// GetProductDefaultCost returns the product's configured fallback unit cost,
// zero when the product has none configured.
func (r *Repo) GetProductDefaultCost(ctx context.Context, productID id.ID) (types.Money, error) {
	sql := `SELECT COALESCE(default_cost, 0) FROM products WHERE id = $1`

	var cost decimal.Decimal
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&cost); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown product: fall back to zero, same as a product with
			// no configured default cost.
			return types.Zero(), nil
		}
		return types.Zero(), fmt.Errorf("get default cost: %w", err)
	}

	return cost, nil
}
