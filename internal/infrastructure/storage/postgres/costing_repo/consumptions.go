package costing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/costing"
	"lotledger/internal/infrastructure/storage/postgres"
)

var consumptionColumns = []string{
	"id", "stock_lot_id", "demand_line_id", "quantity", "unit_cost", "total_cost", "created_at",
}

// CreateConsumptions batch inserts consumption records.
func (r *Repo) CreateConsumptions(ctx context.Context, consumptions []costing.LotConsumption) error {
	if len(consumptions) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	if tx := r.txm.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txm)
		rows := make([][]any, 0, len(consumptions))
		for _, c := range consumptions {
			rows = append(rows, []any{
				c.ID, c.StockLotID, c.DemandLineID, c.Quantity, c.UnitCost, c.TotalCost, c.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, consumptionsTable, consumptionColumns, rows); err != nil {
			return fmt.Errorf("copy consumptions: %w", err)
		}
		return nil
	}

	// Fallback: plain insert. Prefer calling within a transaction.
	q := r.builder.Insert(consumptionsTable).Columns(consumptionColumns...)
	for _, c := range consumptions {
		q = q.Values(c.ID, c.StockLotID, c.DemandLineID, c.Quantity, c.UnitCost, c.TotalCost, c.CreatedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert consumptions: %w", err)
	}

	return nil
}

// ListConsumptionsFromDate returns consumptions whose owning demand line is
// dated on or after fromDate, ordered oldest demand first.
func (r *Repo) ListConsumptionsFromDate(ctx context.Context, productID id.ID, fromDate time.Time) ([]costing.LotConsumption, error) {
	q := r.builder.Select(
		"c.id", "c.stock_lot_id", "c.demand_line_id",
		"c.quantity", "c.unit_cost", "c.total_cost", "c.created_at",
	).
		From(consumptionsTable + " c").
		Join(demandLinesTable + " d ON d.id = c.demand_line_id").
		Where(squirrel.Eq{"d.product_id": productID}).
		Where(squirrel.GtOrEq{"d.transaction_date": fromDate}).
		OrderBy("d.transaction_date", "d.created_at", "d.id", "c.created_at", "c.id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var consumptions []costing.LotConsumption
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &consumptions, sql, args...); err != nil {
		return nil, fmt.Errorf("select consumptions: %w", err)
	}

	return consumptions, nil
}

// ListConsumptionsByDemand returns the consumptions owned by one demand line.
func (r *Repo) ListConsumptionsByDemand(ctx context.Context, demandLineID id.ID) ([]costing.LotConsumption, error) {
	q := r.builder.Select(consumptionColumns...).
		From(consumptionsTable).
		Where(squirrel.Eq{"demand_line_id": demandLineID}).
		OrderBy("created_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var consumptions []costing.LotConsumption
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &consumptions, sql, args...); err != nil {
		return nil, fmt.Errorf("select consumptions: %w", err)
	}

	return consumptions, nil
}

// DeleteConsumption removes one consumption during reversal.
func (r *Repo) DeleteConsumption(ctx context.Context, consumptionID id.ID) error {
	q := r.builder.Delete(consumptionsTable).
		Where(squirrel.Eq{"id": consumptionID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete consumption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("consumption", consumptionID)
	}

	return nil
}

// MaxConsumedDemandDate returns the latest transaction date among demand
// lines that have consumptions.
func (r *Repo) MaxConsumedDemandDate(ctx context.Context, productID id.ID) (*time.Time, error) {
	sql := `
		SELECT MAX(d.transaction_date)
		FROM demand_lines d
		WHERE d.product_id = $1
		  AND EXISTS (
			SELECT 1 FROM stock_lot_consumptions c WHERE c.demand_line_id = d.id
		  )
	`

	var maxDate *time.Time
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID).Scan(&maxDate); err != nil {
		return nil, fmt.Errorf("max consumed demand date: %w", err)
	}

	return maxDate, nil
}
