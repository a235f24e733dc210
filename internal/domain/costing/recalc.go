package costing

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/pkg/logger"
)

// RecalculateFromDate reverses every consumption for the product from
// fromDate forward and replays the affected demand lines in chronological
// order, recomputing each line's COGS through the normal FIFO draw.
//
// Full reversal-and-replay is used instead of incremental patching because
// FIFO draw order is globally order-dependent: one inserted lot can shift
// which lot every later sale drew from.
//
// Must run inside the transaction of the triggering change. Any error aborts
// the whole operation; partial replay would leave lots and COGS mutually
// inconsistent, so nothing is persisted unless everything is.
func (s *Service) RecalculateFromDate(ctx context.Context, productID id.ID, fromDate time.Time, reason RecalcReason, note string) error {
	_, err := s.recalculateFromDate(ctx, productID, fromDate, reason, note)
	return err
}

// recalculateFromDate additionally returns the shortfall warnings each
// replayed demand line produced, keyed by line ID, so callers acting on
// behalf of one specific line can surface that line's warnings.
func (s *Service) recalculateFromDate(ctx context.Context, productID id.ID, fromDate time.Time, reason RecalcReason, note string) (map[id.ID][]string, error) {
	if id.IsNil(productID) {
		return nil, apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if fromDate.IsZero() {
		return nil, apperror.NewValidation("from date is required").
			WithDetail("field", "fromDate")
	}

	reversed, err := s.reverseFromDate(ctx, productID, fromDate)
	if err != nil {
		return nil, apperror.NewRecalculationFailed(productID.String(), err)
	}

	replayed, warnings, err := s.replayFromDate(ctx, productID, fromDate)
	if err != nil {
		return nil, apperror.NewRecalculationFailed(productID.String(), err)
	}

	entry := NewRecalculationAudit(productID, fromDate, reason, note)
	if err := s.repo.AppendRecalculationAudit(ctx, entry); err != nil {
		return nil, apperror.NewRecalculationFailed(productID.String(), fmt.Errorf("append audit: %w", err))
	}

	logger.Info(ctx, "recalculation complete",
		"product_id", productID,
		"from_date", fromDate.Format("2006-01-02"),
		"reason", reason,
		"reversed_consumptions", reversed,
		"replayed_demands", replayed,
	)

	return warnings, nil
}

// reverseFromDate restores consumed quantities onto their source lots,
// deletes the consumption records, and zeroes the owning lines' COGS.
// Processes oldest demand first.
func (s *Service) reverseFromDate(ctx context.Context, productID id.ID, fromDate time.Time) (int, error) {
	consumptions, err := s.repo.ListConsumptionsFromDate(ctx, productID, fromDate)
	if err != nil {
		return 0, fmt.Errorf("list consumptions: %w", err)
	}

	for _, c := range consumptions {
		lot, err := s.repo.GetLotForUpdate(ctx, c.StockLotID)
		if err != nil {
			return 0, fmt.Errorf("load lot %s: %w", c.StockLotID, err)
		}

		restored := lot.RemainingQuantity.Add(c.Quantity)
		if restored.GreaterThan(lot.InitialQuantity) {
			return 0, fmt.Errorf("lot %s: restoring %s would exceed initial quantity %s",
				lot.ID, c.Quantity, lot.InitialQuantity)
		}

		if err := s.repo.UpdateLotRemaining(ctx, lot.ID, restored); err != nil {
			return 0, fmt.Errorf("restore lot %s: %w", lot.ID, err)
		}
		if err := s.repo.DeleteConsumption(ctx, c.ID); err != nil {
			return 0, fmt.Errorf("delete consumption %s: %w", c.ID, err)
		}
		if err := s.repo.UpdateDemandCOGS(ctx, c.DemandLineID, types.Zero()); err != nil {
			return 0, fmt.Errorf("zero demand %s cogs: %w", c.DemandLineID, err)
		}
	}

	return len(consumptions), nil
}

// replayFromDate re-runs the FIFO draw for every demand line from fromDate
// forward, oldest first, exactly as if each were being processed for the
// first time. Shortfalls during replay degrade to default cost with a
// warning, the same as a live draw; the warnings are returned keyed by
// demand line ID.
func (s *Service) replayFromDate(ctx context.Context, productID id.ID, fromDate time.Time) (int, map[id.ID][]string, error) {
	demands, err := s.repo.ListDemandsFromDate(ctx, productID, fromDate)
	if err != nil {
		return 0, nil, fmt.Errorf("list demands: %w", err)
	}

	warnings := make(map[id.ID][]string)
	for _, d := range demands {
		result, err := s.Consume(ctx, ConsumeRequest{
			ProductID:       d.ProductID,
			DemandLineID:    d.ID,
			WarehouseID:     d.WarehouseID,
			Quantity:        d.Quantity,
			TransactionDate: d.TransactionDate,
		})
		if err != nil {
			return 0, nil, fmt.Errorf("replay demand %s: %w", d.ID, err)
		}

		for _, w := range result.Warnings {
			logger.Warn(ctx, "shortfall during replay",
				"product_id", productID,
				"demand_line_id", d.ID,
				"warning", w,
			)
		}
		if len(result.Warnings) > 0 {
			warnings[d.ID] = result.Warnings
		}

		if err := s.repo.UpdateDemandCOGS(ctx, d.ID, result.TotalCost); err != nil {
			return 0, nil, fmt.Errorf("update demand %s cogs: %w", d.ID, err)
		}
	}

	return len(demands), warnings, nil
}
