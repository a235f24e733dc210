package costing

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/pkg/logger"
)

// Service provides FIFO costing operations over the lot ledger.
// Transactions are managed by the caller; every method assumes it runs
// inside the caller's unit of work and its effects commit or roll back with it.
type Service struct {
	repo Repository
}

// NewService creates a new costing service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// Consume draws the requested quantity from eligible lots oldest-first and
// returns the resulting COGS.
//
// Lots dated after the transaction date are not eligible. A scoped request
// sees its warehouse's lots plus warehouse-less lots; an unscoped request
// sees everything. When eligible stock runs out, the unmet portion is valued
// at the product's default cost and reported as a warning instead of failing
// the draw.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewInvalidQuantity(req.Quantity.String())
	}
	if id.IsNil(req.ProductID) {
		return nil, apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if id.IsNil(req.DemandLineID) {
		return nil, apperror.NewValidation("demand line is required").
			WithDetail("field", "demandLineId")
	}
	if req.TransactionDate.IsZero() {
		return nil, apperror.NewValidation("transaction date is required").
			WithDetail("field", "transactionDate")
	}

	lots, err := s.repo.ListEligibleLotsForUpdate(ctx, req.ProductID, req.WarehouseID, req.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("list eligible lots: %w", err)
	}

	needed := req.Quantity
	totalCost := types.Zero()
	consumptions := make([]LotConsumption, 0, len(lots))

	for i := range lots {
		if !needed.IsPositive() {
			break
		}
		lot := &lots[i]

		draw := types.MinQuantity(needed, lot.RemainingQuantity)
		if !draw.IsPositive() {
			continue
		}

		c := NewLotConsumption(lot, req.DemandLineID, draw)
		lot.RemainingQuantity = lot.RemainingQuantity.Sub(draw)

		if err := s.repo.UpdateLotRemaining(ctx, lot.ID, lot.RemainingQuantity); err != nil {
			return nil, fmt.Errorf("update lot %s remaining: %w", lot.ID, err)
		}

		consumptions = append(consumptions, c)
		totalCost = totalCost.Add(c.TotalCost)
		needed = needed.Sub(draw)
	}

	var warnings []string
	if needed.IsPositive() {
		defaultCost, err := s.repo.GetProductDefaultCost(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get default cost: %w", err)
		}
		totalCost = totalCost.Add(needed.Mul(defaultCost))
		warnings = append(warnings, fmt.Sprintf(
			"stock shortfall: %s of %s units unmet for product %s as of %s; valued at default cost %s",
			needed, req.Quantity, req.ProductID, req.TransactionDate.Format("2006-01-02"), defaultCost,
		))
		logger.Warn(ctx, "stock shortfall during consumption",
			"product_id", req.ProductID,
			"demand_line_id", req.DemandLineID,
			"unmet_quantity", needed.String(),
			"default_cost", defaultCost.String(),
		)
	}

	if len(consumptions) > 0 {
		if err := s.repo.CreateConsumptions(ctx, consumptions); err != nil {
			return nil, fmt.Errorf("create consumptions: %w", err)
		}
	}

	return &ConsumeResult{
		TotalCost:    types.RoundCurrency(totalCost),
		Consumptions: consumptions,
		Warnings:     warnings,
	}, nil
}

// GetAvailableStock sums remaining quantity across eligible lots, applying
// the same warehouse visibility rule as Consume.
func (s *Service) GetAvailableStock(ctx context.Context, productID id.ID, warehouseID *id.ID) (types.Quantity, error) {
	if id.IsNil(productID) {
		return types.Zero(), apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	total, err := s.repo.SumEligibleRemaining(ctx, productID, warehouseID)
	if err != nil {
		return types.Zero(), fmt.Errorf("sum eligible remaining: %w", err)
	}
	return total, nil
}

// ReceiveLot records an inbound lot (purchase receipt, adjustment, return,
// transfer-in, opening balance).
//
// Inserting a lot dated before demands already consumed against newer lots
// changes what "oldest available lot" was for every later sale, so the whole
// affected range is reversed and replayed.
func (s *Service) ReceiveLot(ctx context.Context, lot *StockLot) error {
	if err := lot.Validate(ctx); err != nil {
		return err
	}

	lastConsumed, err := s.repo.MaxConsumedDemandDate(ctx, lot.ProductID)
	if err != nil {
		return fmt.Errorf("check consumption history: %w", err)
	}

	if err := s.repo.CreateLot(ctx, lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}

	logger.Info(ctx, "lot received",
		"lot_id", lot.ID,
		"product_id", lot.ProductID,
		"source", lot.Source,
		"quantity", lot.InitialQuantity.String(),
		"unit_cost", lot.UnitCost.String(),
	)

	if lastConsumed != nil && lastConsumed.After(lot.LotDate) {
		note := fmt.Sprintf("lot %s dated %s inserted before consumed history through %s",
			lot.ID, lot.LotDate.Format("2006-01-02"), lastConsumed.Format("2006-01-02"))
		if err := s.RecalculateFromDate(ctx, lot.ProductID, lot.LotDate, ReasonBackdatedLot, note); err != nil {
			return err
		}
	}

	return nil
}

// RecordDemand persists a demand line and resolves its COGS.
//
// Non-backdated lines consume forward immediately. Backdated lines are
// inserted first and the affected history is reversed and replayed from the
// line's date; the replay processes the new line in its chronological slot.
func (s *Service) RecordDemand(ctx context.Context, line *DemandLine) (*ConsumeResult, error) {
	if err := line.Validate(ctx); err != nil {
		return nil, err
	}
	if id.IsNil(line.ID) {
		line.ID = id.New()
	}

	// Detection must precede any consumption attempt: consuming first and
	// detecting after would corrupt lot state.
	backdated, err := s.IsBackdated(ctx, line.ProductID, line.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("backdating check: %w", err)
	}

	line.CostOfGoodsSold = types.Zero()
	if err := s.repo.CreateDemandLine(ctx, line); err != nil {
		return nil, fmt.Errorf("create demand line: %w", err)
	}

	if !backdated {
		result, err := s.Consume(ctx, ConsumeRequest{
			ProductID:       line.ProductID,
			DemandLineID:    line.ID,
			WarehouseID:     line.WarehouseID,
			Quantity:        line.Quantity,
			TransactionDate: line.TransactionDate,
		})
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateDemandCOGS(ctx, line.ID, result.TotalCost); err != nil {
			return nil, fmt.Errorf("update demand cogs: %w", err)
		}
		line.CostOfGoodsSold = result.TotalCost
		return result, nil
	}

	note := fmt.Sprintf("demand line %s dated %s recorded against newer history",
		line.ID, line.TransactionDate.Format("2006-01-02"))
	replayWarnings, err := s.recalculateFromDate(ctx, line.ProductID, line.TransactionDate, ReasonBackdatedDemand, note)
	if err != nil {
		return nil, err
	}

	// The replay resolved this line's COGS along with everything after it.
	replayed, err := s.repo.GetDemandLine(ctx, line.ID)
	if err != nil {
		return nil, fmt.Errorf("reload demand line: %w", err)
	}
	line.CostOfGoodsSold = replayed.CostOfGoodsSold

	consumptions, err := s.repo.ListConsumptionsByDemand(ctx, line.ID)
	if err != nil {
		return nil, fmt.Errorf("list consumptions: %w", err)
	}

	return &ConsumeResult{
		TotalCost:    replayed.CostOfGoodsSold,
		Consumptions: consumptions,
		// A shortfall on this line's own replayed draw still belongs to
		// the caller, not just the log.
		Warnings: replayWarnings[line.ID],
	}, nil
}
