package costing

import (
	"context"
	"sort"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// memoryRepo is an in-memory Repository for engine tests. It mirrors the
// SQL implementation's ordering rules: lot_date then creation order for
// lots, transaction_date then creation order for demands.
type memoryRepo struct {
	lots         map[id.ID]*StockLot
	lotOrder     []id.ID
	consumptions map[id.ID]*LotConsumption
	consOrder    []id.ID
	demands      map[id.ID]*DemandLine
	demandOrder  []id.ID
	defaultCosts map[id.ID]types.Money
	audits       []RecalculationAudit
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:         make(map[id.ID]*StockLot),
		consumptions: make(map[id.ID]*LotConsumption),
		demands:      make(map[id.ID]*DemandLine),
		defaultCosts: make(map[id.ID]types.Money),
	}
}

var _ Repository = (*memoryRepo)(nil)

func (m *memoryRepo) CreateLot(_ context.Context, lot *StockLot) error {
	cp := *lot
	m.lots[lot.ID] = &cp
	m.lotOrder = append(m.lotOrder, lot.ID)
	return nil
}

func (m *memoryRepo) GetLotForUpdate(_ context.Context, lotID id.ID) (*StockLot, error) {
	lot, ok := m.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("stock lot", lotID)
	}
	cp := *lot
	return &cp, nil
}

func (m *memoryRepo) eligible(lot *StockLot, warehouseID *id.ID) bool {
	if !lot.RemainingQuantity.IsPositive() {
		return false
	}
	if warehouseID == nil {
		return true
	}
	// Scoped: own warehouse or legacy warehouse-less stock.
	return lot.WarehouseID == nil || *lot.WarehouseID == *warehouseID
}

func (m *memoryRepo) ListEligibleLotsForUpdate(_ context.Context, productID id.ID, warehouseID *id.ID, asOf time.Time) ([]StockLot, error) {
	var result []StockLot
	for _, lotID := range m.lotOrder {
		lot := m.lots[lotID]
		if lot.ProductID != productID {
			continue
		}
		if lot.LotDate.After(asOf) {
			continue
		}
		if !m.eligible(lot, warehouseID) {
			continue
		}
		result = append(result, *lot)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LotDate.Before(result[j].LotDate)
	})
	return result, nil
}

func (m *memoryRepo) UpdateLotRemaining(_ context.Context, lotID id.ID, remaining types.Quantity) error {
	lot, ok := m.lots[lotID]
	if !ok {
		return apperror.NewNotFound("stock lot", lotID)
	}
	lot.RemainingQuantity = remaining
	return nil
}

func (m *memoryRepo) ListLotsByProduct(_ context.Context, productID id.ID) ([]StockLot, error) {
	var result []StockLot
	for _, lotID := range m.lotOrder {
		lot := m.lots[lotID]
		if lot.ProductID == productID {
			result = append(result, *lot)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LotDate.Before(result[j].LotDate)
	})
	return result, nil
}

func (m *memoryRepo) SumEligibleRemaining(_ context.Context, productID id.ID, warehouseID *id.ID) (types.Quantity, error) {
	total := types.Zero()
	for _, lot := range m.lots {
		if lot.ProductID != productID {
			continue
		}
		if !m.eligible(lot, warehouseID) {
			continue
		}
		total = total.Add(lot.RemainingQuantity)
	}
	return total, nil
}

func (m *memoryRepo) MaxLotDate(_ context.Context, productID id.ID) (*time.Time, error) {
	var max *time.Time
	for _, lot := range m.lots {
		if lot.ProductID != productID {
			continue
		}
		if max == nil || lot.LotDate.After(*max) {
			d := lot.LotDate
			max = &d
		}
	}
	return max, nil
}

func (m *memoryRepo) CreateConsumptions(_ context.Context, consumptions []LotConsumption) error {
	for _, c := range consumptions {
		cp := c
		m.consumptions[c.ID] = &cp
		m.consOrder = append(m.consOrder, c.ID)
	}
	return nil
}

func (m *memoryRepo) ListConsumptionsFromDate(_ context.Context, productID id.ID, fromDate time.Time) ([]LotConsumption, error) {
	type keyed struct {
		c        LotConsumption
		demandAt time.Time
		demandNo int
	}
	var rows []keyed
	for _, cID := range m.consOrder {
		c, ok := m.consumptions[cID]
		if !ok {
			continue
		}
		demand, ok := m.demands[c.DemandLineID]
		if !ok || demand.ProductID != productID {
			continue
		}
		if demand.TransactionDate.Before(fromDate) {
			continue
		}
		rows = append(rows, keyed{c: *c, demandAt: demand.TransactionDate, demandNo: m.demandIndex(demand.ID)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].demandAt.Equal(rows[j].demandAt) {
			return rows[i].demandAt.Before(rows[j].demandAt)
		}
		return rows[i].demandNo < rows[j].demandNo
	})
	result := make([]LotConsumption, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.c)
	}
	return result, nil
}

func (m *memoryRepo) demandIndex(demandID id.ID) int {
	for i, d := range m.demandOrder {
		if d == demandID {
			return i
		}
	}
	return len(m.demandOrder)
}

func (m *memoryRepo) ListConsumptionsByDemand(_ context.Context, demandLineID id.ID) ([]LotConsumption, error) {
	var result []LotConsumption
	for _, cID := range m.consOrder {
		c, ok := m.consumptions[cID]
		if ok && c.DemandLineID == demandLineID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (m *memoryRepo) DeleteConsumption(_ context.Context, consumptionID id.ID) error {
	if _, ok := m.consumptions[consumptionID]; !ok {
		return apperror.NewNotFound("consumption", consumptionID)
	}
	delete(m.consumptions, consumptionID)
	return nil
}

func (m *memoryRepo) MaxConsumedDemandDate(_ context.Context, productID id.ID) (*time.Time, error) {
	var max *time.Time
	for _, c := range m.consumptions {
		demand, ok := m.demands[c.DemandLineID]
		if !ok || demand.ProductID != productID {
			continue
		}
		if max == nil || demand.TransactionDate.After(*max) {
			d := demand.TransactionDate
			max = &d
		}
	}
	return max, nil
}

func (m *memoryRepo) CreateDemandLine(_ context.Context, line *DemandLine) error {
	cp := *line
	m.demands[line.ID] = &cp
	m.demandOrder = append(m.demandOrder, line.ID)
	return nil
}

func (m *memoryRepo) GetDemandLine(_ context.Context, lineID id.ID) (*DemandLine, error) {
	line, ok := m.demands[lineID]
	if !ok {
		return nil, apperror.NewNotFound("demand line", lineID)
	}
	cp := *line
	return &cp, nil
}

func (m *memoryRepo) ListDemandsFromDate(_ context.Context, productID id.ID, fromDate time.Time) ([]DemandLine, error) {
	var result []DemandLine
	for _, dID := range m.demandOrder {
		d := m.demands[dID]
		if d.ProductID != productID {
			continue
		}
		if d.TransactionDate.Before(fromDate) {
			continue
		}
		result = append(result, *d)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TransactionDate.Before(result[j].TransactionDate)
	})
	return result, nil
}

func (m *memoryRepo) UpdateDemandCOGS(_ context.Context, lineID id.ID, cogs types.Money) error {
	line, ok := m.demands[lineID]
	if !ok {
		return apperror.NewNotFound("demand line", lineID)
	}
	line.CostOfGoodsSold = cogs
	return nil
}

func (m *memoryRepo) GetProductDefaultCost(_ context.Context, productID id.ID) (types.Money, error) {
	if cost, ok := m.defaultCosts[productID]; ok {
		return cost, nil
	}
	return types.Zero(), nil
}

func (m *memoryRepo) AppendRecalculationAudit(_ context.Context, entry *RecalculationAudit) error {
	m.audits = append(m.audits, *entry)
	return nil
}

func (m *memoryRepo) ListRecalculationAudit(_ context.Context, productID id.ID, limit int) ([]RecalculationAudit, error) {
	var result []RecalculationAudit
	for i := len(m.audits) - 1; i >= 0; i-- {
		if m.audits[i].ProductID != productID {
			continue
		}
		result = append(result, m.audits[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
