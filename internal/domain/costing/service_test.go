package costing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// addLot inserts a lot directly, bypassing ReceiveLot's backdating check.
func addLot(t *testing.T, repo *memoryRepo, productID id.ID, warehouseID *id.ID, date, cost, qty string) *StockLot {
	t.Helper()
	lot := NewStockLot(productID, warehouseID, LotSourcePurchase,
		mustDate(date), types.MustMoney(cost), types.MustQuantity(qty))
	require.NoError(t, repo.CreateLot(context.Background(), lot))
	return lot
}

func requireDecimalEqual(t *testing.T, expected string, actual types.Money) {
	t.Helper()
	require.True(t, types.MustMoney(expected).Equal(actual),
		"expected %s, got %s", expected, actual)
}

func TestConsume_FIFOOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	lot1 := addLot(t, repo, productID, nil, "2024-01-01", "10", "5")
	lot2 := addLot(t, repo, productID, nil, "2024-02-01", "12", "5")
	lot3 := addLot(t, repo, productID, nil, "2024-03-01", "14", "5")

	// q1 + 1: all of lot1 plus exactly one unit of lot2, lot3 untouched.
	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("6"),
		TransactionDate: mustDate("2024-06-01"),
	})
	require.NoError(t, err)

	require.Len(t, result.Consumptions, 2)
	assert.Equal(t, lot1.ID, result.Consumptions[0].StockLotID)
	requireDecimalEqual(t, "5", result.Consumptions[0].Quantity)
	assert.Equal(t, lot2.ID, result.Consumptions[1].StockLotID)
	requireDecimalEqual(t, "1", result.Consumptions[1].Quantity)

	requireDecimalEqual(t, "0", repo.lots[lot1.ID].RemainingQuantity)
	requireDecimalEqual(t, "4", repo.lots[lot2.ID].RemainingQuantity)
	requireDecimalEqual(t, "5", repo.lots[lot3.ID].RemainingQuantity)
	requireDecimalEqual(t, "62", result.TotalCost) // 5*10 + 1*12
	assert.Empty(t, result.Warnings)
}

func TestConsume_WorkedExample(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	lotA := addLot(t, repo, productID, nil, "2024-01-01", "10", "100")
	lotB := addLot(t, repo, productID, nil, "2024-01-05", "12", "50")

	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("120"),
		TransactionDate: mustDate("2024-01-10"),
	})
	require.NoError(t, err)

	require.Len(t, result.Consumptions, 2)
	requireDecimalEqual(t, "100", result.Consumptions[0].Quantity)
	requireDecimalEqual(t, "1000", result.Consumptions[0].TotalCost)
	requireDecimalEqual(t, "20", result.Consumptions[1].Quantity)
	requireDecimalEqual(t, "240", result.Consumptions[1].TotalCost)

	requireDecimalEqual(t, "1240", result.TotalCost)
	requireDecimalEqual(t, "0", repo.lots[lotA.ID].RemainingQuantity)
	requireDecimalEqual(t, "30", repo.lots[lotB.ID].RemainingQuantity)
}

func TestConsume_InvalidQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()
	addLot(t, repo, productID, nil, "2024-01-01", "10", "100")

	for _, qty := range []string{"0", "-5"} {
		_, err := svc.Consume(ctx, ConsumeRequest{
			ProductID:       productID,
			DemandLineID:    id.New(),
			Quantity:        types.MustQuantity(qty),
			TransactionDate: mustDate("2024-01-10"),
		})
		require.Error(t, err)
		assert.True(t, apperror.IsInvalidQuantity(err))
	}

	// Rejected before any mutation.
	assert.Empty(t, repo.consumptions)
	for _, lot := range repo.lots {
		requireDecimalEqual(t, "100", lot.RemainingQuantity)
	}
}

func TestConsume_ShortfallDegradesNeverBlocks(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()
	repo.defaultCosts[productID] = types.MustMoney("7.50")

	addLot(t, repo, productID, nil, "2024-01-01", "10", "30")

	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("50"),
		TransactionDate: mustDate("2024-01-10"),
	})
	require.NoError(t, err, "shortfall must not fail the transaction")

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "shortfall")
	// 30*10 drawn + 20*7.50 fallback
	requireDecimalEqual(t, "450", result.TotalCost)
	require.Len(t, result.Consumptions, 1)
}

func TestConsume_ShortfallWithoutDefaultCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("10"),
		TransactionDate: mustDate("2024-01-10"),
	})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	requireDecimalEqual(t, "0", result.TotalCost)
	assert.Empty(t, result.Consumptions)
}

func TestConsume_LotDatedAfterTransactionNotEligible(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	future := addLot(t, repo, productID, nil, "2024-03-01", "8", "100")
	addLot(t, repo, productID, nil, "2024-01-01", "10", "100")

	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("10"),
		TransactionDate: mustDate("2024-02-01"),
	})
	require.NoError(t, err)

	require.Len(t, result.Consumptions, 1)
	requireDecimalEqual(t, "100", result.TotalCost) // 10 @ 10, never the cheaper future lot
	requireDecimalEqual(t, "100", repo.lots[future.ID].RemainingQuantity)
}

func TestConsume_WarehouseIsolation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()
	w1 := id.New()
	w2 := id.New()

	lotW1 := addLot(t, repo, productID, &w1, "2024-01-01", "10", "100")
	lotW2 := addLot(t, repo, productID, &w2, "2024-01-02", "11", "100")
	lotGlobal := addLot(t, repo, productID, nil, "2024-01-03", "12", "100")

	// Scoped to w2: sees w2's lot and the warehouse-less lot, never w1's.
	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		WarehouseID:     &w2,
		Quantity:        types.MustQuantity("150"),
		TransactionDate: mustDate("2024-02-01"),
	})
	require.NoError(t, err)

	require.Len(t, result.Consumptions, 2)
	assert.Equal(t, lotW2.ID, result.Consumptions[0].StockLotID)
	assert.Equal(t, lotGlobal.ID, result.Consumptions[1].StockLotID)
	requireDecimalEqual(t, "100", repo.lots[lotW1.ID].RemainingQuantity)
	requireDecimalEqual(t, "0", repo.lots[lotW2.ID].RemainingQuantity)
	requireDecimalEqual(t, "50", repo.lots[lotGlobal.ID].RemainingQuantity)
}

func TestConsume_SameDateTieBreakIsCreationOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	first := addLot(t, repo, productID, nil, "2024-01-01", "10", "10")
	second := addLot(t, repo, productID, nil, "2024-01-01", "12", "10")

	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("5"),
		TransactionDate: mustDate("2024-01-10"),
	})
	require.NoError(t, err)

	require.Len(t, result.Consumptions, 1)
	assert.Equal(t, first.ID, result.Consumptions[0].StockLotID)
	requireDecimalEqual(t, "10", repo.lots[second.ID].RemainingQuantity)
}

func TestConsume_FinalTotalRoundedToCurrency(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	addLot(t, repo, productID, nil, "2024-01-01", "0.333", "3")

	result, err := svc.Consume(ctx, ConsumeRequest{
		ProductID:       productID,
		DemandLineID:    id.New(),
		Quantity:        types.MustQuantity("3"),
		TransactionDate: mustDate("2024-01-10"),
	})
	require.NoError(t, err)

	// Snapshot stays unrounded, total rounds once at the end.
	requireDecimalEqual(t, "0.999", result.Consumptions[0].TotalCost)
	requireDecimalEqual(t, "1.00", result.TotalCost)
}

func TestGetAvailableStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()
	w1 := id.New()
	w2 := id.New()

	addLot(t, repo, productID, &w1, "2024-01-01", "10", "40")
	addLot(t, repo, productID, &w2, "2024-01-02", "10", "25")
	addLot(t, repo, productID, nil, "2024-01-03", "10", "35")

	scoped, err := svc.GetAvailableStock(ctx, productID, &w1)
	require.NoError(t, err)
	requireDecimalEqual(t, "75", scoped) // w1 + legacy global

	unscoped, err := svc.GetAvailableStock(ctx, productID, nil)
	require.NoError(t, err)
	requireDecimalEqual(t, "100", unscoped)
}

func TestRecordDemand_ForwardFlow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	productID := id.New()

	addLot(t, repo, productID, nil, "2024-01-01", "10", "100")

	line := NewDemandLine(productID, nil, types.MustQuantity("40"), mustDate("2024-01-15"))
	result, err := svc.RecordDemand(ctx, line)
	require.NoError(t, err)

	requireDecimalEqual(t, "400", result.TotalCost)
	requireDecimalEqual(t, "400", line.CostOfGoodsSold)

	// Cost conservation: line COGS equals the sum of its consumptions.
	stored, err := repo.GetDemandLine(ctx, line.ID)
	require.NoError(t, err)
	consumptions, err := repo.ListConsumptionsByDemand(ctx, line.ID)
	require.NoError(t, err)
	sum := types.Zero()
	for _, c := range consumptions {
		sum = sum.Add(c.TotalCost)
	}
	require.True(t, stored.CostOfGoodsSold.Equal(sum))
	assert.Empty(t, repo.audits, "forward flow must not trigger recalculation")
}
