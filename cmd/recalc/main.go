// Package main provides a CLI tool for forcing a FIFO recalculation for one
// product from a given date. Used for admin corrections when lot history has
// been edited outside the normal flow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/costing"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/costing_repo"
	"lotledger/pkg/logger"
)

func main() {
	productFlag := flag.String("product", "", "product id (UUID, required)")
	fromFlag := flag.String("from", "", "recalculate from this date, YYYY-MM-DD (required)")
	noteFlag := flag.String("note", "manual recalculation via cmd/recalc", "free-text audit note")
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, log)

	productID, err := id.Parse(*productFlag)
	if err != nil {
		log.Fatalw("invalid -product", "error", err)
	}

	fromDate, err := time.Parse("2006-01-02", *fromFlag)
	if err != nil {
		log.Fatalw("invalid -from, expected YYYY-MM-DD", "error", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolCfg := postgres.DefaultPoolConfig(dbURL)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txm := postgres.NewTxManager(pool)
	repo, err := costing_repo.NewRepo(txm)
	if err != nil {
		log.Fatalw("failed to create repository", "error", err)
	}
	svc := costing.NewService(repo)

	// Replay can take a while on deep history; run serializable so a
	// concurrent draw against the same product forces a clean retry
	// instead of interleaving.
	opts := postgres.SerializableTxOptions()
	opts.StatementTimeout = 5 * time.Minute

	err = txm.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		return svc.RecalculateFromDate(ctx, productID, fromDate, costing.ReasonManual, *noteFlag)
	})
	if err != nil {
		log.Fatalw("recalculation failed", "product_id", productID, "error", err)
	}

	lots, err := repo.ListLotsByProduct(ctx, productID)
	if err != nil {
		log.Fatalw("failed to load lots after recalculation", "error", err)
	}
	remaining := types.Zero()
	for _, lot := range lots {
		remaining = remaining.Add(lot.RemainingQuantity)
	}

	log.Infow("recalculation complete",
		"product_id", productID,
		"from", *fromFlag,
		"lots", len(lots),
		"total_remaining", remaining.String(),
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
