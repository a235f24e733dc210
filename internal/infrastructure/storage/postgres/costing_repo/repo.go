// Package costing_repo provides the PostgreSQL implementation of the
// costing ledger repository.
package costing_repo

import (
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/klauspost/compress/zstd"

	"lotledger/internal/domain/costing"
	"lotledger/internal/infrastructure/storage/postgres"
)

const (
	stockLotsTable    = "stock_lots"
	consumptionsTable = "stock_lot_consumptions"
	demandLinesTable  = "demand_lines"
	productsTable     = "products"
	recalcAuditTable  = "recalculation_audit"
)

// Repo implements costing.Repository on PostgreSQL.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType

	// zstd codec for large audit notes
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewRepo creates a new costing repository.
func NewRepo(txm *postgres.TxManager) (*Repo, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Repo{
		txm:               txm,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// Ensure interface compliance.
var _ costing.Repository = (*Repo)(nil)
