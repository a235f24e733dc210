package costing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/costing"
)

// CompressionAlgo specifies the compression algorithm used for audit notes.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// auditRow is the storage shape of a recalculation audit entry. Long
// free-text notes are stored zstd-compressed.
type auditRow struct {
	ID              id.ID           `db:"id"`
	ProductID       id.ID           `db:"product_id"`
	TriggerDate     time.Time       `db:"trigger_date"`
	ReasonCode      string          `db:"reason_code"`
	Note            string          `db:"note"`
	NoteCompressed  []byte          `db:"note_compressed"`
	CompressionAlgo CompressionAlgo `db:"compression_algo"`
	CreatedAt       time.Time       `db:"created_at"`
}

// AppendRecalculationAudit appends one immutable audit entry.
// Entries are append-only; there is no update or delete path.
func (r *Repo) AppendRecalculationAudit(ctx context.Context, entry *costing.RecalculationAudit) error {
	row := auditRow{
		ID:              entry.ID,
		ProductID:       entry.ProductID,
		TriggerDate:     entry.TriggerDate,
		ReasonCode:      string(entry.ReasonCode),
		Note:            entry.Note,
		CompressionAlgo: CompressionNone,
		CreatedAt:       entry.CreatedAt,
	}

	if len(entry.Note) > r.compressThreshold {
		row.NoteCompressed = r.encoder.EncodeAll([]byte(entry.Note), nil)
		row.Note = ""
		row.CompressionAlgo = CompressionZstd
	}

	q := r.builder.Insert(recalcAuditTable).
		Columns("id", "product_id", "trigger_date", "reason_code",
			"note", "note_compressed", "compression_algo", "created_at").
		Values(row.ID, row.ProductID, row.TriggerDate, row.ReasonCode,
			row.Note, row.NoteCompressed, row.CompressionAlgo, row.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// ListRecalculationAudit returns audit entries for a product, newest first.
func (r *Repo) ListRecalculationAudit(ctx context.Context, productID id.ID, limit int) ([]costing.RecalculationAudit, error) {
	q := r.builder.Select("id", "product_id", "trigger_date", "reason_code",
		"note", "note_compressed", "compression_algo", "created_at").
		From(recalcAuditTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("created_at DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []auditRow
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}

	entries := make([]costing.RecalculationAudit, 0, len(rows))
	for _, row := range rows {
		note := row.Note
		if row.CompressionAlgo == CompressionZstd {
			decoded, err := r.decoder.DecodeAll(row.NoteCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit note %s: %w", row.ID, err)
			}
			note = string(decoded)
		}
		entries = append(entries, costing.RecalculationAudit{
			ID:          row.ID,
			ProductID:   row.ProductID,
			TriggerDate: row.TriggerDate,
			ReasonCode:  costing.RecalcReason(row.ReasonCode),
			Note:        note,
			CreatedAt:   row.CreatedAt,
		})
	}

	return entries, nil
}
