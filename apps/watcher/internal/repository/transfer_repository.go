package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// transferColumns is the insert column order used by buildInsert.
var transferColumns = []string{
	"chain_id", "event_id", "kind", "from_address", "to_address", "raw_amount", "amount",
	"asset_id", "asset_symbol", "decimals", "block_number", "extrinsic_ref",
}

// maxTransferBatch keeps one INSERT well under the 65535 bind parameter limit.
const maxTransferBatch = 500

type TransferRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTransferRepository(db *sql.DB, logger *zap.Logger) *TransferRepository {
	return &TransferRepository{db: db, logger: logger}
}

func (r *TransferRepository) MaxBatchSize() int {
	return maxTransferBatch
}

// PutTransfers inserts records in one statement. Rows already present for
// (chain_id, event_id) are left untouched.
func (r *TransferRepository) PutTransfers(ctx context.Context, records []model.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	query, args := buildInsert(records)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to store transfers: %w", err)
	}
	return nil
}

func buildInsert(records []model.TransferRecord) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO transfers (")
	b.WriteString(strings.Join(transferColumns, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(transferColumns))
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range transferColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteString(")")

		raw := "0"
		if rec.RawAmount != nil {
			raw = rec.RawAmount.String()
		}
		args = append(args,
			rec.ChainID, rec.EventID, string(rec.Kind), rec.From, rec.To, raw, rec.Amount,
			rec.AssetID, rec.AssetSymbol, rec.Decimals, rec.Block, rec.ExtrinsicRef,
		)
	}
	b.WriteString(" ON CONFLICT (chain_id, event_id) DO NOTHING")
	return b.String(), args
}

// ListTransfers returns the newest transfers of a chain.
func (r *TransferRepository) ListTransfers(ctx context.Context, chainID string, limit int) ([]model.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chain_id, event_id, kind, from_address, to_address, raw_amount::text, amount,
			asset_id, asset_symbol, decimals, block_number, extrinsic_ref
		FROM transfers
		WHERE chain_id = $1
		ORDER BY block_number DESC, event_id DESC
		LIMIT $2
	`, chainID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	records := []model.TransferRecord{}
	for rows.Next() {
		var rec model.TransferRecord
		var kind, raw string
		if err := rows.Scan(&rec.ChainID, &rec.EventID, &kind, &rec.From, &rec.To, &raw, &rec.Amount,
			&rec.AssetID, &rec.AssetSymbol, &rec.Decimals, &rec.Block, &rec.ExtrinsicRef); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		rec.Kind = model.EventKind(kind)
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid raw amount %q for %s", raw, rec.EventID)
		}
		rec.RawAmount = amount
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	return records, nil
}
