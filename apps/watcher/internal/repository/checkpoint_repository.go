package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

type CheckpointRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCheckpointRepository(db *sql.DB, logger *zap.Logger) *CheckpointRepository {
	return &CheckpointRepository{db: db, logger: logger}
}

// GetCheckpoint returns (nil, nil) when the chain has no checkpoint row.
func (r *CheckpointRepository) GetCheckpoint(ctx context.Context, chainID string) (*model.Cursor, error) {
	var c model.Cursor
	err := r.db.QueryRowContext(ctx, `
		SELECT chain_id, last_processed_block, updated_at FROM checkpoints WHERE chain_id = $1
	`, chainID).Scan(&c.ChainID, &c.LastProcessedBlock, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &c, nil
}

// PutCheckpoint upserts the watermark. GREATEST keeps it from moving backwards.
func (r *CheckpointRepository) PutCheckpoint(ctx context.Context, chainID string, block uint64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (chain_id, last_processed_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (chain_id) DO UPDATE SET
			last_processed_block = GREATEST(checkpoints.last_processed_block, EXCLUDED.last_processed_block),
			updated_at = NOW()
	`, chainID, block)
	if err != nil {
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}
	return nil
}
