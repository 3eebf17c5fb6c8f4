package cursor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// Store is the keyed checkpoint table. GetCheckpoint returns (nil, nil) when
// the chain has no row yet. PutCheckpoint must never move a cursor backwards.
type Store interface {
	GetCheckpoint(ctx context.Context, chainID string) (*model.Cursor, error)
	PutCheckpoint(ctx context.Context, chainID string, block uint64) error
}

// Manager is the only writer of the checkpoint. It keeps no copy of the cursor
// in memory; the store is the single source of truth.
type Manager struct {
	store   Store
	genesis uint64
	logger  *zap.Logger
}

func NewManager(store Store, genesis uint64, logger *zap.Logger) *Manager {
	return &Manager{store: store, genesis: genesis, logger: logger}
}

// Load returns the last committed block, or the configured genesis block when
// the chain has never been checkpointed.
func (m *Manager) Load(ctx context.Context, chainID string) (uint64, error) {
	c, err := m.store.GetCheckpoint(ctx, chainID)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint for %s: %w", chainID, err)
	}
	if c == nil {
		m.logger.Info("No checkpoint found, starting from genesis",
			zap.String("chain_id", chainID),
			zap.Uint64("block", m.genesis))
		return m.genesis, nil
	}
	return c.LastProcessedBlock, nil
}

// Commit persists block as the new watermark. Call it only once every record
// with a block number <= block is durably stored.
func (m *Manager) Commit(ctx context.Context, chainID string, block uint64) error {
	if err := m.store.PutCheckpoint(ctx, chainID, block); err != nil {
		m.logger.Error("Error updating last processed block",
			zap.String("chain_id", chainID),
			zap.Uint64("block", block),
			zap.Error(err))
		return &model.CommitError{ChainID: chainID, Block: block, Err: err}
	}
	m.logger.Debug("Committed checkpoint", zap.String("chain_id", chainID), zap.Uint64("block", block))
	return nil
}
