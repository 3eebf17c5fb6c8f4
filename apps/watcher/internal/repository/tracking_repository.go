package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

type TrackingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTrackingRepository(db *sql.DB, logger *zap.Logger) *TrackingRepository {
	return &TrackingRepository{db: db, logger: logger}
}

func (r *TrackingRepository) AddTrackedEntity(ctx context.Context, item model.TrackingItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tracked_entities (type, address, linked_address, asset_id, symbol, decimals)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (type, address, asset_id) DO UPDATE SET
			linked_address = EXCLUDED.linked_address,
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals
	`, string(item.Type), strings.TrimSpace(item.Address), model.NormalizeAddress(item.LinkedAddress),
		model.NormalizeAddress(item.AssetID), item.Symbol, item.Decimals)
	if err != nil {
		return fmt.Errorf("failed to add tracked entity: %w", err)
	}

	r.logger.Info("Added tracked entity",
		zap.String("type", string(item.Type)),
		zap.String("address", item.Address),
		zap.String("asset_id", item.AssetID))
	return nil
}

// ScanTracked reads the whole registry.
func (r *TrackingRepository) ScanTracked(ctx context.Context) ([]model.TrackingItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type, address, linked_address, asset_id, symbol, decimals
		FROM tracked_entities
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked entities: %w", err)
	}
	defer rows.Close()

	var items []model.TrackingItem
	for rows.Next() {
		var item model.TrackingItem
		var typ string
		if err := rows.Scan(&typ, &item.Address, &item.LinkedAddress, &item.AssetID, &item.Symbol, &item.Decimals); err != nil {
			return nil, fmt.Errorf("failed to scan tracked entity: %w", err)
		}
		item.Type = model.EntityType(typ)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked entities: %w", err)
	}
	return items, nil
}
