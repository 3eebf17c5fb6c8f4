package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration creates the watcher tables when they do not exist yet.
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			chain_id VARCHAR(64) PRIMARY KEY,
			last_processed_block BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transfers (
			chain_id VARCHAR(64) NOT NULL,
			event_id VARCHAR(128) NOT NULL,
			kind VARCHAR(40) NOT NULL,
			from_address VARCHAR(66) NOT NULL,
			to_address VARCHAR(66) NOT NULL,
			raw_amount NUMERIC(78,0) NOT NULL,
			amount NUMERIC NOT NULL,
			asset_id VARCHAR(66) NOT NULL DEFAULT '',
			asset_symbol VARCHAR(32) NOT NULL,
			decimals INTEGER NOT NULL,
			block_number BIGINT NOT NULL,
			extrinsic_ref VARCHAR(128) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chain_id, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_chain_block ON transfers (chain_id, block_number DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers (from_address)`,
		`CREATE TABLE IF NOT EXISTS tracked_entities (
			id SERIAL PRIMARY KEY,
			type VARCHAR(16) NOT NULL,
			address VARCHAR(66) NOT NULL DEFAULT '',
			linked_address VARCHAR(66) NOT NULL DEFAULT '',
			asset_id VARCHAR(66) NOT NULL DEFAULT '',
			symbol VARCHAR(32) NOT NULL DEFAULT '',
			decimals INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE(type, address, asset_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}
