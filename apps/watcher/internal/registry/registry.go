// Package registry turns the flat tracking table into the typed TrackedSet a run
// filters against.
package registry

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// Source is the bulk read of the tracking registry.
type Source interface {
	ScanTracked(ctx context.Context) ([]model.TrackingItem, error)
}

// Partition sorts registry rows into wallets, whitelist entries and assets.
// Rows with an unknown type or a missing key are skipped and counted.
func Partition(items []model.TrackingItem) (model.TrackedSet, int) {
	set := model.NewTrackedSet()
	skipped := 0

	for _, item := range items {
		switch model.EntityType(strings.ToLower(strings.TrimSpace(string(item.Type)))) {
		case model.EntityWallet:
			if item.Address == "" {
				skipped++
				continue
			}
			set.AddWallet(model.Wallet{Address: item.Address, LinkedAddress: item.LinkedAddress})
		case model.EntityWhitelist:
			if item.Address == "" {
				skipped++
				continue
			}
			set.AddWhitelist(model.Whitelist{Address: item.Address})
		case model.EntityAsset, model.EntityToken:
			id := item.AssetID
			if id == "" {
				id = item.Address
			}
			if id == "" || item.Decimals < 0 {
				skipped++
				continue
			}
			set.AddAsset(model.Asset{ID: id, Symbol: item.Symbol, Decimals: item.Decimals})
		default:
			skipped++
		}
	}

	return set, skipped
}

// Load reads and partitions the registry. A read failure never aborts the run:
// it is logged and reported through the returned RegistryError while an empty
// set is returned.
func Load(ctx context.Context, source Source, logger *zap.Logger) (model.TrackedSet, error) {
	items, err := source.ScanTracked(ctx)
	if err != nil {
		logger.Warn("Failed to read tracking registry, tracking nothing this run", zap.Error(err))
		return model.NewTrackedSet(), &model.RegistryError{Err: err}
	}

	set, skipped := Partition(items)
	if skipped > 0 {
		logger.Warn("Skipped unusable registry rows", zap.Int("skipped", skipped))
	}

	logger.Info("Loaded tracking registry",
		zap.Int("wallets", len(set.Wallets)),
		zap.Int("whitelist", len(set.Whitelist)),
		zap.Int("assets", len(set.Assets)),
	)
	return set, nil
}
