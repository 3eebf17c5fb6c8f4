package source

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"transferwatch/apps/watcher/internal/model"
)

// BlockFetcher is a source that can only be queried one block at a time.
type BlockFetcher interface {
	Head(ctx context.Context) (uint64, error)
	FetchBlock(ctx context.Context, block uint64, filter Filter) ([]model.RawEvent, error)
}

// PerBlockSource turns a BlockFetcher into a Source by fanning out one fetch
// per block with at most limit in flight. Fetch returns only after every
// block fetch has finished; results keep block order.
type PerBlockSource struct {
	fetcher BlockFetcher
	limit   int
}

func NewPerBlockSource(fetcher BlockFetcher, limit int) *PerBlockSource {
	if limit <= 0 {
		limit = 1
	}
	return &PerBlockSource{fetcher: fetcher, limit: limit}
}

func (s *PerBlockSource) Head(ctx context.Context) (uint64, error) {
	return s.fetcher.Head(ctx)
}

func (s *PerBlockSource) Fetch(ctx context.Context, blockRange model.BlockRange, filter Filter) ([]model.RawEvent, error) {
	results := make([][]model.RawEvent, blockRange.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i := range results {
		block := blockRange.Start + uint64(i)
		g.Go(func() error {
			events, err := s.fetcher.FetchBlock(gctx, block, filter)
			if err != nil {
				return fmt.Errorf("block %d: %w", block, err)
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []model.RawEvent
	for _, blockEvents := range results {
		events = append(events, blockEvents...)
	}
	return events, nil
}
