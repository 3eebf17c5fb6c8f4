package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"transferwatch/apps/watcher/internal/model"
)

type fakeBlockFetcher struct {
	mu       sync.Mutex
	fetched  []uint64
	failAt   uint64
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeBlockFetcher) Head(context.Context) (uint64, error) { return 0, nil }

func (f *fakeBlockFetcher) FetchBlock(_ context.Context, block uint64, _ Filter) ([]model.RawEvent, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.fetched = append(f.fetched, block)
	f.mu.Unlock()

	if f.failAt != 0 && block == f.failAt {
		return nil, errors.New("block not available")
	}
	return []model.RawEvent{{ID: fmt.Sprintf("%d-1", block)}}, nil
}

func TestPerBlockFetchKeepsOrderAndLimit(t *testing.T) {
	fetcher := &fakeBlockFetcher{}
	src := NewPerBlockSource(fetcher, 3)

	events, err := src.Fetch(context.Background(), model.BlockRange{Start: 10, End: 29}, Filter{})

	require.NoError(t, err)
	require.Len(t, events, 20)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("%d-1", 10+i), e.ID)
	}
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(3))
}

func TestPerBlockFetchFailsWholeRange(t *testing.T) {
	fetcher := &fakeBlockFetcher{failAt: 12}
	src := NewPerBlockSource(fetcher, 2)

	events, err := src.Fetch(context.Background(), model.BlockRange{Start: 10, End: 14}, Filter{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 12")
	assert.Nil(t, events)
	assert.Zero(t, fetcher.inFlight.Load())
}
