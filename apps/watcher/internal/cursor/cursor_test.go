package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

type memStore struct {
	rows   map[string]uint64
	getErr error
	putErr error
}

func (s *memStore) GetCheckpoint(_ context.Context, chainID string) (*model.Cursor, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	block, ok := s.rows[chainID]
	if !ok {
		return nil, nil
	}
	return &model.Cursor{ChainID: chainID, LastProcessedBlock: block}, nil
}

func (s *memStore) PutCheckpoint(_ context.Context, chainID string, block uint64) error {
	if s.putErr != nil {
		return s.putErr
	}
	if block > s.rows[chainID] {
		s.rows[chainID] = block
	}
	return nil
}

func TestLoadDefaultsToGenesis(t *testing.T) {
	m := NewManager(&memStore{rows: map[string]uint64{}}, 15000000, zap.NewNop())

	block, err := m.Load(context.Background(), "root")

	require.NoError(t, err)
	assert.Equal(t, uint64(15000000), block)
}

func TestLoadReturnsStoredBlock(t *testing.T) {
	m := NewManager(&memStore{rows: map[string]uint64{"root": 42}}, 1, zap.NewNop())

	block, err := m.Load(context.Background(), "root")

	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)
}

func TestLoadStoreError(t *testing.T) {
	m := NewManager(&memStore{getErr: errors.New("timeout")}, 1, zap.NewNop())

	_, err := m.Load(context.Background(), "root")

	assert.ErrorContains(t, err, "timeout")
}

func TestCommitWrapsStoreError(t *testing.T) {
	m := NewManager(&memStore{rows: map[string]uint64{}, putErr: errors.New("throttled")}, 1, zap.NewNop())

	err := m.Commit(context.Background(), "root", 10)

	var commitErr *model.CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, uint64(10), commitErr.Block)
}

func TestCommitThenLoad(t *testing.T) {
	store := &memStore{rows: map[string]uint64{}}
	m := NewManager(store, 1, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Commit(ctx, "root", 200))
	require.NoError(t, m.Commit(ctx, "root", 150))

	block, err := m.Load(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), block)
}
