package normalizer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

const (
	walletW   = "0x0000000210198695da702d62b08b0444f2233f9c"
	recipient = "0xffffffff0000000000000000000000000000070b"
)

func trackedSet() model.TrackedSet {
	set := model.NewTrackedSet()
	set.AddWallet(model.Wallet{Address: walletW})
	set.AddAsset(model.Asset{ID: "3", Symbol: "VTX", Decimals: 6})
	set.AddAsset(model.Asset{ID: "1124", Symbol: "ETH", Decimals: 18})
	return set
}

func rawEvent(id string, kind model.EventKind, args map[string]any) model.RawEvent {
	b, _ := json.Marshal(args)
	return model.RawEvent{ID: id, Kind: kind, Args: b}
}

func newNormalizer() *Normalizer {
	return New("root", "ROOT", DefaultNativeDecimals, zap.NewNop())
}

func TestNormalizeAssetTransfer(t *testing.T) {
	raw := rawEvent("0015000123-000004-1a2b3", model.KindAssetsTransferred, map[string]any{
		"assetId": 3, "from": "0x0000000210198695DA702D62B08B0444F2233F9C", "to": recipient, "amount": "1500000",
	})
	raw.ExtrinsicRef = "0015000123-000002-1a2b3"

	rec, err := newNormalizer().Normalize(raw, trackedSet())

	require.NoError(t, err)
	assert.Equal(t, "1.5", rec.AmountNormalized())
	assert.Equal(t, "VTX", rec.AssetSymbol)
	assert.Equal(t, int32(6), rec.Decimals)
	assert.Equal(t, uint64(15000123), rec.Block)
	assert.Equal(t, walletW, rec.From)
	assert.Equal(t, "root", rec.ChainID)
	assert.Equal(t, "1500000", rec.RawAmount.String())
	assert.Equal(t, "0015000123-000002-1a2b3", rec.ExtrinsicRef)
}

func TestNormalizeNativeTransferUsesDefaultPrecision(t *testing.T) {
	raw := rawEvent("100-1", model.KindBalancesTransfer, map[string]any{
		"from": walletW, "to": recipient, "amount": 2500000,
	})

	rec, err := newNormalizer().Normalize(raw, trackedSet())

	require.NoError(t, err)
	assert.Equal(t, "2.5", rec.AmountNormalized())
	assert.Equal(t, "ROOT", rec.AssetSymbol)
	assert.Equal(t, "", rec.AssetID)
}

func TestNormalizeMissingAssetIDMeansNative(t *testing.T) {
	raw := rawEvent("100-2", model.KindAssetsTransferred, map[string]any{
		"from": walletW, "to": recipient, "amount": "7",
	})

	rec, err := newNormalizer().Normalize(raw, trackedSet())

	require.NoError(t, err)
	assert.Equal(t, "ROOT", rec.AssetSymbol)
	assert.Equal(t, "0.000007", rec.AmountNormalized())
}

func TestNormalizeUnknownAssetFallsBackToNative(t *testing.T) {
	raw := rawEvent("100-3", model.KindAssetsTransferred, map[string]any{
		"assetId": "999999", "from": walletW, "to": recipient, "amount": "1000000",
	})

	rec, err := newNormalizer().Normalize(raw, trackedSet())

	require.NoError(t, err)
	assert.Equal(t, "ROOT", rec.AssetSymbol)
	assert.Equal(t, "999999", rec.AssetID)
	assert.Equal(t, "1", rec.AmountNormalized())
}

func TestNormalizeLargeAmountIsExact(t *testing.T) {
	raw := rawEvent("100-4", model.KindAssetsTransferred, map[string]any{
		"assetId": 1124, "from": walletW, "to": recipient, "amount": "123456789012345678901234567",
	})

	rec, err := newNormalizer().Normalize(raw, trackedSet())

	require.NoError(t, err)
	assert.Equal(t, "123456789.012345678901234567", rec.AmountNormalized())
}

func TestNormalizeERC20HexAmount(t *testing.T) {
	set := trackedSet()
	set.AddAsset(model.Asset{ID: "0xCCCCcCCc00000c64000000000000000000000000", Symbol: "USDC", Decimals: 6})
	raw := rawEvent("0000000500-000010", model.KindERC20Transfer, map[string]any{
		"assetId": "0xcccccccc00000c64000000000000000000000000", "from": walletW, "to": recipient, "amount": "0x0f4240",
	})

	rec, err := newNormalizer().Normalize(raw, set)

	require.NoError(t, err)
	assert.Equal(t, "USDC", rec.AssetSymbol)
	assert.Equal(t, "1", rec.AmountNormalized())
	assert.Equal(t, uint64(500), rec.Block)
}

func TestNormalizeRejectsUntrackedSender(t *testing.T) {
	raw := rawEvent("100-5", model.KindBalancesTransfer, map[string]any{
		"from": recipient, "to": walletW, "amount": "1",
	})

	_, err := newNormalizer().Normalize(raw, trackedSet())

	assert.ErrorIs(t, err, model.ErrNotTracked)
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawEvent
	}{
		{"UnknownKind", rawEvent("1-1", "System.Remarked", map[string]any{"from": walletW, "to": recipient, "amount": "1"})},
		{"MissingAmount", rawEvent("1-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "to": recipient})},
		{"NegativeAmount", rawEvent("1-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "to": recipient, "amount": "-5"})},
		{"FractionalAmount", rawEvent("1-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "to": recipient, "amount": "1.5"})},
		{"MissingTo", rawEvent("1-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "amount": "1"})},
		{"ERC20WithoutContract", rawEvent("1-1", model.KindERC20Transfer, map[string]any{"from": walletW, "to": recipient, "amount": "1"})},
		{"BadEventID", rawEvent("abc-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "to": recipient, "amount": "1"})},
		{"NoArgs", model.RawEvent{ID: "1-1", Kind: model.KindBalancesTransfer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newNormalizer().Normalize(tt.raw, trackedSet())
			var shapeErr *model.DataShapeError
			assert.True(t, errors.As(err, &shapeErr), "want DataShapeError, got %v", err)
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	events := []model.RawEvent{
		rawEvent("10-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "to": recipient, "amount": "1"}),
		rawEvent("10-1", model.KindBalancesTransfer, map[string]any{"from": walletW, "to": recipient, "amount": "1"}),
		rawEvent("10-2", model.KindBalancesTransfer, map[string]any{"from": recipient, "to": walletW, "amount": "1"}),
		rawEvent("10-3", "Balances.Deposit", map[string]any{"who": walletW, "amount": "1"}),
		rawEvent("11-1", model.KindAssetsTransferred, map[string]any{"assetId": 3, "from": walletW, "to": recipient, "amount": "5"}),
	}

	records, stats := newNormalizer().NormalizeAll(events, trackedSet())

	require.Len(t, records, 2)
	assert.Equal(t, Stats{Accepted: 2, NotTracked: 1, Malformed: 1, Duplicates: 1}, stats)
	assert.Equal(t, "10-1", records[0].EventID)
	assert.Equal(t, "11-1", records[1].EventID)
}

func TestParseEventBlock(t *testing.T) {
	block, err := ParseEventBlock("0015000123-000004-1a2b3")
	require.NoError(t, err)
	assert.Equal(t, uint64(15000123), block)

	block, err = ParseEventBlock("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)

	_, err = ParseEventBlock("")
	assert.Error(t, err)
}
