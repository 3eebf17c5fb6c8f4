// Package normalizer is the authoritative filter of the pipeline: it re-checks
// what the event source pushed down and converts raw event shapes into
// canonical transfer records.
package normalizer

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// DefaultNativeDecimals is the precision applied to native-asset amounts when
// the asset table has no entry for them.
const DefaultNativeDecimals int32 = 6

type Normalizer struct {
	chainID        string
	nativeSymbol   string
	nativeDecimals int32
	logger         *zap.Logger
}

func New(chainID, nativeSymbol string, nativeDecimals int32, logger *zap.Logger) *Normalizer {
	if nativeDecimals < 0 {
		nativeDecimals = DefaultNativeDecimals
	}
	return &Normalizer{
		chainID:        chainID,
		nativeSymbol:   nativeSymbol,
		nativeDecimals: nativeDecimals,
		logger:         logger,
	}
}

// Stats counts what NormalizeAll did with a batch of raw events.
type Stats struct {
	Accepted   int
	NotTracked int
	Malformed  int
	Duplicates int
}

// Normalize converts one raw event. It returns model.ErrNotTracked when the
// sender is not a tracked wallet and a *model.DataShapeError when the payload
// cannot be interpreted.
func (n *Normalizer) Normalize(raw model.RawEvent, tracked model.TrackedSet) (model.TransferRecord, error) {
	args, err := decode(raw)
	if err != nil {
		return model.TransferRecord{}, err
	}

	from := model.NormalizeAddress(args.From)
	if !tracked.IsTracked(from) {
		return model.TransferRecord{}, model.ErrNotTracked
	}

	block, err := ParseEventBlock(raw.ID)
	if err != nil {
		return model.TransferRecord{}, &model.DataShapeError{EventID: raw.ID, Kind: raw.Kind, Reason: err.Error()}
	}

	assetID := ""
	if args.AssetID != nil {
		assetID = model.NormalizeAddress(string(*args.AssetID))
	}
	symbol, decimals := n.resolveAsset(assetID, tracked)

	return model.TransferRecord{
		ChainID:      n.chainID,
		EventID:      raw.ID,
		Kind:         raw.Kind,
		From:         from,
		To:           model.NormalizeAddress(args.To),
		RawAmount:    &args.Amount.Int,
		Amount:       decimal.NewFromBigInt(&args.Amount.Int, -decimals),
		AssetID:      assetID,
		AssetSymbol:  symbol,
		Decimals:     decimals,
		Block:        block,
		ExtrinsicRef: raw.ExtrinsicRef,
	}, nil
}

// NormalizeAll normalizes a sub-range worth of events. Untracked senders are
// dropped silently, malformed events are dropped with a warning and repeated
// event ids are kept once.
func (n *Normalizer) NormalizeAll(events []model.RawEvent, tracked model.TrackedSet) ([]model.TransferRecord, Stats) {
	var stats Stats
	records := make([]model.TransferRecord, 0, len(events))
	seen := make(map[string]struct{}, len(events))

	for _, raw := range events {
		if _, dup := seen[raw.ID]; dup {
			stats.Duplicates++
			continue
		}
		seen[raw.ID] = struct{}{}

		record, err := n.Normalize(raw, tracked)
		if err != nil {
			var shapeErr *model.DataShapeError
			switch {
			case errors.Is(err, model.ErrNotTracked):
				stats.NotTracked++
			case errors.As(err, &shapeErr):
				stats.Malformed++
				n.logger.Warn("Dropping malformed event",
					zap.String("event_id", shapeErr.EventID),
					zap.String("kind", string(shapeErr.Kind)),
					zap.String("reason", shapeErr.Reason))
			default:
				stats.Malformed++
				n.logger.Warn("Dropping event", zap.String("event_id", raw.ID), zap.Error(err))
			}
			continue
		}
		records = append(records, record)
	}

	stats.Accepted = len(records)
	return records, stats
}

func (n *Normalizer) resolveAsset(assetID string, tracked model.TrackedSet) (string, int32) {
	if assetID != "" {
		if asset, ok := tracked.Asset(assetID); ok {
			symbol := asset.Symbol
			if symbol == "" {
				symbol = asset.ID
			}
			return symbol, asset.Decimals
		}
	}
	return n.nativeSymbol, n.nativeDecimals
}

// decode checks the argument shape of each transfer kind. Unknown kinds are
// rejected rather than guessed at.
func decode(raw model.RawEvent) (transferArgs, error) {
	shapeErr := func(reason string) error {
		return &model.DataShapeError{EventID: raw.ID, Kind: raw.Kind, Reason: reason}
	}

	var args transferArgs
	if len(raw.Args) == 0 {
		return args, shapeErr("missing args")
	}
	if err := json.Unmarshal(raw.Args, &args); err != nil {
		return args, shapeErr(err.Error())
	}

	switch raw.Kind {
	case model.KindBalancesTransfer:
		// native asset; any assetId present is ignored
		args.AssetID = nil
	case model.KindAssetsTransferred:
		// an absent assetId means the native asset
	case model.KindERC20Transfer:
		if args.AssetID == nil || *args.AssetID == "" {
			return args, shapeErr("missing token contract")
		}
	default:
		return args, shapeErr("unsupported event kind")
	}

	if strings.TrimSpace(args.From) == "" || strings.TrimSpace(args.To) == "" {
		return args, shapeErr("missing from/to")
	}
	if args.Amount == nil {
		return args, shapeErr("missing amount")
	}
	return args, nil
}

// ParseEventBlock extracts the block number from a composite event id
// ("0015000123-000004-1a2b3" -> 15000123).
func ParseEventBlock(id string) (uint64, error) {
	head, _, _ := strings.Cut(id, "-")
	if head == "" {
		return 0, errors.New("event id has no block segment")
	}
	block, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, errors.New("event id block segment is not a number")
	}
	return block, nil
}
