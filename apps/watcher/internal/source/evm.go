package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

// TransferEventSig is topic 0 of the ERC-20 Transfer(address,address,uint256) log.
var TransferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMClient is the subset of *ethclient.Client used by EVMSource.
type EVMClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EVMSource reads ERC-20 Transfer logs straight from a node. Tracked wallets
// become the indexed sender topic and contract-address assets become the log
// address filter. Whitelist exclusion is left to the normalizer since topics
// cannot express a negation.
type EVMSource struct {
	client EVMClient
	logger *zap.Logger
}

func NewEVMSource(client EVMClient, logger *zap.Logger) *EVMSource {
	return &EVMSource{client: client, logger: logger}
}

func DialEVMSource(ctx context.Context, rpcURL string, logger *zap.Logger) (*EVMSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	return NewEVMSource(client, logger), nil
}

func (s *EVMSource) Head(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

func (s *EVMSource) Fetch(ctx context.Context, blockRange model.BlockRange, filter Filter) ([]model.RawEvent, error) {
	if !filter.hasKind(model.KindERC20Transfer) {
		return nil, nil
	}

	var senders []common.Hash
	seen := make(map[common.Hash]struct{})
	for _, addr := range filter.Senders {
		if !common.IsHexAddress(addr) {
			continue
		}
		topic := common.BytesToHash(common.HexToAddress(addr).Bytes())
		if _, ok := seen[topic]; !ok {
			seen[topic] = struct{}{}
			senders = append(senders, topic)
		}
	}
	var contracts []common.Address
	for _, id := range filter.AssetIDs {
		if common.IsHexAddress(id) {
			contracts = append(contracts, common.HexToAddress(id))
		}
	}
	if len(senders) == 0 || len(contracts) == 0 {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blockRange.Start),
		ToBlock:   new(big.Int).SetUint64(blockRange.End),
		Addresses: contracts,
		Topics:    [][]common.Hash{{TransferEventSig}, senders},
	}

	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	events := make([]model.RawEvent, 0, len(logs))
	for _, eventLog := range logs {
		if eventLog.Removed {
			continue
		}
		raw, err := transferFromLog(eventLog)
		if err != nil {
			s.logger.Warn("Skipping undecodable Transfer log",
				zap.String("tx_hash", eventLog.TxHash.Hex()),
				zap.Uint("log_index", eventLog.Index),
				zap.Error(err))
			continue
		}
		events = append(events, raw)
	}
	return events, nil
}

// FetchBlock fetches a single block's events.
func (s *EVMSource) FetchBlock(ctx context.Context, block uint64, filter Filter) ([]model.RawEvent, error) {
	return s.Fetch(ctx, model.BlockRange{Start: block, End: block}, filter)
}

func (s *EVMSource) Close() {
	if c, ok := s.client.(interface{ Close() }); ok {
		c.Close()
	}
}

// transferFromLog maps a Transfer log onto the Erc20.Transfer argument shape.
// Topics[1] is from, Topics[2] is to and Data is the uint256 amount.
func transferFromLog(eventLog types.Log) (model.RawEvent, error) {
	if len(eventLog.Topics) < 3 || eventLog.Topics[0] != TransferEventSig {
		return model.RawEvent{}, fmt.Errorf("not an ERC-20 Transfer log")
	}
	if len(eventLog.Data) != 32 {
		return model.RawEvent{}, fmt.Errorf("unexpected data length %d", len(eventLog.Data))
	}

	from := common.BytesToAddress(eventLog.Topics[1].Bytes())
	to := common.BytesToAddress(eventLog.Topics[2].Bytes())
	amount := new(big.Int).SetBytes(eventLog.Data)

	args, err := json.Marshal(map[string]string{
		"assetId": model.NormalizeAddress(eventLog.Address.Hex()),
		"from":    model.NormalizeAddress(from.Hex()),
		"to":      model.NormalizeAddress(to.Hex()),
		"amount":  amount.String(),
	})
	if err != nil {
		return model.RawEvent{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return model.RawEvent{
		ID:           fmt.Sprintf("%010d-%06d", eventLog.BlockNumber, eventLog.Index),
		Kind:         model.KindERC20Transfer,
		Args:         args,
		ExtrinsicRef: eventLog.TxHash.Hex(),
	}, nil
}
