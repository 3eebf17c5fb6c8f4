package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TransferRecord is the canonical, append-only record of an observed transfer.
// (ChainID, EventID) is its idempotency key.
type TransferRecord struct {
	ChainID      string          `db:"chain_id"`
	EventID      string          `db:"event_id"`
	Kind         EventKind       `db:"kind"`
	From         string          `db:"from_address"`
	To           string          `db:"to_address"`
	RawAmount    *big.Int        `db:"raw_amount"`
	Amount       decimal.Decimal `db:"amount"`
	AssetID      string          `db:"asset_id"`
	AssetSymbol  string          `db:"asset_symbol"`
	Decimals     int32           `db:"decimals"`
	Block        uint64          `db:"block_number"`
	ExtrinsicRef string          `db:"extrinsic_ref"`
}

func (r TransferRecord) Key() string {
	return r.ChainID + "/" + r.EventID
}

// AmountNormalized renders Amount without trailing zeros, e.g. "1.5" or "10".
func (r TransferRecord) AmountNormalized() string {
	return r.Amount.String()
}

// AlertCandidate is a transient evaluation of a TransferRecord. It is never persisted.
type AlertCandidate struct {
	TransferRecord
	OverThreshold  bool
	IsSelfTransfer bool
	IsWhitelisted  bool
}

func (c AlertCandidate) AlertWorthy() bool {
	return c.OverThreshold && !c.IsSelfTransfer && !c.IsWhitelisted
}
