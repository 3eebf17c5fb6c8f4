package model

import "encoding/json"

type EventKind string

const (
	// KindBalancesTransfer moves the chain's native asset. Args: from, to, amount.
	KindBalancesTransfer EventKind = "Balances.Transfer"
	// KindAssetsTransferred moves a registered asset. Args: assetId, from, to, amount.
	KindAssetsTransferred EventKind = "Assets.Transferred"
	// KindERC20Transfer is an ERC-20 Transfer log; assetId is the contract address.
	KindERC20Transfer EventKind = "Erc20.Transfer"
)

// TransferKinds lists every transfer-class event kind the pipeline understands.
func TransferKinds() []EventKind {
	return []EventKind{KindBalancesTransfer, KindAssetsTransferred, KindERC20Transfer}
}

// RawEvent is an event exactly as the source returned it. ID is a composite
// "<block>-<sequence>[-<suffix>]" identifier.
type RawEvent struct {
	ID           string          `json:"id"`
	Kind         EventKind       `json:"kind"`
	Args         json.RawMessage `json:"args"`
	ExtrinsicRef string          `json:"extrinsic_ref,omitempty"`
}
