// Package source fetches raw transfer events for a block range from the chain
// indexer or directly from an EVM node.
package source

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"transferwatch/apps/watcher/internal/model"
)

// Source is the event query side of the chain. Fetch returns every event of
// the range matching the filter or an error; partial results are never
// returned.
type Source interface {
	Head(ctx context.Context) (uint64, error)
	Fetch(ctx context.Context, blockRange model.BlockRange, filter Filter) ([]model.RawEvent, error)
}

// Filter is the server-side pre-filter pushed down to the source. The
// normalizer re-applies it, so a source that cannot express part of it may
// ignore that part.
type Filter struct {
	Kinds             []model.EventKind
	Senders           []string
	ExcludeRecipients []string
	AssetIDs          []string
}

func NewFilter(tracked model.TrackedSet) Filter {
	return Filter{
		Kinds:             model.TransferKinds(),
		Senders:           addressForms(tracked.WalletAddresses()),
		ExcludeRecipients: addressForms(tracked.WhitelistAddresses()),
		AssetIDs:          tracked.AssetIDs(),
	}
}

func (f Filter) hasKind(kind model.EventKind) bool {
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// addressForms lists every spelling an address may be stored under: as
// registered, lower-case and, for hex addresses, EIP-55 checksummed.
func addressForms(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses)*3)
	forms := make([]string, 0, len(addresses)*3)
	add := func(s string) {
		if _, ok := seen[s]; ok || s == "" {
			return
		}
		seen[s] = struct{}{}
		forms = append(forms, s)
	}

	for _, a := range addresses {
		add(a)
		add(model.NormalizeAddress(a))
		if common.IsHexAddress(a) {
			add(common.HexToAddress(a).Hex())
		}
	}
	sort.Strings(forms)
	return forms
}
