package model

import (
	"sort"
	"strings"
)

type EntityType string

const (
	EntityWallet    EntityType = "wallet"
	EntityWhitelist EntityType = "whitelist"
	EntityAsset     EntityType = "asset"
	// EntityToken is the legacy registry spelling for assets.
	EntityToken EntityType = "token"
)

// TrackingItem is one registry row as it comes out of the tracking table.
// Which fields are meaningful depends on Type.
type TrackingItem struct {
	Type          EntityType `db:"type" dynamodbav:"type"`
	Address       string     `db:"address" dynamodbav:"address"`
	LinkedAddress string     `db:"linked_address" dynamodbav:"linkedAddress,omitempty"`
	AssetID       string     `db:"asset_id" dynamodbav:"assetId,omitempty"`
	Symbol        string     `db:"symbol" dynamodbav:"symbol,omitempty"`
	Decimals      int32      `db:"decimals" dynamodbav:"decimals,omitempty"`
}

type Wallet struct {
	Address       string
	LinkedAddress string // optional alternate identity of the same owner
}

type Whitelist struct {
	Address string
}

type Asset struct {
	ID       string
	Symbol   string
	Decimals int32
}

// TrackedSet is the partitioned, read-only view of the registry used during a run.
// All keys are normalized with NormalizeAddress. Wallet and whitelist values keep
// the address as registered, since indexers match it case-sensitively.
type TrackedSet struct {
	Wallets   map[string]Wallet
	Whitelist map[string]Whitelist
	Assets    map[string]Asset
}

func NewTrackedSet() TrackedSet {
	return TrackedSet{
		Wallets:   make(map[string]Wallet),
		Whitelist: make(map[string]Whitelist),
		Assets:    make(map[string]Asset),
	}
}

// NormalizeAddress is the single case-normalization rule for addresses and asset ids.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s TrackedSet) AddWallet(w Wallet) {
	w.Address = strings.TrimSpace(w.Address)
	w.LinkedAddress = NormalizeAddress(w.LinkedAddress)
	s.Wallets[NormalizeAddress(w.Address)] = w
}

func (s TrackedSet) AddWhitelist(w Whitelist) {
	w.Address = strings.TrimSpace(w.Address)
	s.Whitelist[NormalizeAddress(w.Address)] = w
}

func (s TrackedSet) AddAsset(a Asset) {
	a.ID = NormalizeAddress(a.ID)
	s.Assets[a.ID] = a
}

func (s TrackedSet) IsTracked(address string) bool {
	_, ok := s.Wallets[NormalizeAddress(address)]
	return ok
}

func (s TrackedSet) IsWhitelisted(address string) bool {
	_, ok := s.Whitelist[NormalizeAddress(address)]
	return ok
}

// LinkedAddress returns the linked identity of a tracked wallet, or "" if it has none.
func (s TrackedSet) LinkedAddress(address string) string {
	return s.Wallets[NormalizeAddress(address)].LinkedAddress
}

func (s TrackedSet) Asset(id string) (Asset, bool) {
	a, ok := s.Assets[NormalizeAddress(id)]
	return a, ok
}

func (s TrackedSet) Empty() bool {
	return len(s.Wallets) == 0
}

// WalletAddresses returns the wallet addresses as registered, sorted.
func (s TrackedSet) WalletAddresses() []string {
	out := make([]string, 0, len(s.Wallets))
	for _, w := range s.Wallets {
		out = append(out, w.Address)
	}
	sort.Strings(out)
	return out
}

// WhitelistAddresses returns the whitelisted addresses as registered, sorted.
func (s TrackedSet) WhitelistAddresses() []string {
	out := make([]string, 0, len(s.Whitelist))
	for _, w := range s.Whitelist {
		out = append(out, w.Address)
	}
	sort.Strings(out)
	return out
}

func (s TrackedSet) AssetIDs() []string {
	return sortedKeys(s.Assets)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
