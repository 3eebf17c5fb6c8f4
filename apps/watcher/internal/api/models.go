package api

import (
	"time"
)

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status  string       `json:"status"`
	Time    string       `json:"time"`
	State   string       `json:"state"`
	LastRun *RunResponse `json:"last_run,omitempty"`
}

// RunResponse summarizes the most recent pipeline run
type RunResponse struct {
	Outcome         string `json:"outcome"`
	StartBlock      uint64 `json:"start_block"`
	TargetBlock     uint64 `json:"target_block"`
	LastCommitted   uint64 `json:"last_committed"`
	RangesPlanned   uint64 `json:"ranges_planned"`
	RangesCommitted int    `json:"ranges_committed"`
	Events          int    `json:"events"`
	Records         int    `json:"records"`
	Alerts          int    `json:"alerts"`
	MessagesSent    int    `json:"messages_sent"`
	MessagesFailed  int    `json:"messages_failed"`
	DurationMs      int64  `json:"duration_ms"`
}

// CursorResponse is returned by GET /api/cursor/{chain_id}
type CursorResponse struct {
	ChainID            string     `json:"chain_id"`
	LastProcessedBlock uint64     `json:"last_processed_block"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// TransferResponse is one persisted transfer
type TransferResponse struct {
	EventID      string `json:"event_id"`
	Kind         string `json:"kind"`
	From         string `json:"from"`
	To           string `json:"to"`
	Amount       string `json:"amount"`
	RawAmount    string `json:"raw_amount"`
	AssetID      string `json:"asset_id,omitempty"`
	AssetSymbol  string `json:"asset_symbol"`
	Block        uint64 `json:"block"`
	ExtrinsicRef string `json:"extrinsic_ref,omitempty"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
