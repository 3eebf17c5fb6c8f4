package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/model"
)

const (
	defaultTransferLimit = 50
	maxTransferLimit     = 500
)

type TransferLister interface {
	ListTransfers(ctx context.Context, chainID string, limit int) ([]model.TransferRecord, error)
}

// TransferHandler serves persisted transfer records
type TransferHandler struct {
	transfers TransferLister
	logger    *zap.Logger
}

func NewTransferHandler(transfers TransferLister, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, logger: logger}
}

// ListTransfers handles GET /api/transfers/{chain_id}?limit=N
func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain_id"]

	limit := defaultTransferLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTransferLimit)
	}

	records, err := h.transfers.ListTransfers(r.Context(), chainID, limit)
	if err != nil {
		h.logger.Error("Failed to list transfers", zap.String("chain_id", chainID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "store_error", "Failed to retrieve transfers")
		return
	}

	response := make([]TransferResponse, 0, len(records))
	for _, rec := range records {
		raw := ""
		if rec.RawAmount != nil {
			raw = rec.RawAmount.String()
		}
		response = append(response, TransferResponse{
			EventID:      rec.EventID,
			Kind:         string(rec.Kind),
			From:         rec.From,
			To:           rec.To,
			Amount:       rec.AmountNormalized(),
			RawAmount:    raw,
			AssetID:      rec.AssetID,
			AssetSymbol:  rec.AssetSymbol,
			Block:        rec.Block,
			ExtrinsicRef: rec.ExtrinsicRef,
		})
	}
	writeJSONResponse(w, h.logger, http.StatusOK, response)
}
