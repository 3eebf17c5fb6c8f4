package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/cursor"
	"transferwatch/apps/watcher/internal/pipeline"
)

// RunStatus exposes the live pipeline state and the last finished run.
type RunStatus interface {
	State() pipeline.State
	LastReport() (pipeline.Report, bool)
}

// StatusHandler serves health and checkpoint endpoints
type StatusHandler struct {
	status      RunStatus
	checkpoints cursor.Store
	logger      *zap.Logger
}

func NewStatusHandler(status RunStatus, checkpoints cursor.Store, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{status: status, checkpoints: checkpoints, logger: logger}
}

// GetHealth handles GET /api/health
func (h *StatusHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
		State:  string(h.status.State()),
	}

	if report, ok := h.status.LastReport(); ok {
		response.LastRun = &RunResponse{
			Outcome:         report.Outcome,
			StartBlock:      report.StartBlock,
			TargetBlock:     report.TargetBlock,
			LastCommitted:   report.LastCommitted,
			RangesPlanned:   report.RangesPlanned,
			RangesCommitted: report.RangesCommitted,
			Events:          report.Events,
			Records:         report.Records,
			Alerts:          len(report.Candidates),
			MessagesSent:    report.Dispatch.Sent,
			MessagesFailed:  report.Dispatch.Failed,
			DurationMs:      report.Duration.Milliseconds(),
		}
		if report.Outcome == pipeline.OutcomeFailed || report.Outcome == pipeline.OutcomeDegraded {
			response.Status = "degraded"
		}
	}

	writeJSONResponse(w, h.logger, http.StatusOK, response)
}

// GetCursor handles GET /api/cursor/{chain_id}
func (h *StatusHandler) GetCursor(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain_id"]

	c, err := h.checkpoints.GetCheckpoint(r.Context(), chainID)
	if err != nil {
		h.logger.Error("Failed to get checkpoint", zap.String("chain_id", chainID), zap.Error(err))
		writeErrorResponse(w, h.logger, http.StatusInternalServerError, "store_error", "Failed to retrieve checkpoint")
		return
	}
	if c == nil {
		writeErrorResponse(w, h.logger, http.StatusNotFound, "cursor_not_found", "No checkpoint stored for chain")
		return
	}

	response := CursorResponse{ChainID: c.ChainID, LastProcessedBlock: c.LastProcessedBlock}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt.UTC()
		response.UpdatedAt = &updated
	}
	writeJSONResponse(w, h.logger, http.StatusOK, response)
}
