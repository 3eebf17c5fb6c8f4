package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func writeErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	writeJSONResponse(w, logger, statusCode, ErrorResponse{Error: errorCode, Message: message})
}
