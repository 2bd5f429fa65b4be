package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/openme/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func writeClientError(w http.ResponseWriter, cerr *apperr.ClientError) {
	writeJSON(w, cerr.Status, errorBody(cerr.Message))
}
