package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/domain/services"
	"compliance-lab/pkg/logger"
)

// HeaderDataSource tells clients whether an analytics body is live data,
// a placeholder or a demo payload.
const HeaderDataSource = "X-Data-Source"

// maxBodyBytes bounds request bodies on write endpoints
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps service errors to status codes
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeAnalytics(w http.ResponseWriter, source models.DataSource, v any) {
	w.Header().Set(HeaderDataSource, string(source))
	writeJSON(w, http.StatusOK, v)
}

// readBody returns the raw request body, capped at maxBodyBytes
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// decodeBody decodes a JSON object body into dest. An empty body leaves
// dest at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
