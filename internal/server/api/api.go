// Package api provides the JSON handlers for training data, models and
// predictions.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
)

// maxBodyBytes bounds request bodies. A full alphabet data set with
// several hundred samples per letter stays well below it.
const maxBodyBytes = 64 << 20

// maxDecodedBytes bounds the inflated size of compressed feature payloads.
var maxDecodedBytes int64 = maxBodyBytes

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, forest.ErrSchemaMismatch):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, landmark.ErrInvalidPose),
		errors.Is(err, forest.ErrFeatureDimensionMismatch),
		errors.Is(err, forest.ErrLabelLengthMismatch),
		errors.Is(err, forest.ErrEmptyTrainingSet),
		errors.Is(err, forest.ErrCorruptModel),
		errors.Is(err, gesture.ErrUnknownKind),
		errors.Is(err, gesture.ErrNotEnoughSamples):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and
// reported without detail.
func fail(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

// route splits /api/<area>/<action>[/<kind>] into action and kind.
func route(path, prefix string) (action, kind string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	action, kind, _ = strings.Cut(rest, "/")
	return action, kind
}

func checkKind(kind string) error {
	if !gesture.ValidKind(kind) {
		return fmt.Errorf("%w: %q", gesture.ErrUnknownKind, kind)
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON", errBadRequest)
	}
	return nil
}
