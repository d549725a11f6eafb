package api

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/landmark"
)

// PredictHandler handles POST /api/predict/{kind}.
type PredictHandler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewPredictHandler creates a PredictHandler reading forests from registry.
func NewPredictHandler(registry *Registry, logger *zap.Logger) *PredictHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictHandler{registry: registry, logger: logger}
}

type predictRequest struct {
	Landmarks []landmark.Point3D `json:"landmarks,omitempty"`
	Features  []float64          `json:"features,omitempty"`
}

type predictResponse struct {
	Success    bool           `json:"success"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Votes      map[string]int `json:"votes"`
}

// ServeHTTP implements the http.Handler interface.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, kind := route(r.URL.Path, "/api")
	if err := checkKind(kind); err != nil {
		fail(w, h.logger, "invalid kind", err)
		return
	}

	var req predictRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, h.logger, "invalid request", err)
		return
	}

	var v []float64
	switch {
	case len(req.Landmarks) > 0:
		fv, err := features.Extract(req.Landmarks)
		if err != nil {
			fail(w, h.logger, "invalid landmarks", err)
			return
		}
		v = fv
	case len(req.Features) > 0:
		v = req.Features
	default:
		fail(w, h.logger, "invalid request", fmt.Errorf("%w: landmarks or features required", errBadRequest))
		return
	}

	f, err := h.registry.LoadModel(kind)
	if err != nil {
		fail(w, h.logger, "Failed to load model", err)
		return
	}
	p, err := f.PredictSchema(features.SchemaVersion, v)
	if err != nil {
		fail(w, h.logger, "Failed to predict", err)
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Success:    true,
		Type:       kind,
		Label:      p.Label,
		Confidence: p.Confidence,
		Votes:      p.Votes,
	})
}
