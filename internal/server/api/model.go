package api

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

// ModelHandler handles /api/model/ requests.
type ModelHandler struct {
	samples  *store.SampleRepository
	registry *Registry
	trainer  *gesture.Trainer
	logger   *zap.Logger
}

// NewModelHandler creates a ModelHandler. Trained and imported forests are
// saved through registry.
func NewModelHandler(s *store.Store, registry *Registry, trainer *gesture.Trainer, logger *zap.Logger) *ModelHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if trainer == nil {
		trainer = gesture.NewTrainer(forest.DefaultParams(), gesture.DefaultMinSamples, logger)
	}
	return &ModelHandler{
		samples:  s.Samples(),
		registry: registry,
		trainer:  trainer,
		logger:   logger,
	}
}

// ServeHTTP routes:
//
//	POST /api/model/train/{kind}
//	GET  /api/model/load/{kind}
//	POST /api/model/save/{kind}
func (h *ModelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action, kind := route(r.URL.Path, "/api/model")

	var method string
	switch action {
	case "train", "save":
		method = http.MethodPost
	case "load":
		method = http.MethodGet
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := checkKind(kind); err != nil {
		fail(w, h.logger, "invalid kind", err)
		return
	}

	switch action {
	case "train":
		h.train(w, kind)
	case "load":
		h.load(w, kind)
	case "save":
		h.save(w, r, kind)
	}
}

type trainResponse struct {
	Success    bool     `json:"success"`
	Type       string   `json:"type"`
	Accuracy   float64  `json:"accuracy"`
	Samples    int      `json:"samples"`
	Classes    []string `json:"classes"`
	Trees      int      `json:"trees"`
	DurationMs int64    `json:"duration_ms"`
}

type saveModelResponse struct {
	Success bool        `json:"success"`
	Type    string      `json:"type"`
	Model   forest.Info `json:"model"`
}

// train handles POST /api/model/train/{kind}.
func (h *ModelHandler) train(w http.ResponseWriter, kind string) {
	res, err := h.trainer.Retrain(kind, h.samples, []gesture.ModelStore{h.registry})
	if err != nil {
		fail(w, h.logger, "Failed to train model", err)
		return
	}

	writeJSON(w, http.StatusOK, trainResponse{
		Success:    true,
		Type:       kind,
		Accuracy:   res.Accuracy,
		Samples:    res.Samples,
		Classes:    res.Classes,
		Trees:      len(res.Forest.Trees),
		DurationMs: res.Duration.Milliseconds(),
	})
}

// load handles GET /api/model/load/{kind} and returns the serialized forest.
func (h *ModelHandler) load(w http.ResponseWriter, kind string) {
	f, err := h.registry.LoadModel(kind)
	if err != nil {
		fail(w, h.logger, "Failed to load model", err)
		return
	}
	data, err := forest.Marshal(f)
	if err != nil {
		fail(w, h.logger, "Failed to encode model", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// save handles POST /api/model/save/{kind}. The body is a serialized
// forest as returned by load.
func (h *ModelHandler) save(w http.ResponseWriter, r *http.Request, kind string) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	f, err := forest.Unmarshal(data)
	if err != nil {
		fail(w, h.logger, "invalid model", err)
		return
	}
	if err := CheckModel(kind, f); err != nil {
		fail(w, h.logger, "invalid model", err)
		return
	}

	if err := h.registry.SaveModel(kind, f, 0, f.Samples); err != nil {
		fail(w, h.logger, "Failed to save model", err)
		return
	}

	h.logger.Info("model imported", zap.String("kind", kind), zap.Int("trees", len(f.Trees)))
	writeJSON(w, http.StatusCreated, saveModelResponse{Success: true, Type: kind, Model: f.Info()})
}

// CheckModel verifies that f was trained on the current feature scheme and
// only predicts labels of kind.
func CheckModel(kind string, f *forest.Forest) error {
	if f.Schema != features.SchemaVersion || f.NumFeatures != features.Length {
		return fmt.Errorf("%w: model is %q with %d features, expected %q with %d",
			forest.ErrSchemaMismatch, f.Schema, f.NumFeatures, features.SchemaVersion, features.Length)
	}
	for _, c := range f.Classes {
		if !gesture.ValidLabel(kind, c) {
			return fmt.Errorf("%w: class %q is not a %s sign", errBadRequest, c, kind)
		}
	}
	return nil
}
