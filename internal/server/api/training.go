package api

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

// CompressedPrefix marks a features field carrying base64 gzip JSON.
const CompressedPrefix = "compressed:"

// TrainingHandler handles /api/training/ requests.
type TrainingHandler struct {
	samples *store.SampleRepository
	logger  *zap.Logger
}

// NewTrainingHandler creates a TrainingHandler backed by s.
func NewTrainingHandler(s *store.Store, logger *zap.Logger) *TrainingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainingHandler{samples: s.Samples(), logger: logger}
}

// ServeHTTP routes:
//
//	POST   /api/training/save
//	GET    /api/training/load/{kind}
//	DELETE /api/training/reset/{kind}
//	GET    /api/training/summary/{kind}
func (h *TrainingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action, kind := route(r.URL.Path, "/api/training")

	var method string
	switch action {
	case "save":
		method = http.MethodPost
	case "load", "summary":
		method = http.MethodGet
	case "reset":
		method = http.MethodDelete
	default:
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if action == "save" {
		h.save(w, r)
		return
	}
	if err := checkKind(kind); err != nil {
		fail(w, h.logger, "invalid kind", err)
		return
	}

	switch action {
	case "load":
		h.load(w, r, kind)
	case "reset":
		h.reset(w, kind)
	case "summary":
		h.summary(w, kind)
	}
}

// Request and response types

type saveTrainingRequest struct {
	Type        string          `json:"type"`
	Features    json.RawMessage `json:"features"`
	Labels      []string        `json:"labels"`
	BatchID     string          `json:"batchId,omitempty"`
	Chunk       *int            `json:"chunk,omitempty"`
	TotalChunks *int            `json:"totalChunks,omitempty"`
}

type saveTrainingResponse struct {
	Success     bool   `json:"success"`
	Type        string `json:"type"`
	Saved       int    `json:"saved"`
	Total       int    `json:"total"`
	Chunk       *int   `json:"chunk,omitempty"`
	TotalChunks *int   `json:"totalChunks,omitempty"`
	Complete    bool   `json:"complete"`
}

type loadTrainingResponse struct {
	Success    bool     `json:"success"`
	Type       string   `json:"type"`
	Count      int      `json:"count"`
	Compressed bool     `json:"compressed"`
	Features   any      `json:"features"`
	Labels     []string `json:"labels"`
}

type summaryResponse struct {
	Success  bool              `json:"success"`
	Type     string            `json:"type"`
	Total    int               `json:"total"`
	Labels   map[string]int    `json:"labels"`
	Missing  []string          `json:"missing"`
	Features *features.Summary `json:"features,omitempty"`
}

// save handles POST /api/training/save. Chunked uploads send one request
// per chunk; each chunk is stored as it arrives.
func (h *TrainingHandler) save(w http.ResponseWriter, r *http.Request) {
	var req saveTrainingRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, h.logger, "invalid request", err)
		return
	}
	if err := checkKind(req.Type); err != nil {
		fail(w, h.logger, "invalid kind", err)
		return
	}

	vectors, err := DecodeFeatures(req.Features)
	if err != nil {
		fail(w, h.logger, "invalid features", err)
		return
	}
	if err := validateSamples(req.Type, vectors, req.Labels); err != nil {
		fail(w, h.logger, "invalid samples", err)
		return
	}

	n, err := h.samples.Append(req.Type, req.BatchID, vectors, req.Labels)
	if err != nil {
		fail(w, h.logger, "Failed to save samples", err)
		return
	}
	total, err := h.samples.Count(req.Type)
	if err != nil {
		fail(w, h.logger, "Failed to count samples", err)
		return
	}

	h.logger.Info("training samples saved",
		zap.String("kind", req.Type),
		zap.Int("saved", n),
		zap.Int("total", total),
	)

	complete := req.Chunk == nil || req.TotalChunks == nil || *req.Chunk+1 >= *req.TotalChunks
	writeJSON(w, http.StatusCreated, saveTrainingResponse{
		Success:     true,
		Type:        req.Type,
		Saved:       n,
		Total:       total,
		Chunk:       req.Chunk,
		TotalChunks: req.TotalChunks,
		Complete:    complete,
	})
}

// load handles GET /api/training/load/{kind}[?compress=1].
func (h *TrainingHandler) load(w http.ResponseWriter, r *http.Request, kind string) {
	set, err := h.samples.TrainingSet(kind)
	if err != nil {
		fail(w, h.logger, "Failed to load samples", err)
		return
	}

	resp := loadTrainingResponse{
		Success:  true,
		Type:     kind,
		Count:    set.Len(),
		Features: nonNil(set.Features),
		Labels:   nonNil(set.Labels),
	}

	if c := r.URL.Query().Get("compress"); c == "1" || c == "true" {
		packed, err := EncodeFeatures(set.Features)
		if err != nil {
			fail(w, h.logger, "Failed to compress samples", err)
			return
		}
		resp.Features = packed
		resp.Compressed = true
	}

	writeJSON(w, http.StatusOK, resp)
}

// reset handles DELETE /api/training/reset/{kind}.
func (h *TrainingHandler) reset(w http.ResponseWriter, kind string) {
	n, err := h.samples.DeleteByKind(kind)
	if err != nil {
		fail(w, h.logger, "Failed to delete samples", err)
		return
	}
	h.logger.Info("training samples reset", zap.String("kind", kind), zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

// summary handles GET /api/training/summary/{kind}.
func (h *TrainingHandler) summary(w http.ResponseWriter, kind string) {
	counts, err := h.samples.CountByLabel(kind)
	if err != nil {
		fail(w, h.logger, "Failed to count samples", err)
		return
	}
	set, err := h.samples.TrainingSet(kind)
	if err != nil {
		fail(w, h.logger, "Failed to load samples", err)
		return
	}

	resp := summaryResponse{
		Success: true,
		Type:    kind,
		Total:   set.Len(),
		Labels:  counts,
		Missing: []string{},
	}
	for _, label := range gesture.Labels(kind) {
		if counts[label] == 0 {
			resp.Missing = append(resp.Missing, label)
		}
	}

	if set.Len() > 0 {
		vectors := make([]features.Vector, len(set.Features))
		for i, v := range set.Features {
			vectors[i] = v
		}
		s, err := features.Summarize(vectors)
		if err != nil {
			fail(w, h.logger, "Failed to summarize samples", err)
			return
		}
		resp.Features = &s
	}

	writeJSON(w, http.StatusOK, resp)
}

func validateSamples(kind string, vectors [][]float64, labels []string) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no samples", errBadRequest)
	}
	if len(vectors) != len(labels) {
		return fmt.Errorf("%w: %d vectors, %d labels", errBadRequest, len(vectors), len(labels))
	}
	for i, v := range vectors {
		if len(v) != features.Length {
			return fmt.Errorf("%w: sample %d has %d features, expected %d", errBadRequest, i, len(v), features.Length)
		}
		if slices.ContainsFunc(v, func(x float64) bool { return math.IsNaN(x) || math.IsInf(x, 0) }) {
			return fmt.Errorf("%w: sample %d has a non-finite feature", errBadRequest, i)
		}
		if !gesture.ValidLabel(kind, labels[i]) {
			return fmt.Errorf("%w: label %q is not a %s sign", errBadRequest, labels[i], kind)
		}
	}
	return nil
}

// DecodeFeatures accepts either a JSON array of vectors or a string holding
// CompressedPrefix followed by base64 gzip-compressed JSON of that array.
func DecodeFeatures(raw json.RawMessage) ([][]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: features missing", errBadRequest)
	}

	if raw[0] != '"' {
		var vectors [][]float64
		if err := json.Unmarshal(raw, &vectors); err != nil {
			return nil, fmt.Errorf("%w: features must be an array of vectors", errBadRequest)
		}
		return vectors, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: features: %v", errBadRequest, err)
	}
	encoded, ok := strings.CutPrefix(s, CompressedPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: features string must start with %q", errBadRequest, CompressedPrefix)
	}
	packed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: features base64: %v", errBadRequest, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("%w: features gzip: %v", errBadRequest, err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, maxDecodedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: features gzip: %v", errBadRequest, err)
	}
	if int64(len(inflated)) > maxDecodedBytes {
		return nil, fmt.Errorf("%w: compressed features inflate past %d bytes", errBadRequest, maxDecodedBytes)
	}

	var vectors [][]float64
	if err := json.Unmarshal(inflated, &vectors); err != nil {
		return nil, fmt.Errorf("%w: compressed features: %v", errBadRequest, err)
	}
	return vectors, nil
}

// EncodeFeatures is the inverse of DecodeFeatures for the compressed form.
func EncodeFeatures(vectors [][]float64) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(nonNil(vectors)); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return CompressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
