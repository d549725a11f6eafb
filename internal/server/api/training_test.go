package api

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/features"
)

func TestTrainingHandler_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	handler := NewTrainingHandler(s, nil)

	vectors, labels := signSamples(t, []string{"A", "B"}, 3)
	rec := doJSON(t, handler, http.MethodPost, "/api/training/save", map[string]any{
		"type":     "alphabet",
		"features": vectors,
		"labels":   labels,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body)
	}

	var saved saveTrainingResponse
	decode(t, rec, &saved)
	if !saved.Success || saved.Saved != 6 || saved.Total != 6 || !saved.Complete {
		t.Errorf("unexpected save response: %+v", saved)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/training/load/alphabet", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var loaded struct {
		Success    bool        `json:"success"`
		Count      int         `json:"count"`
		Compressed bool        `json:"compressed"`
		Features   [][]float64 `json:"features"`
		Labels     []string    `json:"labels"`
	}
	decode(t, rec, &loaded)
	if loaded.Count != 6 || loaded.Compressed {
		t.Errorf("unexpected load response: count=%d compressed=%v", loaded.Count, loaded.Compressed)
	}
	if !reflect.DeepEqual(loaded.Labels, labels) {
		t.Errorf("labels = %v, want %v", loaded.Labels, labels)
	}
	if !reflect.DeepEqual(loaded.Features, vectors) {
		t.Error("features did not round-trip")
	}
}

func TestTrainingHandler_Compressed(t *testing.T) {
	s := newTestStore(t)
	handler := NewTrainingHandler(s, nil)

	vectors, labels := signSamples(t, []string{"1", "2", "3"}, 2)
	packed, err := EncodeFeatures(vectors)
	if err != nil {
		t.Fatalf("EncodeFeatures() error = %v", err)
	}
	if !strings.HasPrefix(packed, CompressedPrefix) {
		t.Fatalf("packed features should start with %q", CompressedPrefix)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/training/save", map[string]any{
		"type":     "numbers",
		"features": packed,
		"labels":   labels,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/training/load/numbers?compress=1", nil)
	var loaded struct {
		Compressed bool            `json:"compressed"`
		Features   json.RawMessage `json:"features"`
	}
	decode(t, rec, &loaded)
	if !loaded.Compressed {
		t.Fatal("expected a compressed response")
	}
	got, err := DecodeFeatures(loaded.Features)
	if err != nil {
		t.Fatalf("DecodeFeatures() error = %v", err)
	}
	if !reflect.DeepEqual(got, vectors) {
		t.Error("compressed features did not round-trip")
	}
}

func TestDecodeFeatures_InflateLimit(t *testing.T) {
	old := maxDecodedBytes
	maxDecodedBytes = 4 << 10
	t.Cleanup(func() { maxDecodedBytes = old })

	// A few hundred bytes on the wire that inflate well past the limit.
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("[[" + strings.Repeat("0,", 64<<10) + "0]]"))
	zw.Close()
	packed := CompressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(packed) > int(maxDecodedBytes) {
		t.Fatalf("payload is %d bytes before inflating, want a small one", len(packed))
	}

	raw, _ := json.Marshal(packed)
	if _, err := DecodeFeatures(raw); !errors.Is(err, errBadRequest) {
		t.Fatalf("DecodeFeatures() error = %v, want a bad request", err)
	}

	handler := NewTrainingHandler(newTestStore(t), nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/training/save", map[string]any{
		"type":     "alphabet",
		"features": packed,
		"labels":   []string{"A"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body)
	}

	vectors, _ := signSamples(t, []string{"A"}, 1)
	small, err := EncodeFeatures(vectors)
	if err != nil {
		t.Fatalf("EncodeFeatures() error = %v", err)
	}
	raw, _ = json.Marshal(small)
	if got, err := DecodeFeatures(raw); err != nil || len(got) != 1 {
		t.Errorf("DecodeFeatures() = %d vectors, %v; payloads under the limit should decode", len(got), err)
	}
}

func TestTrainingHandler_Chunks(t *testing.T) {
	s := newTestStore(t)
	handler := NewTrainingHandler(s, nil)

	vectors, labels := signSamples(t, []string{"A"}, 4)
	for chunk := 0; chunk < 2; chunk++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/training/save", map[string]any{
			"type":        "alphabet",
			"features":    vectors[chunk*2 : chunk*2+2],
			"labels":      labels[chunk*2 : chunk*2+2],
			"batchId":     "upload-1",
			"chunk":       chunk,
			"totalChunks": 2,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("chunk %d: expected status %d, got %d", chunk, http.StatusCreated, rec.Code)
		}
		var resp saveTrainingResponse
		decode(t, rec, &resp)
		if resp.Total != (chunk+1)*2 {
			t.Errorf("chunk %d: total = %d", chunk, resp.Total)
		}
		if resp.Complete != (chunk == 1) {
			t.Errorf("chunk %d: complete = %v", chunk, resp.Complete)
		}
	}

	n, err := s.Samples().DeleteBatch("upload-1")
	if err != nil || n != 4 {
		t.Errorf("chunks should share a batch, deleted %d (%v)", n, err)
	}
}

func TestTrainingHandler_SaveValidation(t *testing.T) {
	s := newTestStore(t)
	handler := NewTrainingHandler(s, nil)

	good, goodLabels := signSamples(t, []string{"A"}, 1)
	short := [][]float64{make([]float64, features.Length-1)}

	tests := []struct {
		name string
		body any
	}{
		{"invalid JSON", "{not json"},
		{"unknown kind", map[string]any{"type": "emoji", "features": good, "labels": goodLabels}},
		{"missing features", map[string]any{"type": "alphabet", "labels": goodLabels}},
		{"no samples", map[string]any{"type": "alphabet", "features": [][]float64{}, "labels": []string{}}},
		{"length mismatch", map[string]any{"type": "alphabet", "features": good, "labels": []string{"A", "B"}}},
		{"short vector", map[string]any{"type": "alphabet", "features": short, "labels": []string{"A"}}},
		{"wrong family label", map[string]any{"type": "alphabet", "features": good, "labels": []string{"7"}}},
		{"plain string features", map[string]any{"type": "alphabet", "features": "1,2,3", "labels": goodLabels}},
		{"bad base64", map[string]any{"type": "alphabet", "features": CompressedPrefix + "!!!", "labels": goodLabels}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/api/training/save", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body)
			}
			var resp errorResponse
			decode(t, rec, &resp)
			if resp.Success || resp.Error == "" {
				t.Errorf("expected an error message, got %+v", resp)
			}
		})
	}

	n, err := s.Samples().Count("alphabet")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("rejected requests must not store samples, got %d", n)
	}
}

func TestTrainingHandler_SummaryAndReset(t *testing.T) {
	s := newTestStore(t)
	handler := NewTrainingHandler(s, nil)

	vectors, labels := signSamples(t, []string{"0", "1"}, 3)
	if _, err := s.Samples().Append("numbers", "", vectors, labels); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/training/summary/numbers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var summary summaryResponse
	decode(t, rec, &summary)
	if summary.Total != 6 || summary.Labels["0"] != 3 || summary.Labels["1"] != 3 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if len(summary.Missing) != 8 || summary.Missing[0] != "2" {
		t.Errorf("missing = %v", summary.Missing)
	}
	if summary.Features == nil || summary.Features.Count != 6 || len(summary.Features.Features) != features.Length {
		t.Errorf("unexpected feature summary: %+v", summary.Features)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/training/reset/numbers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var reset struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, rec, &reset)
	if reset.Deleted != 6 {
		t.Errorf("deleted = %d, want 6", reset.Deleted)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/training/summary/numbers", nil)
	var empty summaryResponse
	decode(t, rec, &empty)
	if empty.Total != 0 || empty.Features != nil || len(empty.Missing) != 10 {
		t.Errorf("unexpected summary after reset: %+v", empty)
	}
}

func TestTrainingHandler_Routing(t *testing.T) {
	handler := NewTrainingHandler(newTestStore(t), nil)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/training/save", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/training/load/alphabet", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/training/reset/alphabet", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/training/unknown/alphabet", http.StatusNotFound},
		{http.MethodGet, "/api/training/load/emoji", http.StatusBadRequest},
		{http.MethodGet, "/api/training/load", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doJSON(t, handler, tt.method, tt.path, nil)
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}
