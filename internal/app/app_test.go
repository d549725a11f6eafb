package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
)

var errNoSuchModel = errors.New("no such model")

type modelMap map[string]*forest.Forest

func (m modelMap) LoadModel(kind string) (*forest.Forest, error) {
	f, ok := m[kind]
	if !ok {
		return nil, errNoSuchModel
	}
	return f, nil
}

// testModels trains an alphabet forest where fist=A, palm=B and pointing=D.
func testModels(t *testing.T) modelMap {
	t.Helper()

	presets := map[string]func() landmark.HandLandmarks{
		"A": landmark.FistLandmarks,
		"B": landmark.OpenPalmLandmarks,
		"D": landmark.PointingLandmarks,
	}
	var set forest.TrainingSet
	for i := 0; i < 20; i++ {
		for _, label := range []string{"A", "B", "D"} {
			h := landmark.Translate(presets[label](), 0.001*float64(i%4), 0, 0)
			h.Points[8].Y += 0.0015 * float64(i%3)
			set.Append(features.ExtractPose(landmark.Pose(h.Points)), label)
		}
	}
	f, err := forest.Fit(set, forest.Params{NumTrees: 15, Seed: 5}, forest.WithSchema(features.SchemaVersion))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return modelMap{gesture.KindAlphabet: f}
}

func twoHands(letter, control landmark.HandLandmarks) []landmark.HandLandmarks {
	return []landmark.HandLandmarks{
		landmark.WithHandedness(letter, landmark.HandLeft),
		landmark.WithHandedness(control, landmark.HandRight),
	}
}

func newTestApp(t *testing.T, cfg Config) (*App, *detector.MockDetector) {
	t.Helper()

	mock := detector.NewMockDetector()
	if cfg.Camera == nil {
		cfg.Camera = capture.NewMockCamera(nil, false)
	}
	if cfg.Detector == nil {
		cfg.Detector = mock
	}
	if cfg.Models == nil {
		cfg.Models = testModels(t)
	}
	if cfg.Recognizer == (gesture.RecognizerConfig{}) {
		cfg.Recognizer = gesture.RecognizerConfig{ConfidenceThreshold: 50, HistorySize: 3, MinWriteInterval: time.Hour}
	}
	cfg.Logger = zaptest.NewLogger(t)

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, mock
}

func TestNew_Validation(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	det := detector.NewMockDetector()
	models := modelMap{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no camera", Config{Detector: det, Models: models}},
		{"no detector", Config{Camera: cam, Models: models}},
		{"no models", Config{Camera: cam, Detector: det}},
		{"unknown kind", Config{Camera: cam, Detector: det, Models: models, Kind: "emoji"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}

	a, err := New(Config{Camera: cam, Detector: det, Models: models, LetterHand: "Both"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.config.Kind != gesture.KindAlphabet || a.config.LetterHand != landmark.HandLeft || a.config.Interval != DefaultInterval {
		t.Errorf("defaults not applied: %+v", a.config)
	}
}

func TestApp_ProcessFrame(t *testing.T) {
	var written []string
	a, mock := newTestApp(t, Config{OnWrite: func(letter, text string) {
		written = append(written, letter)
	}})

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if _, err := a.ProcessFrame(&frame, time.Now()); !errors.Is(err, errNoModel) {
		t.Fatalf("ProcessFrame() before load error = %v, want errNoModel", err)
	}
	if err := a.ReloadModel(); err != nil {
		t.Fatalf("ReloadModel() error = %v", err)
	}

	mock.SetHands(twoHands(landmark.FistLandmarks(), landmark.FistLandmarks()))
	d, err := a.ProcessFrame(&frame, time.Now())
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if d.Status != gesture.StatusWritten || d.Written != "A" {
		t.Errorf("expected A written, got %+v", d)
	}
	if len(written) != 1 || written[0] != "A" || a.Text() != "A" {
		t.Errorf("OnWrite saw %v, text %q", written, a.Text())
	}

	// Open control hand holds the letter back.
	mock.SetHands(twoHands(landmark.PointingLandmarks(), landmark.OpenPalmLandmarks()))
	a.Clear()
	for i := 0; i < 3; i++ {
		d, err = a.ProcessFrame(&frame, time.Now())
		if err != nil {
			t.Fatalf("ProcessFrame() error = %v", err)
		}
	}
	if d.Status != gesture.StatusHandOpen || d.Letter != "D" || a.Text() != "" {
		t.Errorf("expected hand_open on D, got %+v text %q", d, a.Text())
	}

	// Only one hand in view.
	mock.SetHands([]landmark.HandLandmarks{landmark.WithHandedness(landmark.FistLandmarks(), landmark.HandRight)})
	d, err = a.ProcessFrame(&frame, time.Now())
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if d.Status != gesture.StatusMissingHands {
		t.Errorf("expected missing_hands, got %s", d.Status)
	}

	mock.SetError(errors.New("detector crashed"))
	if _, err := a.ProcessFrame(&frame, time.Now()); err == nil {
		t.Error("expected the detector error")
	}
}

func TestApp_RightLetterHand(t *testing.T) {
	a, mock := newTestApp(t, Config{LetterHand: landmark.HandRight})
	if err := a.ReloadModel(); err != nil {
		t.Fatalf("ReloadModel() error = %v", err)
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	// Left hand closed, right hand signs B.
	mock.SetHands(twoHands(landmark.FistLandmarks(), landmark.OpenPalmLandmarks()))
	d, err := a.ProcessFrame(&frame, time.Now())
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if d.Letter != "B" || d.Written != "B" {
		t.Errorf("expected B written by the right hand, got %+v", d)
	}
}

func TestApp_MotionGateReusesDetection(t *testing.T) {
	gate := capture.NewMotionGate(1.0, 10)
	a, mock := newTestApp(t, Config{Motion: gate})
	defer gate.Close()
	if err := a.ReloadModel(); err != nil {
		t.Fatalf("ReloadModel() error = %v", err)
	}
	mock.SetHands(twoHands(landmark.FistLandmarks(), landmark.FistLandmarks()))

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < 3; i++ {
		d, err := a.ProcessFrame(&frame, time.Now())
		if err != nil {
			t.Fatalf("ProcessFrame() %d error = %v", i, err)
		}
		if d.Letter != "A" {
			t.Errorf("frame %d: letter = %q, want A", i, d.Letter)
		}
	}
	if got := mock.Calls(); got != 1 {
		t.Errorf("detector called %d times for a still scene, want 1", got)
	}
}

func TestApp_Run(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)

	wrote := make(chan string, 1)
	a, mock := newTestApp(t, Config{
		Camera:   cam,
		Interval: 5 * time.Millisecond,
		OnWrite: func(letter, text string) {
			select {
			case wrote <- text:
			default:
			}
		},
	})
	mock.SetHands(twoHands(landmark.FistLandmarks(), landmark.FistLandmarks()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case text := <-wrote:
		if text != "A" {
			t.Errorf("text = %q, want A", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no letter written")
	}

	if err := a.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	if cam.IsOpen() {
		t.Error("camera left open after Run returned")
	}
}

func TestApp_RunWithoutModel(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	a, _ := newTestApp(t, Config{Camera: cam, Models: modelMap{}})

	if err := a.Run(context.Background()); !errors.Is(err, errNoSuchModel) {
		t.Errorf("Run() error = %v, want errNoSuchModel", err)
	}
	if cam.IsOpen() {
		t.Error("camera should not be opened without a model")
	}
}

func TestApp_SetEnabled(t *testing.T) {
	a, _ := newTestApp(t, Config{})
	if !a.IsEnabled() {
		t.Error("new app should be enabled")
	}
	a.SetEnabled(false)
	if a.IsEnabled() {
		t.Error("SetEnabled(false) did not pause")
	}
}
