// Package app runs the local camera pipeline: frames from the camera go
// through the hand detector, the letter hand is classified by the trained
// forest and the recognizer turns the results into text.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
)

// DefaultInterval is the time between detection ticks.
const DefaultInterval = 200 * time.Millisecond

// ErrAlreadyRunning is returned by Run when the pipeline is already running.
var ErrAlreadyRunning = errors.New("pipeline already running")

// ModelLoader supplies the forest of a sign family.
type ModelLoader interface {
	LoadModel(kind string) (*forest.Forest, error)
}

// Config holds configuration options for the application.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Models   ModelLoader
	Kind     string

	Recognizer gesture.RecognizerConfig
	// LetterHand is the hand that signs letters, "Left" by default.
	LetterHand string
	Interval   time.Duration

	// Motion, when set, lets still frames reuse the previous detection.
	Motion *capture.MotionGate

	// OnWrite is called with each written letter and the text so far.
	OnWrite func(letter, text string)
	// OnDecision, when set, receives every decision.
	OnDecision func(gesture.Decision)

	Logger *zap.Logger
}

// App is the camera recognition pipeline.
type App struct {
	config     Config
	recognizer *gesture.Recognizer
	logger     *zap.Logger

	mu        sync.RWMutex
	model     *forest.Forest
	enabled   bool
	running   bool
	lastHands []landmark.HandLandmarks
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.Models == nil {
		return nil, errors.New("app: model source is required")
	}
	if config.Kind == "" {
		config.Kind = gesture.KindAlphabet
	}
	if !gesture.ValidKind(config.Kind) {
		return nil, fmt.Errorf("%w: %q", gesture.ErrUnknownKind, config.Kind)
	}
	if config.LetterHand != landmark.HandRight {
		config.LetterHand = landmark.HandLeft
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	a := &App{
		config:     config,
		recognizer: gesture.NewRecognizer(config.Recognizer),
		logger:     config.Logger.With(zap.String("kind", config.Kind)),
		enabled:    true,
	}
	a.recognizer.OnWrite = func(letter, text string) {
		a.logger.Info("letter written", zap.String("letter", letter), zap.String("text", text))
		if config.OnWrite != nil {
			config.OnWrite(letter, text)
		}
	}
	return a, nil
}

// SetEnabled pauses or resumes recognition. A paused pipeline keeps the
// camera open but skips frames.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether recognition is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// ReloadModel fetches the forest for the configured kind again.
func (a *App) ReloadModel() error {
	f, err := a.config.Models.LoadModel(a.config.Kind)
	if err != nil {
		return fmt.Errorf("load %s model: %w", a.config.Kind, err)
	}
	a.mu.Lock()
	a.model = f
	a.mu.Unlock()
	a.logger.Info("model loaded", zap.Int("trees", len(f.Trees)), zap.Strings("classes", f.Classes))
	return nil
}

// SetRecognizerConfig applies new gating parameters.
func (a *App) SetRecognizerConfig(cfg gesture.RecognizerConfig) {
	a.recognizer.SetConfig(cfg)
}

// Text returns the text written so far.
func (a *App) Text() string {
	return a.recognizer.Text()
}

// Clear empties the written text.
func (a *App) Clear() {
	a.recognizer.Clear()
}

// Run opens the camera and processes a frame every interval until ctx is
// cancelled. The camera and detector are closed on return.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if err := a.ReloadModel(); err != nil {
		return err
	}
	if err := a.config.Camera.Open(); err != nil {
		return err
	}
	defer a.shutdown()

	a.logger.Info("detection pipeline started",
		zap.Duration("interval", a.config.Interval),
		zap.String("letter_hand", a.config.LetterHand),
	)
	a.runPipeline(ctx)
	a.logger.Info("detection pipeline stopped", zap.String("text", a.Text()))
	return nil
}

func (a *App) shutdown() {
	if err := a.config.Camera.Close(); err != nil {
		a.logger.Warn("closing camera", zap.Error(err))
	}
	if a.config.Motion != nil {
		a.config.Motion.Close()
	}
	if err := a.config.Detector.Close(); err != nil {
		a.logger.Warn("closing detector", zap.Error(err))
	}
}
