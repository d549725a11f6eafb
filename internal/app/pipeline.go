package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
)

// errNoModel is returned when a frame is processed before ReloadModel.
var errNoModel = errors.New("no model loaded")

// runPipeline reads and processes one frame per tick until ctx is done.
// Frame errors are logged and the frame is skipped.
func (a *App) runPipeline(ctx context.Context) {
	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.config.Camera.ReadFrame()
			if err != nil {
				a.logger.Debug("frame skipped", zap.Error(err))
				continue
			}
			d, err := a.ProcessFrame(frame, now)
			frame.Close()
			if err != nil {
				a.logger.Warn("frame failed", zap.Error(err))
				continue
			}
			if a.config.OnDecision != nil {
				a.config.OnDecision(d)
			}
		}
	}
}

// ProcessFrame runs detection on frame and feeds the recognizer. Hands with
// invalid landmarks count as missing.
func (a *App) ProcessFrame(frame *gocv.Mat, at time.Time) (gesture.Decision, error) {
	a.mu.RLock()
	model := a.model
	a.mu.RUnlock()
	if model == nil {
		return gesture.Decision{}, errNoModel
	}

	hands, err := a.detect(frame)
	if err != nil {
		return gesture.Decision{}, fmt.Errorf("detect hands: %w", err)
	}

	left, right := landmark.SplitHands(hands)
	letterHand, controlHand := left, right
	if a.config.LetterHand == landmark.HandRight {
		letterHand, controlHand = right, left
	}

	var f gesture.Frame
	f.At = at

	if letterHand != nil {
		if p, err := classify(model, letterHand); err != nil {
			a.logger.Debug("letter hand rejected", zap.Error(err))
		} else {
			f.Letter = &p
		}
	}
	if controlHand != nil {
		if pose, err := controlHand.Pose(); err != nil {
			a.logger.Debug("control hand rejected", zap.Error(err))
		} else {
			st := gesture.DetectHandState(pose)
			f.Control = &st
		}
	}

	return a.recognizer.Observe(f), nil
}

// detect runs the detector, or reuses the previous hands when the motion
// gate reports a still frame.
func (a *App) detect(frame *gocv.Mat) ([]landmark.HandLandmarks, error) {
	if a.config.Motion != nil {
		r := a.config.Motion.Check(frame)
		if !r.Detect {
			a.mu.RLock()
			hands := a.lastHands
			a.mu.RUnlock()
			return hands, nil
		}
	}

	hands, err := a.config.Detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.lastHands = hands
	a.mu.Unlock()
	return hands, nil
}

func classify(model *forest.Forest, hand *landmark.HandLandmarks) (forest.Prediction, error) {
	pose, err := hand.Pose()
	if err != nil {
		return forest.Prediction{}, err
	}
	return model.PredictSchema(features.SchemaVersion, features.ExtractPose(pose))
}
