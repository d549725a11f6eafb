package main

import (
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
)

// cameraConfig converts the camera section.
func cameraConfig(c *config.Config) capture.Config {
	return capture.Config{
		Device: c.Camera.Device,
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
		FPS:    c.Camera.FPS,
	}
}

// motionGate builds the configured gate, or nil when gating is off.
func motionGate(c *config.Config) *capture.MotionGate {
	if c.Camera.MotionPercent == 0 {
		return nil
	}
	return capture.NewMotionGate(c.Camera.MotionPercent, c.Camera.MaxStillFrames)
}

func detectorConfig(c *config.Config) detector.Config {
	return detector.Config{
		Script:        c.Detector.Script,
		Python:        c.Detector.Python,
		MaxHands:      c.Detector.MaxHands,
		MinConfidence: c.Detector.MinConfidence,
	}
}
