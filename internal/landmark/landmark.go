// Package landmark defines the 21-point hand model shared by detection,
// feature extraction and recognition, along with pose validation.
package landmark

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Handedness labels reported by MediaPipe.
const (
	HandLeft  = "Left"
	HandRight = "Right"
)

// ErrInvalidPose is returned when a landmark set cannot be used for feature extraction.
var ErrInvalidPose = errors.New("invalid pose")

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// finite reports whether all coordinates are finite numbers.
func (p Point3D) finite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Pose is a validated set of exactly 21 landmarks with finite coordinates.
// Only ValidatePose and HandLandmarks.Pose produce one from untrusted input.
type Pose [NumLandmarks]Point3D

// ValidatePose checks that points holds exactly NumLandmarks finite points
// and returns them as a Pose. The returned error wraps ErrInvalidPose.
func ValidatePose(points []Point3D) (Pose, error) {
	var pose Pose

	if len(points) == 0 {
		return pose, fmt.Errorf("%w: no landmarks", ErrInvalidPose)
	}
	if len(points) != NumLandmarks {
		return pose, fmt.Errorf("%w: got %d landmarks, expected %d", ErrInvalidPose, len(points), NumLandmarks)
	}

	for i, p := range points {
		if !p.finite() {
			return pose, fmt.Errorf("%w: landmark %d has a non-finite coordinate", ErrInvalidPose, i)
		}
		pose[i] = p
	}

	return pose, nil
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Pose validates the detected points and returns them as a Pose.
func (h *HandLandmarks) Pose() (Pose, error) {
	if h == nil {
		return Pose{}, fmt.Errorf("%w: no hand", ErrInvalidPose)
	}
	return ValidatePose(h.Points[:])
}

// SplitHands returns the first detected hand for each side. Hands with any
// other handedness label are ignored. Either result may be nil.
func SplitHands(hands []HandLandmarks) (left, right *HandLandmarks) {
	for i := range hands {
		switch hands[i].Handedness {
		case HandLeft:
			if left == nil {
				left = &hands[i]
			}
		case HandRight:
			if right == nil {
				right = &hands[i]
			}
		}
	}
	return left, right
}
