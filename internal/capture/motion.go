package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	blurSize = 21
	// pixelDelta is the grey-level difference that counts a pixel as changed.
	pixelDelta = 25

	// DefaultMotionPercent is the share of changed pixels that counts as motion.
	DefaultMotionPercent = 1.0
	// DefaultMaxStill is how many still frames may reuse a detection before
	// the detector is run anyway.
	DefaultMaxStill = 5
)

// MotionResult describes one frame checked by a MotionGate.
type MotionResult struct {
	// Changed is the percentage of pixels that differ from the previous frame.
	Changed float64
	// Detect is false when the frame is still and the previous detection
	// can be reused.
	Detect bool
}

// MotionGate compares consecutive frames so a still scene does not have to
// go through hand detection every tick. A held sign is still, so the gate
// forces a detection every MaxStill frames to keep the recognizer fed.
type MotionGate struct {
	mu       sync.Mutex
	percent  float64
	maxStill int
	prev     gocv.Mat
	primed   bool
	still    int
	closed   bool
}

// NewMotionGate creates a gate. Non-positive arguments take the defaults.
func NewMotionGate(percent float64, maxStill int) *MotionGate {
	if percent <= 0 {
		percent = DefaultMotionPercent
	}
	if maxStill <= 0 {
		maxStill = DefaultMaxStill
	}
	return &MotionGate{percent: percent, maxStill: maxStill, prev: gocv.NewMat()}
}

// Check compares frame with the previous one. The first frame, empty
// frames and every frame after Close ask for detection.
func (g *MotionGate) Check(frame *gocv.Mat) MotionResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || frame == nil || frame.Empty() {
		return MotionResult{Detect: true}
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurSize, Y: blurSize}, 0, 0, gocv.BorderDefault)

	if !g.primed || blurred.Rows() != g.prev.Rows() || blurred.Cols() != g.prev.Cols() {
		blurred.CopyTo(&g.prev)
		g.primed = true
		g.still = 0
		return MotionResult{Detect: true}
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, pixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100
	blurred.CopyTo(&g.prev)

	if changed > g.percent {
		g.still = 0
		return MotionResult{Changed: changed, Detect: true}
	}
	g.still++
	if g.still >= g.maxStill {
		g.still = 0
		return MotionResult{Changed: changed, Detect: true}
	}
	return MotionResult{Changed: changed}
}

// Reset forgets the previous frame.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed = false
	g.still = 0
}

// Close releases the stored frame.
func (g *MotionGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.primed = false
	return g.prev.Close()
}
