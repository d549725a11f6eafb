package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/landmark"
)

// Open/closed thresholds in normalized image units and radians.
const (
	tipBelowMCP      = 0.02
	tipReachRatio    = 0.95
	flexionAngle     = 2.0
	thumbToPalmX     = 0.08
	thumbTuckedSlack = 0.05

	closedFingersForFist = 4
)

// HandState describes whether a hand is open or closed.
type HandState struct {
	Closed bool `json:"closed"`
	// Fingers holds the closed state of thumb, index, middle, ring and pinky.
	Fingers       [5]bool `json:"fingers"`
	ClosedFingers int     `json:"closed_fingers"`
	Confidence    float64 `json:"confidence"`
}

var fingerChains = [4][3]int{
	{landmark.IndexMCP, landmark.IndexPIP, landmark.IndexTip},
	{landmark.MiddleMCP, landmark.MiddlePIP, landmark.MiddleTip},
	{landmark.RingMCP, landmark.RingPIP, landmark.RingTip},
	{landmark.PinkyMCP, landmark.PinkyPIP, landmark.PinkyTip},
}

// DetectHandState classifies p as a closed hand when at least four of its
// five fingers are curled. Image y grows downward.
//
// A finger is curled when its tip sits below its knuckle, reaches less far
// from the wrist than the knuckle does, or bends sharply at the middle joint.
// The thumb is curled when its tip lies across the palm.
func DetectHandState(p landmark.Pose) HandState {
	var s HandState
	wrist := p[landmark.Wrist]

	for i, chain := range fingerChains {
		mcp, pip, tip := p[chain[0]], p[chain[1]], p[chain[2]]

		closed := tip.Y > mcp.Y+tipBelowMCP ||
			planar(tip, wrist) < planar(mcp, wrist)*tipReachRatio ||
			flexion(mcp, pip, tip) > flexionAngle

		s.Fingers[i+1] = closed
	}

	thumbTip, thumbMCP := p[landmark.ThumbTip], p[landmark.ThumbMCP]
	s.Fingers[0] = math.Abs(thumbTip.X-p[landmark.MiddleMCP].X) < thumbToPalmX ||
		(thumbTip.X > thumbMCP.X && math.Abs(thumbTip.Y-thumbMCP.Y) < thumbTuckedSlack)

	for _, closed := range s.Fingers {
		if closed {
			s.ClosedFingers++
		}
	}
	s.Closed = s.ClosedFingers >= closedFingersForFist

	switch s.ClosedFingers {
	case 0, 5:
		s.Confidence = 0.95
	case 1, 4:
		s.Confidence = 0.8
	default:
		s.Confidence = 0.6
	}
	return s
}

func planar(a, b landmark.Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// flexion is the angle between the knuckle-to-joint and joint-to-tip segments.
func flexion(mcp, pip, tip landmark.Point3D) float64 {
	x1, y1 := pip.X-mcp.X, pip.Y-mcp.Y
	x2, y2 := tip.X-pip.X, tip.Y-pip.Y

	m1, m2 := math.Hypot(x1, y1), math.Hypot(x2, y2)
	if m1 == 0 || m2 == 0 {
		return 0
	}
	cos := (x1*x2 + y1*y2) / (m1 * m2)
	return math.Acos(max(-1, min(1, cos)))
}
