// Package features converts hand poses into the fixed-length numeric vectors
// consumed by the sign classifier.
//
// The layout of a vector is part of every trained model: thresholds are keyed
// to feature indices, so any change to the order or count below must bump
// SchemaVersion.
package features

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/mudra/internal/landmark"
)

// SchemaVersion identifies the extraction scheme. It is stored with every
// serialized model and compared before prediction.
const SchemaVersion = "hand98/v1"

// Block sizes, in vector order.
const (
	relativeCoords  = 3 * landmark.NumLandmarks // 63
	tipPairs        = 10
	tipAngles       = 5
	tipWristDists   = 5
	curvatures      = 5
	handArea        = 1
	handOrientation = 1
	aspectRatio     = 1
	extensions      = 5
	crossDists      = 2

	// Length is the number of values produced by Extract.
	Length = relativeCoords + tipPairs + tipAngles + tipWristDists + curvatures +
		handArea + handOrientation + aspectRatio + extensions + crossDists
)

// epsilon floors denominators that may collapse on degenerate poses.
const epsilon = 0.001

// Vector is an ordered feature vector of length Length.
type Vector []float64

var (
	fingerTips  = [5]int{landmark.ThumbTip, landmark.IndexTip, landmark.MiddleTip, landmark.RingTip, landmark.PinkyTip}
	fingerBases = [5]int{landmark.ThumbMCP, landmark.IndexMCP, landmark.MiddleMCP, landmark.RingMCP, landmark.PinkyMCP}

	fingerJoints = [5][]int{
		{landmark.ThumbMCP, landmark.ThumbIP, landmark.ThumbTip},
		{landmark.IndexMCP, landmark.IndexPIP, landmark.IndexDIP, landmark.IndexTip},
		{landmark.MiddleMCP, landmark.MiddlePIP, landmark.MiddleDIP, landmark.MiddleTip},
		{landmark.RingMCP, landmark.RingPIP, landmark.RingDIP, landmark.RingTip},
		{landmark.PinkyMCP, landmark.PinkyPIP, landmark.PinkyDIP, landmark.PinkyTip},
	}

	// contour is walked in order for the shoelace area.
	contour = [6]int{landmark.ThumbTip, landmark.IndexTip, landmark.MiddleTip, landmark.RingTip, landmark.PinkyTip, landmark.Wrist}
)

// Extract validates points and returns their feature vector.
// The error wraps landmark.ErrInvalidPose.
func Extract(points []landmark.Point3D) (Vector, error) {
	pose, err := landmark.ValidatePose(points)
	if err != nil {
		return nil, err
	}
	return ExtractPose(pose), nil
}

// ExtractPose returns the feature vector of an already validated pose.
//
// Layout:
//
//	[0,63)   landmark coordinates relative to the wrist (x,y,z per landmark)
//	[63,73)  3-D distances between every pair of fingertips
//	[73,78)  2-D angle from each finger base to its tip
//	[78,83)  fingertip to wrist distances
//	[83,88)  mean joint turning angle per finger
//	88       shoelace area of the fingertip/wrist contour
//	89       wrist to middle fingertip angle
//	90       palm width / palm height
//	[91,96)  fingertip-to-wrist over base-to-wrist ratio per finger
//	96, 97   thumb-pinky and index-ring tip distances
func ExtractPose(p landmark.Pose) Vector {
	v := make(Vector, 0, Length)
	wrist := p[landmark.Wrist]

	for _, lm := range p {
		v = append(v, lm.X-wrist.X, lm.Y-wrist.Y, lm.Z-wrist.Z)
	}

	for i := 0; i < len(fingerTips); i++ {
		for j := i + 1; j < len(fingerTips); j++ {
			v = append(v, distance(p[fingerTips[i]], p[fingerTips[j]]))
		}
	}

	for i, tip := range fingerTips {
		base := p[fingerBases[i]]
		v = append(v, math.Atan2(p[tip].Y-base.Y, p[tip].X-base.X))
	}

	for _, tip := range fingerTips {
		v = append(v, distance(p[tip], wrist))
	}

	for _, joints := range fingerJoints {
		v = append(v, curvature(p, joints))
	}

	v = append(v, area(p))

	middle := p[landmark.MiddleTip]
	v = append(v, math.Atan2(middle.Y-wrist.Y, middle.X-wrist.X))

	palmWidth := distance(p[landmark.IndexMCP], p[landmark.PinkyMCP])
	palmHeight := distance(wrist, middle)
	v = append(v, palmWidth/floor(palmHeight))

	for i, tip := range fingerTips {
		base := p[fingerBases[i]]
		v = append(v, distance(p[tip], wrist)/floor(distance(base, wrist)))
	}

	v = append(v,
		distance(p[landmark.ThumbTip], p[landmark.PinkyTip]),
		distance(p[landmark.IndexTip], p[landmark.RingTip]),
	)

	return v
}

func distance(a, b landmark.Point3D) float64 {
	return floats.Distance([]float64{a.X, a.Y, a.Z}, []float64{b.X, b.Y, b.Z}, 2)
}

// floor keeps a denominator away from zero.
func floor(d float64) float64 {
	if d < epsilon {
		return epsilon
	}
	return d
}

// curvature is the mean 2-D turning angle between consecutive segments of a
// joint chain. A zero-length segment turns by 0.
func curvature(p landmark.Pose, joints []int) float64 {
	if len(joints) < 3 {
		return 0
	}

	var total float64
	for i := 0; i+2 < len(joints); i++ {
		a, b, c := p[joints[i]], p[joints[i+1]], p[joints[i+2]]
		v1x, v1y := b.X-a.X, b.Y-a.Y
		v2x, v2y := c.X-b.X, c.Y-b.Y

		n1 := math.Hypot(v1x, v1y)
		n2 := math.Hypot(v2x, v2y)
		if n1 == 0 || n2 == 0 {
			continue
		}

		cos := (v1x*v2x + v1y*v2y) / (n1*n2 + epsilon)
		total += math.Acos(math.Max(-1, math.Min(1, cos)))
	}

	return total / float64(len(joints)-2)
}

// area is the unsigned shoelace area of the contour in the image plane.
func area(p landmark.Pose) float64 {
	var sum float64
	for i := range contour {
		a := p[contour[i]]
		b := p[contour[(i+1)%len(contour)]]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}
