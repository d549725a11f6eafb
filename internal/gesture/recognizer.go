package gesture

import (
	"math"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/forest"
)

// Recognizer defaults.
const (
	DefaultConfidenceThreshold = 80.0
	DefaultHistorySize         = 5
	DefaultMinWriteInterval    = 800 * time.Millisecond
)

// RecognizerConfig tunes smoothing and write gating.
type RecognizerConfig struct {
	// ConfidenceThreshold is the smoothed confidence, in percent, a letter
	// must exceed before it is written.
	ConfidenceThreshold float64
	HistorySize         int
	// MinWriteInterval is how long the same letter must wait before it is
	// written again.
	MinWriteInterval time.Duration
}

// DefaultRecognizerConfig returns the default gating parameters.
func DefaultRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		HistorySize:         DefaultHistorySize,
		MinWriteInterval:    DefaultMinWriteInterval,
	}
}

func (c RecognizerConfig) withDefaults() RecognizerConfig {
	d := DefaultRecognizerConfig()
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.MinWriteInterval < 0 {
		c.MinWriteInterval = d.MinWriteInterval
	}
	return c
}

// Status summarizes why a letter was or was not written.
type Status string

const (
	StatusMissingHands  Status = "missing_hands"
	StatusLowConfidence Status = "low_confidence"
	StatusHandOpen      Status = "hand_open"
	StatusCooldown      Status = "cooldown"
	StatusWritten       Status = "written"
)

// Frame is one detection tick. A nil Letter or Control means that hand was
// not seen.
type Frame struct {
	Letter  *forest.Prediction
	Control *HandState
	At      time.Time
}

// Decision is the recognizer's view after a frame.
type Decision struct {
	Letter            string  `json:"letter,omitempty"`
	Confidence        float64 `json:"confidence"`
	ControlClosed     bool    `json:"control_closed"`
	ControlConfidence float64 `json:"control_confidence"`
	Status            Status  `json:"status"`
	Written           string  `json:"written,omitempty"`
	Text              string  `json:"text"`
}

// Recognizer smooths per-frame predictions over a short history and appends
// a letter to its text when the letter hand is confident and the control
// hand is closed. It is safe for concurrent use.
type Recognizer struct {
	mu  sync.Mutex
	cfg RecognizerConfig

	letters     []string
	confidences []float64
	closed      []bool
	controlConf float64

	lastWritten string
	lastWriteAt time.Time
	text        string

	// OnWrite, if set, is called after a letter is written, outside the lock.
	OnWrite func(letter, text string)
}

// NewRecognizer creates a Recognizer. Zero fields of cfg take defaults.
func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	return &Recognizer{cfg: cfg.withDefaults()}
}

// SetConfig replaces the gating parameters. Histories longer than the new
// size are trimmed on the next frame.
func (r *Recognizer) SetConfig(cfg RecognizerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg.withDefaults()
}

// Config returns the current gating parameters.
func (r *Recognizer) Config() RecognizerConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Observe records a frame and decides whether to write a letter.
func (r *Recognizer) Observe(f Frame) Decision {
	r.mu.Lock()

	if f.Letter != nil {
		r.letters = push(r.letters, f.Letter.Label, r.cfg.HistorySize)
		r.confidences = push(r.confidences, math.Round(f.Letter.Confidence*100), r.cfg.HistorySize)
	} else {
		r.letters, r.confidences = r.letters[:0], r.confidences[:0]
	}

	if f.Control != nil {
		r.closed = push(r.closed, f.Control.Closed, r.cfg.HistorySize)
		r.controlConf = math.Round(f.Control.Confidence * 100)
	} else {
		r.closed = r.closed[:0]
		r.controlConf = 0
	}

	d := Decision{
		Letter:            mostCommon(r.letters),
		Confidence:        mean(r.confidences),
		ControlClosed:     majority(r.closed),
		ControlConfidence: r.controlConf,
	}

	switch {
	case f.Letter == nil || f.Control == nil:
		d.Status = StatusMissingHands
	case !(d.Confidence > r.cfg.ConfidenceThreshold) || d.Letter == "":
		d.Status = StatusLowConfidence
	case !d.ControlClosed:
		d.Status = StatusHandOpen
	case d.Letter == r.lastWritten && f.At.Sub(r.lastWriteAt) <= r.cfg.MinWriteInterval:
		d.Status = StatusCooldown
	default:
		r.text += d.Letter
		r.lastWritten = d.Letter
		r.lastWriteAt = f.At
		d.Status = StatusWritten
		d.Written = d.Letter
	}
	d.Text = r.text

	onWrite := r.OnWrite
	r.mu.Unlock()

	if d.Written != "" && onWrite != nil {
		onWrite(d.Written, d.Text)
	}
	return d
}

// Text returns the letters written so far.
func (r *Recognizer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// Reset drops the smoothing histories but keeps the written text.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters, r.confidences, r.closed = nil, nil, nil
	r.controlConf = 0
}

// Clear empties the written text and forgets the last written letter.
func (r *Recognizer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = ""
	r.lastWritten = ""
	r.lastWriteAt = time.Time{}
}

func push[T any](s []T, v T, size int) []T {
	s = append(s, v)
	if len(s) > size {
		s = append(s[:0], s[len(s)-size:]...)
	}
	return s
}

// mostCommon returns the most frequent label; on a tie, the label that
// reached the winning count first.
func mostCommon(labels []string) string {
	counts := make(map[string]int, len(labels))
	var best string
	bestCount := 0
	for _, l := range labels {
		counts[l]++
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func majority(states []bool) bool {
	closed := 0
	for _, s := range states {
		if s {
			closed++
		}
	}
	return closed*2 > len(states)
}
