package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/server/api"
)

const (
	maxFrameBytes = 64 << 10
	writeTimeout  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// LiveFrame is one message from a live client: the landmarks of each hand
// seen in a camera frame. A missing hand is omitted. Command, when set to
// "clear" or "reset", is applied before the frame is processed.
type LiveFrame struct {
	Left    []landmark.Point3D `json:"left,omitempty"`
	Right   []landmark.Point3D `json:"right,omitempty"`
	Command string             `json:"command,omitempty"`
}

// LiveResult is the server's answer to each frame.
type LiveResult struct {
	Prediction *forest.Prediction `json:"prediction,omitempty"`
	Control    *gesture.HandState `json:"control,omitempty"`
	Decision   gesture.Decision   `json:"decision"`
	Error      string             `json:"error,omitempty"`
}

type session struct {
	conn *websocket.Conn
	rec  *gesture.Recognizer
}

// LiveHandler runs a Recognizer per websocket connection at
// /api/live/{kind}.
type LiveHandler struct {
	registry   *api.Registry
	logger     *zap.Logger
	letterHand string

	mu       sync.Mutex
	cfg      gesture.RecognizerConfig
	sessions map[*session]struct{}
}

// NewLiveHandler creates a LiveHandler. letterHand names the hand that
// signs letters ("Left" by default); the other hand is the control hand.
func NewLiveHandler(registry *api.Registry, cfg gesture.RecognizerConfig, letterHand string, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if letterHand != landmark.HandRight {
		letterHand = landmark.HandLeft
	}
	return &LiveHandler{
		registry:   registry,
		logger:     logger,
		letterHand: letterHand,
		cfg:        cfg,
		sessions:   make(map[*session]struct{}),
	}
}

// SetConfig updates the gating parameters of current and future sessions.
func (h *LiveHandler) SetConfig(cfg gesture.RecognizerConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
	for s := range h.sessions {
		s.rec.SetConfig(cfg)
	}
}

// Sessions returns the number of connected clients.
func (h *LiveHandler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll disconnects every client.
func (h *LiveHandler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		s.conn.Close()
	}
}

// ServeHTTP validates the kind and model, then upgrades the connection.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/live"), "/")
	if !gesture.ValidKind(kind) {
		http.Error(w, "Unknown kind", http.StatusBadRequest)
		return
	}
	if _, err := h.registry.LoadModel(kind); err != nil {
		http.Error(w, err.Error(), api.StatusFor(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	h.mu.Lock()
	s := &session{conn: conn, rec: gesture.NewRecognizer(h.cfg)}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()
	}()

	log := h.logger.With(zap.String("kind", kind), zap.String("remote", r.RemoteAddr))
	log.Info("live session started")

	for {
		var frame LiveFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("live session read failed", zap.Error(err))
			}
			break
		}

		result := h.process(kind, s.rec, frame, time.Now())

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(result); err != nil {
			log.Warn("live session write failed", zap.Error(err))
			break
		}
		if result.Decision.Written != "" {
			log.Info("letter written",
				zap.String("letter", result.Decision.Written),
				zap.String("text", result.Decision.Text),
			)
		}
	}

	log.Info("live session ended", zap.String("text", s.rec.Text()))
}

// process turns one frame into a recognizer decision. Landmark errors are
// reported in the result and the hand is treated as missing.
func (h *LiveHandler) process(kind string, rec *gesture.Recognizer, frame LiveFrame, at time.Time) LiveResult {
	switch frame.Command {
	case "clear":
		rec.Clear()
	case "reset":
		rec.Reset()
	}

	letterPts, controlPts := frame.Left, frame.Right
	if h.letterHand == landmark.HandRight {
		letterPts, controlPts = controlPts, letterPts
	}

	var result LiveResult
	var errs []error

	if len(letterPts) > 0 {
		p, err := h.predict(kind, letterPts)
		if err != nil {
			errs = append(errs, err)
		} else {
			result.Prediction = &p
		}
	}

	if len(controlPts) > 0 {
		pose, err := landmark.ValidatePose(controlPts)
		if err != nil {
			errs = append(errs, err)
		} else {
			st := gesture.DetectHandState(pose)
			result.Control = &st
		}
	}

	if err := errors.Join(errs...); err != nil {
		result.Error = err.Error()
	}
	result.Decision = rec.Observe(gesture.Frame{
		Letter:  result.Prediction,
		Control: result.Control,
		At:      at,
	})
	return result
}

func (h *LiveHandler) predict(kind string, points []landmark.Point3D) (forest.Prediction, error) {
	v, err := features.Extract(points)
	if err != nil {
		return forest.Prediction{}, err
	}
	f, err := h.registry.LoadModel(kind)
	if err != nil {
		return forest.Prediction{}, err
	}
	return f.PredictSchema(features.SchemaVersion, v)
}
