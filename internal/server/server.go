// Package server provides the HTTP server for mudra: the training and model
// API, one-shot predictions and live websocket recognition.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/modelcache"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	// Models is an optional file cache consulted before the database.
	Models       *modelcache.Cache
	Trainer      *gesture.Trainer
	Recognizer   gesture.RecognizerConfig
	LetterHand   string
	RegistrySize int
	// Camera enables the MJPEG preview at /api/stream.
	Camera capture.Camera
	Logger *zap.Logger
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config   Config
	mux      *http.ServeMux
	start    time.Time
	registry *api.Registry
	live     *LiveHandler
	logger   *zap.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) (*Server, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	var sources []gesture.ModelStore
	if config.Models != nil {
		sources = append(sources, config.Models)
	}
	if config.Store != nil {
		sources = append(sources, config.Store.Models())
	}
	registry, err := api.NewRegistry(config.RegistrySize, sources...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		mux:      http.NewServeMux(),
		start:    time.Now(),
		registry: registry,
		logger:   config.Logger,
	}
	s.live = NewLiveHandler(registry, config.Recognizer, config.LetterHand, config.Logger)
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/predict/", api.NewPredictHandler(s.registry, s.logger))
	s.mux.Handle("/api/live/", s.live)

	if s.config.Store != nil {
		s.mux.Handle("/api/training/", api.NewTrainingHandler(s.config.Store, s.logger))
		s.mux.Handle("/api/model/", api.NewModelHandler(s.config.Store, s.registry, s.config.Trainer, s.logger))
	}

	if s.config.Camera != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Camera, s.logger))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", sw.status),
		zap.Duration("took", time.Since(start)),
	)
}

// Registry returns the model registry shared by the handlers.
func (s *Server) Registry() *api.Registry {
	return s.registry
}

// SetRecognizerConfig applies new gating parameters to every live session.
func (s *Server) SetRecognizerConfig(cfg gesture.RecognizerConfig) {
	s.live.SetConfig(cfg)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.start).String(),
		"models":   s.registry.Cached(),
		"sessions": s.live.Sessions(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.live.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// statusWriter records the response status for request logging. It keeps
// the hijack and flush capabilities of the wrapped writer.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
