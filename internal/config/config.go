// Package config loads the YAML configuration shared by the server, the
// camera pipeline and the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/modelcache"
	"github.com/ayusman/mudra/internal/plugin"
)

const (
	dirName  = ".mudra"
	fileName = "config.yaml"
	dbName   = "mudra.db"
)

// Config is the root configuration document.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Forest     forest.Params    `yaml:"forest"`
	Training   TrainingConfig   `yaml:"training"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	ModelCache ModelCacheConfig `yaml:"model_cache"`
	Plugins    PluginsConfig    `yaml:"plugins"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// LogConfig selects the encoder, level and optional rotating file sink.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type TrainingConfig struct {
	MinSamples int `yaml:"min_samples"`
}

type RecognizerConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	HistorySize         int           `yaml:"history_size"`
	MinWriteInterval    time.Duration `yaml:"min_write_interval"`
	DetectionInterval   time.Duration `yaml:"detection_interval"`
	LetterHand          string        `yaml:"letter_hand"`
}

type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
	// MotionPercent of changed pixels makes a frame worth detecting.
	// Zero turns motion gating off.
	MotionPercent  float64 `yaml:"motion_percent"`
	MaxStillFrames int     `yaml:"max_still_frames"`
}

type DetectorConfig struct {
	Script        string  `yaml:"script"`
	Python        string  `yaml:"python"`
	MaxHands      int     `yaml:"max_hands"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type ModelCacheConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes uint64 `yaml:"max_bytes"`
}

// PluginsConfig binds written letters to plugin actions, e.g. "keyboard:type".
type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	OnWrite []string      `yaml:"on_write,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a configuration with every value populated.
func Default() *Config {
	rc := gesture.DefaultRecognizerConfig()
	return &Config{
		DataDir: defaultDataDir(),
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Forest: forest.DefaultParams(),
		Training: TrainingConfig{
			MinSamples: gesture.DefaultMinSamples,
		},
		Recognizer: RecognizerConfig{
			ConfidenceThreshold: rc.ConfidenceThreshold,
			HistorySize:         rc.HistorySize,
			MinWriteInterval:    rc.MinWriteInterval,
			DetectionInterval:   200 * time.Millisecond,
			LetterHand:          "Left",
		},
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    30,

			MotionPercent:  1,
			MaxStillFrames: 5,
		},
		Detector: DetectorConfig{
			MaxHands:      2,
			MinConfidence: 0.5,
		},
		ModelCache: ModelCacheConfig{
			MaxBytes: modelcache.DefaultCacheBytes,
		},
		Plugins: PluginsConfig{
			Timeout: plugin.DefaultTimeout,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// DefaultPath is ~/.mudra/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), fileName)
}

// Load reads path on top of Default. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MUDRA_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MUDRA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MUDRA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MUDRA_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Forest.Seed = seed
		}
	}
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Forest.NumTrees < 1 {
		return fmt.Errorf("forest.num_trees must be positive, got %d", c.Forest.NumTrees)
	}
	if c.Forest.MaxDepth < 0 || c.Forest.MinSamplesSplit < 0 {
		return errors.New("forest.max_depth and forest.min_samples_split must not be negative")
	}
	if c.Forest.SampleRatio <= 0 || c.Forest.SampleRatio > 1 {
		return fmt.Errorf("forest.sample_ratio must be in (0, 1], got %v", c.Forest.SampleRatio)
	}
	if c.Training.MinSamples < 1 {
		return fmt.Errorf("training.min_samples must be positive, got %d", c.Training.MinSamples)
	}
	r := c.Recognizer
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 100 {
		return fmt.Errorf("recognizer.confidence_threshold must be in [0, 100], got %v", r.ConfidenceThreshold)
	}
	if r.HistorySize < 1 {
		return fmt.Errorf("recognizer.history_size must be positive, got %d", r.HistorySize)
	}
	if r.MinWriteInterval < 0 || r.DetectionInterval <= 0 {
		return errors.New("recognizer intervals must be positive")
	}
	if r.LetterHand != "Left" && r.LetterHand != "Right" {
		return fmt.Errorf("recognizer.letter_hand must be Left or Right, got %q", r.LetterHand)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		return errors.New("camera dimensions must not be negative")
	}
	if c.Camera.MotionPercent < 0 || c.Camera.MotionPercent > 100 {
		return fmt.Errorf("camera.motion_percent must be in [0, 100], got %v", c.Camera.MotionPercent)
	}
	if c.Plugins.Timeout < 0 {
		return errors.New("plugins.timeout must not be negative")
	}
	return nil
}

// DBPath is the SQLite database under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, dbName)
}

// ModelCacheDir falls back to <data_dir>/models.
func (c *Config) ModelCacheDir() string {
	if c.ModelCache.Dir != "" {
		return c.ModelCache.Dir
	}
	return filepath.Join(c.DataDir, "models")
}

// PluginDir falls back to <data_dir>/plugins.
func (c *Config) PluginDir() string {
	if c.Plugins.Dir != "" {
		return c.Plugins.Dir
	}
	return filepath.Join(c.DataDir, "plugins")
}

// RecognizerSettings converts the recognizer section.
func (c *Config) RecognizerSettings() gesture.RecognizerConfig {
	return gesture.RecognizerConfig{
		ConfidenceThreshold: c.Recognizer.ConfidenceThreshold,
		HistorySize:         c.Recognizer.HistorySize,
		MinWriteInterval:    c.Recognizer.MinWriteInterval,
	}
}

// ControlHand is the hand opposite LetterHand.
func (c *Config) ControlHand() string {
	if c.Recognizer.LetterHand == "Right" {
		return "Left"
	}
	return "Right"
}
