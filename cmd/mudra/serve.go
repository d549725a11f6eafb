package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/server"
)

var (
	serveAddr   string
	serveCamera bool
	serveStatic string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and live recognition websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		static := cfg.Server.StaticDir
		if serveStatic != "" {
			static = serveStatic
		}

		var camera capture.Camera
		if serveCamera {
			camera = capture.NewCamera(cameraConfig(cfg), logger)
			if err := camera.Open(); err != nil {
				return err
			}
			defer camera.Close()
		}

		srv, err := server.New(server.Config{
			StaticDir:  static,
			Store:      st,
			Models:     openModelCache(),
			Trainer:    gesture.NewTrainer(cfg.Forest, cfg.Training.MinSamples, logger),
			Recognizer: cfg.RecognizerSettings(),
			LetterHand: cfg.Recognizer.LetterHand,
			Camera:     camera,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, addr)
		})
		g.Go(func() error {
			watchConfig(ctx, func(next *config.Config) {
				srv.SetRecognizerConfig(next.RecognizerSettings())
			})
			return nil
		})
		return g.Wait()
	},
}

// watchConfig applies reloads of the config file until ctx ends. The log
// level follows the file; fn handles the rest. Failing to watch is logged
// and not fatal.
func watchConfig(ctx context.Context, fn func(*config.Config)) {
	err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
		if err := logLevel.UnmarshalText([]byte(next.Log.Level)); err != nil {
			logger.Warn("ignoring log level", zap.String("level", next.Log.Level), zap.Error(err))
		}
		fn(next)
		logger.Info("config reloaded", zap.String("path", configPath))
	})
	if err != nil {
		logger.Warn("config reload disabled", zap.String("path", configPath), zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveCamera, "camera", false, "open the camera and serve an MJPEG preview at /api/stream")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "directory of static files to serve")
	rootCmd.AddCommand(serveCmd)
}
