package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server/api"
)

var (
	watchKind    string
	watchNoHooks bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recognize signs from the local camera and print the text",
	Long: `Open the camera, classify the letter hand with the trained forest and
write a letter each time the control hand closes. Written letters are
printed and passed to the plugin actions bound in plugins.on_write.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		models, err := api.NewRegistry(1, openModelCache(), st.Models())
		if err != nil {
			return err
		}

		var hooks []plugin.Hook
		if !watchNoHooks && len(cfg.Plugins.OnWrite) > 0 {
			manager := plugin.NewManager(cfg.PluginDir(), logger)
			if err := manager.Discover(); err != nil {
				return err
			}
			if hooks, err = manager.Resolve(cfg.Plugins.OnWrite); err != nil {
				return err
			}
		}
		dispatcher := plugin.NewDispatcher(plugin.NewExecutor(cfg.Plugins.Timeout), hooks, logger)

		det, err := detector.NewMediaPipeDetector(detectorConfig(cfg), logger)
		if err != nil {
			return err
		}
		defer det.Close()

		kind := watchKind
		pipeline, err := app.New(app.Config{
			Camera:     capture.NewCamera(cameraConfig(cfg), logger),
			Detector:   det,
			Models:     models,
			Kind:       kind,
			Recognizer: cfg.RecognizerSettings(),
			LetterHand: cfg.Recognizer.LetterHand,
			Interval:   cfg.Recognizer.DetectionInterval,
			Motion:     motionGate(cfg),
			OnWrite: func(letter, text string) {
				fmt.Printf("\r%s", text)
				if !dispatcher.Notify(plugin.Event{Kind: kind, Letter: letter, Text: text}) {
					logger.Warn("plugin queue full, letter dropped", zap.String("letter", letter))
				}
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			dispatcher.Run(ctx)
			return nil
		})
		g.Go(func() error {
			watchConfig(ctx, func(next *config.Config) {
				pipeline.SetRecognizerConfig(next.RecognizerSettings())
			})
			return nil
		})
		g.Go(func() error {
			err := pipeline.Run(ctx)
			if err == nil {
				// Stop the other goroutines once the camera loop ends.
				err = ctx.Err()
			}
			return err
		})

		err = g.Wait()
		if text := pipeline.Text(); text != "" {
			fmt.Println()
		}
		if err != nil && cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchKind, "kind", "k", gesture.KindAlphabet, "sign family to recognize")
	watchCmd.Flags().BoolVar(&watchNoHooks, "no-hooks", false, "do not run plugin actions for written letters")
	rootCmd.AddCommand(watchCmd)
}
