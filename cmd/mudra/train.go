package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
)

var (
	trainAll   bool
	trainTrees int
	trainSeed  uint64
	trainKeep  int
)

var trainCmd = &cobra.Command{
	Use:   "train [kind...]",
	Short: "Train forests from the stored samples",
	Long: `Train one forest per sign family from the samples in the database.
The new forests are saved to the database and the model cache.`,
	Example: `  mudra train alphabet
  mudra train --all --trees 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := args
		if trainAll {
			kinds = gesture.Kinds()
		}
		if len(kinds) == 0 {
			return fmt.Errorf("name a kind (%v) or pass --all", gesture.Kinds())
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		params := cfg.Forest
		if trainTrees > 0 {
			params.NumTrees = trainTrees
		}
		if cmd.Flags().Changed("seed") {
			params.Seed = trainSeed
		}
		if params.NumTrees <= 0 {
			params.NumTrees = forest.DefaultNumTrees
		}

		sets := make(map[string]forest.TrainingSet, len(kinds))
		for _, kind := range kinds {
			if !gesture.ValidKind(kind) {
				return fmt.Errorf("%w: %q", gesture.ErrUnknownKind, kind)
			}
			set, err := st.Samples().TrainingSet(kind)
			if err != nil {
				return fmt.Errorf("load %s samples: %w", kind, err)
			}
			sets[kind] = set
		}

		bar := progressbar.NewOptions(params.NumTrees*len(sets),
			progressbar.OptionSetDescription("Growing trees"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		trainer := gesture.NewTrainer(params, cfg.Training.MinSamples, logger)
		results, err := trainer.TrainKinds(cmd.Context(), sets, forest.WithProgress(func(done, total int) {
			_ = bar.Add(1)
		}))
		_ = bar.Finish()
		if err != nil {
			return err
		}

		cache := openModelCache()
		models := st.Models()

		sort.Strings(kinds)
		for _, kind := range kinds {
			res := results[kind]
			if err := models.SaveModel(kind, res.Forest, res.Accuracy, res.Samples); err != nil {
				return fmt.Errorf("save %s model: %w", kind, err)
			}
			if err := cache.SaveModel(kind, res.Forest, res.Accuracy, res.Samples); err != nil {
				logger.Warn("model cache write failed", zap.String("kind", kind), zap.Error(err))
			}
			if trainKeep > 0 {
				if _, err := models.Prune(kind, trainKeep); err != nil {
					logger.Warn("pruning old models failed", zap.String("kind", kind), zap.Error(err))
				}
			}

			fmt.Printf("%-9s %4d samples  %2d classes  %3d trees  accuracy %5.1f%%  %s\n",
				kind, res.Samples, len(res.Classes), len(res.Forest.Trees), 100*res.Accuracy, res.Duration.Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	trainCmd.Flags().BoolVar(&trainAll, "all", false, "train every sign family")
	trainCmd.Flags().IntVar(&trainTrees, "trees", 0, "number of trees (default from config)")
	trainCmd.Flags().Uint64Var(&trainSeed, "seed", 0, "random seed for reproducible forests")
	trainCmd.Flags().IntVar(&trainKeep, "keep", 5, "models to keep per kind; 0 keeps all")
	rootCmd.AddCommand(trainCmd)
}
