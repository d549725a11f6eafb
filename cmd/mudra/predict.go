package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/server/api"
)

var (
	predictKind      string
	predictLandmarks string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Classify a hand pose read from a landmarks file",
	Long: `Classify one hand pose. The file holds a JSON array of 21 points,
each {"x":..,"y":..,"z":..}, in hand landmark order. Use - for stdin.`,
	Example: `  mudra predict --kind alphabet --landmarks hand.json`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := readLandmarks(predictLandmarks)
		if err != nil {
			return err
		}
		v, err := features.Extract(points)
		if err != nil {
			return err
		}

		f, err := loadModel(predictKind)
		if err != nil {
			return err
		}
		p, err := f.PredictSchema(features.SchemaVersion, v)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func readLandmarks(path string) ([]landmark.Point3D, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}

	var points []landmark.Point3D
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("parse landmarks %s: %w", path, err)
	}
	return points, nil
}

// loadModel reads kind's forest from the model cache, falling back to the
// database.
func loadModel(kind string) (*forest.Forest, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	registry, err := api.NewRegistry(1, openModelCache(), st.Models())
	if err != nil {
		return nil, err
	}
	return registry.LoadModel(kind)
}

func init() {
	predictCmd.Flags().StringVarP(&predictKind, "kind", "k", "alphabet", "sign family")
	predictCmd.Flags().StringVarP(&predictLandmarks, "landmarks", "l", "-", "landmarks JSON file")
	rootCmd.AddCommand(predictCmd)
}
