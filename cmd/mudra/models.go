package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/forest"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/server/api"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List, export and import trained forests",
}

var modelsListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List stored models, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := gesture.Kinds()
		if len(args) == 1 {
			kinds = args
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tSCHEMA\tTREES\tACCURACY\tSAMPLES\tCREATED")
		for _, kind := range kinds {
			recs, err := st.Models().List(kind)
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f%%\t%d\t%s\n",
					r.ID, r.Kind, r.Schema, r.NumTrees, 100*r.Accuracy, r.Samples, r.CreatedAt.Format("2006-01-02 15:04"))
			}
		}
		return tw.Flush()
	},
}

var modelsExportCmd = &cobra.Command{
	Use:   "export <kind> <file>",
	Short: "Write the newest forest of a kind as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, path := args[0], args[1]

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.Models().Latest(kind)
		if err != nil {
			return fmt.Errorf("%s model: %w", kind, err)
		}
		if err := os.WriteFile(path, rec.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("exported %s model %s (%d trees) to %s\n", kind, rec.ID, rec.NumTrees, path)
		return nil
	},
}

var modelsImportCmd = &cobra.Command{
	Use:   "import <kind> <file>",
	Short: "Load a serialized forest and make it the current model of a kind",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, path := args[0], args[1]
		if !gesture.ValidKind(kind) {
			return fmt.Errorf("%w: %q", gesture.ErrUnknownKind, kind)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		f, err := forest.Unmarshal(data)
		if err != nil {
			return err
		}
		if err := api.CheckModel(kind, f); err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		registry, err := api.NewRegistry(1, st.Models(), openModelCache())
		if err != nil {
			return err
		}
		// Imported forests carry no accuracy estimate.
		if err := registry.SaveModel(kind, f, 0, f.Samples); err != nil {
			return err
		}
		fmt.Printf("imported %s model: %d trees, %d classes\n", kind, len(f.Trees), len(f.Classes))
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd, modelsExportCmd, modelsImportCmd)
	rootCmd.AddCommand(modelsCmd)
}
