package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/gesture"
)

var statsFeatures bool

var statsCmd = &cobra.Command{
	Use:   "stats <kind>",
	Short: "Show how many samples each sign has",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		if !gesture.ValidKind(kind) {
			return fmt.Errorf("%w: %q", gesture.ErrUnknownKind, kind)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.Samples().CountByLabel(kind)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		total := 0
		fmt.Fprintln(tw, "SIGN\tSAMPLES")
		for _, label := range gesture.Labels(kind) {
			fmt.Fprintf(tw, "%s\t%d\n", label, counts[label])
			total += counts[label]
		}
		fmt.Fprintf(tw, "total\t%d\n", total)
		if err := tw.Flush(); err != nil {
			return err
		}

		if !statsFeatures || total == 0 {
			return nil
		}

		samples, err := st.Samples().List(kind)
		if err != nil {
			return err
		}
		vectors := make([]features.Vector, len(samples))
		for i, s := range samples {
			vectors[i] = s.Features
		}
		sum, err := features.Summarize(vectors)
		if err != nil {
			return err
		}

		fmt.Println()
		tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "FEATURE\tMIN\tMAX\tMEAN\tMEDIAN\tSTD\t")
		for i, f := range sum.Features {
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n", i, f.Min, f.Max, f.Mean, f.Median, f.StdDev)
		}
		return tw.Flush()
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsFeatures, "features", false, "also print per-feature statistics")
	rootCmd.AddCommand(statsCmd)
}
