package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the isolation forest bundle on the configured source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyDetectorFlags(cmd); err != nil {
			return err
		}
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		bundle, err := p.Train(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trained on %d rows, threshold %.4f, saved %s\n",
			bundle.Rows, bundle.Detector.Threshold(), cfg.Paths.Model)
		return nil
	},
}

func init() {
	addDetectorFlags(trainCmd)
	rootCmd.AddCommand(trainCmd)
}

func addDetectorFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("contamination", 0, "expected anomaly fraction (overrides detector.contamination)")
	cmd.Flags().Int("trees", 0, "number of trees (overrides detector.trees)")
	cmd.Flags().Int64("seed", 0, "random seed (overrides detector.seed)")
}

func applyDetectorFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("contamination") {
		v, err := flags.GetFloat64("contamination")
		if err != nil {
			return err
		}
		cfg.Detector.Contamination = v
	}
	if flags.Changed("trees") {
		v, err := flags.GetInt("trees")
		if err != nil {
			return err
		}
		cfg.Detector.Trees = v
	}
	if flags.Changed("seed") {
		v, err := flags.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Detector.RandomSeed = v
	}
	return nil
}
