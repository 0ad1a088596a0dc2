package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	clickio "github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the configured source with the saved bundle and publish reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyAlertLimit(cmd)
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		report, err := p.Evaluate(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run features, train and evaluate in sequence",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyDetectorFlags(cmd); err != nil {
			return err
		}
		applyAlertLimit(cmd)
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		report, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().Int("alert-limit", 0, "maximum alerts to publish, 0 for all (overrides sinks.alert_limit)")
	runCmd.Flags().Int("alert-limit", 0, "maximum alerts to publish, 0 for all (overrides sinks.alert_limit)")
	addDetectorFlags(runCmd)
	rootCmd.AddCommand(evaluateCmd, runCmd)
}

func applyAlertLimit(cmd *cobra.Command) {
	if cmd.Flags().Changed("alert-limit") {
		cfg.Sinks.AlertLimit, _ = cmd.Flags().GetInt("alert-limit")
	}
}

func printReport(w io.Writer, r *clickio.Report) {
	s := r.Summary
	fmt.Fprintf(w, "run %s: %d rows, %d anomalies over %d days\n", r.RunID, s.Rows, s.Anomalies, s.Days)
	if s.Metrics.Available {
		fmt.Fprintf(w, "precision %.3f, recall %.3f (%d labeled rows)\n", s.Metrics.Precision, s.Metrics.Recall, s.Metrics.Labeled)
	} else {
		fmt.Fprintln(w, "no labels: precision and recall unavailable")
	}
	fmt.Fprintf(w, "reports written to %s\n", cfg.Paths.Reports)
}
