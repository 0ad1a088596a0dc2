package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Engineer features and write them to paths.features",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			cfg.Paths.Features = out
		}
		p, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		frame, err := p.Features(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows x %d features to %s\n",
			frame.Len(), len(frame.ColumnNames()), cfg.Paths.Features)
		return nil
	},
}

func init() {
	featuresCmd.Flags().String("out", "", "output path (overrides paths.features)")
	rootCmd.AddCommand(featuresCmd)
}
