package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stream-clipper/internal/diagnostics"
	"stream-clipper/internal/domain"
)

func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check ffmpeg and the buffer and export directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			report := diagnostics.NewChecker().Run(settings)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, item := range report.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\n", item.Status, item.Name, item.Message)
				if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
					fmt.Fprintf(w, "\t\t%s\n", item.Hint)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if report.HasFailures {
				return fmt.Errorf("%d check(s) failed", len(report.Failed()))
			}
			return nil
		},
	}
}
