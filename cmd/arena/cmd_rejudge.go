package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-arena/internal/application"
)

func newRejudgeCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "rejudge",
		Short: "Recompute winners of stored battles from their stored ratings",
		Long: `Recompute the winner of every stored battle with the current tie-break
cascade. No provider is called: stored averages and per-judge ratings are
reused and only the winner flag is updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validFormat(output); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := application.NewRejudger(a.store, application.WithLogger(a.logger)).Run(cmd.Context())
			if err != nil {
				return err
			}

			if output != formatText {
				return encode(cmd.OutOrStdout(), output, summary)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render("Rejudge complete"))
			fmt.Fprintf(w, "Processed: %d\nUpdated:   %d\nTies:      %d\nSkipped:   %d\n",
				summary.Processed, summary.Updated, summary.Ties, summary.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}
