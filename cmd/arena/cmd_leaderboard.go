package main

import (
	"github.com/spf13/cobra"
)

func newLeaderboardCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "leaderboard",
		Aliases: []string{"stats"},
		Short:   "Show the leaderboard of stored battles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validFormat(output); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer a.Close()

			lb, err := a.store.Leaderboard(cmd.Context())
			if err != nil {
				return err
			}
			if output == formatText {
				renderLeaderboard(cmd.OutOrStdout(), lb)
				return nil
			}
			return encode(cmd.OutOrStdout(), output, lb)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}
