package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Arena - run LLM battles judged by the competitors themselves",
		Long: `Arena sends one prompt to every configured provider, asks every provider
to rate all answers on a 1-10 scale, and picks a winner by average score with
a deterministic tie-break cascade.

Battles are stored so the leaderboard can be browsed over HTTP or from the
command line, and winners can be recomputed from stored ratings.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), flags.debug))
	}

	cmd.AddCommand(newServeCommand(flags))
	cmd.AddCommand(newBattleCommand(flags))
	cmd.AddCommand(newRejudgeCommand(flags))
	cmd.AddCommand(newLeaderboardCommand(flags))

	return cmd
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand().ExecuteContext(ctx)
}
