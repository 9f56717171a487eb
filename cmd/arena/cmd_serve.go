package main

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-arena/internal/webserver"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  POST   /api/battle        Run and store a battle
  GET    /api/battle/{id}   Get a stored battle
  DELETE /api/battle/{id}   Delete a stored battle
  GET    /api/battles       List recent battles (?limit=50)
  GET    /api/stats         Leaderboard
  DELETE /api/stats         Clear every stored battle
  GET    /api/health        Liveness and roster
  GET    /metrics           Prometheus metrics (when enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := webserver.Config{
				Addr:            a.cfg.Server.Addr,
				AllowedOrigins:  a.cfg.Server.AllowedOrigins,
				ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
				Logger:          a.logger,
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if a.cfg.Telemetry.MetricsEnabled {
				cfg.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
			}
			return webserver.New(cfg, a.arena, a.store, a.roster).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overriding server.addr")
	return cmd
}
