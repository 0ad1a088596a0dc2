package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/clicks"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/io/sqlite"
	"github.com/SohaFarhana05/AD-Click-Fraud-Detection/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest run's trends, alerts and metrics over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.Sinks.SQLite == "" {
		return eris.Wrap(clicks.ErrInvalidConfiguration, "serve: sinks.sqlite is required")
	}

	store, err := sqlite.New(cfg.Sinks.SQLite)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	srv := server.New(store, server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AlertLimit:     cfg.Server.AlertLimit,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
	})
	return srv.ListenAndServe(ctx)
}
