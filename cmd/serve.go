package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tasting/internal/server"
	"github.com/desertthunder/tasting/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}

	engine, closeDB, err := r.openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	hub := server.NewHub(shared.WithLogger(r.logger, "component", "hub"))
	engine.SetNotifier(hub)
	srv := server.New(cfg, engine, hub, r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting server", "addr", cfg.Addr(), "db", r.config.Database.Path)
	return srv.ListenAndServe(ctx)
}
