package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ScreenRadar/pkg/api"
	"ScreenRadar/pkg/app"
	"ScreenRadar/pkg/config"
	"ScreenRadar/pkg/scheduler"
)

func main() {
	a, err := app.Load(config.GetDefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "screenradar: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, a)
	stop()
	if cerr := a.Close(); cerr != nil {
		a.Log.Warn().Err(cerr).Msg("close")
	}
	if err != nil {
		a.Log.Error().Err(err).Msg("api server failed")
		os.Exit(1)
	}
}

// run serves the API until ctx is done. The caller owns a and closes it.
func run(ctx context.Context, a *app.App) error {
	log := a.Log
	cfg := a.Config

	if cfg.Monitor.Enabled {
		sched := scheduler.NewScheduler(a.Monitor, a.Health, cfg.Monitor.Schedule, log)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	server := api.NewServer(api.Config{
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}, log)
	server.SetupRoutes(api.NewHandlers(a.Store, a.Gateway, a.Monitor, a.Health, log))

	return server.Run(ctx)
}
