package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ScreenRadar/pkg/app"
	"ScreenRadar/pkg/config"
	"ScreenRadar/pkg/scheduler"
)

// Headless re-screen loop: no HTTP listener, only the cron scheduler.
func main() {
	a, err := app.Load(config.GetDefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "screenradar-monitor: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Health.CheckAll(ctx, 10*time.Second)
	for _, st := range a.Health.All() {
		log.Info().Str("target", st.Component).Str("status", st.Status).Str("message", st.Message).Msg("startup health")
	}

	sched := scheduler.NewScheduler(a.Monitor, a.Health, a.Config.Monitor.Schedule, log)
	if err := sched.Start(); err != nil {
		log.Error().Err(err).Msg("start scheduler")
		return
	}
	sched.RunOnce()

	<-ctx.Done()
	log.Info().Msg("shutting down monitor")
	sched.Stop()
}
