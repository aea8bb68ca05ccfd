// Package app wires the configured components together for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ScreenRadar/pkg/config"
	"ScreenRadar/pkg/database"
	"ScreenRadar/pkg/engine"
	"ScreenRadar/pkg/health"
	"ScreenRadar/pkg/logger"
	"ScreenRadar/pkg/messaging"
	"ScreenRadar/pkg/notify"
	"ScreenRadar/pkg/screener"
)

// App the assembled service graph
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Store     *database.Store
	Gateway   *screener.Client
	Evaluator *engine.Evaluator
	Monitor   *engine.Monitor
	Health    *health.Registry
	NATS      *messaging.NATSClient
}

// Load reads the configuration and builds the App.
func Load(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return New(cfg, log)
}

// New builds every component from cfg. NATS is optional: when enabled but
// unreachable the App starts without event publishing.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := database.Open(database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		SeedDemoUser: cfg.Database.SeedDemoUser,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gateway := screener.NewClient(screener.Config{
		BaseURL: cfg.Screener.BaseURL,
		Timeout: cfg.Screener.Timeout,
	}, log)

	evaluator := engine.NewEvaluator(gateway, engine.EvaluatorConfig{
		CombinedLimit: cfg.Screener.CombinedLimit,
		SingleLimit:   cfg.Screener.SingleLimit,
		Period:        cfg.Screener.Period,
		Interval:      cfg.Screener.Interval,
		LocalRecheck:  cfg.Screener.LocalRecheck,
		Timeout:       cfg.Screener.Timeout,
	}, log)

	notifier := notify.New(notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Enabled:  cfg.SMTP.Enabled,
	}, log)

	a := &App{
		Config:    cfg,
		Log:       log,
		Store:     store,
		Gateway:   gateway,
		Evaluator: evaluator,
		Health:    health.NewRegistry(log),
	}

	opts := []engine.MonitorOption{engine.WithAlerter(notifier, store.Users())}
	if cfg.NATS.Enabled {
		nc, err := messaging.NewNATSClient(cfg.NATS.URL, log)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, match events will not be published")
		} else {
			a.NATS = nc
			opts = append(opts, engine.WithPublisher(nc))
		}
	}
	a.Monitor = engine.NewMonitor(evaluator, store.Watchlists(), log, opts...)

	a.Health.Register("store", store.Ping)
	a.Health.Register("screener", func(ctx context.Context) error {
		_, err := gateway.Indexes(ctx)
		return err
	})
	if a.NATS != nil {
		a.Health.Register("nats", func(context.Context) error {
			if !a.NATS.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	}
	return a, nil
}

// Close releases the store and the NATS connection.
func (a *App) Close() error {
	var errs []error
	if a.NATS != nil {
		errs = append(errs, a.NATS.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
