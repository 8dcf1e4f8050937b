package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/ephem"
	"github.com/signalsfoundry/clock-correlator/internal/config"
	"github.com/signalsfoundry/clock-correlator/internal/history"
	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/internal/telemetry/feed"
	"github.com/signalsfoundry/clock-correlator/internal/telemetry/memory"
	telemetrysqlite "github.com/signalsfoundry/clock-correlator/internal/telemetry/sqlite"
	"github.com/signalsfoundry/clock-correlator/kb"
	"github.com/signalsfoundry/clock-correlator/model"
)

// historyStore is what the CLI needs from a history backend beyond the
// correlator's view of it.
type historyStore interface {
	core.HistoryStore
	Seed(ctx context.Context, rec model.HistoryRecord) (model.HistoryRecord, error)
	Records(ctx context.Context) ([]model.HistoryRecord, error)
}

// app holds the collaborators built from one configuration.
type app struct {
	cfg  config.Config
	core core.Config
	log  logging.Logger

	stations *kb.KnowledgeBase
	times    *ephem.Service
	source   core.TelemetrySource
	history  historyStore

	closers []func() error
}

func loadApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logOut)
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	coreCfg, err := cfg.ToCore()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:  cfg,
		core: coreCfg,
		log: logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: logOut,
		}),
	}

	if a.stations, err = cfg.KnowledgeBase(); err != nil {
		return nil, err
	}
	a.log.Debug(ctx, "ground stations loaded", logging.Int("stations", len(a.stations.ListStations())))
	if a.times, err = cfg.TimeService(a.stations); err != nil {
		return nil, fmt.Errorf("time service: %w", err)
	}
	if err := a.openSource(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openHistory(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openSource(ctx context.Context) error {
	tc := a.cfg.Telemetry
	switch tc.Backend {
	case config.BackendMemory:
		a.source = memory.NewSource()
	case config.BackendSQLite:
		store, err := telemetrysqlite.Open(ctx, tc.Path)
		if err != nil {
			return fmt.Errorf("open telemetry store: %w", err)
		}
		a.source = store
		a.closers = append(a.closers, store.Close)
	case config.BackendFeed:
		var opts []feed.ClientOption
		if tc.QueryTimeout > 0 {
			opts = append(opts, feed.WithQueryTimeout(tc.QueryTimeout))
		}
		client, err := feed.Dial(tc.Address, opts...)
		if err != nil {
			return err
		}
		a.source = client
		a.closers = append(a.closers, client.Close)
	default:
		return fmt.Errorf("unknown telemetry backend %q", tc.Backend)
	}
	return nil
}

func (a *app) openHistory(ctx context.Context) error {
	hc := a.cfg.History
	switch hc.Backend {
	case config.BackendMemory:
		a.history = history.NewMemoryStore()
	case config.BackendSQLite:
		store, err := history.OpenSQLite(ctx, hc.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unknown history backend %q", hc.Backend)
	}
	return nil
}

// Close releases backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
