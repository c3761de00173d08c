package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/api/ipgeo"
	"github.com/aviv1ron1/the-commuter-il/internal/api/rail"
	"github.com/aviv1ron1/the-commuter-il/internal/config"
	"github.com/aviv1ron1/the-commuter-il/internal/geo"
	"github.com/aviv1ron1/the-commuter-il/internal/locate"
	"github.com/aviv1ron1/the-commuter-il/internal/notify"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
	"github.com/aviv1ron1/the-commuter-il/internal/planner"
	"github.com/aviv1ron1/the-commuter-il/internal/reminder"
	"github.com/aviv1ron1/the-commuter-il/internal/routes"
	"github.com/aviv1ron1/the-commuter-il/internal/scheduler"
	"github.com/aviv1ron1/the-commuter-il/internal/store"
)

// App holds the wired components shared by every command.
type App struct {
	cfg       *config.Config
	logger    *logrus.Logger
	out       io.Writer
	store     store.Store
	planner   *planner.Planner
	scheduler *scheduler.Scheduler
	reminders *reminder.Coordinator
	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger, out: os.Stdout}

	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.store = st

	stations, err := rail.LoadStations()
	if err != nil {
		return nil, fmt.Errorf("loading station table: %w", err)
	}
	// Every registry station must be known to the timetable.
	for _, name := range places.StationNames() {
		if _, ok := stations.ID(name); !ok {
			logger.WithField("station", name).Error("station missing from timetable table")
		}
	}

	railClient := rail.NewClient(cfg.Rail.BaseURL, cfg.Credentials.RailAPIKey, cfg.Rail.Timeout, cfg.Rail.MaxRetries)
	source := routes.NewRailSource(railClient, stations, cfg.TZ(), logger)
	app.planner = planner.New(source, logger)

	var sender scheduler.Sender
	if cfg.Credentials.HasPushover() {
		sender = notify.NewNotifier(cfg.Credentials.PushoverToken, cfg.Credentials.PushoverUser, logger)
	} else {
		logger.Debug("PUSHOVER_TOKEN and PUSHOVER_USER not set, reminders go to the log")
		sender = notify.NewLogNotifier(logger)
	}
	app.scheduler = scheduler.NewScheduler(sender, cfg.Scheduler.Tick, logger)
	app.reminders = reminder.NewCoordinator(st, app.scheduler, logger)
	app.scheduler.SetGuard(app.reminders)

	return app, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendRedis:
		r, err := store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Credentials.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return store.NewFile(cfg.Store.Path), nil
	}
}

// Close stops the scheduler and releases the store. It is safe to call twice.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.scheduler.Stop()
		if c, ok := a.store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.WithField("error", err).Warn("failed to close store")
			}
		}
	})
}

func (a *App) now() time.Time {
	return time.Now().In(a.cfg.TZ())
}

// locator tries explicit coordinates first, then the IP lookup.
func (a *App) locator(explicit *geo.Coordinate) *locate.Locator {
	var steps []locate.Step
	if explicit != nil {
		steps = append(steps, locate.Step{
			Provider: locate.StaticProvider{Coord: *explicit},
			Timeout:  a.cfg.Location.HighAccuracyTimeout,
		})
	}
	steps = append(steps, locate.Step{
		Provider: ipgeo.NewClient(a.cfg.Location.IPLookupURL),
		Timeout:  a.cfg.Location.CoarseTimeout,
	})
	return locate.NewLocator(steps, a.store, a.cfg.Location.Default, a.logger)
}
