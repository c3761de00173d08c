package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aviv1ron1/the-commuter-il/internal/geo"
	"github.com/aviv1ron1/the-commuter-il/internal/store"
)

// Source says where a Fix came from.
type Source string

const (
	SourceProvider  Source = "provider"
	SourceLastKnown Source = "last_known"
	SourceDefault   Source = "default"
)

// Provider acquires the current position.
type Provider interface {
	Name() string
	Locate(ctx context.Context) (geo.Coordinate, error)
}

// StaticProvider returns a fixed coordinate, such as one passed on the command line.
type StaticProvider struct {
	Coord geo.Coordinate
}

func (p StaticProvider) Name() string { return "static" }

func (p StaticProvider) Locate(context.Context) (geo.Coordinate, error) {
	if !p.Coord.Valid() {
		return geo.Coordinate{}, fmt.Errorf("invalid coordinate %s", p.Coord)
	}
	return p.Coord, nil
}

// Step is a provider with the time it is given before the next one is tried.
type Step struct {
	Provider Provider
	Timeout  time.Duration
}

// Fix is an acquired position.
type Fix struct {
	Coord    geo.Coordinate `json:"coordinate"`
	Source   Source         `json:"source"`
	Provider string         `json:"provider,omitempty"`
}

// Locator tries each step in order, then the last known position, then a
// fixed default. It never fails.
type Locator struct {
	steps    []Step
	store    store.Store
	fallback geo.Coordinate
	logger   *logrus.Logger
}

func NewLocator(steps []Step, st store.Store, fallback geo.Coordinate, logger *logrus.Logger) *Locator {
	return &Locator{
		steps:    steps,
		store:    st,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *Locator) Locate(ctx context.Context) Fix {
	for _, step := range l.steps {
		coord, err := l.try(ctx, step)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"provider": step.Provider.Name(),
				"timeout":  step.Timeout,
				"error":    err,
			}).Warn("location provider failed, falling back")
			continue
		}
		l.remember(ctx, coord)
		return Fix{Coord: coord, Source: SourceProvider, Provider: step.Provider.Name()}
	}

	if coord, err := l.lastKnown(ctx); err == nil {
		l.logger.WithField("coordinate", coord.String()).Info("using last known location")
		return Fix{Coord: coord, Source: SourceLastKnown}
	} else if !errors.Is(err, store.ErrNotFound) {
		l.logger.WithField("error", err).Warn("failed to read last known location")
	}

	l.logger.WithField("coordinate", l.fallback.String()).Info("using default location")
	return Fix{Coord: l.fallback, Source: SourceDefault}
}

func (l *Locator) try(ctx context.Context, step Step) (geo.Coordinate, error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type result struct {
		coord geo.Coordinate
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := step.Provider.Locate(ctx)
		ch <- result{coord: c, err: err}
	}()

	select {
	case r := <-ch:
		return r.coord, r.err
	case <-ctx.Done():
		return geo.Coordinate{}, ctx.Err()
	}
}

func (l *Locator) remember(ctx context.Context, c geo.Coordinate) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(c)
	if err == nil {
		err = l.store.Set(ctx, store.KeyLastLocation, string(data))
	}
	if err != nil {
		l.logger.WithField("error", err).Warn("failed to save last known location")
	}
}

func (l *Locator) lastKnown(ctx context.Context) (geo.Coordinate, error) {
	if l.store == nil {
		return geo.Coordinate{}, store.ErrNotFound
	}
	raw, err := l.store.Get(ctx, store.KeyLastLocation)
	if err != nil {
		return geo.Coordinate{}, err
	}
	var c geo.Coordinate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return geo.Coordinate{}, fmt.Errorf("decoding last known location: %w", err)
	}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("last known location out of range: %s", c)
	}
	return c, nil
}
