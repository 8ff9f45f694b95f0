// Package sampler periodically reads a sensor and appends the result to the
// reading store.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"sensorlog/internal/readings/types"
	"sensorlog/internal/sensor"
)

const DefaultInterval = time.Hour

// Store is the subset of the reading repository the sampler writes to.
type Store interface {
	Insert(ctx context.Context, temperature, pressure, humidity float64) (types.Reading, error)
	Prune(ctx context.Context, retention types.Retention) (int64, error)
}

// Publisher forwards stored readings, e.g. to an MQTT broker.
type Publisher interface {
	PublishReading(r types.Reading) error
}

type Option func(*Sampler)

func WithInterval(d time.Duration) Option {
	return func(s *Sampler) { s.interval = d }
}

func WithRetention(r types.Retention) Option {
	return func(s *Sampler) { s.retention = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Sampler) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

type Sampler struct {
	source    sensor.Source
	store     Store
	interval  time.Duration
	retention types.Retention
	publisher Publisher
	logger    *slog.Logger

	ticks atomic.Uint64
}

func New(source sensor.Source, store Store, opts ...Option) *Sampler {
	s := &Sampler{
		source:   source,
		store:    store,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks once immediately and then every interval until ctx is done.
// Sensor and storage failures are logged and skipped; the only error Run
// returns is ctx.Err().
func (s *Sampler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("sampler: interval must be positive")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sampler started", "interval", s.interval)
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("sampler stopped", "ticks", s.ticks.Load())
			return err
		}
		_, _ = s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped", "ticks", s.ticks.Load())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick takes one sample and stores it. Store, prune and publish calls are not
// interrupted by cancellation of ctx.
func (s *Sampler) Tick(ctx context.Context) (types.Reading, error) {
	tick := s.ticks.Add(1)
	ctx = context.WithoutCancel(ctx)

	sample, err := s.source.Read()
	if err != nil {
		s.logger.Warn("sensor read failed, skipping tick", "tick", tick, "error", err)
		return types.Reading{}, err
	}

	rec, err := s.store.Insert(ctx, sample.Temperature, sample.Pressure, sample.Humidity)
	if err != nil {
		s.logger.Warn("store insert failed, skipping tick", "tick", tick, "error", err)
		return types.Reading{}, err
	}
	s.logger.Debug("reading stored",
		"tick", tick,
		"reading_id", rec.ID,
		"temperature", rec.Temperature,
		"pressure", rec.Pressure,
		"humidity", rec.Humidity,
	)

	if s.retention.Enabled() {
		removed, err := s.store.Prune(ctx, s.retention)
		if err != nil {
			s.logger.Warn("retention prune failed", "tick", tick, "error", err)
		} else if removed > 0 {
			s.logger.Debug("retention pruned readings", "tick", tick, "removed", removed)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReading(rec); err != nil {
			s.logger.Warn("publish reading failed", "tick", tick, "reading_id", rec.ID, "error", err)
		}
	}
	return rec, nil
}
