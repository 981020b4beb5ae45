// Package scheduler implements the periodic collection loop. Each tick samples
// every active sensor, persists non-empty samples and hands them to the
// publisher for live subscribers. One failing sensor never affects another.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cpp11nullptr/vikki/internal/metrics"
	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/sensor"
	"github.com/cpp11nullptr/vikki/internal/storage"
)

const (
	DefaultInterval      = 3 * time.Second
	DefaultSampleTimeout = 10 * time.Second
)

// Lookup resolves a sensor by name.
type Lookup interface {
	Lookup(name string) (sensor.Sensor, error)
}

// Publisher receives every sample that was collected and, when storage is
// configured, persisted.
type Publisher interface {
	Publish(sample models.Sample)
}

// Options configures collection. Sensors lists the active sensor names in
// collection order.
type Options struct {
	Interval      time.Duration
	SampleTimeout time.Duration
	Sensors       []string
}

// Scheduler drives periodic collection. Storage and publisher are optional.
type Scheduler struct {
	opts      Options
	sensors   Lookup
	storage   storage.Storage
	publisher Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func New(opts Options, sensors Lookup, store storage.Storage, publisher Publisher, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = DefaultSampleTimeout
	}
	return &Scheduler{
		opts:      opts,
		sensors:   sensors,
		storage:   store,
		publisher: publisher,
		logger:    logger.Named("scheduler"),
		metrics:   m,
	}
}

// Start runs a tick immediately and then once per interval. It blocks until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("Collection started",
		zap.Duration("interval", s.opts.Interval),
		zap.Strings("sensors", s.opts.Sensors))

	s.Tick(ctx, time.Now().Unix())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Collection stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now.Unix())
		}
	}
}

// Tick collects every active sensor once. All samples of a tick share ts.
func (s *Scheduler) Tick(ctx context.Context, ts int64) {
	collected := 0
	for _, name := range s.opts.Sensors {
		if ctx.Err() != nil {
			return
		}
		if s.collect(ctx, name, ts) {
			collected++
		}
	}
	s.logger.Debug("Tick complete", zap.Int64("timestamp", ts), zap.Int("collected", collected))
}

// collect handles one sensor and reports whether its sample was delivered.
func (s *Scheduler) collect(ctx context.Context, name string, ts int64) bool {
	sn, err := s.sensors.Lookup(name)
	if err != nil {
		s.logger.Error("Sensor lookup failed", zap.String("sensor", name), zap.Error(err))
		s.metrics.SampleFailed(name)
		return false
	}

	payload, err := s.sample(ctx, sn)
	if err != nil {
		s.logger.Warn("Sample failed", zap.String("sensor", name), zap.Error(err))
		s.metrics.SampleFailed(name)
		return false
	}
	if len(payload) == 0 {
		return false
	}
	s.metrics.SampleCollected(name)

	if s.storage != nil {
		if err := s.storage.Put(ctx, name, ts, payload); err != nil {
			s.logger.Error("Failed to store sample",
				zap.String("sensor", name),
				zap.Error(storage.Wrap("put", name, err)))
			s.metrics.StorageFailed("put")
			return false
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(models.Sample{Sensor: name, Timestamp: ts, Payload: payload})
	}
	return true
}

// sample calls the sensor under the per-sample timeout and turns a panic into
// an error.
func (s *Scheduler) sample(ctx context.Context, sn sensor.Sensor) (payload []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SampleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("sensor panicked: %v", r)
		}
	}()
	return sn.Sample(ctx)
}
