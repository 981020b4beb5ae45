// Package agent wires the registries, storage, protocol server and scheduler
// together and owns their startup and teardown order.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cpp11nullptr/vikki/internal/capability"
	"github.com/cpp11nullptr/vikki/internal/config"
	"github.com/cpp11nullptr/vikki/internal/metrics"
	"github.com/cpp11nullptr/vikki/internal/protocol"
	"github.com/cpp11nullptr/vikki/internal/scheduler"
	"github.com/cpp11nullptr/vikki/internal/sensor"
	"github.com/cpp11nullptr/vikki/internal/server"
	"github.com/cpp11nullptr/vikki/internal/storage"
)

// Agent is one running telemetry agent.
type Agent struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	sensors  *capability.Registry[sensor.Sensor]
	storages *capability.Registry[storage.Storage]

	// storage and server are nil when disabled in the configuration.
	storage   storage.Storage
	server    *server.Server
	scheduler *scheduler.Scheduler
}

// New loads every capability and prepares storage, sensors and the network
// endpoint. Any failure is fatal; resources acquired so far are released.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	if err := a.loadRegistries(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	active, err := a.initSensors(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initNetwork(); err != nil {
		a.Close()
		return nil, err
	}

	var publisher scheduler.Publisher
	if a.server != nil {
		publisher = a.server
	}
	a.scheduler = scheduler.New(scheduler.Options{
		Interval:      cfg.Collection.Interval.Duration,
		SampleTimeout: cfg.Collection.SampleTimeout.Duration,
		Sensors:       active,
	}, a.sensors, a.storage, publisher, logger, a.metrics)

	return a, nil
}

func (a *Agent) loadRegistries() error {
	sensorModules, err := capability.Discover[sensor.Sensor](a.cfg.Plugins.SensorsDir, capability.Symbols{
		Factory: sensor.FactorySymbol,
		Destroy: sensor.DestroySymbol,
	})
	if err != nil {
		return err
	}
	a.sensors, err = capability.New(a.logger.Named("sensors"), append(sensor.Builtins(), sensorModules...)...)
	if err != nil {
		return err
	}

	storageModules, err := capability.Discover[storage.Storage](a.cfg.Plugins.StoragesDir, capability.Symbols{
		Factory: storage.FactorySymbol,
		Destroy: storage.DestroySymbol,
	})
	if err != nil {
		return err
	}
	a.storages, err = capability.New(a.logger.Named("storages"), append(builtinStorages(), storageModules...)...)
	if err != nil {
		return err
	}

	a.logger.Info("Capabilities loaded",
		zap.Strings("sensors", a.sensors.Names()),
		zap.Strings("storages", a.storages.Names()))
	return nil
}

func (a *Agent) initStorage(ctx context.Context) error {
	sc := a.cfg.Storage
	if !sc.IsEnabled() {
		a.logger.Info("Storage disabled")
		return nil
	}

	st, err := a.storages.Lookup(sc.Name)
	if err != nil {
		return fmt.Errorf("storage %q: %w", sc.Name, err)
	}
	if err := st.Open(ctx, sc.Params); err != nil {
		return storage.Wrap("open", "", err)
	}
	a.storage = st
	a.logger.Info("Storage opened", zap.String("storage", sc.Name))
	return nil
}

// initSensors initializes the active sensors and returns their names.
func (a *Agent) initSensors(ctx context.Context) ([]string, error) {
	var active []string
	for _, sc := range a.cfg.ActiveSensors() {
		s, err := a.sensors.Lookup(sc.Name)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: %w", sc.Name, err)
		}
		if err := sensor.Init(s, sc.Params); err != nil {
			return nil, fmt.Errorf("%w: sensor %q: %v", config.ErrInvalid, sc.Name, err)
		}
		if a.storage != nil {
			if err := a.storage.PrepareEntity(ctx, sc.Name); err != nil {
				return nil, storage.Wrap("prepare", sc.Name, err)
			}
		}
		active = append(active, sc.Name)
	}
	a.logger.Info("Sensors initialized", zap.Strings("active", active))
	return active, nil
}

func (a *Agent) initNetwork() error {
	nc := a.cfg.Network
	if !nc.Enabled {
		a.logger.Info("Network disabled")
		return nil
	}

	tlsConfig, err := serverTLS(nc.Security)
	if err != nil {
		return err
	}

	a.server = server.New(server.Options{
		Address:      nc.Endpoint(),
		TLS:          tlsConfig,
		Limits:       protocol.Limits{MaxFrameBytes: nc.MaxFrameSize},
		QueryWorkers: nc.QueryWorkers,
		QueryQueue:   nc.QueryQueue,
	}, a.sensors, a.storage, a.logger, a.metrics)
	a.metrics.GaugeFunc("query_queue_depth", "Historical queries waiting for a worker.", a.server.QueueDepth)
	return nil
}

// Run starts the network endpoint, the metrics endpoint and the collection
// loop, and blocks until ctx is cancelled. Everything is torn down before it
// returns.
func (a *Agent) Run(ctx context.Context) error {
	defer a.Close()

	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			return err
		}
	}

	if a.cfg.Metrics.Enabled {
		go func() {
			if err := a.metrics.Serve(ctx, a.cfg.Metrics.Address, a.logger); err != nil {
				a.logger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	a.scheduler.Start(ctx)
	return nil
}

// Addr returns the protocol endpoint's bound address, or an empty string
// when it is not listening.
func (a *Agent) Addr() string {
	if a.server == nil {
		return ""
	}
	if addr := a.server.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close stops the server, closes storage and destroys every capability in
// reverse load order. It is safe to call more than once.
func (a *Agent) Close() error {
	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Stop())
	}
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
		a.storage = nil
	}
	if a.storages != nil {
		errs = append(errs, a.storages.Close())
		a.storages = nil
	}
	if a.sensors != nil {
		errs = append(errs, a.sensors.Close())
		a.sensors = nil
	}
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Warn("Teardown finished with errors", zap.Error(err))
	}
	return err
}
