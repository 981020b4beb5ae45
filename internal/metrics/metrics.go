// Package metrics exposes agent counters in Prometheus format. A nil *Metrics
// is valid and records nothing, so components can be built without metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "vikki"

// Metrics holds the agent's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	samples        *prometheus.CounterVec
	sampleErrors   *prometheus.CounterVec
	storageErrors  *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	pushes         prometheus.Counter
	connections    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Non-empty samples collected, by sensor.",
		}, []string{"sensor"}),
		sampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_errors_total",
			Help:      "Failed sensor samples, by sensor.",
		}, []string{"sensor"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed storage operations, by operation.",
		}, []string{"op"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from clients, by command.",
		}, []string{"command"}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "SENSOR_DATA_UPDATED frames queued to subscribers.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open client connections.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.samples,
		m.sampleErrors,
		m.storageErrors,
		m.framesReceived,
		m.pushes,
		m.connections,
	)
	return m
}

// Registry returns the underlying registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SampleCollected(sensor string) {
	if m != nil {
		m.samples.WithLabelValues(sensor).Inc()
	}
}

func (m *Metrics) SampleFailed(sensor string) {
	if m != nil {
		m.sampleErrors.WithLabelValues(sensor).Inc()
	}
}

func (m *Metrics) StorageFailed(op string) {
	if m != nil {
		m.storageErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) FrameReceived(command string) {
	if m != nil {
		m.framesReceived.WithLabelValues(command).Inc()
	}
}

func (m *Metrics) PushQueued() {
	if m != nil {
		m.pushes.Inc()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Serve exposes /metrics on address until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("address", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
