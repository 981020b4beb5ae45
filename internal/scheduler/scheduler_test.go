package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cpp11nullptr/vikki/internal/capability"
	"github.com/cpp11nullptr/vikki/internal/metrics"
	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/sensor"
	"github.com/cpp11nullptr/vikki/internal/storage/memory"
)

type stubSensor struct {
	name   string
	sample func(ctx context.Context) ([]byte, error)
}

func (s *stubSensor) Name() string { return s.name }

func (s *stubSensor) Sample(ctx context.Context) ([]byte, error) { return s.sample(ctx) }

func fixed(name string, payload []byte) *stubSensor {
	return &stubSensor{name: name, sample: func(context.Context) ([]byte, error) { return payload, nil }}
}

type sensorSet map[string]sensor.Sensor

func (m sensorSet) Lookup(name string) (sensor.Sensor, error) {
	s, ok := m[name]
	if !ok {
		return nil, capability.ErrNotFound
	}
	return s, nil
}

type recorder struct {
	mu      sync.Mutex
	samples []models.Sample
}

func (r *recorder) Publish(s models.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recorder) all() []models.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Sample(nil), r.samples...)
}

type failingPut struct {
	*memory.Storage
	sensor string
}

func (f failingPut) Put(ctx context.Context, sensor string, ts int64, payload []byte) error {
	if sensor == f.sensor {
		return errors.New("read-only filesystem")
	}
	return f.Storage.Put(ctx, sensor, ts, payload)
}

type putCall struct {
	sensor string
	ts     int64
	size   int
}

// countingStore records every Put before passing it on.
type countingStore struct {
	*memory.Storage

	mu   sync.Mutex
	puts []putCall
}

func (c *countingStore) Put(ctx context.Context, sensor string, ts int64, payload []byte) error {
	c.mu.Lock()
	c.puts = append(c.puts, putCall{sensor: sensor, ts: ts, size: len(payload)})
	c.mu.Unlock()
	return c.Storage.Put(ctx, sensor, ts, payload)
}

func (c *countingStore) calls() []putCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]putCall(nil), c.puts...)
}

func openMemory(t *testing.T, sensors ...string) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Open(ctx, nil))
	for _, name := range sensors {
		require.NoError(t, s.PrepareEntity(ctx, name))
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTickStoresAndPublishesNonEmptySamples(t *testing.T) {
	ctx := context.Background()
	payload := make([]byte, 56)
	sensors := sensorSet{
		"memory_usage": fixed("memory_usage", payload),
		"load_average": fixed("load_average", nil),
	}
	store := &countingStore{Storage: openMemory(t, "memory_usage", "load_average")}
	pub := &recorder{}

	s := New(Options{Sensors: []string{"memory_usage", "load_average"}}, sensors, store, pub, zaptest.NewLogger(t), metrics.New())
	s.Tick(ctx, 1000)

	assert.Equal(t, []putCall{{sensor: "memory_usage", ts: 1000, size: 56}}, store.calls())

	records, err := store.Get(ctx, "memory_usage", 1000, 1000)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1000), records[0].Timestamp)
	assert.Len(t, records[0].Payload, 56)

	records, err = store.Get(ctx, "load_average", 0, 2000)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.Equal(t, []models.Sample{{Sensor: "memory_usage", Timestamp: 1000, Payload: payload}}, pub.all())
}

func TestFailingSensorDoesNotAffectOthers(t *testing.T) {
	ctx := context.Background()
	sensors := sensorSet{
		"a": fixed("a", []byte{1}),
		"b": &stubSensor{name: "b", sample: func(context.Context) ([]byte, error) { return nil, errors.New("no such device") }},
		"c": &stubSensor{name: "c", sample: func(context.Context) ([]byte, error) { panic("boom") }},
		"d": fixed("d", []byte{4}),
	}
	store := openMemory(t, "a", "b", "c", "d")
	pub := &recorder{}

	s := New(Options{Sensors: []string{"a", "b", "c", "missing", "d"}}, sensors, store, pub, zaptest.NewLogger(t), nil)
	s.Tick(ctx, 42)

	var published []string
	for _, sample := range pub.all() {
		published = append(published, sample.Sensor)
		assert.Equal(t, int64(42), sample.Timestamp)
	}
	assert.Equal(t, []string{"a", "d"}, published)

	for name, want := range map[string]int{"a": 1, "b": 0, "c": 0, "d": 1} {
		records, err := store.Get(ctx, name, 0, 100)
		require.NoError(t, err)
		assert.Len(t, records, want, name)
	}
}

func TestPutFailureSkipsBroadcast(t *testing.T) {
	ctx := context.Background()
	sensors := sensorSet{
		"a": fixed("a", []byte{1}),
		"b": fixed("b", []byte{2}),
	}
	store := failingPut{Storage: openMemory(t, "a", "b"), sensor: "a"}
	pub := &recorder{}

	s := New(Options{Sensors: []string{"a", "b"}}, sensors, store, pub, zaptest.NewLogger(t), nil)
	s.Tick(ctx, 7)

	samples := pub.all()
	require.Len(t, samples, 1)
	assert.Equal(t, "b", samples[0].Sensor)
}

func TestTickWithoutStorageOrPublisher(t *testing.T) {
	called := false
	sensors := sensorSet{"a": &stubSensor{name: "a", sample: func(context.Context) ([]byte, error) {
		called = true
		return []byte{1}, nil
	}}}

	s := New(Options{Sensors: []string{"a"}}, sensors, nil, nil, zaptest.NewLogger(t), nil)
	s.Tick(context.Background(), 1)
	assert.True(t, called)
}

func TestSampleTimeout(t *testing.T) {
	sensors := sensorSet{"slow": &stubSensor{name: "slow", sample: func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}}
	pub := &recorder{}

	s := New(Options{Sensors: []string{"slow"}, SampleTimeout: 20 * time.Millisecond}, sensors, nil, pub, zaptest.NewLogger(t), nil)
	s.Tick(context.Background(), 1)
	assert.Empty(t, pub.all())
}

func TestStartTicksImmediately(t *testing.T) {
	sensors := sensorSet{"a": fixed("a", []byte{1})}
	pub := &recorder{}
	s := New(Options{Sensors: []string{"a"}, Interval: time.Hour}, sensors, nil, pub, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Options{}, sensorSet{}, nil, nil, zaptest.NewLogger(t), nil)
	assert.Equal(t, DefaultInterval, s.opts.Interval)
	assert.Equal(t, DefaultSampleTimeout, s.opts.SampleTimeout)
}
