// Package server implements the agent's protocol endpoint. A single event
// loop goroutine owns the connection set and the subscription table; each
// connection has a reader and a writer goroutine that talk to the loop over
// channels. Historical queries run on a bounded worker pool.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cpp11nullptr/vikki/internal/metrics"
	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/protocol"
	"github.com/cpp11nullptr/vikki/internal/storage"
	"github.com/cpp11nullptr/vikki/internal/worker"
)

const (
	defaultOutboundQueue = 256
	poolStopTimeout      = 5 * time.Second
)

var ErrAlreadyStarted = errors.New("server already started")

// NetworkError describes a failure scoped to one connection.
type NetworkError struct {
	Conn string
	Op   string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("connection %s: %s: %v", e.Conn, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SensorList reports the names of every loaded sensor.
type SensorList interface {
	Names() []string
}

// Options configures the listening endpoint.
type Options struct {
	Address string
	TLS     *tls.Config
	Limits  protocol.Limits

	QueryWorkers int
	QueryQueue   int

	// OutboundQueue bounds frames waiting to be written to one connection.
	// A connection that falls further behind is closed.
	OutboundQueue int
}

// Server serves the sensor protocol. Storage may be nil, in which case
// historical queries answer with no records.
type Server struct {
	opts    Options
	sensors SensorList
	storage storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	running  bool
	listener net.Listener
	cancel   context.CancelFunc
	pool     *worker.Pool[query]
	wg       sync.WaitGroup

	events chan event
	done   chan struct{}
}

func New(opts Options, sensors SensorList, store storage.Storage, logger *zap.Logger, m *metrics.Metrics) *Server {
	if opts.Limits.MaxFrameBytes == 0 {
		opts.Limits = protocol.DefaultLimits()
	}
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = defaultOutboundQueue
	}
	return &Server{
		opts:    opts,
		sensors: sensors,
		storage: store,
		logger:  logger.Named("server"),
		metrics: m,
	}
}

type eventKind int

const (
	evOpened eventKind = iota
	evClosed
	evFrame
	evPublish
	evSend
	evDrop
	evInspect
)

type event struct {
	kind    eventKind
	conn    *conn
	netConn net.Conn
	frame   protocol.Frame
	sample  models.Sample
	data    []byte
	err     error
	inspect func(*hub)
}

type query struct {
	conn   *conn
	req    protocol.Frame
	sensor string
	from   int64
	to     int64
}

// Start binds the listener and launches the event loop. It returns
// ErrAlreadyStarted if the server is listening.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Address, err)
	}
	if s.opts.TLS != nil {
		ln = tls.NewListener(ln, s.opts.TLS)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.events = make(chan event, 64)
	s.done = make(chan struct{})
	s.pool = worker.NewPool(s.opts.QueryWorkers, s.opts.QueryQueue, s.runQuery)
	if err := s.pool.Start(ctx); err != nil {
		cancel()
		_ = ln.Close()
		return err
	}

	s.wg.Add(2)
	go s.loop(ctx)
	go s.accept(ctx, ln)

	s.running = true
	s.logger.Info("Listening",
		zap.String("address", ln.Addr().String()),
		zap.Bool("tls", s.opts.TLS != nil))
	return nil
}

// Stop closes the listener and every connection and waits for the server's
// goroutines. Stopping a stopped server does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.wg.Wait()
	if perr := s.pool.Stop(poolStopTimeout); perr != nil {
		err = errors.Join(err, perr)
	}
	s.drainEvents()
	s.logger.Info("Stopped")
	return err
}

// Addr returns the bound address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.listener.Addr()
}

// QueueDepth returns the number of queued historical queries.
func (s *Server) QueueDepth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return 0
	}
	return float64(s.pool.Stats().QueueDepth)
}

// Publish hands a fresh sample to the event loop, which pushes it to every
// subscriber of the sample's sensor. It is a no-op when the server is not
// listening.
func (s *Server) Publish(sample models.Sample) {
	s.mu.Lock()
	events, done, running := s.events, s.done, s.running
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case events <- event{kind: evPublish, sample: sample}:
	case <-done:
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	n := 0
	s.inspect(func(h *hub) { n = len(h.conns) })
	return n
}

// Subscribers returns the number of connections subscribed to sensor.
func (s *Server) Subscribers(sensor string) int {
	n := 0
	s.inspect(func(h *hub) { n = len(h.subs.Subscribers(sensor)) })
	return n
}

func (s *Server) inspect(fn func(*hub)) {
	s.mu.Lock()
	events, done, running := s.events, s.done, s.running
	s.mu.Unlock()
	if !running {
		return
	}
	reply := make(chan struct{})
	select {
	case events <- event{kind: evInspect, inspect: func(h *hub) { fn(h); close(reply) }}:
	case <-done:
		return
	}
	select {
	case <-reply:
	case <-done:
	}
}

// post delivers ev to the event loop unless the server is shutting down.
func (s *Server) post(ctx context.Context, ev event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainEvents discards events posted after the loop exited, closing
// connections that were accepted but never opened. Every goroutine that
// posts has returned by the time it runs.
func (s *Server) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			if ev.kind == evOpened && ev.netConn != nil {
				_ = ev.netConn.Close()
			}
		default:
			return
		}
	}
}

func (s *Server) accept(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Accept failed", zap.Error(err))
			continue
		}
		if err := s.post(ctx, event{kind: evOpened, netConn: nc}); err != nil {
			_ = nc.Close()
			return
		}
	}
}

// runQuery executes one GET_SENSOR_DATA request on a pool worker.
func (s *Server) runQuery(ctx context.Context, q query) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = storage.Wrap("get", q.sensor, fmt.Errorf("panic: %v", r))
			_ = s.post(ctx, event{kind: evDrop, conn: q.conn, err: err})
		}
	}()

	records, err := s.storage.Get(ctx, q.sensor, q.from, q.to)
	if err != nil {
		err = storage.Wrap("get", q.sensor, err)
		_ = s.post(ctx, event{kind: evDrop, conn: q.conn, err: err})
		return err
	}

	resp := protocol.NewResponse(q.req, func(b []byte) error {
		return s.post(ctx, event{kind: evSend, conn: q.conn, data: b})
	})
	resp.PutUint64(uint64(len(records)))
	for _, r := range records {
		resp.PutInt64(r.Timestamp)
		resp.PutChunk(r.Payload)
	}
	return resp.Send()
}
