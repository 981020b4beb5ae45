// Package client is a Go client for the agent's protocol. Requests are
// matched to responses by event id; unsolicited SENSOR_DATA_UPDATED frames go
// to the push handler.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/protocol"
)

var ErrClosed = errors.New("client: connection closed")

// Callback receives the response to one request. It runs on the client's
// reader goroutine and must not block.
type Callback func(resp protocol.Frame)

// PushHandler receives live samples for subscribed sensors. It runs on the
// client's reader goroutine.
type PushHandler func(sample models.Sample)

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithLimits(limits protocol.Limits) Option {
	return func(c *Client) { c.limits = limits }
}

// Client is one protocol session. It is safe for concurrent use.
type Client struct {
	conn   net.Conn
	logger *zap.Logger
	limits protocol.Limits

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]Callback
	onPush  PushHandler
	err     error

	closed chan struct{}
}

// Dial connects to addr. A non-nil tlsConfig wraps the connection in TLS.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, opts ...Option) (*Client, error) {
	var (
		conn net.Conn
		err  error
	)
	if tlsConfig != nil {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// New runs a client over an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		logger:  zap.NewNop(),
		limits:  protocol.DefaultLimits(),
		pending: make(map[uint64]Callback),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// OnPush installs the push handler, replacing any previous one.
func (c *Client) OnPush(h PushHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPush = h
}

// Request sends one frame and registers cb for its response. A nil cb sends
// a fire-and-forget request. The assigned event id is returned.
func (c *Client) Request(cmd protocol.Command, build func(e *protocol.Encoder), cb Callback) (uint64, error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.nextID++
	id := c.nextID
	if cb != nil {
		c.pending[id] = cb
	}
	c.mu.Unlock()

	stream := protocol.NewStream(id, cmd, c.write)
	if build != nil {
		build(stream.Encoder)
	}
	if err := stream.Send(); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return 0, err
	}
	return id, nil
}

// Pending returns the number of requests still waiting for a response.
// Callbacks of requests outstanding when the connection drops are never
// invoked and remain counted here.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.closed
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(b)
	return err
}

func (c *Client) readLoop() {
	defer close(c.closed)
	for {
		f, err := protocol.ReadFrame(c.conn, c.limits)
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			c.logger.Debug("Connection ended", zap.Error(err))
			return
		}
		c.deliver(f)
	}
}

func (c *Client) deliver(f protocol.Frame) {
	if f.CommandID == protocol.SensorDataUpdated && f.EventID >= protocol.PushEventBase {
		c.push(f)
		return
	}

	c.mu.Lock()
	cb, ok := c.pending[f.EventID]
	delete(c.pending, f.EventID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Dropping unmatched frame",
			zap.Uint64("event", f.EventID),
			zap.Stringer("command", f.CommandID))
		return
	}
	cb(f)
}

func (c *Client) push(f protocol.Frame) {
	c.mu.Lock()
	h := c.onPush
	c.mu.Unlock()
	if h == nil {
		return
	}

	sample, err := DecodeSample(f)
	if err != nil {
		c.logger.Warn("Malformed push", zap.Uint64("event", f.EventID), zap.Error(err))
		return
	}
	h(sample)
}

// DecodeSample parses a SENSOR_DATA_UPDATED payload.
func DecodeSample(f protocol.Frame) (models.Sample, error) {
	d := f.Decoder()
	name, err := d.String()
	if err != nil {
		return models.Sample{}, err
	}
	ts, err := d.Int64()
	if err != nil {
		return models.Sample{}, err
	}
	payload, err := d.Chunk()
	if err != nil {
		return models.Sample{}, err
	}
	return models.Sample{Sensor: name, Timestamp: ts, Payload: payload}, nil
}
