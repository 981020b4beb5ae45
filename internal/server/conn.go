package server

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpp11nullptr/vikki/internal/protocol"
	"github.com/cpp11nullptr/vikki/internal/storage"
	"github.com/cpp11nullptr/vikki/internal/worker"
)

// conn is one accepted session. All fields except netConn and out are owned
// by the event loop.
type conn struct {
	id      string
	netConn net.Conn
	out     chan []byte

	nextPush uint64
	closed   bool
}

// hub is the event loop's state.
type hub struct {
	s     *Server
	conns map[*conn]struct{}
	subs  *Subscriptions[*conn]
}

func (s *Server) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)

	h := &hub{
		s:     s,
		conns: make(map[*conn]struct{}),
		subs:  NewSubscriptions[*conn](),
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.conns {
				h.drop(c, nil)
			}
			return
		case ev := <-s.events:
			h.handle(ctx, ev)
		}
	}
}

func (h *hub) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evOpened:
		h.open(ctx, ev.netConn)
	case evClosed:
		h.drop(ev.conn, ev.err)
	case evFrame:
		h.dispatch(ev.conn, ev.frame)
	case evPublish:
		h.publish(ev)
	case evSend:
		h.enqueue(ev.conn, ev.data)
	case evDrop:
		h.s.metrics.StorageFailed("get")
		h.drop(ev.conn, ev.err)
	case evInspect:
		ev.inspect(h)
	}
}

func (h *hub) open(ctx context.Context, nc net.Conn) {
	c := &conn{
		id:       uuid.NewString(),
		netConn:  nc,
		out:      make(chan []byte, h.s.opts.OutboundQueue),
		nextPush: protocol.PushEventBase,
	}
	h.conns[c] = struct{}{}
	h.s.metrics.ConnectionOpened()
	h.s.logger.Info("Client connected",
		zap.String("conn", c.id),
		zap.String("remote", nc.RemoteAddr().String()))

	h.s.wg.Add(2)
	go h.s.read(ctx, c)
	go h.s.write(c)
}

// drop closes c and purges its subscriptions. err is nil for a clean close.
func (h *hub) drop(c *conn, err error) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.conns, c)
	removed := h.subs.RemoveConn(c)
	close(c.out)
	_ = c.netConn.Close()
	h.s.metrics.ConnectionClosed()

	fields := []zap.Field{zap.String("conn", c.id), zap.Int("subscriptions", removed)}
	if err != nil {
		h.s.logger.Warn("Client dropped", append(fields, zap.Error(err))...)
		return
	}
	h.s.logger.Info("Client disconnected", fields...)
}

// enqueue queues a finished frame for c. A full queue closes the connection.
func (h *hub) enqueue(c *conn, b []byte) {
	if c.closed {
		return
	}
	select {
	case c.out <- b:
	default:
		h.drop(c, &NetworkError{Conn: c.id, Op: "write", Err: errors.New("outbound queue full")})
	}
}

func (h *hub) sink(c *conn) protocol.Sink {
	return func(b []byte) error {
		h.enqueue(c, b)
		return nil
	}
}

func (h *hub) dispatch(c *conn, f protocol.Frame) {
	if c.closed {
		return
	}
	h.s.metrics.FrameReceived(f.CommandID.String())

	var err error
	switch f.CommandID {
	case protocol.GetSensorList:
		err = h.sensorList(c, f)
	case protocol.GetSensorData:
		err = h.sensorData(c, f)
	case protocol.SensorDataSubscribe:
		err = h.subscribe(c, f)
	default:
		h.s.logger.Debug("Ignoring unknown command",
			zap.String("conn", c.id),
			zap.Uint64("event", f.EventID),
			zap.Stringer("command", f.CommandID))
		return
	}
	if err != nil {
		h.drop(c, err)
	}
}

func (h *hub) sensorList(c *conn, f protocol.Frame) error {
	var names []string
	if h.s.sensors != nil {
		names = h.s.sensors.Names()
	}
	resp := protocol.NewResponse(f, h.sink(c))
	resp.PutUint64(uint64(len(names)))
	for _, name := range names {
		resp.PutString(name)
	}
	return resp.Send()
}

func (h *hub) sensorData(c *conn, f protocol.Frame) error {
	d := f.Decoder()
	name, err := d.String()
	if err != nil {
		return &NetworkError{Conn: c.id, Op: "decode " + f.CommandID.String(), Err: err}
	}
	from, err := d.Int64()
	if err != nil {
		return &NetworkError{Conn: c.id, Op: "decode " + f.CommandID.String(), Err: err}
	}
	to, err := d.Int64()
	if err != nil {
		return &NetworkError{Conn: c.id, Op: "decode " + f.CommandID.String(), Err: err}
	}

	// Names that cannot be entities never have stored samples.
	if h.s.storage == nil || storage.ValidateEntity(name) != nil {
		resp := protocol.NewResponse(f, h.sink(c))
		resp.PutUint64(0)
		return resp.Send()
	}

	q := query{conn: c, req: f, sensor: name, from: from, to: to}
	if err := h.s.pool.Submit(q); err != nil {
		h.s.metrics.StorageFailed("get")
		if errors.Is(err, worker.ErrQueueFull) {
			return &NetworkError{Conn: c.id, Op: "query " + name, Err: err}
		}
		return err
	}
	return nil
}

func (h *hub) subscribe(c *conn, f protocol.Frame) error {
	d := f.Decoder()
	name, err := d.String()
	if err != nil {
		return &NetworkError{Conn: c.id, Op: "decode " + f.CommandID.String(), Err: err}
	}
	enable, err := d.Bool()
	if err != nil {
		return &NetworkError{Conn: c.id, Op: "decode " + f.CommandID.String(), Err: err}
	}

	if enable {
		h.subs.Subscribe(name, c)
	} else {
		h.subs.Unsubscribe(name, c)
	}
	h.s.logger.Debug("Subscription updated",
		zap.String("conn", c.id),
		zap.String("sensor", name),
		zap.Bool("enable", enable))
	return nil
}

func (h *hub) publish(ev event) {
	subscribers := h.subs.Subscribers(ev.sample.Sensor)
	if len(subscribers) == 0 {
		return
	}
	// drop may shrink the shared slice while we push.
	targets := append([]*conn(nil), subscribers...)
	for _, c := range targets {
		push := protocol.NewPush(c.nextPush, protocol.SensorDataUpdated, h.sink(c))
		c.nextPush++
		push.PutString(ev.sample.Sensor)
		push.PutInt64(ev.sample.Timestamp)
		push.PutChunk(ev.sample.Payload)
		_ = push.Send()
		h.s.metrics.PushQueued()
	}
}

func (s *Server) read(ctx context.Context, c *conn) {
	defer s.wg.Done()
	for {
		f, err := protocol.ReadFrame(c.netConn, s.opts.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			} else {
				err = &NetworkError{Conn: c.id, Op: "read", Err: err}
			}
			_ = s.post(ctx, event{kind: evClosed, conn: c, err: err})
			return
		}
		if err := s.post(ctx, event{kind: evFrame, conn: c, frame: f}); err != nil {
			return
		}
	}
}

// write drains c.out until the loop closes it. After a write error the
// remaining frames are discarded; the reader observes the closed socket and
// reports the disconnect.
func (s *Server) write(c *conn) {
	defer s.wg.Done()
	failed := false
	for b := range c.out {
		if failed {
			continue
		}
		if _, err := c.netConn.Write(b); err != nil {
			failed = true
			_ = c.netConn.Close()
		}
	}
}
