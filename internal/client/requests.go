package client

import (
	"context"

	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/protocol"
)

type result[T any] struct {
	value T
	err   error
}

// call sends a request and blocks until its decoded response arrives, ctx is
// done or the connection ends.
func call[T any](ctx context.Context, c *Client, cmd protocol.Command, build func(e *protocol.Encoder), decode func(d *protocol.Decoder) (T, error)) (T, error) {
	var zero T
	ch := make(chan result[T], 1)

	_, err := c.Request(cmd, build, func(resp protocol.Frame) {
		v, err := decode(resp.Decoder())
		ch <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.closed:
		// The response may have been delivered just before the drop.
		select {
		case r := <-ch:
			return r.value, r.err
		default:
			return zero, ErrClosed
		}
	}
}

// ListSensors returns the names of every sensor loaded by the agent.
func (c *Client) ListSensors(ctx context.Context) ([]string, error) {
	return call(ctx, c, protocol.GetSensorList, nil, func(d *protocol.Decoder) ([]string, error) {
		n, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, min(n, 1024))
		for i := uint64(0); i < n; i++ {
			name, err := d.String()
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		return names, nil
	})
}

// QuerySensorData returns stored samples of sensor with from <= ts <= to.
func (c *Client) QuerySensorData(ctx context.Context, sensor string, from, to int64) ([]models.Record, error) {
	build := func(e *protocol.Encoder) {
		e.PutString(sensor)
		e.PutInt64(from)
		e.PutInt64(to)
	}
	return call(ctx, c, protocol.GetSensorData, build, func(d *protocol.Decoder) ([]models.Record, error) {
		n, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		records := make([]models.Record, 0, min(n, 1024))
		for i := uint64(0); i < n; i++ {
			ts, err := d.Int64()
			if err != nil {
				return nil, err
			}
			payload, err := d.Chunk()
			if err != nil {
				return nil, err
			}
			records = append(records, models.Record{Timestamp: ts, Payload: payload})
		}
		return records, nil
	})
}

// Subscribe enables or disables live pushes for sensor. The agent does not
// acknowledge subscriptions.
func (c *Client) Subscribe(sensor string, enable bool) error {
	_, err := c.Request(protocol.SensorDataSubscribe, func(e *protocol.Encoder) {
		e.PutString(sensor)
		e.PutBool(enable)
	}, nil)
	return err
}
