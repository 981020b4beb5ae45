// Package protocol implements the agent's binary wire format: length-prefixed
// frames carrying an event id, a command id and a payload made of fixed-width
// little-endian fields.
package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortPayload is returned when a field is read past the end of a payload.
var ErrShortPayload = errors.New("protocol: short payload")

var order = binary.LittleEndian

// Encoder appends typed fields to a growable byte sequence.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with room for size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded fields. The slice aliases the encoder's buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) PutUint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) PutUint16(v uint16) { e.buf = order.AppendUint16(e.buf, v) }
func (e *Encoder) PutUint32(v uint32) { e.buf = order.AppendUint32(e.buf, v) }
func (e *Encoder) PutUint64(v uint64) { e.buf = order.AppendUint64(e.buf, v) }

func (e *Encoder) PutInt8(v int8)   { e.PutUint8(uint8(v)) }
func (e *Encoder) PutInt16(v int16) { e.PutUint16(uint16(v)) }
func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }
func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

func (e *Encoder) PutFloat32(v float32) { e.PutUint32(math.Float32bits(v)) }
func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

// PutBool writes a single byte, 1 for true.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint8(1)
		return
	}
	e.PutUint8(0)
}

// PutString writes [u64 length][bytes].
func (e *Encoder) PutString(s string) {
	e.PutUint64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// PutChunk writes [u64 count][raw bytes].
func (e *Encoder) PutChunk(b []byte) {
	e.PutUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// Decoder reads typed fields from a payload in order.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder over b. b is not copied.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) next(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrShortPayload
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.next(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

// Bool reads a single byte; any non-zero value is true.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	return v != 0, err
}

// String reads [u64 length][bytes].
func (d *Decoder) String() (string, error) {
	b, err := d.Chunk()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Chunk reads [u64 count][raw bytes] and returns a copy of the bytes.
func (d *Decoder) Chunk() ([]byte, error) {
	n, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Remaining()) {
		return nil, ErrShortPayload
	}
	b, err := d.next(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
