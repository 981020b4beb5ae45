package protocol

import (
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the event id and command id that follow the
// length prefix.
const HeaderLen = 16

const prefixLen = 8

var (
	ErrShortFrame    = errors.New("protocol: frame shorter than header")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Frame is one complete wire message. The length prefix is derived from the
// payload and is not part of the logical frame.
type Frame struct {
	EventID   uint64
	CommandID Command
	Payload   []byte
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxFrameBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 16 * 1024 * 1024}
}

// MarshalBinary encodes f as [u64 length][u64 event][u64 command][payload].
func (f Frame) MarshalBinary() ([]byte, error) {
	e := NewEncoder(prefixLen + HeaderLen + len(f.Payload))
	e.PutUint64(uint64(HeaderLen + len(f.Payload)))
	e.PutUint64(f.EventID)
	e.PutUint64(uint64(f.CommandID))
	e.buf = append(e.buf, f.Payload...)
	return e.Bytes(), nil
}

// Decoder returns a field decoder over the frame payload.
func (f Frame) Decoder() *Decoder {
	return NewDecoder(f.Payload)
}

// ReadFrame reads exactly one frame from r. io.EOF is returned unchanged when
// r is closed on a frame boundary.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Frame{}, err
	}
	length := order.Uint64(prefix[:])
	if length < HeaderLen {
		return Frame{}, fmt.Errorf("%w: length %d", ErrShortFrame, length)
	}
	if limits.MaxFrameBytes > 0 && length > limits.MaxFrameBytes {
		return Frame{}, fmt.Errorf("%w: length %d exceeds %d", ErrFrameTooLarge, length, limits.MaxFrameBytes)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Frame{
		EventID:   order.Uint64(body[0:8]),
		CommandID: Command(order.Uint64(body[8:16])),
		Payload:   body[HeaderLen:],
	}, nil
}

// WriteFrame writes f to w in a single call.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
