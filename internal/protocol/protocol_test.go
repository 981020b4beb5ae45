package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"empty payload", Frame{EventID: 1, CommandID: GetSensorList}},
		{"payload", Frame{EventID: 42, CommandID: GetSensorData, Payload: []byte{1, 2, 3, 4, 5}}},
		{"push id", Frame{EventID: PushEventBase + 9, CommandID: SensorDataUpdated, Payload: bytes.Repeat([]byte{0xab}, 300)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tt.frame))
			wire := append([]byte(nil), buf.Bytes()...)

			got, err := ReadFrame(&buf, DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, tt.frame.EventID, got.EventID)
			assert.Equal(t, tt.frame.CommandID, got.CommandID)
			assert.Equal(t, len(tt.frame.Payload), len(got.Payload))
			if len(tt.frame.Payload) > 0 {
				assert.Equal(t, tt.frame.Payload, got.Payload)
			}

			again, err := got.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, wire, again)
		})
	}
}

func TestFrameLayout(t *testing.T) {
	b, err := Frame{EventID: 7, CommandID: SensorDataSubscribe, Payload: []byte{0xff}}.MarshalBinary()
	require.NoError(t, err)

	want := []byte{
		17, 0, 0, 0, 0, 0, 0, 0,
		7, 0, 0, 0, 0, 0, 0, 0,
		3, 0, 0, 0, 0, 0, 0, 0,
		0xff,
	}
	assert.Equal(t, want, b)
}

func TestReadFrameErrors(t *testing.T) {
	t.Run("clean eof", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("length below header", func(t *testing.T) {
		e := NewEncoder(8)
		e.PutUint64(15)
		_, err := ReadFrame(bytes.NewReader(e.Bytes()), DefaultLimits())
		assert.ErrorIs(t, err, ErrShortFrame)
	})

	t.Run("too large", func(t *testing.T) {
		e := NewEncoder(8)
		e.PutUint64(1 << 20)
		_, err := ReadFrame(bytes.NewReader(e.Bytes()), Limits{MaxFrameBytes: 1024})
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("truncated body", func(t *testing.T) {
		b, err := Frame{EventID: 1, CommandID: GetSensorData, Payload: []byte{1, 2, 3}}.MarshalBinary()
		require.NoError(t, err)
		_, err = ReadFrame(bytes.NewReader(b[:len(b)-2]), DefaultLimits())
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
}

func TestEncoderDecoderFields(t *testing.T) {
	e := NewEncoder(0)
	e.PutInt8(-3)
	e.PutUint8(250)
	e.PutInt16(-1234)
	e.PutUint16(65000)
	e.PutInt32(-70000)
	e.PutUint32(4000000000)
	e.PutInt64(math.MinInt64)
	e.PutUint64(math.MaxUint64)
	e.PutFloat32(1.5)
	e.PutFloat64(-2.25)
	e.PutBool(true)
	e.PutString("memory_usage")
	e.PutChunk([]byte{9, 8, 7})

	d := NewDecoder(e.Bytes())

	i8, err := d.Int8()
	require.NoError(t, err)
	assert.Equal(t, int8(-3), i8)

	u8, err := d.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(250), u8)

	i16, err := d.Int16()
	require.NoError(t, err)
	assert.Equal(t, int16(-1234), i16)

	u16, err := d.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(65000), u16)

	i32, err := d.Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(-70000), i32)

	u32, err := d.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000000), u32)

	i64, err := d.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), i64)

	u64, err := d.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u64)

	f32, err := d.Float32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	f64, err := d.Float64()
	require.NoError(t, err)
	assert.Equal(t, -2.25, f64)

	b, err := d.Bool()
	require.NoError(t, err)
	assert.True(t, b)

	s, err := d.String()
	require.NoError(t, err)
	assert.Equal(t, "memory_usage", s)

	chunk, err := d.Chunk()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, chunk)

	assert.Zero(t, d.Remaining())
	_, err = d.Uint8()
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestDecoderRejectsOversizedChunk(t *testing.T) {
	e := NewEncoder(0)
	e.PutUint64(1000)
	e.PutUint8(1)

	_, err := NewDecoder(e.Bytes()).Chunk()
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestStreamSendIsIdempotent(t *testing.T) {
	var frames [][]byte
	sink := func(b []byte) error {
		frames = append(frames, b)
		return nil
	}

	s := NewStream(5, GetSensorList, sink)
	s.PutUint64(0)
	require.NoError(t, s.Send())
	require.NoError(t, s.Send())

	require.Len(t, frames, 1)
	assert.True(t, s.Sent())
}

func TestResponseEchoesRequest(t *testing.T) {
	var out []byte
	req := Frame{EventID: 77, CommandID: GetSensorData}

	resp := NewResponse(req, func(b []byte) error {
		out = b
		return nil
	})
	resp.PutUint64(0)
	require.NoError(t, resp.Send())

	got, err := ReadFrame(bytes.NewReader(out), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), got.EventID)
	assert.Equal(t, GetSensorData, got.CommandID)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, got.Payload)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "SENSOR_DATA_UPDATED", SensorDataUpdated.String())
	assert.Equal(t, "COMMAND_99", Command(99).String())
}
