package protocol

// Sink receives a finished, length-prefixed frame.
type Sink func(frame []byte) error

// Stream is an outbound frame under construction. It is bound to an event id
// and a command id when created and delivered to its sink exactly once.
type Stream struct {
	*Encoder

	eventID uint64
	command Command
	sink    Sink
	sent    bool
}

// NewStream binds a stream to eventID and command.
func NewStream(eventID uint64, command Command, sink Sink) *Stream {
	return &Stream{
		Encoder: NewEncoder(64),
		eventID: eventID,
		command: command,
		sink:    sink,
	}
}

// NewResponse builds the stream answering req. The event id and command id are
// echoed so the peer can match it against its pending callbacks.
func NewResponse(req Frame, sink Sink) *Stream {
	return NewStream(req.EventID, req.CommandID, sink)
}

// NewPush builds an unsolicited stream. eventID must be freshly minted by the
// caller; no callback on the peer waits for it.
func NewPush(eventID uint64, command Command, sink Sink) *Stream {
	return NewStream(eventID, command, sink)
}

func (s *Stream) EventID() uint64  { return s.eventID }
func (s *Stream) Command() Command { return s.command }
func (s *Stream) Sent() bool       { return s.sent }

// Frame returns the logical frame accumulated so far.
func (s *Stream) Frame() Frame {
	return Frame{EventID: s.eventID, CommandID: s.command, Payload: s.Bytes()}
}

// Send finalizes the frame and hands it to the sink. Calls after the first
// are no-ops.
func (s *Stream) Send() error {
	if s.sent {
		return nil
	}
	s.sent = true
	b, err := s.Frame().MarshalBinary()
	if err != nil {
		return err
	}
	return s.sink(b)
}
