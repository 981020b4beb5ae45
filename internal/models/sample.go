// Package models defines the value types passed between the scheduler, the
// storage backends and the protocol server.
package models

import "time"

// Sample is one non-empty sensor reading produced during a scheduler tick.
// It is not retained after the tick has persisted and broadcast it.
type Sample struct {
	Sensor    string
	Timestamp int64 // Unix seconds, shared by every sample of one tick
	Payload   []byte
}

// Time returns the sample timestamp as a time.Time in UTC.
func (s Sample) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// Record is one stored sample as returned by a storage query.
type Record struct {
	Timestamp int64
	Payload   []byte
}

// InRange reports whether ts lies in the inclusive range [from, to].
func InRange(ts, from, to int64) bool {
	return ts >= from && ts <= to
}
