package server

// Subscriptions maps sensor names to the connections that want live pushes.
// There is at most one entry per (sensor, connection) pair. It is not safe
// for concurrent use; the server's event loop owns it.
type Subscriptions[C comparable] struct {
	bySensor map[string][]C
}

func NewSubscriptions[C comparable]() *Subscriptions[C] {
	return &Subscriptions[C]{bySensor: make(map[string][]C)}
}

// Subscribe adds the pair and reports whether it was new.
func (t *Subscriptions[C]) Subscribe(sensor string, conn C) bool {
	for _, c := range t.bySensor[sensor] {
		if c == conn {
			return false
		}
	}
	t.bySensor[sensor] = append(t.bySensor[sensor], conn)
	return true
}

// Unsubscribe removes the pair and reports whether it existed.
func (t *Subscriptions[C]) Unsubscribe(sensor string, conn C) bool {
	conns := t.bySensor[sensor]
	for i, c := range conns {
		if c != conn {
			continue
		}
		conns = append(conns[:i], conns[i+1:]...)
		if len(conns) == 0 {
			delete(t.bySensor, sensor)
		} else {
			t.bySensor[sensor] = conns
		}
		return true
	}
	return false
}

// RemoveConn drops every entry held by conn and returns how many there were.
func (t *Subscriptions[C]) RemoveConn(conn C) int {
	removed := 0
	for sensor := range t.bySensor {
		if t.Unsubscribe(sensor, conn) {
			removed++
		}
	}
	return removed
}

// Subscribers returns the connections subscribed to sensor in subscription
// order. The slice is shared; callers must not modify it.
func (t *Subscriptions[C]) Subscribers(sensor string) []C {
	return t.bySensor[sensor]
}

// Len returns the total number of entries.
func (t *Subscriptions[C]) Len() int {
	n := 0
	for _, conns := range t.bySensor {
		n += len(conns)
	}
	return n
}
