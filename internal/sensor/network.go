// Network I/O sensor: RX/TX byte deltas between samples.
// Uses gopsutil for cross-platform network metrics.
package sensor

import (
	"context"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const NetworkIOName = "network_io"

// NetworkIO tracks previous counters to report bytes received and sent since
// the last sample. The first sample only records a baseline and is empty.
type NetworkIO struct {
	iface string

	mu          sync.Mutex
	lastRx      uint64
	lastTx      uint64
	initialized bool
}

func NewNetworkIO() *NetworkIO {
	return &NetworkIO{}
}

func (s *NetworkIO) Name() string { return NetworkIOName }

// Init accepts interface, the NIC to report. All NICs are summed by default.
func (s *NetworkIO) Init(params map[string]string) error {
	s.iface = params["interface"]
	return nil
}

func (s *NetworkIO) Sample(ctx context.Context) ([]byte, error) {
	counters, err := net.IOCountersWithContext(ctx, s.iface != "")
	if err != nil {
		return nil, err
	}

	var rx, tx uint64
	found := false
	for _, c := range counters {
		if s.iface == "" || c.Name == s.iface {
			rx, tx = c.BytesRecv, c.BytesSent
			found = true
			break
		}
	}
	if !found {
		if s.iface != "" {
			return nil, fmt.Errorf("interface %q not found", s.iface)
		}
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delta(rx, tx), nil
}

// delta records the new totals and returns the encoded difference. Counter
// resets are reported as zero. The caller holds s.mu.
func (s *NetworkIO) delta(rx, tx uint64) []byte {
	prevRx, prevTx, ok := s.lastRx, s.lastTx, s.initialized
	s.lastRx, s.lastTx, s.initialized = rx, tx, true
	if !ok {
		return nil
	}

	e := protocol.NewEncoder(16)
	e.PutUint64(sub(rx, prevRx))
	e.PutUint64(sub(tx, prevTx))
	return e.Bytes()
}

func sub(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
