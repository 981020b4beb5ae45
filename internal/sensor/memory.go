// RAM and swap usage sensor.
// Uses gopsutil for cross-platform memory metrics.
package sensor

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const MemoryUsageName = "memory_usage"

// MemoryPayloadSize is the encoded size of one memory_usage sample.
const MemoryPayloadSize = 7 * 8

// MemoryUsage reports total, free, buffers, cached, swap total, swap free and
// available bytes as seven uint64 values.
type MemoryUsage struct{}

func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{}
}

func (s *MemoryUsage) Name() string { return MemoryUsageName }

func (s *MemoryUsage) Sample(ctx context.Context) ([]byte, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		// Hosts without swap still report RAM.
		swap = &mem.SwapMemoryStat{}
	}
	return encodeMemory(v, swap), nil
}

func encodeMemory(v *mem.VirtualMemoryStat, swap *mem.SwapMemoryStat) []byte {
	e := protocol.NewEncoder(MemoryPayloadSize)
	e.PutUint64(v.Total)
	e.PutUint64(v.Free)
	e.PutUint64(v.Buffers)
	e.PutUint64(v.Cached)
	e.PutUint64(swap.Total)
	e.PutUint64(swap.Free)
	e.PutUint64(v.Available)
	return e.Bytes()
}
