// CPU usage sensor: overall and per-core utilization.
// Uses gopsutil for cross-platform CPU metrics.
package sensor

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const CPUUsageName = "cpu_usage"

// CPUUsage reports the overall percentage followed by a count-prefixed list of
// per-core percentages. Percentages cover the time since the previous sample.
type CPUUsage struct {
	perCore bool
}

func NewCPUUsage() *CPUUsage {
	return &CPUUsage{perCore: true}
}

func (s *CPUUsage) Name() string { return CPUUsageName }

// Init accepts per_core (bool, default true).
func (s *CPUUsage) Init(params map[string]string) error {
	perCore, err := boolParam(params, "per_core", true)
	if err != nil {
		return err
	}
	s.perCore = perCore
	return nil
}

func (s *CPUUsage) Sample(ctx context.Context) ([]byte, error) {
	overall, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}

	var cores []float64
	if s.perCore {
		cores, err = cpu.PercentWithContext(ctx, 0, true)
		if err != nil {
			// Non-fatal: report overall only
			cores = nil
		}
	}

	var total float64
	if len(overall) > 0 {
		total = overall[0]
	}
	return encodeCPU(total, cores), nil
}

func encodeCPU(overall float64, cores []float64) []byte {
	e := protocol.NewEncoder(16 + 8*len(cores))
	e.PutFloat64(overall)
	e.PutUint64(uint64(len(cores)))
	for _, c := range cores {
		e.PutFloat64(c)
	}
	return e.Bytes()
}
