// System load average sensor: 1, 5 and 15 minute averages.
package sensor

import (
	"context"

	"github.com/shirou/gopsutil/v3/load"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const LoadAverageName = "load_average"

// LoadAverage reports three float64 values.
type LoadAverage struct{}

func NewLoadAverage() *LoadAverage {
	return &LoadAverage{}
}

func (s *LoadAverage) Name() string { return LoadAverageName }

func (s *LoadAverage) Sample(ctx context.Context) ([]byte, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return encodeLoadAverage(avg), nil
}

func encodeLoadAverage(avg *load.AvgStat) []byte {
	e := protocol.NewEncoder(24)
	e.PutFloat64(avg.Load1)
	e.PutFloat64(avg.Load5)
	e.PutFloat64(avg.Load15)
	return e.Bytes()
}
