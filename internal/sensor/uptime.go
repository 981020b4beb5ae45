// System uptime sensor: seconds since last boot.
// Uses gopsutil for cross-platform uptime metrics.
package sensor

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const UptimeName = "uptime"

type Uptime struct{}

func NewUptime() *Uptime {
	return &Uptime{}
}

func (s *Uptime) Name() string { return UptimeName }

func (s *Uptime) Sample(ctx context.Context) ([]byte, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	e := protocol.NewEncoder(8)
	e.PutUint64(uptime)
	return e.Bytes(), nil
}
