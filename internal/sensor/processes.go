// Top-N processes sensor: the most CPU-intensive processes.
// Uses gopsutil for cross-platform process listing.
package sensor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const (
	ProcessesName = "processes"

	defaultTopProcesses = 5
)

// Raw gopsutil statuses mapped to a consistent set across platforms.
var normalizedStatuses = map[string]string{
	"running":               "running",
	"sleeping":              "sleeping",
	"idle":                  "idle",
	"stopped":               "stopped",
	"zombie":                "zombie",
	"wait":                  "sleeping",
	"lock":                  "sleeping",
	"sleep":                 "sleeping",
	"disk-sleep":            "sleeping",
	"tracing-stop":          "stopped",
	"dead":                  "zombie",
	"wake-kill":             "sleeping",
	"waking":                "running",
	"parked":                "idle",
	"idle-interrupt":        "idle",
	"suspended":             "stopped",
	"uninterruptible-sleep": "sleeping",
}

// normalizeStatus infers the status from CPU activity when gopsutil reports
// none, which is common on Windows.
func normalizeStatus(raw string, cpuPct float64) string {
	if raw != "" {
		key := strings.ToLower(strings.TrimSpace(raw))
		if mapped, ok := normalizedStatuses[key]; ok {
			return mapped
		}
		return key
	}
	if cpuPct > 0 {
		return "running"
	}
	return "idle"
}

type ProcessInfo struct {
	PID    int32
	Name   string
	CPU    float64
	Memory float64
	Status string
}

type Processes struct {
	top int
}

func NewProcesses() *Processes {
	return &Processes{top: defaultTopProcesses}
}

func (s *Processes) Name() string { return ProcessesName }

// Init accepts top, the number of processes to report.
func (s *Processes) Init(params map[string]string) error {
	v, ok := params["top"]
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("param top: want a positive integer, got %q", v)
	}
	s.top = n
	return nil
}

// Sample skips processes that vanish or deny access mid-scan.
func (s *Processes) Sample(ctx context.Context) ([]byte, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, _ := p.NameWithContext(ctx)
		cpuPct, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)
		status, _ := p.StatusWithContext(ctx)

		raw := ""
		if len(status) > 0 {
			raw = status[0]
		}
		infos = append(infos, ProcessInfo{
			PID:    p.Pid,
			Name:   name,
			CPU:    cpuPct,
			Memory: float64(memPct),
			Status: normalizeStatus(raw, cpuPct),
		})
	}
	return encodeProcesses(len(procs), topByCPU(infos, s.top)), nil
}

func topByCPU(infos []ProcessInfo, n int) []ProcessInfo {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CPU > infos[j].CPU
	})
	if len(infos) > n {
		infos = infos[:n]
	}
	return infos
}

// encodeProcesses writes (u64 total, u64 n, n × (i32 pid, string name,
// f64 cpu, f64 mem, string status)).
func encodeProcesses(total int, top []ProcessInfo) []byte {
	e := protocol.NewEncoder(16 + len(top)*48)
	e.PutUint64(uint64(total))
	e.PutUint64(uint64(len(top)))
	for _, p := range top {
		e.PutInt32(p.PID)
		e.PutString(p.Name)
		e.PutFloat64(p.CPU)
		e.PutFloat64(p.Memory)
		e.PutString(p.Status)
	}
	return e.Bytes()
}

// DecodeProcesses parses a processes payload.
func DecodeProcesses(payload []byte) (total uint64, top []ProcessInfo, err error) {
	d := protocol.NewDecoder(payload)
	if total, err = d.Uint64(); err != nil {
		return 0, nil, err
	}
	n, err := d.Uint64()
	if err != nil {
		return 0, nil, err
	}
	if n > uint64(d.Remaining()) {
		return 0, nil, protocol.ErrShortPayload
	}
	top = make([]ProcessInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		var p ProcessInfo
		if p.PID, err = d.Int32(); err != nil {
			return 0, nil, err
		}
		if p.Name, err = d.String(); err != nil {
			return 0, nil, err
		}
		if p.CPU, err = d.Float64(); err != nil {
			return 0, nil, err
		}
		if p.Memory, err = d.Float64(); err != nil {
			return 0, nil, err
		}
		if p.Status, err = d.String(); err != nil {
			return 0, nil, err
		}
		top = append(top, p)
	}
	return total, top, nil
}
