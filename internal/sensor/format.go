package sensor

import (
	"fmt"
	"strings"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

// DecodeFileSystems parses a file_system_usage payload.
func DecodeFileSystems(payload []byte) ([]FileSystem, error) {
	d := protocol.NewDecoder(payload)
	n, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Remaining()) {
		return nil, protocol.ErrShortPayload
	}

	out := make([]FileSystem, 0, n)
	for i := uint64(0); i < n; i++ {
		var fs FileSystem
		for _, p := range []*string{&fs.Mount, &fs.Device, &fs.Type, &fs.Options} {
			if *p, err = d.String(); err != nil {
				return nil, err
			}
		}
		for _, p := range []*uint64{&fs.Total, &fs.Free, &fs.Available, &fs.Files, &fs.FreeFiles} {
			if *p, err = d.Uint64(); err != nil {
				return nil, err
			}
		}
		out = append(out, fs)
	}
	return out, nil
}

// Format renders a payload of a builtin sensor as text. Payloads of unknown
// sensors are rendered as their size.
func Format(name string, payload []byte) (string, error) {
	d := protocol.NewDecoder(payload)
	switch name {
	case LoadAverageName:
		v, err := floats(d, 3)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("load1=%.2f load5=%.2f load15=%.2f", v[0], v[1], v[2]), nil

	case MemoryUsageName:
		v, err := uints(d, 7)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("total=%d free=%d buffers=%d cached=%d swap_total=%d swap_free=%d available=%d",
			v[0], v[1], v[2], v[3], v[4], v[5], v[6]), nil

	case FileSystemUsageName:
		filesystems, err := DecodeFileSystems(payload)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(filesystems))
		for _, fs := range filesystems {
			parts = append(parts, fmt.Sprintf("%s(%s) total=%d avail=%d", fs.Mount, fs.Type, fs.Total, fs.Available))
		}
		return strings.Join(parts, "; "), nil

	case CPUUsageName:
		overall, err := d.Float64()
		if err != nil {
			return "", err
		}
		n, err := d.Uint64()
		if err != nil {
			return "", err
		}
		if n > uint64(d.Remaining()/8) {
			return "", protocol.ErrShortPayload
		}
		cores, err := floats(d, int(n))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("overall=%.1f%% cores=%v", overall, cores), nil

	case NetworkIOName:
		v, err := uints(d, 2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("rx=%d tx=%d", v[0], v[1]), nil

	case UptimeName:
		v, err := d.Uint64()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("uptime=%ds", v), nil

	case TemperatureName:
		parts := make([]string, 0, 2)
		for _, label := range []string{"cpu", "gpu"} {
			found, err := d.Bool()
			if err != nil {
				return "", err
			}
			v, err := d.Float64()
			if err != nil {
				return "", err
			}
			if found {
				parts = append(parts, fmt.Sprintf("%s=%.1fC", label, v))
			}
		}
		return strings.Join(parts, " "), nil

	case ProcessesName:
		total, top, err := DecodeProcesses(payload)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(top))
		for _, p := range top {
			parts = append(parts, fmt.Sprintf("%s[%d] cpu=%.1f%% mem=%.1f%% %s", p.Name, p.PID, p.CPU, p.Memory, p.Status))
		}
		return fmt.Sprintf("total=%d top: %s", total, strings.Join(parts, ", ")), nil

	default:
		return fmt.Sprintf("%d bytes", len(payload)), nil
	}
}

func floats(d *protocol.Decoder, n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := d.Float64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func uints(d *protocol.Decoder, n int) ([]uint64, error) {
	out := make([]uint64, n)
	for i := range out {
		v, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
