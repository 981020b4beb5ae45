package sensor

import "github.com/cpp11nullptr/vikki/internal/capability"

// Builtins returns the sensors compiled into the agent in load order.
func Builtins() []capability.Module[Sensor] {
	return []capability.Module[Sensor]{
		capability.Builtin(LoadAverageName, func() Sensor { return NewLoadAverage() }),
		capability.Builtin(MemoryUsageName, func() Sensor { return NewMemoryUsage() }),
		capability.Builtin(FileSystemUsageName, func() Sensor { return NewFileSystemUsage() }),
		capability.Builtin(CPUUsageName, func() Sensor { return NewCPUUsage() }),
		capability.Builtin(NetworkIOName, func() Sensor { return NewNetworkIO() }),
		capability.Builtin(UptimeName, func() Sensor { return NewUptime() }),
		capability.Builtin(TemperatureName, func() Sensor { return NewTemperature() }),
		capability.Builtin(ProcessesName, func() Sensor { return NewProcesses() }),
	}
}
