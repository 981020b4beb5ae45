package sensor

import (
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cpp11nullptr/vikki/internal/capability"
	"github.com/cpp11nullptr/vikki/internal/protocol"
)

func TestBuiltinsRegisterUniqueNames(t *testing.T) {
	r, err := capability.New(zaptest.NewLogger(t), Builtins()...)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{
		LoadAverageName,
		MemoryUsageName,
		FileSystemUsageName,
		CPUUsageName,
		NetworkIOName,
		UptimeName,
		TemperatureName,
		ProcessesName,
	}, r.Names())
}

func TestEncodeMemory(t *testing.T) {
	b := encodeMemory(
		&mem.VirtualMemoryStat{Total: 8, Free: 2, Buffers: 1, Cached: 3, Available: 5},
		&mem.SwapMemoryStat{Total: 4, Free: 4},
	)
	require.Len(t, b, MemoryPayloadSize)

	out, err := Format(MemoryUsageName, b)
	require.NoError(t, err)
	assert.Equal(t, "total=8 free=2 buffers=1 cached=3 swap_total=4 swap_free=4 available=5", out)
}

func TestEncodeLoadAverage(t *testing.T) {
	b := encodeLoadAverage(&load.AvgStat{Load1: 0.5, Load5: 1.25, Load15: 2})
	require.Len(t, b, 24)

	d := protocol.NewDecoder(b)
	for _, want := range []float64{0.5, 1.25, 2} {
		got, err := d.Float64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEncodeFileSystems(t *testing.T) {
	in := []FileSystem{
		{Mount: "/", Device: "/dev/sda1", Type: "ext4", Options: "rw,relatime", Total: 100, Free: 40, Available: 30, Files: 10, FreeFiles: 5},
		{Mount: "/home", Device: "/dev/sda2", Type: "xfs", Total: 200},
	}
	out, err := DecodeFileSystems(encodeFileSystems(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	empty, err := DecodeFileSystems(encodeFileSystems(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecodeFileSystems([]byte{1, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, protocol.ErrShortPayload)
}

func TestFileSystemUsageSkipsExcludedTypes(t *testing.T) {
	s := NewFileSystemUsage()
	require.NoError(t, Init(s, map[string]string{"exclude_types": "vfat, zfs"}))

	assert.True(t, s.skip("tmpfs", "/run"))
	assert.True(t, s.skip("devpts", "/dev/pts"))
	assert.True(t, s.skip("vfat", "/boot/efi"))
	assert.True(t, s.skip("zfs", "/tank"))
	assert.True(t, s.skip("apfs", "/System/Volumes/Data"))
	assert.False(t, s.skip("ext4", "/"))
}

func TestEncodeCPU(t *testing.T) {
	out, err := Format(CPUUsageName, encodeCPU(12.5, []float64{10, 15}))
	require.NoError(t, err)
	assert.Equal(t, "overall=12.5% cores=[10 15]", out)

	out, err = Format(CPUUsageName, encodeCPU(3, nil))
	require.NoError(t, err)
	assert.Equal(t, "overall=3.0% cores=[]", out)
}

func TestCPUUsageInit(t *testing.T) {
	s := NewCPUUsage()
	require.NoError(t, Init(s, map[string]string{"per_core": "false"}))
	assert.False(t, s.perCore)

	assert.Error(t, Init(s, map[string]string{"per_core": "maybe"}))
}

func TestNetworkDeltaBaselineIsEmpty(t *testing.T) {
	s := NewNetworkIO()

	assert.Empty(t, s.delta(1000, 500))

	out, err := Format(NetworkIOName, s.delta(1500, 700))
	require.NoError(t, err)
	assert.Equal(t, "rx=500 tx=200", out)

	out, err = Format(NetworkIOName, s.delta(100, 800))
	require.NoError(t, err)
	assert.Equal(t, "rx=0 tx=100", out)
}

func TestInitWithoutInitializer(t *testing.T) {
	assert.NoError(t, Init(NewUptime(), map[string]string{"ignored": "x"}))
}

func TestFormatUnknownSensor(t *testing.T) {
	out, err := Format("custom", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "3 bytes", out)

	_, err = Format(UptimeName, []byte{1})
	assert.Error(t, err)
}

func TestEncodeTemperatures(t *testing.T) {
	b := encodeTemperatures([]host.TemperatureStat{
		{SensorKey: "coretemp_core_0_input", Temperature: 48},
		{SensorKey: "coretemp_core_1_input", Temperature: 55.5},
		{SensorKey: "amdgpu_edge_input", Temperature: 61},
		{SensorKey: "coretemp_core_2_input", Temperature: 400},
		{SensorKey: "nvme_composite_input", Temperature: 70},
	})

	out, err := Format(TemperatureName, b)
	require.NoError(t, err)
	assert.Equal(t, "cpu=55.5C gpu=61.0C", out)

	assert.Empty(t, encodeTemperatures([]host.TemperatureStat{{SensorKey: "nvme_composite_input", Temperature: 40}}))
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, "sleeping", normalizeStatus("disk-sleep", 0))
	assert.Equal(t, "custom", normalizeStatus(" Custom ", 0))
	assert.Equal(t, "running", normalizeStatus("", 0.5))
	assert.Equal(t, "idle", normalizeStatus("", 0))
}

func TestEncodeProcesses(t *testing.T) {
	infos := []ProcessInfo{
		{PID: 10, Name: "idle", CPU: 0, Memory: 0.1, Status: "idle"},
		{PID: 20, Name: "build", CPU: 90, Memory: 12.5, Status: "running"},
		{PID: 30, Name: "editor", CPU: 4, Memory: 3, Status: "sleeping"},
	}
	b := encodeProcesses(len(infos), topByCPU(infos, 2))

	total, top, err := DecodeProcesses(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	require.Len(t, top, 2)
	assert.Equal(t, "build", top[0].Name)
	assert.Equal(t, int32(30), top[1].PID)

	out, err := Format(ProcessesName, b)
	require.NoError(t, err)
	assert.Equal(t, "total=3 top: build[20] cpu=90.0% mem=12.5% running, editor[30] cpu=4.0% mem=3.0% sleeping", out)

	_, _, err = DecodeProcesses(b[:20])
	assert.Error(t, err)
}

func TestProcessesInit(t *testing.T) {
	s := NewProcesses()
	require.NoError(t, Init(s, nil))
	assert.Equal(t, defaultTopProcesses, s.top)
	require.NoError(t, Init(s, map[string]string{"top": "3"}))
	assert.Equal(t, 3, s.top)
	assert.Error(t, Init(s, map[string]string{"top": "0"}))
	assert.Error(t, Init(s, map[string]string{"top": "many"}))
}
