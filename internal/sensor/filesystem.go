// File system usage sensor: per-mount capacity and inode usage.
// Uses gopsutil for cross-platform disk metrics.
package sensor

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/cpp11nullptr/vikki/internal/protocol"
)

const FileSystemUsageName = "file_system_usage"

// pseudoFSTypes contains filesystem types that are excluded from the report.
// These are virtual/system filesystems and network/remote filesystems that don't
// represent local storage devices.
var pseudoFSTypes = map[string]bool{
	// Virtual / system filesystems
	"devfs":         true,
	"devpts":        true,
	"rootfs":        true,
	"autofs":        true,
	"nullfs":        true,
	"tmpfs":         true,
	"sysfs":         true,
	"proc":          true,
	"procfs":        true,
	"devtmpfs":      true,
	"cgroup":        true,
	"cgroup2":       true,
	"overlay":       true,
	"squashfs":      true,
	"fuse.snapfuse": true,
	"nsfs":          true,
	"pstore":        true,
	"debugfs":       true,
	"tracefs":       true,
	"securityfs":    true,
	"configfs":      true,
	"fusectl":       true,
	"mqueue":        true,
	"hugetlbfs":     true,
	"binfmt_misc":   true,
	"efivarfs":      true,
	"bpf":           true,
	"ramfs":         true,

	// Network / remote filesystems
	"nfs":        true,
	"nfs4":       true,
	"cifs":       true,
	"smbfs":      true,
	"fuse.sshfs": true,
	"9p":         true,
	"afs":        true,
	"glusterfs":  true,
	"lustre":     true,
	"ceph":       true,
	"fuse.ceph":  true,
	"fuse.s3fs":  true,
	"davfs2":     true,
}

// isSystemMount returns true for mount points that are macOS system volumes.
func isSystemMount(mount string) bool {
	for _, prefix := range []string{"/System/Volumes/", "/private/var/vm"} {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// FileSystem is one reported mount.
type FileSystem struct {
	Mount     string
	Device    string
	Type      string
	Options   string
	Total     uint64
	Free      uint64
	Available uint64
	Files     uint64
	FreeFiles uint64
}

// FileSystemUsage reports a count-prefixed list of mounted filesystems.
type FileSystemUsage struct {
	exclude map[string]bool
}

func NewFileSystemUsage() *FileSystemUsage {
	return &FileSystemUsage{}
}

func (s *FileSystemUsage) Name() string { return FileSystemUsageName }

// Init accepts exclude_types, a comma separated list of extra filesystem types
// to skip.
func (s *FileSystemUsage) Init(params map[string]string) error {
	s.exclude = make(map[string]bool)
	for _, t := range listParam(params, "exclude_types") {
		s.exclude[t] = true
	}
	return nil
}

func (s *FileSystemUsage) skip(fstype, mount string) bool {
	return pseudoFSTypes[fstype] || s.exclude[fstype] || isSystemMount(mount)
}

// Sample gathers usage for every mounted partition. Inaccessible partitions
// are skipped.
func (s *FileSystemUsage) Sample(ctx context.Context) ([]byte, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	var filesystems []FileSystem
	for _, p := range partitions {
		if s.skip(p.Fstype, p.Mountpoint) {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		filesystems = append(filesystems, FileSystem{
			Mount:     p.Mountpoint,
			Device:    p.Device,
			Type:      p.Fstype,
			Options:   strings.Join(p.Opts, ","),
			Total:     usage.Total,
			Free:      usage.Total - usage.Used,
			Available: usage.Free,
			Files:     usage.InodesTotal,
			FreeFiles: usage.InodesFree,
		})
	}

	return encodeFileSystems(filesystems), nil
}

func encodeFileSystems(filesystems []FileSystem) []byte {
	e := protocol.NewEncoder(8 + 128*len(filesystems))
	e.PutUint64(uint64(len(filesystems)))
	for _, fs := range filesystems {
		e.PutString(fs.Mount)
		e.PutString(fs.Device)
		e.PutString(fs.Type)
		e.PutString(fs.Options)
		e.PutUint64(fs.Total)
		e.PutUint64(fs.Free)
		e.PutUint64(fs.Available)
		e.PutUint64(fs.Files)
		e.PutUint64(fs.FreeFiles)
	}
	return e.Bytes()
}
