package ghw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kairos-io/diskbuild/types/logger"
)

const (
	sectorSize = 512
	UNKNOWN    = "unknown"
)

type Paths struct {
	SysBlock    string
	RunUdevData string
	ProcMounts  string
}

func NewPaths(withOptionalPrefix string) *Paths {
	p := &Paths{
		SysBlock:    "/sys/block/",
		RunUdevData: "/run/udev/data",
		ProcMounts:  "/proc/mounts",
	}

	// Allow overriding the paths via env var. It has precedence over anything
	val, exists := os.LookupEnv("GHW_CHROOT")
	if exists {
		val = strings.TrimSuffix(val, "/")
		p.SysBlock = fmt.Sprintf("%s%s", val, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", val, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", val, p.ProcMounts)
		return p
	}

	if withOptionalPrefix != "" {
		withOptionalPrefix = strings.TrimSuffix(withOptionalPrefix, "/")
		p.SysBlock = fmt.Sprintf("%s%s", withOptionalPrefix, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", withOptionalPrefix, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", withOptionalPrefix, p.ProcMounts)
	}
	return p
}

// BlockDevice is a disk as the kernel currently sees it.
type BlockDevice struct {
	Name       string
	SizeBytes  uint64
	UUID       string
	Partitions []*BlockPartition
}

type BlockPartition struct {
	Name            string
	Path            string
	Disk            string
	SizeBytes       uint64
	MountPoint      string
	FS              string
	FilesystemLabel string
	UUID            string
}

func GetDisks(paths *Paths, l *logger.KairosLogger) []*BlockDevice {
	if l == nil {
		newLogger := logger.NewNullLogger()
		l = &newLogger
	}
	disks := make([]*BlockDevice, 0)
	l.Logger.Debug().Str("path", paths.SysBlock).Msg("Scanning for disks")
	files, err := os.ReadDir(paths.SysBlock)
	if err != nil {
		return nil
	}
	for _, file := range files {
		dname := file.Name()
		size := diskSizeBytes(paths, dname, l)
		if strings.HasPrefix(dname, "loop") && size == 0 {
			// We don't care about unused loop devices...
			continue
		}
		disks = append(disks, &BlockDevice{
			Name:       dname,
			SizeBytes:  size,
			UUID:       diskUUID(paths, dname, l),
			Partitions: diskPartitions(paths, dname, l),
		})
	}
	return disks
}

// GetDisk returns the block device behind a device path like /dev/loop0.
func GetDisk(paths *Paths, device string, l *logger.KairosLogger) (*BlockDevice, error) {
	name := filepath.Base(device)
	for _, d := range GetDisks(paths, l) {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("block device %s not found under %s", device, paths.SysBlock)
}

// DiskSize returns the size in bytes of a device path, 0 if it cannot be read.
func DiskSize(paths *Paths, device string, l *logger.KairosLogger) uint64 {
	if l == nil {
		newLogger := logger.NewNullLogger()
		l = &newLogger
	}
	return diskSizeBytes(paths, filepath.Base(device), l)
}

func diskSizeBytes(paths *Paths, disk string, l *logger.KairosLogger) uint64 {
	// We can find the number of 512-byte sectors by examining the contents of
	// /sys/block/$DEVICE/size and calculate the physical bytes accordingly.
	path := filepath.Join(paths.SysBlock, disk, "size")
	l.Logger.Debug().Str("path", path).Msg("Reading disk size")
	contents, err := os.ReadFile(path)
	if err != nil {
		l.Logger.Error().Str("path", path).Err(err).Msg("Failed to read file")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		l.Logger.Error().Str("path", path).Err(err).Str("content", string(contents)).Msg("Failed to parse size")
		return 0
	}
	l.Logger.Trace().Uint64("size", size*sectorSize).Msg("Got disk size")
	return size * sectorSize
}
