package mocks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kairos-io/diskbuild/ghw"
)

// GhwMock builds a fake /sys/block, /run/udev/data and /proc/mounts tree in a
// temporary chroot and points GHW_CHROOT at it, so the ghw functions scan
// the fake disks instead of the host ones.
// Sizes are given in bytes and written as 512 byte sectors, like the kernel does.
type GhwMock struct {
	Chroot string
	paths  *ghw.Paths
	disks  []ghw.BlockDevice
	mounts []string
}

func (g *GhwMock) AddDisk(disk ghw.BlockDevice) {
	g.disks = append(g.disks, disk)
}

// AddPartitionToDisk adds a partition to the given disk and recreates all files.
// It makes no effort checking if the disk exists
func (g *GhwMock) AddPartitionToDisk(diskName string, partition *ghw.BlockPartition) {
	for i := range g.disks {
		if g.disks[i].Name == diskName {
			g.disks[i].Partitions = append(g.disks[i].Partitions, partition)
			g.Clean()
			g.CreateDevices()
		}
	}
}

// CreateDevices creates the chroot, sets GHW_CHROOT and writes the files of every disk and partition.
func (g *GhwMock) CreateDevices() {
	d, _ := os.MkdirTemp("", "ghwmock")
	g.Chroot = d
	g.mounts = nil
	g.paths = ghw.NewPaths(d)
	_ = os.Setenv("GHW_CHROOT", d)
	_ = os.MkdirAll(g.paths.SysBlock, 0755)
	_ = os.MkdirAll(g.paths.RunUdevData, 0755)
	procDir, _ := filepath.Split(g.paths.ProcMounts)
	_ = os.MkdirAll(procDir, 0755)
	for indexDisk, disk := range g.disks {
		diskPath := filepath.Join(g.paths.SysBlock, disk.Name)
		_ = os.Mkdir(diskPath, 0755)
		_ = os.WriteFile(filepath.Join(diskPath, "dev"), []byte(fmt.Sprintf("%d:0\n", indexDisk)), 0644)
		_ = os.WriteFile(filepath.Join(diskPath, "size"), []byte(fmt.Sprintf("%d\n", disk.SizeBytes/512)), 0644)
		_ = os.WriteFile(filepath.Join(g.paths.RunUdevData, fmt.Sprintf("b%d:0", indexDisk)),
			[]byte(fmt.Sprintf("E:ID_PART_TABLE_UUID=%s\n", disk.UUID)), 0644)
		for indexPart, partition := range disk.Partitions {
			partPath := filepath.Join(diskPath, partition.Name)
			_ = os.Mkdir(partPath, 0755)
			_ = os.WriteFile(filepath.Join(partPath, "dev"), []byte(fmt.Sprintf("%d:6%d\n", indexDisk, indexPart)), 0644)
			_ = os.WriteFile(filepath.Join(partPath, "size"), []byte(fmt.Sprintf("%d\n", partition.SizeBytes/512)), 0644)
			data := []string{fmt.Sprintf("E:ID_FS_LABEL=%s\n", partition.FilesystemLabel)}
			if partition.FS != "" {
				data = append(data, fmt.Sprintf("E:ID_FS_TYPE=%s\n", partition.FS))
			}
			if partition.UUID != "" {
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_UUID=%s\n", partition.UUID))
			}
			_ = os.WriteFile(filepath.Join(g.paths.RunUdevData, fmt.Sprintf("b%d:6%d", indexDisk, indexPart)), []byte(strings.Join(data, "")), 0644)
			if partition.MountPoint != "" {
				fs := partition.FS
				if fs == "" {
					fs = "ext4"
				}
				g.mounts = append(g.mounts,
					fmt.Sprintf("%s %s %s ro,relatime 0 0\n", filepath.Join("/dev", partition.Name), partition.MountPoint, fs))
			}
		}
	}
	_ = os.WriteFile(g.paths.ProcMounts, []byte(strings.Join(g.mounts, "")), 0644)
}

// RemoveDisk removes the files of a disk and its mounts.
func (g *GhwMock) RemoveDisk(disk string) {
	var newMounts []string
	_ = os.RemoveAll(filepath.Join(g.paths.SysBlock, disk))
	for _, mount := range g.mounts {
		fields := strings.Fields(mount)
		if !strings.Contains(fields[0], filepath.Join("/dev", disk)) {
			newMounts = append(newMounts, mount)
		}
	}
	g.mounts = newMounts
	_ = os.WriteFile(g.paths.ProcMounts, []byte(strings.Join(g.mounts, "")), 0644)
}

// Clean removes the chroot dir and unsets the env var
func (g *GhwMock) Clean() {
	_ = os.Unsetenv("GHW_CHROOT")
	_ = os.RemoveAll(g.Chroot)
}
