package config

import (
	"fmt"
	"sort"

	"github.com/docker/go-units"
	"github.com/kairos-io/diskbuild/collector"
	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/partitions"
)

const DefaultSystem = "default"

// Config is a build definition as written by users:
//
//	#diskbuild-config
//	system: base
//	disks:
//	  hda:
//	    device: /dev/loop0
//	    size: 4G
//	partitions:
//	  hda:
//	    table: msdos
//	    part_root: 1, 3G, ext2, boot
//	    part_swap: 2, 1G, linux-swap
//	filesystem:
//	  /: hda.root, ext4
//	devices:
//	  ROOT_DEVICE: /
type Config struct {
	System     string                  `yaml:"system,omitempty"`
	Sudo       bool                    `yaml:"sudo,omitempty"`
	Debug      bool                    `yaml:"debug,omitempty"`
	State      string                  `yaml:"state,omitempty"`
	Disks      map[string]Disk         `yaml:"disks,omitempty"`
	Partitions map[string]Partitioning `yaml:"partitions,omitempty"`
	Filesystem map[string]string       `yaml:"filesystem,omitempty"`
	Devices    map[string]string       `yaml:"devices,omitempty"`
	Collector  collector.Config        `yaml:"-"`
}

// Disk describes a disk to register. Size is a human size like "4G"; when
// empty it is read from the block device.
type Disk struct {
	Device  string `yaml:"device"`
	Size    string `yaml:"size,omitempty"`
	FstabID string `yaml:"fstab-id,omitempty"`
	Real    bool   `yaml:"real,omitempty"`
}

// Partitioning holds the table type and the part_<name> declarations of a disk.
type Partitioning struct {
	Table   string            `yaml:"table,omitempty"`
	Options map[string]string `yaml:",inline"`
}

// Load scans the given collector options and decodes the merged result.
func Load(l *logger.KairosLogger, opts ...collector.Option) (*Config, error) {
	o := &collector.Options{Logger: l}
	if err := o.Apply(opts...); err != nil {
		return nil, err
	}
	merged, err := collector.Scan(o)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := merged.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding build definition: %w", err)
	}
	c.Collector = *merged
	if c.System == "" {
		c.System = DefaultSystem
	}
	if c.State == "" {
		c.State = constants.DefaultState
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	for name, d := range c.Disks {
		if d.Device == "" {
			return fmt.Errorf("disk %s has no device", name)
		}
		if d.Size != "" {
			if _, err := units.RAMInBytes(d.Size); err != nil {
				return fmt.Errorf("disk %s: bad size %q: %w", name, d.Size, err)
			}
		}
	}
	return nil
}

// DiskNames returns the configured disks sorted by name.
func (c *Config) DiskNames() []string {
	names := make([]string, 0, len(c.Disks))
	for n := range c.Disks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ToDisk turns the definition into an unpartitioned disk record. A zero size
// is left for the caller to discover.
func (d Disk) ToDisk(name string) (*partitions.Disk, error) {
	disk := &partitions.Disk{Name: name, Device: d.Device, FstabID: d.FstabID, Real: d.Real}
	if d.Size != "" {
		size, err := units.RAMInBytes(d.Size)
		if err != nil {
			return nil, fmt.Errorf("disk %s: bad size %q: %w", name, d.Size, err)
		}
		disk.Size = uint64(size)
	}
	if disk.FstabID == "" {
		disk.FstabID = d.Device
	}
	return disk, nil
}
