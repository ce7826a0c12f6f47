package partitions

import (
	"sort"
)

type Kind string

const (
	Primary  Kind = "primary"
	Extended Kind = "extended"
	Logical  Kind = "logical"
)

// Disk identifies a block device as recorded by the disk provisioning step.
// Partitions stays nil until the disk has been partitioned; a non nil map
// (even an empty one) means partitioning was already attempted.
type Disk struct {
	Name       string                      `yaml:"name,omitempty" json:"name,omitempty"`
	Device     string                      `yaml:"device" json:"device"`
	Size       uint64                      `yaml:"size" json:"size"`
	FstabID    string                      `yaml:"fstab-id,omitempty" json:"fstab-id,omitempty"`
	Real       bool                        `yaml:"real,omitempty" json:"real,omitempty"`
	Table      string                      `yaml:"table,omitempty" json:"table,omitempty"`
	Partitions map[string]*PartitionRecord `yaml:"partitions,omitempty" json:"partitions,omitempty"`
	Swaps      []SwapEntry                 `yaml:"swaps,omitempty" json:"swaps,omitempty"`
}

// PartitionSpec is a parsed part_<name> declaration.
type PartitionSpec struct {
	Name        string   `yaml:"name" json:"name"`
	OrderToken  string   `yaml:"order" json:"order"`
	SizeRequest string   `yaml:"size" json:"size"`
	TypeToken   string   `yaml:"type" json:"type"`
	Flags       []string `yaml:"flags,omitempty" json:"flags,omitempty"`
}

type PartitionSpecs []PartitionSpec

// SortByOrder sorts declarations by their order token. The token only decides
// the creation sequence, never the partition number.
func (s PartitionSpecs) SortByOrder() {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].OrderToken == s[j].OrderToken {
			return s[i].Name < s[j].Name
		}
		return s[i].OrderToken < s[j].OrderToken
	})
}

type Classification struct {
	Kind         Kind   `yaml:"kind" json:"kind"`
	Order        string `yaml:"order" json:"order"`
	LogicalOrder string `yaml:"logical-order,omitempty" json:"logical-order,omitempty"`
}

// Extent is a [start, end) span in percent of the whole disk.
type Extent struct {
	StartPercent int `yaml:"start" json:"start"`
	EndPercent   int `yaml:"end" json:"end"`
}

func (e Extent) Overlaps(o Extent) bool {
	return e.StartPercent < o.EndPercent && o.StartPercent < e.EndPercent
}

func (e Extent) Contains(o Extent) bool {
	return e.StartPercent <= o.StartPercent && o.EndPercent <= e.EndPercent
}

type PartitionRecord struct {
	Name    string   `yaml:"name" json:"name"`
	Number  int      `yaml:"number" json:"number"`
	Kind    Kind     `yaml:"kind" json:"kind"`
	Size    string   `yaml:"size" json:"size"` // as requested, advisory only
	Device  string   `yaml:"device" json:"device"`
	FstabID string   `yaml:"fstab-id" json:"fstab-id"`
	Type    string   `yaml:"type,omitempty" json:"type,omitempty"`
	FSType  string   `yaml:"fstype,omitempty" json:"fstype,omitempty"`
	Flags   []string `yaml:"flags,omitempty" json:"flags,omitempty"`
	Extent  Extent   `yaml:"extent" json:"extent"`
}

// SwapEntry points at the record stored in the disk partition map.
type SwapEntry struct {
	Label     string           `yaml:"label" json:"label"`
	Partition *PartitionRecord `yaml:"partition" json:"partition"`
}

// FilesystemRecord mirrors what a fstab line needs for a mount point.
type FilesystemRecord struct {
	Mountpoint string `yaml:"mountpoint" json:"mountpoint"`
	Device     string `yaml:"device" json:"device"`
	FSType     string `yaml:"fstype" json:"fstype"`
	FstabID    string `yaml:"fstab-id" json:"fstab-id"`
}

// FilesystemInfo tells which disk and partition (empty for whole disk) a mount point lives on.
type FilesystemInfo struct {
	Disk      string `yaml:"disk" json:"disk"`
	Partition string `yaml:"partition,omitempty" json:"partition,omitempty"`
}

// Relink points every swap entry back at the record held in the partition
// map. Serializing the disk duplicates the records, so this must run after load.
// An empty partition map does not survive serialization, the table tells a
// claimed disk apart.
func (d *Disk) Relink() {
	if d.Table != "" && d.Partitions == nil {
		d.Partitions = map[string]*PartitionRecord{}
	}
	for i, s := range d.Swaps {
		if s.Partition == nil {
			continue
		}
		if rec, ok := d.Partitions[s.Partition.Name]; ok {
			d.Swaps[i].Partition = rec
		}
	}
}

// SortedRecords returns the partition records ordered by partition number.
func (d *Disk) SortedRecords() []*PartitionRecord {
	out := make([]*PartitionRecord, 0, len(d.Partitions))
	for _, r := range d.Partitions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
