package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kairos-io/diskbuild/ghw"
	"github.com/kairos-io/diskbuild/types/partitions"
)

// DeviceReport is what the kernel shows of the recorded partitions.
type DeviceReport struct {
	Device     string
	Present    []string
	Missing    []string
	Mismatched []string
}

func (r DeviceReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatched) == 0
}

// CheckDevices looks for every recorded partition device, logicals included,
// among the partitions the kernel lists for the disk. LABEL= and PARTUUID=
// references are compared with the udev data when udev has a value.
func CheckDevices(disk *partitions.Disk, blk *ghw.BlockDevice) (*DeviceReport, error) {
	r := &DeviceReport{Device: disk.Device}
	byPath := map[string]*ghw.BlockPartition{}
	for _, p := range blk.Partitions {
		byPath[p.Path] = p
	}

	for _, rec := range disk.SortedRecords() {
		p, ok := byPath[rec.Device]
		if !ok {
			r.Missing = append(r.Missing, rec.Device)
			continue
		}
		r.Present = append(r.Present, rec.Device)
		key, value, _ := strings.Cut(rec.FstabID, "=")
		switch key {
		case "LABEL":
			if p.FilesystemLabel != "" && p.FilesystemLabel != value {
				r.Mismatched = append(r.Mismatched, fmt.Sprintf("%s: %s but the label is %s", rec.Name, rec.FstabID, p.FilesystemLabel))
			}
		case "PARTUUID":
			if p.UUID != "" && !strings.EqualFold(p.UUID, value) {
				r.Mismatched = append(r.Mismatched, fmt.Sprintf("%s: %s but the partition uuid is %s", rec.Name, rec.FstabID, p.UUID))
			}
		}
	}
	sort.Strings(r.Mismatched)

	if !r.OK() {
		return r, fmt.Errorf("%w: %s missing devices %v, mismatched %v", ErrTableMismatch, disk.Device, r.Missing, r.Mismatched)
	}
	return r, nil
}
