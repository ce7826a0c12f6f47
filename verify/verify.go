// Package verify reads back the partition table written on a device and
// compares it with the records of the build state.
package verify

import (
	"errors"
	"fmt"
	"sort"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/part"
	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/partitions"
)

var ErrTableMismatch = errors.New("partition table does not match the build state")

// Table is the part of a go-diskfs partition table the check needs.
type Table interface {
	Type() string
	GetPartitions() []part.Partition
}

type Report struct {
	Device  string
	Table   string
	Present []int
	Missing []int
}

func (r Report) OK() bool {
	return len(r.Missing) == 0
}

// Verify opens the device read only and checks its table against disk.
func Verify(disk *partitions.Disk, l *logger.KairosLogger) (*Report, error) {
	log := l.Logger.With().Str("disk", disk.Name).Str("device", disk.Device).Logger()
	log.Debug().Msg("Reading partition table")
	d, err := diskfs.Open(disk.Device, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		log.Error().Err(err).Msg("opening device")
		return nil, err
	}
	defer d.Close()
	tbl, err := d.GetPartitionTable()
	if err != nil {
		log.Error().Err(err).Msg("reading partition table")
		return nil, err
	}
	return Check(disk, tbl)
}

func tableName(diskfsType string) string {
	if diskfsType == "mbr" {
		return constants.MSDOS
	}
	return diskfsType
}

// Check compares a table with the recorded partitions. On msdos tables only
// primary and extended entries live in the table itself, so logicals are not
// looked for.
func Check(disk *partitions.Disk, tbl Table) (*Report, error) {
	r := &Report{Device: disk.Device, Table: tableName(tbl.Type())}
	if disk.Table != "" && disk.Table != r.Table {
		return r, fmt.Errorf("%w: %s has a %s table, %s was recorded", ErrTableMismatch, disk.Device, r.Table, disk.Table)
	}

	present := map[int]bool{}
	for _, p := range tbl.GetPartitions() {
		if p == nil || p.GetSize() <= 0 {
			continue
		}
		present[p.GetIndex()] = true
	}
	for _, rec := range disk.SortedRecords() {
		if r.Table == constants.MSDOS && rec.Kind == partitions.Logical {
			continue
		}
		if present[rec.Number] {
			r.Present = append(r.Present, rec.Number)
		} else {
			r.Missing = append(r.Missing, rec.Number)
		}
	}
	sort.Ints(r.Present)
	sort.Ints(r.Missing)
	if !r.OK() {
		return r, fmt.Errorf("%w: %s is missing partitions %v", ErrTableMismatch, disk.Device, r.Missing)
	}
	return r, nil
}
