package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/pterm/pterm"
)

func (s *session) show(w io.Writer) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "System %s (build %s)\n\n", sys.Name, sys.BuildID)

	disks := pterm.TableData{{"Disk", "Device", "Size", "Fstab id", "Table"}}
	parts := pterm.TableData{{"Disk", "Partition", "Number", "Kind", "Device", "Fstab id", "Type", "Extent", "Flags"}}
	for _, n := range sys.DiskNames() {
		d := sys.Disks[n]
		disks = append(disks, []string{n, d.Device, units.BytesSize(float64(d.Size)), d.FstabID, d.Table})
		for _, p := range d.SortedRecords() {
			parts = append(parts, []string{
				n, p.Name, strconv.Itoa(p.Number), string(p.Kind), p.Device, p.FstabID, p.Type,
				fmt.Sprintf("%d%%-%d%%", p.Extent.StartPercent, p.Extent.EndPercent),
				strings.Join(p.Flags, ","),
			})
		}
	}
	if err := render(w, disks); err != nil {
		return err
	}
	if len(parts) > 1 {
		if err := render(w, parts); err != nil {
			return err
		}
	}

	if sys.Filesystem != nil {
		mps := make([]string, 0, len(sys.Filesystem))
		for mp := range sys.Filesystem {
			mps = append(mps, mp)
		}
		sort.Strings(mps)
		fs := pterm.TableData{{"Mount point", "Device", "Type", "Fstab id", "Built from"}}
		for _, mp := range mps {
			r := sys.Filesystem[mp]
			info := sys.FilesystemInfo[mp]
			from := info.Disk
			if info.Partition != "" {
				from += "." + info.Partition
			}
			fs = append(fs, []string{mp, r.Device, r.FSType, r.FstabID, from})
		}
		if err := render(w, fs); err != nil {
			return err
		}
	}
	return nil
}

func render(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n\n", out)
	return err
}
