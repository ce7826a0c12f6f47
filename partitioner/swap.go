package partitioner

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/kairos-io/diskbuild/executor"
	"github.com/kairos-io/diskbuild/types/partitions"
)

// registerSwaps writes the swap signature of every swap partition, labelled
// after the declaration name, and lists them in the disk swaps. A failing
// entry is skipped with a warning and the others still get registered.
func (b *Builder) registerSwaps(disk *partitions.Disk, swaps []*partitions.PartitionRecord, mode Mode, res *Result) error {
	var merr *multierror.Error
	for _, rec := range swaps {
		if mode == Build {
			r := b.Executor.MustSucceed("mkswap", "-L", rec.Name, rec.Device)
			if r.Outcome == executor.Fatal {
				w := Warning{Kind: ToolWarning, Partition: rec.Name, Message: fmt.Sprintf("swap could not be initialized: %s", r.Error())}
				b.warn(res, w)
				merr = multierror.Append(merr, w)
				continue
			}
		}
		rec.FstabID = fmt.Sprintf("LABEL=%s", rec.Name)
		disk.Swaps = append(disk.Swaps, partitions.SwapEntry{Label: rec.Name, Partition: rec})
		b.Logger.Logger.Debug().Str("disk", disk.Name).Str("swap", rec.Name).Str("device", rec.Device).Msg("Swap registered")
	}
	return merr.ErrorOrNil()
}
