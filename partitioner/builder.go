package partitioner

import (
	"fmt"

	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/executor"
	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/partitions"
)

type Mode int

const (
	// Build creates the table and partitions on the device.
	Build Mode = iota
	// Reuse only computes the records of an already partitioned device.
	Reuse
)

func (m Mode) String() string {
	if m == Reuse {
		return "reuse"
	}
	return "build"
}

type Result struct {
	Partitions map[string]*partitions.PartitionRecord
	Swaps      []partitions.SwapEntry
	Warnings   []Warning
}

// WarningsError aggregates all the warnings into a single error, nil when there are none.
func (r *Result) WarningsError() error {
	return warningsError(r.Warnings)
}

type Builder struct {
	Executor *executor.Executor
	Policy   Policy
	Logger   *logger.KairosLogger
}

func NewBuilder(e *executor.Executor, p Policy, l *logger.KairosLogger) *Builder {
	if l == nil {
		nl := logger.NewNullLogger()
		l = &nl
	}
	return &Builder{Executor: e, Policy: p, Logger: l}
}

// step is a declaration checked by the pre-flight, ready to be placed.
type step struct {
	spec    partitions.PartitionSpec
	class   partitions.Classification
	percent int
	warning *Warning
}

type span struct {
	start, end, cursor int
}

// state is carried across the whole disk while placing partitions.
type state struct {
	cursor   int
	extended *span
	primary  int
	logical  int
	swaps    []*partitions.PartitionRecord
}

// Partition lays out specs on disk and records the result in it. The records
// are the same in both modes, Reuse only skips the table and partition creation.
// On error the partitions placed so far stay recorded in the disk.
func (b *Builder) Partition(disk *partitions.Disk, specs partitions.PartitionSpecs, mode Mode) (*Result, error) {
	if disk == nil {
		return nil, &ConfigurationError{Reason: "disk is not defined"}
	}
	if disk.Partitions != nil {
		return nil, &ConfigurationError{Disk: disk.Name, Reason: "partitions have already been defined"}
	}

	sorted := make(partitions.PartitionSpecs, len(specs))
	copy(sorted, specs)
	sorted.SortByOrder()

	steps, err := b.preflight(disk, sorted)
	if err != nil {
		return nil, err
	}

	disk.Partitions = map[string]*partitions.PartitionRecord{}
	disk.Swaps = []partitions.SwapEntry{}
	disk.Table = b.Policy.Table
	res := &Result{Partitions: disk.Partitions}

	b.Logger.Logger.Info().Str("disk", disk.Name).Str("device", disk.Device).Str("table", b.Policy.Table).
		Str("mode", mode.String()).Int("partitions", len(steps)).Msg("Partitioning disk")

	if mode == Build {
		r := b.Executor.MustSucceed("parted", "-s", disk.Device, "--", "mklabel", b.Policy.Table)
		if r.Outcome == executor.Fatal {
			return res, &ToolFatalError{Disk: disk.Name, Result: r}
		}
	}

	st := &state{primary: 1, logical: b.Policy.FirstLogical}
	for _, s := range steps {
		if s.warning != nil {
			b.warn(res, *s.warning)
		}
		if err := b.place(disk, st, s, mode, res); err != nil {
			res.Swaps = disk.Swaps
			return res, err
		}
	}

	b.settle(disk, res)

	if err := b.registerSwaps(disk, st.swaps, mode, res); err != nil {
		b.Logger.Logger.Warn().Str("disk", disk.Name).Err(err).Msg("Some swap partitions were not initialized")
	}
	res.Swaps = disk.Swaps

	b.Logger.Logger.Info().Str("disk", disk.Name).Int("partitions", len(disk.Partitions)).
		Int("swaps", len(disk.Swaps)).Int("warnings", len(res.Warnings)).Msg("Disk partitioned")
	return res, nil
}

// preflight catches every structural problem before a single tool is run.
// Slot capacity is left to the placement so the partitions before the
// offending one still get created.
func (b *Builder) preflight(disk *partitions.Disk, specs partitions.PartitionSpecs) ([]step, error) {
	steps := make([]step, 0, len(specs))
	seen := map[string]bool{}
	extended := ""
	for _, spec := range specs {
		if seen[spec.Name] {
			return nil, &ConfigurationError{Disk: disk.Name, Partition: spec.Name, Reason: "declared twice"}
		}
		seen[spec.Name] = true

		class, err := Classify(spec.OrderToken)
		if err != nil {
			return nil, &ConfigurationError{Disk: disk.Name, Partition: spec.Name, Reason: "malformed declaration", Err: err}
		}
		switch class.Kind {
		case partitions.Extended, partitions.Logical:
			if !b.Policy.AllowExtended {
				return nil, &ConfigurationError{
					Disk: disk.Name, Partition: spec.Name,
					Reason: fmt.Sprintf("%s partitions are not allowed on %s tables", class.Kind, b.Policy.Table),
				}
			}
		}
		if class.Kind == partitions.Extended {
			if extended != "" {
				return nil, &ConfigurationError{
					Disk: disk.Name, Partition: spec.Name,
					Reason: fmt.Sprintf("second extended partition, part_%s is already extended", extended),
				}
			}
			extended = spec.Name
		}
		if class.Kind == partitions.Logical && extended == "" {
			return nil, &ConfigurationError{
				Disk: disk.Name, Partition: spec.Name,
				Reason: "logical partition without a prior extended partition",
			}
		}

		pct, w, err := ResolvePercent(spec.SizeRequest, disk.Size)
		if err != nil {
			return nil, &ConfigurationError{Disk: disk.Name, Partition: spec.Name, Reason: "bad size", Err: err}
		}
		if w != nil {
			w.Partition = spec.Name
		}
		steps = append(steps, step{spec: spec, class: class, percent: pct, warning: w})
	}
	return steps, nil
}

// place computes the extent and number of one partition, creates it in Build
// mode and records it.
func (b *Builder) place(disk *partitions.Disk, st *state, s step, mode Mode, res *Result) error {
	var number int
	var ext partitions.Extent

	switch s.class.Kind {
	case partitions.Logical:
		number = st.logical
		ext.StartPercent = st.extended.cursor
		ext.EndPercent = ext.StartPercent + s.percent
		if ext.EndPercent > st.extended.end {
			b.warn(res, Warning{
				Kind: GeometryWarning, Partition: s.spec.Name,
				Message: fmt.Sprintf("logical partition truncated, %d%% beyond the extended partition", ext.EndPercent-st.extended.end),
			})
			ext.EndPercent = st.extended.end
		}
	default:
		if st.primary > b.Policy.MaxPrimary {
			return &CapacityError{
				Disk: disk.Name, Partition: s.spec.Name, Table: b.Policy.Table,
				Ordinal: st.primary, Slots: b.Policy.MaxPrimary,
			}
		}
		number = st.primary
		ext.StartPercent = st.cursor
		ext.EndPercent = ext.StartPercent + s.percent
		if ext.EndPercent > 100 {
			b.warn(res, Warning{
				Kind: GeometryWarning, Partition: s.spec.Name,
				Message: fmt.Sprintf("%s partition truncated, %d%% beyond the end of the disk", s.class.Kind, ext.EndPercent-100),
			})
			ext.EndPercent = 100
		}
	}

	fstype, typeCode := "", false
	if s.class.Kind != partitions.Extended {
		fstype, typeCode = b.Policy.ResolveType(s.spec.TypeToken)
	}

	if mode == Build {
		if err := b.create(disk, s, number, ext, fstype, typeCode, res); err != nil {
			return err
		}
	}

	switch s.class.Kind {
	case partitions.Logical:
		st.extended.cursor = ext.EndPercent
		st.logical++
	case partitions.Extended:
		st.extended = &span{start: ext.StartPercent, end: ext.EndPercent, cursor: ext.StartPercent}
		st.cursor = ext.EndPercent
		st.primary++
	default:
		st.cursor = ext.EndPercent
		st.primary++
	}

	rec := &partitions.PartitionRecord{
		Name:    s.spec.Name,
		Number:  number,
		Kind:    s.class.Kind,
		Size:    s.spec.SizeRequest,
		Device:  PartitionDevice(disk.Device, number),
		FstabID: PartitionFstabID(b.Policy.Table, disk.FstabID, disk.Device, number),
		Type:    s.spec.TypeToken,
		FSType:  fstype,
		Flags:   s.spec.Flags,
		Extent:  ext,
	}
	disk.Partitions[rec.Name] = rec
	if fstype == constants.SwapFSType {
		st.swaps = append(st.swaps, rec)
	}

	b.Logger.Logger.Debug().Str("disk", disk.Name).Str("partition", rec.Name).Int("number", rec.Number).
		Str("kind", string(rec.Kind)).Int("start", ext.StartPercent).Int("end", ext.EndPercent).
		Str("device", rec.Device).Msg("Partition placed")
	return nil
}

func (b *Builder) create(disk *partitions.Disk, s step, number int, ext partitions.Extent, fstype string, typeCode bool, res *Result) error {
	start := fmt.Sprintf("%d%%", ext.StartPercent)
	if ext.StartPercent == 0 {
		start = b.Policy.FirstStart
	}
	args := []string{"parted", "-s", "-a", "optimal", disk.Device, "--", "mkpart", string(s.class.Kind)}
	if fstype != "" {
		args = append(args, fstype)
	}
	args = append(args, start, fmt.Sprintf("%d%%", ext.EndPercent))
	if r := b.Executor.MustSucceed(args...); r.Outcome == executor.Fatal {
		return &ToolFatalError{Disk: disk.Name, Partition: s.spec.Name, Result: r}
	}

	num := fmt.Sprintf("%d", number)
	b.bestEffort(res, s.spec.Name, "could not name the partition",
		"parted", "-s", disk.Device, "--", "name", num, s.spec.Name)
	for _, flag := range s.spec.Flags {
		b.bestEffort(res, s.spec.Name, fmt.Sprintf("could not set the %s flag", flag),
			"parted", "-s", disk.Device, "--", "set", num, flag, "on")
	}
	if typeCode {
		b.bestEffort(res, s.spec.Name, fmt.Sprintf("could not set partition type %s", s.spec.TypeToken),
			b.Policy.TypeCode(disk.Device, number, s.spec.TypeToken)...)
	}
	return nil
}

// settle asks the kernel to re-read the table. Runs in both modes.
func (b *Builder) settle(disk *partitions.Disk, res *Result) {
	b.bestEffort(res, "", "partition probe failed", "partprobe", disk.Device)
	b.bestEffort(res, "", "udev settle failed", "udevadm", "settle")
}

func (b *Builder) bestEffort(res *Result, partition, msg string, args ...string) {
	r := b.Executor.BestEffort(args...)
	if r.Outcome != executor.Success {
		b.warn(res, Warning{Kind: ToolWarning, Partition: partition, Message: fmt.Sprintf("%s: %s", msg, r.Error())})
	}
}

func (b *Builder) warn(res *Result, w Warning) {
	res.Warnings = append(res.Warnings, w)
	b.Logger.Logger.Warn().Str("kind", w.Kind.String()).Str("partition", w.Partition).Msg(w.Message)
}
