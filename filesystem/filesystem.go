// Package filesystem creates and labels the filesystems of a partitioned
// system and publishes the mount point table used by the later build steps.
package filesystem

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/kairos-io/diskbuild/executor"
	"github.com/kairos-io/diskbuild/partitioner"
	"github.com/kairos-io/diskbuild/state"
	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/partitions"
)

// Declaration is a "<mountpoint> = <disk>[.<partition>], <fstype>[, <mkfs options>]" entry.
type Declaration struct {
	Mountpoint string
	Disk       string
	Partition  string
	FSType     string
	Options    []string
}

func ParseDeclaration(mountpoint, value string) (Declaration, error) {
	d := Declaration{Mountpoint: mountpoint}
	fields := strings.SplitN(value, ",", 3)
	if len(fields) < 2 {
		return d, &partitioner.ConfigurationError{Reason: fmt.Sprintf("filesystem %s=%q needs <device>, <fstype>", mountpoint, value)}
	}
	dev := strings.TrimSpace(fields[0])
	d.Disk, d.Partition, _ = strings.Cut(dev, ".")
	d.FSType = strings.TrimSpace(fields[1])
	if d.Disk == "" || d.FSType == "" {
		return d, &partitioner.ConfigurationError{Reason: fmt.Sprintf("filesystem %s=%q needs <device>, <fstype>", mountpoint, value)}
	}
	if len(fields) == 3 {
		opts, err := shlex.Split(fields[2])
		if err != nil {
			return d, &partitioner.ConfigurationError{Reason: fmt.Sprintf("filesystem %s has bad mkfs options", mountpoint), Err: err}
		}
		d.Options = opts
	}
	return d, nil
}

// ParseDeclarations picks every option keyed by a mount point. The result is
// ordered so parents come before the mount points nested in them.
func ParseDeclarations(options map[string]string) ([]Declaration, error) {
	var decls []Declaration
	for k, v := range options {
		if !strings.HasPrefix(k, "/") {
			continue
		}
		d, err := ParseDeclaration(k, v)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	SortDeclarations(decls)
	return decls, nil
}

func depth(mountpoint string) int {
	n := 0
	for _, p := range strings.Split(mountpoint, "/") {
		if p != "" {
			n++
		}
	}
	return n
}

func SortDeclarations(decls []Declaration) {
	sort.SliceStable(decls, func(i, j int) bool {
		di, dj := depth(decls[i].Mountpoint), depth(decls[j].Mountpoint)
		if di != dj {
			return di < dj
		}
		return decls[i].Mountpoint < decls[j].Mountpoint
	})
}

type Result struct {
	Filesystem map[string]partitions.FilesystemRecord
	Warnings   []partitioner.Warning
}

type Creator struct {
	Executor *executor.Executor
	Labelers *Registry
	Logger   *logger.KairosLogger
}

func NewCreator(e *executor.Executor, l *logger.KairosLogger) *Creator {
	if l == nil {
		nl := logger.NewNullLogger()
		l = &nl
	}
	return &Creator{Executor: e, Labelers: DefaultRegistry(), Logger: l}
}

// target is what a declaration resolves to in the build state.
type target struct {
	decl    Declaration
	device  string
	label   string
	fstabID *string
}

// Create makes the filesystems of sys and records them in it. In Reuse mode
// no filesystem is touched but labels and fstab ids are computed the same way.
func (c *Creator) Create(sys *state.System, decls []Declaration, mode partitioner.Mode) (*Result, error) {
	if sys == nil {
		return nil, &partitioner.ConfigurationError{Reason: "system is not defined"}
	}
	if sys.Filesystem != nil {
		return nil, &partitioner.ConfigurationError{Reason: fmt.Sprintf("system %s already has a filesystem defined", sys.Name)}
	}

	sorted := make([]Declaration, len(decls))
	copy(sorted, decls)
	SortDeclarations(sorted)

	targets, err := c.resolve(sys, sorted)
	if err != nil {
		return nil, err
	}

	sys.Filesystem = map[string]partitions.FilesystemRecord{}
	sys.FilesystemInfo = map[string]partitions.FilesystemInfo{}
	res := &Result{Filesystem: sys.Filesystem}

	for _, t := range targets {
		if mode == partitioner.Build {
			args := append([]string{"mkfs", "-t", t.decl.FSType}, t.decl.Options...)
			args = append(args, t.device)
			if r := c.Executor.MustSucceed(args...); r.Outcome == executor.Fatal {
				return res, &partitioner.ToolFatalError{Disk: t.decl.Disk, Partition: t.decl.Partition, Result: r}
			}
		}
		if !strings.Contains(*t.fstabID, "=") {
			c.label(t, mode, res)
		}
		sys.Filesystem[t.decl.Mountpoint] = partitions.FilesystemRecord{
			Mountpoint: t.decl.Mountpoint,
			Device:     t.device,
			FSType:     t.decl.FSType,
			FstabID:    *t.fstabID,
		}
		sys.FilesystemInfo[t.decl.Mountpoint] = partitions.FilesystemInfo{Disk: t.decl.Disk, Partition: t.decl.Partition}
		c.Logger.Logger.Info().Str("mountpoint", t.decl.Mountpoint).Str("device", t.device).
			Str("fstype", t.decl.FSType).Str("fstab-id", *t.fstabID).Msg("Filesystem ready")
	}

	if r := c.Executor.BestEffort("sync"); r.Outcome != executor.Success {
		c.warn(res, partitioner.Warning{Kind: partitioner.ToolWarning, Message: r.Error()})
	}
	return res, nil
}

func (c *Creator) warn(res *Result, w partitioner.Warning) {
	res.Warnings = append(res.Warnings, w)
	c.Logger.Logger.Warn().Str("kind", w.Kind.String()).Str("partition", w.Partition).Msg(w.Message)
}

func (c *Creator) resolve(sys *state.System, decls []Declaration) ([]target, error) {
	var targets []target
	root := false
	for _, d := range decls {
		if d.Mountpoint == "/" {
			root = true
		}
		disk, err := sys.Disk(d.Disk)
		if err != nil {
			return nil, &partitioner.ConfigurationError{Reason: fmt.Sprintf("device for mount point %s", d.Mountpoint), Err: err}
		}
		t := target{decl: d, device: disk.Device, label: d.Disk, fstabID: &disk.FstabID}
		if d.Partition != "" {
			rec, ok := disk.Partitions[d.Partition]
			if !ok {
				return nil, &partitioner.ConfigurationError{
					Disk: d.Disk, Partition: d.Partition,
					Reason: fmt.Sprintf("partition for mount point %s is not defined", d.Mountpoint),
				}
			}
			t.device = rec.Device
			t.label = rec.Name
			t.fstabID = &rec.FstabID
		}
		targets = append(targets, t)
	}
	if !root {
		return nil, &partitioner.ConfigurationError{Reason: fmt.Sprintf("system %s has no / filesystem", sys.Name)}
	}
	return targets, nil
}

// label names the filesystem after its partition, or disk, and points the
// fstab id at the label. A failure leaves the fstab id as it was.
func (c *Creator) label(t target, mode partitioner.Mode, res *Result) {
	f, ok := c.Labelers.Lookup(t.decl.FSType)
	if !ok {
		c.Logger.Logger.Debug().Str("fstype", t.decl.FSType).Msg("No labeler for filesystem type")
		return
	}
	label, args := f(t.device, t.label)
	if mode == partitioner.Build {
		if r := c.Executor.BestEffort(args...); r.Outcome != executor.Success {
			w := partitioner.Warning{
				Kind: partitioner.ToolWarning, Partition: t.decl.Partition,
				Message: fmt.Sprintf("failed to label filesystem, the booted image may not find %s: %s", t.decl.Mountpoint, r.Error()),
			}
			c.warn(res, w)
			return
		}
	}
	*t.fstabID = fmt.Sprintf("LABEL=%s", label)
}
