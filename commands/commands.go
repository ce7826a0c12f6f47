package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/kairos-io/diskbuild/constants"
	"github.com/kairos-io/diskbuild/devices"
	"github.com/kairos-io/diskbuild/filesystem"
	"github.com/kairos-io/diskbuild/ghw"
	"github.com/kairos-io/diskbuild/partitioner"
	"github.com/kairos-io/diskbuild/state"
	"github.com/kairos-io/diskbuild/types/config"
	"github.com/kairos-io/diskbuild/verify"
	"github.com/urfave/cli/v2"
)

var (
	debugFlag = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "log debug messages",
		EnvVars: []string{"DISKBUILD_DEBUG"},
	}

	stateFlag = &cli.StringFlag{
		Name:  "state",
		Value: constants.DefaultState,
		Usage: "the build state file shared by all the steps",
	}

	configFlag = &cli.StringSliceFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "build definition file or directory, can be repeated",
	}

	systemFlag = &cli.StringFlag{
		Name:  "system",
		Usage: "the system to work on (e.g. base)",
	}

	sudoFlag = &cli.BoolFlag{
		Name:  "sudo",
		Usage: "run the disk tools through sudo",
	}

	reuseFlag = &cli.BoolFlag{
		Name:  "reuse",
		Usage: "only compute the records, the device is already set up",
	}

	deviceFlag = &cli.StringFlag{
		Name:  "device",
		Usage: "the block device of the disk (e.g. /dev/loop0)",
	}

	sizeFlag = &cli.StringFlag{
		Name:  "size",
		Usage: "the size of the disk (e.g. 4G), read from the device when empty",
	}

	fstabIDFlag = &cli.StringFlag{
		Name:  "fstab-id",
		Usage: "how the booted system refers to the disk (e.g. PTUUID=0badcafe)",
	}

	realFlag = &cli.BoolFlag{
		Name:  "real",
		Usage: "the disk is the real boot disk, not an image",
	}

	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "dotenv file to write the devices to",
	}

	unsetFlag = &cli.StringSliceFlag{
		Name:  "unset",
		Usage: "variable to drop from the output file, can be repeated",
	}

	definitionFlag = &cli.BoolFlag{
		Name:  "definition",
		Usage: "query the merged build definition instead of the state",
	}
)

func GlobalFlags() []cli.Flag {
	return []cli.Flag{debugFlag, stateFlag, configFlag, systemFlag, sudoFlag}
}

// NewApp wires the commands to the given host pieces.
func NewApp(d Deps) *cli.App {
	return &cli.App{
		Name:     "diskbuild",
		Usage:    "partitions disk images and creates their filesystems, one build step at a time",
		Flags:    GlobalFlags(),
		Commands: CliCommands(d),
	}
}

func CliCommands(d Deps) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "disk",
			Usage:     "registers disks in the system",
			ArgsUsage: "[disk...]",
			Flags:     []cli.Flag{deviceFlag, sizeFlag, fstabIDFlag, realFlag},
			Action: func(cCtx *cli.Context) error {
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				return s.registerDisks(cCtx)
			},
		},
		{
			Name:      "partition",
			Usage:     "partitions the disks of the system",
			ArgsUsage: "[disk...]",
			Flags:     []cli.Flag{reuseFlag},
			Action: func(cCtx *cli.Context) error {
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				return s.partition(cCtx.Args().Slice(), mode(cCtx))
			},
		},
		{
			Name:  "filesystem",
			Usage: "creates the filesystems of the system",
			Flags: []cli.Flag{reuseFlag},
			Action: func(cCtx *cli.Context) error {
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				return s.filesystem(mode(cCtx))
			},
		},
		{
			Name:      "devices",
			Usage:     "prints or exports the devices behind mount points",
			ArgsUsage: "[NAME=mountpoint...]",
			Flags:     []cli.Flag{outputFlag, unsetFlag},
			Action: func(cCtx *cli.Context) error {
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				return s.devices(cCtx)
			},
		},
		{
			Name:  "show",
			Usage: "shows the disks, partitions and filesystems of the system",
			Action: func(cCtx *cli.Context) error {
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				return s.show(cCtx.App.Writer)
			},
		},
		{
			Name:      "query",
			Usage:     "queries the build state (e.g. 'systems.base.disks.hda.device')",
			ArgsUsage: "<query>",
			Flags:     []cli.Flag{definitionFlag},
			Action: func(cCtx *cli.Context) error {
				if cCtx.NArg() != 1 {
					return fmt.Errorf("query needs exactly one argument")
				}
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				query := s.ctx.Query
				if cCtx.Bool(definitionFlag.Name) {
					query = s.cfg.Collector.Query
				}
				res, err := query(cCtx.Args().First())
				if err != nil {
					return err
				}
				fmt.Fprintln(cCtx.App.Writer, strings.TrimSuffix(res, "\n"))
				return nil
			},
		},
		{
			Name:      "verify",
			Usage:     "checks the partition tables on the devices against the build state",
			ArgsUsage: "[disk...]",
			Action: func(cCtx *cli.Context) error {
				s, err := d.open(cCtx)
				if err != nil {
					return err
				}
				return s.verify(cCtx)
			},
		},
	}
}

func (s *session) registerDisks(cCtx *cli.Context) error {
	defs := map[string]config.Disk{}
	names := cCtx.Args().Slice()
	if cCtx.IsSet(deviceFlag.Name) {
		if len(names) != 1 {
			return fmt.Errorf("--device needs exactly one disk name")
		}
		defs[names[0]] = config.Disk{
			Device:  cCtx.String(deviceFlag.Name),
			Size:    cCtx.String(sizeFlag.Name),
			FstabID: cCtx.String(fstabIDFlag.Name),
			Real:    cCtx.Bool(realFlag.Name),
		}
	} else {
		if len(names) == 0 {
			names = s.cfg.DiskNames()
		}
		for _, n := range names {
			def, ok := s.cfg.Disks[n]
			if !ok {
				return fmt.Errorf("disk %s is not defined", n)
			}
			defs[n] = def
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no disks to register")
	}

	sys, err := s.ctx.AddSystem(s.cfg.System)
	if err != nil {
		return err
	}
	for _, n := range names {
		disk, err := defs[n].ToDisk(n)
		if err != nil {
			return err
		}
		if disk.Size == 0 {
			disk.Size = ghw.DiskSize(s.paths, disk.Device, s.log)
		}
		if disk.Size == 0 {
			return fmt.Errorf("disk %s: cannot find the size of %s", n, disk.Device)
		}
		if err := s.checkInUse(n, disk.Device); err != nil {
			return err
		}
		if err := sys.AddDisk(disk); err != nil {
			return err
		}
		s.log.Logger.Info().Str("system", sys.Name).Str("disk", n).Str("device", disk.Device).
			Uint64("size", disk.Size).Msg("Disk registered")
	}
	return s.save()
}

// checkInUse refuses a block device with mounted partitions. Image files are
// not listed under /sys/block and pass.
func (s *session) checkInUse(name, device string) error {
	blk, err := ghw.GetDisk(s.paths, device, s.log)
	if err != nil {
		return nil
	}
	for _, p := range blk.Partitions {
		if p.MountPoint != "" {
			return fmt.Errorf("disk %s: %s is mounted on %s", name, p.Path, p.MountPoint)
		}
	}
	if len(blk.Partitions) > 0 {
		s.log.Logger.Warn().Str("disk", name).Str("device", device).Int("partitions", len(blk.Partitions)).
			Msg("Device already has partitions, partitioning without --reuse wipes them")
	}
	return nil
}

func (s *session) partition(names []string, m partitioner.Mode) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		for n := range s.cfg.Partitions {
			names = append(names, n)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return fmt.Errorf("system %s has no partitions defined", sys.Name)
	}
	for _, n := range names {
		disk, err := sys.Disk(n)
		if err != nil {
			return err
		}
		def, ok := s.cfg.Partitions[n]
		if !ok {
			return fmt.Errorf("no partitions defined for disk %s", n)
		}
		policy, err := partitioner.PolicyFor(def.Table)
		if err != nil {
			return err
		}
		specs, err := partitioner.ParseDeclarations(def.Options)
		if err != nil {
			return err
		}
		res, err := partitioner.NewBuilder(s.exec, policy, s.log).Partition(disk, specs, m)
		if res != nil {
			s.warn("partition "+n, res.Warnings)
		}
		// the disk may be claimed even when partitioning failed
		if saveErr := s.save(); saveErr != nil {
			return multierror.Append(err, saveErr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) filesystem(m partitioner.Mode) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	decls, err := filesystem.ParseDeclarations(s.cfg.Filesystem)
	if err != nil {
		return err
	}
	res, err := filesystem.NewCreator(s.exec, s.log).Create(sys, decls, m)
	if res != nil {
		s.warn("filesystem", res.Warnings)
	}
	if saveErr := s.save(); saveErr != nil {
		return multierror.Append(err, saveErr)
	}
	return err
}

func (s *session) devices(cCtx *cli.Context) error {
	out := cCtx.String(outputFlag.Name)
	if unset := cCtx.StringSlice(unsetFlag.Name); len(unset) > 0 {
		if out == "" {
			return fmt.Errorf("--unset needs --output")
		}
		return devices.Unexport(out, unset)
	}

	sys, err := s.system()
	if err != nil {
		return err
	}
	vars := map[string]string{}
	for k, v := range s.cfg.Devices {
		vars[k] = v
	}
	for _, a := range cCtx.Args().Slice() {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" || v == "" {
			return fmt.Errorf("argument %q is not NAME=mountpoint", a)
		}
		vars[k] = v
	}
	env, err := devices.Lookup(sys, vars, s.log)
	if err != nil {
		return err
	}
	if out != "" {
		return devices.Export(out, env, s.log)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cCtx.App.Writer, "%s=%s\n", k, env[k])
	}
	return nil
}

func (s *session) verify(cCtx *cli.Context) error {
	sys, err := s.system()
	if err != nil {
		return err
	}
	names := cCtx.Args().Slice()
	if len(names) == 0 {
		for _, n := range sys.DiskNames() {
			if sys.Disks[n].Partitions != nil {
				names = append(names, n)
			}
		}
	}
	var result error
	for _, n := range names {
		disk, err := sys.Disk(n)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		r, err := verify.Verify(disk, s.log)
		if r != nil {
			fmt.Fprintf(cCtx.App.Writer, "%s\t%s\t%s\tpresent %v\tmissing %v\n", n, r.Device, r.Table, r.Present, r.Missing)
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("disk %s: %w", n, err))
		}

		blk, err := ghw.GetDisk(s.paths, disk.Device, s.log)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("disk %s: %w", n, err))
			continue
		}
		dr, err := verify.CheckDevices(disk, blk)
		fmt.Fprintf(cCtx.App.Writer, "%s\t%s\tdevices\tpresent %v\tmissing %v\n", n, dr.Device, dr.Present, dr.Missing)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("disk %s: %w", n, err))
		}
	}
	return result
}

// IsConfigurationError tells apart the errors a user fixes in the build definition.
func IsConfigurationError(err error) bool {
	var ce *partitioner.ConfigurationError
	var capErr *partitioner.CapacityError
	return errors.As(err, &ce) || errors.As(err, &capErr) ||
		errors.Is(err, state.ErrSystemNotFound) || errors.Is(err, state.ErrDiskNotFound)
}
