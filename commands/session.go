// Package commands is the command line front end: every build step runs as
// its own invocation and they share one state file.
package commands

import (
	"github.com/kairos-io/diskbuild/collector"
	"github.com/kairos-io/diskbuild/executor"
	"github.com/kairos-io/diskbuild/ghw"
	"github.com/kairos-io/diskbuild/partitioner"
	"github.com/kairos-io/diskbuild/state"
	"github.com/kairos-io/diskbuild/types/config"
	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/runner"
	"github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"
)

// Deps are the pieces of the host a command touches. Zero values are
// replaced by the real host ones.
type Deps struct {
	Runner runner.Runner
	FS     vfs.FS
	Paths  *ghw.Paths
	Logger *logger.KairosLogger
}

// session is what a single command invocation works with.
type session struct {
	cfg       *config.Config
	ctx       *state.Context
	fs        vfs.FS
	statePath string
	log       *logger.KairosLogger
	exec      *executor.Executor
	paths     *ghw.Paths
}

func (d Deps) open(c *cli.Context) (*session, error) {
	l := d.Logger
	if l == nil {
		level := "info"
		if c.Bool(debugFlag.Name) {
			level = "debug"
		}
		nl := logger.NewKairosLogger("diskbuild", level, false)
		l = &nl
	}

	var opts []collector.Option
	if dirs := c.StringSlice(configFlag.Name); len(dirs) > 0 {
		opts = append(opts, collector.Directories(dirs...))
	}
	cfg, err := config.Load(l, opts...)
	if err != nil {
		return nil, err
	}
	if c.IsSet(systemFlag.Name) {
		cfg.System = c.String(systemFlag.Name)
	}
	if c.IsSet(sudoFlag.Name) {
		cfg.Sudo = c.Bool(sudoFlag.Name)
	}
	if c.IsSet(stateFlag.Name) {
		cfg.State = c.String(stateFlag.Name)
	}
	if cfg.Debug && d.Logger == nil {
		l.SetLevel("debug")
	}

	fsys := d.FS
	if fsys == nil {
		fsys = vfs.OSFS
	}
	ctx, err := state.Load(fsys, cfg.State)
	if err != nil {
		return nil, err
	}

	r := d.Runner
	if r == nil {
		r = runner.NewRealRunner(l)
	}
	paths := d.Paths
	if paths == nil {
		paths = ghw.NewPaths("")
	}

	l.Logger.Debug().Str("system", cfg.System).Str("state", cfg.State).
		Strs("sources", cfg.Collector.Sources).Msg("Session ready")

	return &session{
		cfg:       cfg,
		ctx:       ctx,
		fs:        fsys,
		statePath: cfg.State,
		log:       l,
		exec:      executor.NewExecutor(r, l, cfg.Sudo),
		paths:     paths,
	}, nil
}

func (s *session) system() (*state.System, error) {
	return s.ctx.System(s.cfg.System)
}

func (s *session) save() error {
	return s.ctx.Save(s.fs, s.statePath)
}

// warn sums up the warnings of a step, each one was logged when it was found.
func (s *session) warn(step string, ws []partitioner.Warning) {
	if len(ws) == 0 {
		return
	}
	s.log.Logger.Warn().Str("step", step).Int("warnings", len(ws)).Msg("Step finished with warnings")
}

func mode(c *cli.Context) partitioner.Mode {
	if c.Bool(reuseFlag.Name) {
		return partitioner.Reuse
	}
	return partitioner.Build
}
