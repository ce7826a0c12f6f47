// Package executor runs the privileged partitioning tools. Every call is either
// must-succeed (a failure aborts the disk build) or best-effort (a failure is
// only a warning), and the outcome is returned as a Result rather than raised.
package executor

import (
	"fmt"
	"strings"

	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/runner"
)

type Outcome int

const (
	Success Outcome = iota
	Warning
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

type Result struct {
	Outcome Outcome
	Command []string
	Output  string
	Err     error
}

func (r Result) OK() bool {
	return r.Outcome == Success
}

func (r Result) String() string {
	return strings.Join(r.Command, " ")
}

// Error describes the failed call, empty on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	out := strings.TrimSpace(r.Output)
	if out == "" {
		return fmt.Sprintf("%s: %s", r.String(), r.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", r.String(), r.Err, out)
}

type Executor struct {
	Runner runner.Runner
	Logger *logger.KairosLogger
	// Sudo prefixes every command with sudo
	Sudo bool
}

func NewExecutor(r runner.Runner, l *logger.KairosLogger, sudo bool) *Executor {
	if l == nil {
		nl := logger.NewNullLogger()
		l = &nl
	}
	return &Executor{Runner: r, Logger: l, Sudo: sudo}
}

// MustSucceed runs the command and reports Fatal on a non zero exit.
func (e *Executor) MustSucceed(args ...string) Result {
	res := e.run(args)
	if res.Err != nil {
		res.Outcome = Fatal
		e.Logger.Logger.Error().Err(res.Err).Str("cmd", res.String()).Str("output", res.Output).Msg("command failed")
	}
	return res
}

// BestEffort runs the command and downgrades a non zero exit to a Warning.
func (e *Executor) BestEffort(args ...string) Result {
	res := e.run(args)
	if res.Err != nil {
		res.Outcome = Warning
		e.Logger.Logger.Warn().Err(res.Err).Str("cmd", res.String()).Str("output", res.Output).Msg("command failed, continuing")
	}
	return res
}

func (e *Executor) run(args []string) Result {
	if len(args) == 0 {
		return Result{Outcome: Fatal, Err: fmt.Errorf("empty command")}
	}
	cmd := args
	if e.Sudo {
		cmd = append([]string{"sudo"}, args...)
	}
	out, err := e.Runner.Run(cmd[0], cmd[1:]...)
	e.Logger.Logger.Debug().Str("cmd", strings.Join(cmd, " ")).Str("output", strings.TrimSpace(string(out))).Msg("ran command")
	return Result{Outcome: Success, Command: cmd, Output: string(out), Err: err}
}
