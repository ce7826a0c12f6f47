package runner

import (
	"os/exec"
	"strings"

	"github.com/kairos-io/diskbuild/types/logger"
)

// Runner runs external commands and returns their combined output.
type Runner interface {
	Run(command string, args ...string) ([]byte, error)
}

type RealRunner struct {
	Logger *logger.KairosLogger
}

func NewRealRunner(l *logger.KairosLogger) *RealRunner {
	return &RealRunner{Logger: l}
}

func (r RealRunner) Run(command string, args ...string) ([]byte, error) {
	cmd := exec.Command(command, args...)
	if r.Logger != nil {
		r.Logger.Logger.Debug().Str("cmd", command+" "+strings.Join(args, " ")).Msg("running command")
	}
	out, err := cmd.CombinedOutput()
	if r.Logger != nil && len(out) > 0 {
		r.Logger.Logger.Trace().Str("cmd", command).Str("output", string(out)).Msg("command output")
	}
	return out, err
}
