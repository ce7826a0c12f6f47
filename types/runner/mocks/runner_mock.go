package mocks

import (
	"errors"
	"strings"
)

// FakeRunner records every command line it is asked to run and replays
// scripted results keyed by the full command line, e.g. "parted -s /dev/sda -- mklabel msdos".
// Commands can also fail by prefix via FailPrefix, e.g. "sudo mkswap".
type FakeRunner struct {
	Commands   [][]string
	results    map[string]FakeResult
	failPrefix map[string]error
}

type FakeResult struct {
	Output string
	Error  error
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		results:    map[string]FakeResult{},
		failPrefix: map[string]error{},
	}
}

func (f *FakeRunner) AddResult(cmdLine string, r FakeResult) {
	f.results[cmdLine] = r
}

func (f *FakeRunner) FailPrefix(prefix string) {
	f.failPrefix[prefix] = errors.New("fake failure: " + prefix)
}

func (f *FakeRunner) Run(command string, args ...string) ([]byte, error) {
	full := append([]string{command}, args...)
	f.Commands = append(f.Commands, full)
	line := strings.Join(full, " ")
	if r, ok := f.results[line]; ok {
		return []byte(r.Output), r.Error
	}
	for prefix, err := range f.failPrefix {
		if strings.HasPrefix(line, prefix) {
			return []byte("failed"), err
		}
	}
	return []byte{}, nil
}

// CmdLines returns the recorded commands joined by spaces.
func (f *FakeRunner) CmdLines() []string {
	lines := make([]string, 0, len(f.Commands))
	for _, c := range f.Commands {
		lines = append(lines, strings.Join(c, " "))
	}
	return lines
}

// IncludesCmd reports whether the given command line was run.
func (f *FakeRunner) IncludesCmd(line string) bool {
	for _, l := range f.CmdLines() {
		if l == line {
			return true
		}
	}
	return false
}

func (f *FakeRunner) ClearCmds() {
	f.Commands = [][]string{}
}
