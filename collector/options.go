package collector

import (
	"io"

	"github.com/kairos-io/diskbuild/types/logger"
)

type Options struct {
	ScanDir    []string
	Readers    []io.Reader
	Overwrites string
	NoLogs     bool
	Logger     *logger.KairosLogger
}

type Option func(o *Options) error

func (o *Options) Apply(opts ...Option) error {
	for _, oo := range opts {
		if err := oo(o); err != nil {
			return err
		}
	}
	return nil
}

// Directories sets the files and directories to scan for definitions.
func Directories(d ...string) Option {
	return func(o *Options) error {
		o.ScanDir = append(o.ScanDir, d...)
		return nil
	}
}

func Readers(r ...io.Reader) Option {
	return func(o *Options) error {
		o.Readers = append(o.Readers, r...)
		return nil
	}
}

// Overwrites is YAML applied over the merged result.
func Overwrites(y string) Option {
	return func(o *Options) error {
		o.Overwrites = y
		return nil
	}
}

var NoLogs Option = func(o *Options) error {
	o.NoLogs = true
	return nil
}

func WithLogger(l *logger.KairosLogger) Option {
	return func(o *Options) error {
		o.Logger = l
		return nil
	}
}

func (o *Options) warn(source, msg string) {
	if o.NoLogs || o.Logger == nil {
		return
	}
	o.Logger.Logger.Warn().Str("source", source).Msg(msg)
}
