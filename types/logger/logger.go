package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/kairos-io/diskbuild/constants"
	"github.com/rs/zerolog"
)

// KairosLogger wraps zerolog with the printf style helpers the build steps use.
// Outside journald every line is prefixed with the pid and the log file is
// guarded by a file lock, as several build steps may write to it at once.
type KairosLogger struct {
	zerolog.Logger
	fileLock *flock.Flock
	logFile  *os.File
	journald bool
}

// NewKairosLogger creates a new logger with the given name and level.
// The level is used to set the log level, defaulting to info
// The log level can be overridden by setting the environment variable $NAME_DEBUG or $NAME_TRACE to any value.
// If quiet is true, the logger will not log to the console.
func NewKairosLogger(name, level string, quiet bool) KairosLogger {
	var loggers []io.Writer
	var fileLock *flock.Flock
	var logfile *os.File

	journal := isJournaldAvailable()
	if journal {
		loggers = append(loggers, getJournaldWriter())
	} else {
		logFileName := filepath.Join(constants.LogDir, fmt.Sprintf("%s.log", name))
		_ = os.MkdirAll(constants.LogDir, os.ModeDir|os.ModePerm)

		f, err := os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FilePerm)
		if err == nil {
			logfile = f
			loggers = append(loggers, zerolog.ConsoleWriter{Out: logfile, TimeFormat: time.RFC3339, NoColor: true})
		}
		fileLock = flock.New(logFileName + ".lock")
	}

	if !quiet {
		loggers = append(loggers, zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = time.RFC3339
		}))
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		l = zerolog.InfoLevel
	}
	if os.Getenv(fmt.Sprintf("%s_DEBUG", strings.ToUpper(name))) != "" {
		l = zerolog.DebugLevel
	}
	if os.Getenv(fmt.Sprintf("%s_TRACE", strings.ToUpper(name))) != "" {
		l = zerolog.TraceLevel
	}

	k := KairosLogger{
		Logger:   zerolog.New(zerolog.MultiLevelWriter(loggers...)).With().Timestamp().Logger().Level(l),
		fileLock: fileLock,
		logFile:  logfile,
		journald: journal,
	}

	runtime.SetFinalizer(&k, func(k *KairosLogger) {
		k.Cleanup()
	})

	return k
}

// NewBufferLogger logs everything into the given buffer, mostly useful for tests.
func NewBufferLogger(b *bytes.Buffer) KairosLogger {
	return KairosLogger{
		Logger:   zerolog.New(b).With().Timestamp().Logger().Level(zerolog.TraceLevel),
		journald: true,
	}
}

func NewNullLogger() KairosLogger {
	return KairosLogger{
		Logger:   zerolog.New(io.Discard).With().Timestamp().Logger(),
		journald: true,
	}
}

func (k *KairosLogger) Cleanup() {
	if k.fileLock != nil {
		_ = k.fileLock.Lock()
		defer func() {
			_ = k.fileLock.Unlock()
			k.fileLock = nil
		}()
	}
	if k.logFile != nil {
		_ = k.logFile.Close()
		k.logFile = nil
	}
}

func (k *KairosLogger) SetLevel(level string) {
	l, _ := zerolog.ParseLevel(level)
	k.Logger = k.Logger.Level(l)
}

func (k KairosLogger) GetLevel() zerolog.Level {
	return k.Logger.GetLevel()
}

func (k KairosLogger) IsDebug() bool {
	return k.Logger.GetLevel() <= zerolog.DebugLevel
}

// emit takes the file lock when logging to a file and writes a single line.
func (k KairosLogger) emit(ev *zerolog.Event, msg string) {
	if !k.journald && k.fileLock != nil {
		_ = k.fileLock.Lock()
		defer func() { _ = k.fileLock.Unlock() }()
		msg = fmt.Sprintf("[%v] %s", os.Getpid(), msg)
	}
	ev.Msg(msg)
}

func (k KairosLogger) Infof(tpl string, args ...interface{}) {
	k.emit(k.Logger.Info(), fmt.Sprintf(tpl, args...))
}

func (k KairosLogger) Info(args ...interface{}) {
	k.emit(k.Logger.Info(), fmt.Sprint(args...))
}

func (k KairosLogger) Warnf(tpl string, args ...interface{}) {
	k.emit(k.Logger.Warn(), fmt.Sprintf(tpl, args...))
}

func (k KairosLogger) Warn(args ...interface{}) {
	k.emit(k.Logger.Warn(), fmt.Sprint(args...))
}

func (k KairosLogger) Debugf(tpl string, args ...interface{}) {
	k.emit(k.Logger.Debug(), fmt.Sprintf(tpl, args...))
}

func (k KairosLogger) Debug(args ...interface{}) {
	k.emit(k.Logger.Debug(), fmt.Sprint(args...))
}

func (k KairosLogger) Errorf(tpl string, args ...interface{}) {
	k.emit(k.Logger.Error(), fmt.Sprintf(tpl, args...))
}

func (k KairosLogger) Error(args ...interface{}) {
	k.emit(k.Logger.Error(), fmt.Sprint(args...))
}

func (k KairosLogger) Fatalf(tpl string, args ...interface{}) {
	k.emit(k.Logger.Fatal(), fmt.Sprintf(tpl, args...))
}

func (k KairosLogger) Tracef(tpl string, args ...interface{}) {
	k.emit(k.Logger.Trace(), fmt.Sprintf(tpl, args...))
}
