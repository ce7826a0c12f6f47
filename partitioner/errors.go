package partitioner

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/kairos-io/diskbuild/executor"
)

var ErrInvalidSizeSpec = errors.New("invalid size specification")

// ConfigurationError is a problem with the declarations or the build state.
// It always aborts the current disk.
type ConfigurationError struct {
	Disk      string
	Partition string
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Partition != "" {
		msg = fmt.Sprintf("part_%s: %s", e.Partition, msg)
	}
	if e.Disk != "" {
		msg = fmt.Sprintf("disk %s: %s", e.Disk, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CapacityError is raised when a declaration does not fit in the primary slots
// of the table. Ordinal is the 1-based slot the declaration would have taken.
type CapacityError struct {
	Disk      string
	Partition string
	Table     string
	Ordinal   int
	Slots     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("disk %s: part_%s would be partition %d, %s tables only have %d primary/extended slots",
		e.Disk, e.Partition, e.Ordinal, e.Table, e.Slots)
}

// ToolFatalError wraps a failed must-succeed command.
type ToolFatalError struct {
	Disk      string
	Partition string
	Result    executor.Result
}

func (e *ToolFatalError) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("disk %s: %s", e.Disk, e.Result.Error())
	}
	return fmt.Sprintf("disk %s: part_%s: %s", e.Disk, e.Partition, e.Result.Error())
}

func (e *ToolFatalError) Unwrap() error { return e.Result.Err }

type WarningKind int

const (
	GeometryWarning WarningKind = iota
	ToolWarning
)

func (k WarningKind) String() string {
	if k == GeometryWarning {
		return "geometry"
	}
	return "tool"
}

// Warning is a non fatal finding. Processing goes on with adjusted values.
type Warning struct {
	Kind      WarningKind
	Partition string
	Message   string
}

func (w Warning) Error() string {
	if w.Partition == "" {
		return fmt.Sprintf("%s warning: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s warning: part_%s: %s", w.Kind, w.Partition, w.Message)
}

func warningsError(ws []Warning) error {
	var merr *multierror.Error
	for _, w := range ws {
		merr = multierror.Append(merr, w)
	}
	return merr.ErrorOrNil()
}
