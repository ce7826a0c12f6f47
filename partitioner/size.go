package partitioner

import (
	"fmt"
	"math"
	"strings"

	"github.com/docker/go-units"
)

// ResolvePercent turns a size request like "2G" or "500M" into a percentage of
// the disk. Sizes are binary multiples and a plain number is bytes.
// A request rounding to 0 is bumped to 1 and one going past the disk is capped
// at 100; both cases come back with a geometry warning.
func ResolvePercent(sizeRequest string, diskSize uint64) (int, *Warning, error) {
	if diskSize == 0 {
		return 0, nil, fmt.Errorf("%w: disk size is unknown", ErrInvalidSizeSpec)
	}
	req := strings.TrimSpace(sizeRequest)
	if req == "" {
		return 0, nil, fmt.Errorf("%w: empty size", ErrInvalidSizeSpec)
	}
	bytes, err := units.RAMInBytes(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q: %s", ErrInvalidSizeSpec, sizeRequest, err)
	}
	if bytes <= 0 {
		return 0, nil, fmt.Errorf("%w: %q is not a positive size", ErrInvalidSizeSpec, sizeRequest)
	}

	pct := int(math.Round(float64(bytes) * 100.0 / float64(diskSize)))
	switch {
	case pct < 1:
		return 1, &Warning{
			Kind:    GeometryWarning,
			Message: fmt.Sprintf("requested size %s is below 1%% of the disk, rounded up to 1%%", req),
		}, nil
	case pct > 100:
		return 100, &Warning{
			Kind:    GeometryWarning,
			Message: fmt.Sprintf("requested size %s is %d%% of the disk, capped to 100%%", req, pct),
		}, nil
	}
	return pct, nil, nil
}
