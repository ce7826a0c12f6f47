package partitioner

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kairos-io/diskbuild/constants"
)

// needsInfix tells whether partitions of a device take a "p" before their
// number, as loop0p1, nvme0n1p1 or mmcblk0p1 do.
func needsInfix(device string) bool {
	if strings.Contains(device, "loop") {
		return true
	}
	base := filepath.Base(device)
	if base == "" || base == "." || base == "/" {
		return false
	}
	r := []rune(base)
	return unicode.IsDigit(r[len(r)-1])
}

// PartitionDevice returns the device path of partition number on device.
func PartitionDevice(device string, number int) string {
	if needsInfix(device) {
		return fmt.Sprintf("%sp%d", device, number)
	}
	return fmt.Sprintf("%s%d", device, number)
}

// PartitionFstabID derives the boot time reference of a partition from the
// reference of its disk. A raw path is suffixed like the device. On msdos a
// disk signature gets the PARTUUID=<signature>-<hex number> form the kernel
// reports. Gpt partitions carry their own GUIDs, so there, like for any other
// KEY=VALUE reference, nothing is derived and the filesystem labeling fills it.
func PartitionFstabID(table, diskID, device string, number int) string {
	diskID = strings.TrimSpace(diskID)
	if diskID == "" {
		return PartitionDevice(device, number)
	}
	key, value, found := strings.Cut(diskID, "=")
	if !found {
		return PartitionDevice(diskID, number)
	}
	if table != constants.MSDOS {
		return ""
	}
	switch strings.ToUpper(key) {
	case "PTUUID", "PARTUUID":
		value = strings.Trim(value, `"'`)
		if value == "" {
			return ""
		}
		return fmt.Sprintf("PARTUUID=%s-%02x", value, number)
	}
	return ""
}
