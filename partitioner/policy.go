package partitioner

import (
	"fmt"
	"strings"

	"github.com/kairos-io/diskbuild/constants"
)

// TypeCodeFunc builds the command setting a raw partition type code.
type TypeCodeFunc func(device string, number int, code string) []string

// Policy holds what differs between partition table schemes. GPT is the msdos
// policy with the extended/logical escalation disabled and another type code tool.
type Policy struct {
	Table         string
	MaxPrimary    int
	AllowExtended bool
	FirstLogical  int
	// FirstStart replaces the start of a partition placed at offset 0
	FirstStart string
	// FSTypes maps symbolic type tokens to the parted filesystem type
	FSTypes  map[string]string
	TypeCode TypeCodeFunc
}

func symbolicTypes() map[string]string {
	return map[string]string{
		"ext2":       "ext2",
		"linux":      "ext2",
		"fat16":      "fat16",
		"fat32":      "fat32",
		"vfat":       "fat32",
		"HFS":        "HFS",
		"NTFS":       "NTFS",
		"linux-swap": constants.SwapFSType,
		"reiserfs":   "reiserfs",
		"ufs":        "ufs",
	}
}

func sfdiskTypeCode(device string, number int, code string) []string {
	return []string{"sfdisk", "--part-type", device, fmt.Sprintf("%d", number), code}
}

func sgdiskTypeCode(device string, number int, code string) []string {
	return []string{"sgdisk", fmt.Sprintf("--typecode=%d:%s", number, code), device}
}

func MsdosPolicy() Policy {
	return Policy{
		Table:         constants.MSDOS,
		MaxPrimary:    constants.MsdosPrimarySlots,
		AllowExtended: true,
		FirstLogical:  constants.FirstLogical,
		FirstStart:    constants.FirstStart,
		FSTypes:       symbolicTypes(),
		TypeCode:      sfdiskTypeCode,
	}
}

func GptPolicy() Policy {
	p := MsdosPolicy()
	p.Table = constants.GPT
	p.MaxPrimary = constants.GptPrimarySlots
	p.AllowExtended = false
	p.TypeCode = sgdiskTypeCode
	return p
}

// PolicyFor returns the policy of a table name, msdos when empty.
func PolicyFor(table string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(table)) {
	case "", constants.MSDOS, "mbr", "dos":
		return MsdosPolicy(), nil
	case constants.GPT:
		return GptPolicy(), nil
	}
	return Policy{}, fmt.Errorf("unsupported partition table %q", table)
}

// ResolveType maps a type token to the filesystem type given to parted. Unknown
// tokens fall back to the default type and need a type code call afterwards.
func (p Policy) ResolveType(token string) (fstype string, needsTypeCode bool) {
	if t, ok := p.FSTypes[token]; ok {
		return t, false
	}
	return constants.DefaultFSType, true
}
