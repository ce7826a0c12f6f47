package filesystem

import (
	"strings"
)

// LabelFunc returns the label a filesystem type accepts for the wanted one and
// the command writing it on device.
type LabelFunc func(device, label string) (string, []string)

// Registry maps filesystem types to their labeler. Types without one are
// created but never labelled.
type Registry struct {
	labelers map[string]LabelFunc
}

func NewRegistry() *Registry {
	return &Registry{labelers: map[string]LabelFunc{}}
}

// DefaultRegistry knows the ext, btrfs, fat, NTFS, jfs and xfs labelers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []string{"ext2", "ext3", "ext4"} {
		r.Register(t, e2label)
	}
	r.Register("btrfs", func(device, label string) (string, []string) {
		return label, []string{"btrfs", "filesystem", "label", device, label}
	})
	r.Register("vfat", fatlabel)
	r.Register("fat", fatlabel)
	r.Register("NTFS", func(device, label string) (string, []string) {
		return label, []string{"ntfslabel", device, label}
	})
	r.Register("jfs", func(device, label string) (string, []string) {
		return label, []string{"jfs_tune", "-L", label, device}
	})
	r.Register("xfs", func(device, label string) (string, []string) {
		return label, []string{"xfs_admin", "-L", label, device}
	})
	return r
}

func (r *Registry) Register(fstype string, f LabelFunc) {
	r.labelers[fstype] = f
}

func (r *Registry) Lookup(fstype string) (LabelFunc, bool) {
	f, ok := r.labelers[fstype]
	return f, ok
}

func e2label(device, label string) (string, []string) {
	return label, []string{"e2label", device, label}
}

// fat labels are at most 11 upper case characters
func fatlabel(device, label string) (string, []string) {
	if len(label) > 11 {
		label = label[:11]
	}
	label = strings.ToUpper(label)
	return label, []string{"fatlabel", device, label}
}
