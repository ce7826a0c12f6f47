// Package constants This file contains all the constants that can be reused across the project
package constants

const (
	MB       = int64(1024 * 1024)
	GB       = 1024 * MB
	FilePerm = 0644
	DirPerm  = 0755

	// Partition table labels as understood by parted mklabel
	MSDOS = "msdos"
	GPT   = "gpt"

	MsdosPrimarySlots = 4
	GptPrimarySlots   = 128
	FirstLogical      = 5
	// parted on some releases creates a 1M partition when asked to start at 0,
	// so the first partition always starts at sector 2048
	FirstStart = "2048s"

	DefaultFSType = "ext2"
	SwapFSType    = "linux-swap"

	PartPrefix     = "part_"
	ConfigHeader   = "#diskbuild-config"
	DefaultState   = "/var/lib/diskbuild/state.yaml"
	LogDir         = "/var/log/diskbuild/"
	DeviceNotFound = "## Device not found"
)
