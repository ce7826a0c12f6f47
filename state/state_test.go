package state_test

import (
	"errors"
	"testing"

	"github.com/kairos-io/diskbuild/state"
	"github.com/kairos-io/diskbuild/types/partitions"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestState(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "State test suite")
}

var _ = Describe("Build state", func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{})
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	It("starts empty when nothing was saved", func() {
		c, err := state.Load(fs, "/var/lib/diskbuild/state.yaml")
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Systems).To(BeEmpty())
		_, err = c.System("mysystem")
		Expect(errors.Is(err, state.ErrSystemNotFound)).To(BeTrue())
	})

	It("creates systems once with a build id", func() {
		c := state.NewContext()
		s, err := c.AddSystem("mysystem")
		Expect(err).ToNot(HaveOccurred())
		Expect(s.BuildID).ToNot(BeEmpty())
		again, err := c.AddSystem("mysystem")
		Expect(err).ToNot(HaveOccurred())
		Expect(again).To(BeIdenticalTo(s))
	})

	It("refuses registering a disk twice", func() {
		c := state.NewContext()
		s, _ := c.AddSystem("mysystem")
		Expect(s.AddDisk(&partitions.Disk{Name: "main", Device: "/dev/sda"})).To(Succeed())
		err := s.AddDisk(&partitions.Disk{Name: "main", Device: "/dev/sdb"})
		Expect(errors.Is(err, state.ErrDiskExists)).To(BeTrue())
		_, err = s.Disk("other")
		Expect(errors.Is(err, state.ErrDiskNotFound)).To(BeTrue())
	})

	It("round trips and relinks swap entries", func() {
		c := state.NewContext()
		s, _ := c.AddSystem("mysystem")
		swap := &partitions.PartitionRecord{Name: "swap", Number: 2, Kind: partitions.Primary, Device: "/dev/sda2", FstabID: "LABEL=swap"}
		Expect(s.AddDisk(&partitions.Disk{
			Name:       "main",
			Device:     "/dev/sda",
			Size:       1024,
			FstabID:    "/dev/sda",
			Partitions: map[string]*partitions.PartitionRecord{"swap": swap},
			Swaps:      []partitions.SwapEntry{{Label: "swap", Partition: swap}},
		})).To(Succeed())
		Expect(c.Save(fs, "/var/lib/diskbuild/state.yaml")).To(Succeed())

		loaded, err := state.Load(fs, "/var/lib/diskbuild/state.yaml")
		Expect(err).ToNot(HaveOccurred())
		ls, err := loaded.System("mysystem")
		Expect(err).ToNot(HaveOccurred())
		Expect(ls.BuildID).To(Equal(s.BuildID))
		d, err := ls.Disk("main")
		Expect(err).ToNot(HaveOccurred())
		Expect(d.Name).To(Equal("main"))
		Expect(d.Partitions["swap"].Device).To(Equal("/dev/sda2"))
		Expect(d.Swaps).To(HaveLen(1))
		Expect(d.Swaps[0].Partition).To(BeIdenticalTo(d.Partitions["swap"]))
		Expect(ls.Filesystem).To(BeNil())
	})

	It("fails on a corrupted state file", func() {
		Expect(vfs.MkdirAll(fs, "/state", 0755)).To(Succeed())
		Expect(fs.WriteFile("/state/state.yaml", []byte("systems: [oops"), 0644)).To(Succeed())
		_, err := state.Load(fs, "/state/state.yaml")
		Expect(err).To(HaveOccurred())
	})
})
