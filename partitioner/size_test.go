package partitioner_test

import (
	"errors"

	"github.com/docker/go-units"
	"github.com/kairos-io/diskbuild/partitioner"
	"github.com/kairos-io/diskbuild/types/partitions"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Size resolution", func() {
	It("computes the rounded percentage of the disk", func() {
		pct, w, err := partitioner.ResolvePercent("10G", 100*units.GiB)
		Expect(err).ToNot(HaveOccurred())
		Expect(w).To(BeNil())
		Expect(pct).To(Equal(10))

		pct, _, err = partitioner.ResolvePercent("1500M", 100*units.GiB)
		Expect(err).ToNot(HaveOccurred())
		Expect(pct).To(Equal(1))

		pct, _, err = partitioner.ResolvePercent("33G", 50*units.GiB)
		Expect(err).ToNot(HaveOccurred())
		Expect(pct).To(Equal(66))
	})

	It("clamps tiny requests to 1% with a warning", func() {
		pct, w, err := partitioner.ResolvePercent("1M", units.TiB)
		Expect(err).ToNot(HaveOccurred())
		Expect(pct).To(Equal(1))
		Expect(w).ToNot(BeNil())
		Expect(w.Kind).To(Equal(partitioner.GeometryWarning))
	})

	It("caps requests larger than the disk", func() {
		pct, w, err := partitioner.ResolvePercent("2T", units.TiB)
		Expect(err).ToNot(HaveOccurred())
		Expect(pct).To(Equal(100))
		Expect(w).ToNot(BeNil())
	})

	It("rejects malformed sizes", func() {
		for _, s := range []string{"", "big", "-1G", "0", "12X"} {
			_, _, err := partitioner.ResolvePercent(s, units.TiB)
			Expect(errors.Is(err, partitioner.ErrInvalidSizeSpec)).To(BeTrue(), s)
		}
		_, _, err := partitioner.ResolvePercent("1G", 0)
		Expect(errors.Is(err, partitioner.ErrInvalidSizeSpec)).To(BeTrue())
	})
})

var _ = Describe("Order tokens", func() {
	It("classifies primary, extended and logical tokens", func() {
		c, err := partitioner.Classify("03")
		Expect(err).ToNot(HaveOccurred())
		Expect(c).To(Equal(partitions.Classification{Kind: partitions.Primary, Order: "03"}))

		c, err = partitioner.Classify("2E")
		Expect(err).ToNot(HaveOccurred())
		Expect(c).To(Equal(partitions.Classification{Kind: partitions.Extended, Order: "2"}))

		c, err = partitioner.Classify("2E:5L")
		Expect(err).ToNot(HaveOccurred())
		Expect(c).To(Equal(partitions.Classification{Kind: partitions.Logical, Order: "2", LogicalOrder: "5"}))
	})

	It("rejects malformed tokens", func() {
		for _, t := range []string{"", "E", "5L", "2:5L", "E:5L", "2E:L"} {
			_, err := partitioner.Classify(t)
			Expect(err).To(HaveOccurred(), t)
		}
	})

	It("parses part_ declarations in order token order", func() {
		specs, err := partitioner.ParseDeclarations(map[string]string{
			"system":    "mysystem",
			"disk-name": "main",
			"part_swap": "02, 2G, linux-swap",
			"part_root": " 01,10G ,ext4, boot,, lba",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(specs).To(HaveLen(2))
		Expect(specs[0]).To(Equal(partitions.PartitionSpec{
			Name: "root", OrderToken: "01", SizeRequest: "10G", TypeToken: "ext4", Flags: []string{"boot", "lba"},
		}))
		Expect(specs[1].Name).To(Equal("swap"))
		Expect(specs[1].Flags).To(BeEmpty())
	})

	It("rejects short declarations", func() {
		_, err := partitioner.ParseDeclarations(map[string]string{"part_root": "01, 10G"})
		var cfgErr *partitioner.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Partition).To(Equal("root"))
	})
})

var _ = Describe("Device naming", func() {
	It("adds a p infix for loop and digit ending devices", func() {
		Expect(partitioner.PartitionDevice("/dev/loop0", 1)).To(Equal("/dev/loop0p1"))
		Expect(partitioner.PartitionDevice("/dev/nvme0n1", 2)).To(Equal("/dev/nvme0n1p2"))
		Expect(partitioner.PartitionDevice("/dev/mmcblk0", 5)).To(Equal("/dev/mmcblk0p5"))
		Expect(partitioner.PartitionDevice("/dev/sda", 1)).To(Equal("/dev/sda1"))
		Expect(partitioner.PartitionDevice("/dev/vdb", 12)).To(Equal("/dev/vdb12"))
	})

	It("derives partition fstab ids from the disk one", func() {
		Expect(partitioner.PartitionFstabID("msdos", "/dev/sda", "/dev/sda", 1)).To(Equal("/dev/sda1"))
		Expect(partitioner.PartitionFstabID("msdos", "/dev/loop3", "/dev/loop3", 2)).To(Equal("/dev/loop3p2"))
		Expect(partitioner.PartitionFstabID("gpt", "", "/dev/sdb", 3)).To(Equal("/dev/sdb3"))
		Expect(partitioner.PartitionFstabID("msdos", "UUID=0000-1111", "/dev/sda", 1)).To(BeEmpty())
		Expect(partitioner.PartitionFstabID("msdos", "LABEL=disk", "/dev/sda", 1)).To(BeEmpty())
	})

	It("numbers msdos PARTUUIDs in hex", func() {
		Expect(partitioner.PartitionFstabID("msdos", "PTUUID=1a2b3c4d", "/dev/sda", 5)).To(Equal("PARTUUID=1a2b3c4d-05"))
		Expect(partitioner.PartitionFstabID("msdos", `PARTUUID="1a2b3c4d"`, "/dev/sda", 10)).To(Equal("PARTUUID=1a2b3c4d-0a"))
		Expect(partitioner.PartitionFstabID("msdos", "PTUUID=1a2b3c4d", "/dev/sda", 12)).To(Equal("PARTUUID=1a2b3c4d-0c"))
	})

	It("derives nothing from a gpt disk GUID", func() {
		Expect(partitioner.PartitionFstabID("gpt", "PTUUID=1b2c3d4e-aaaa-bbbb-cccc-0123456789ab", "/dev/sda", 1)).To(BeEmpty())
		Expect(partitioner.PartitionFstabID("gpt", "PARTUUID=1b2c3d4e-aaaa-bbbb-cccc-0123456789ab", "/dev/sda", 2)).To(BeEmpty())
	})
})

var _ = Describe("Scheme policies", func() {
	It("maps symbolic types and falls back to ext2", func() {
		p := partitioner.MsdosPolicy()
		t, code := p.ResolveType("vfat")
		Expect(t).To(Equal("fat32"))
		Expect(code).To(BeFalse())
		t, code = p.ResolveType("0x84")
		Expect(t).To(Equal("ext2"))
		Expect(code).To(BeTrue())
	})

	It("specializes gpt from msdos", func() {
		m := partitioner.MsdosPolicy()
		g := partitioner.GptPolicy()
		Expect(g.Table).To(Equal("gpt"))
		Expect(g.MaxPrimary).To(Equal(128))
		Expect(g.AllowExtended).To(BeFalse())
		Expect(g.FirstStart).To(Equal(m.FirstStart))
		Expect(g.FSTypes).To(Equal(m.FSTypes))
		Expect(m.TypeCode("/dev/sda", 3, "0x84")).To(Equal([]string{"sfdisk", "--part-type", "/dev/sda", "3", "0x84"}))
		Expect(g.TypeCode("/dev/sda", 3, "8300")).To(Equal([]string{"sgdisk", "--typecode=3:8300", "/dev/sda"}))
	})

	It("looks policies up by table name", func() {
		p, err := partitioner.PolicyFor("")
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Table).To(Equal("msdos"))
		p, err = partitioner.PolicyFor("GPT")
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Table).To(Equal("gpt"))
		_, err = partitioner.PolicyFor("sun")
		Expect(err).To(HaveOccurred())
	})
})
