package partitioner_test

import (
	"bytes"
	"errors"

	"github.com/docker/go-units"
	"github.com/kairos-io/diskbuild/executor"
	"github.com/kairos-io/diskbuild/partitioner"
	"github.com/kairos-io/diskbuild/types/logger"
	"github.com/kairos-io/diskbuild/types/partitions"
	"github.com/kairos-io/diskbuild/types/runner/mocks"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func specs(decl map[string]string) partitions.PartitionSpecs {
	s, err := partitioner.ParseDeclarations(decl)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	return s
}

// snapshot copies the records so two runs can be compared by value.
func snapshot(recs map[string]*partitions.PartitionRecord) map[string]partitions.PartitionRecord {
	out := map[string]partitions.PartitionRecord{}
	for k, v := range recs {
		out[k] = *v
	}
	return out
}

var _ = Describe("Builder", func() {
	var fakeRunner *mocks.FakeRunner
	var buf bytes.Buffer
	var log logger.KairosLogger
	var builder *partitioner.Builder
	var disk *partitions.Disk

	BeforeEach(func() {
		buf = bytes.Buffer{}
		log = logger.NewBufferLogger(&buf)
		fakeRunner = mocks.NewFakeRunner()
		builder = partitioner.NewBuilder(executor.NewExecutor(fakeRunner, &log, false), partitioner.MsdosPolicy(), &log)
		disk = &partitions.Disk{Name: "main", Device: "/dev/sda", Size: 100 * units.GiB, FstabID: "/dev/sda", Real: true}
	})

	Describe("a root and a swap partition", func() {
		var decl partitions.PartitionSpecs
		BeforeEach(func() {
			decl = specs(map[string]string{
				"part_root": "01,10G,ext4,boot",
				"part_swap": "02,2G,linux-swap",
			})
		})

		It("creates and records both partitions", func() {
			res, err := builder.Partition(disk, decl, partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Warnings).To(BeEmpty())
			Expect(fakeRunner.CmdLines()).To(Equal([]string{
				"parted -s /dev/sda -- mklabel msdos",
				"parted -s -a optimal /dev/sda -- mkpart primary ext2 2048s 10%",
				"parted -s /dev/sda -- name 1 root",
				"parted -s /dev/sda -- set 1 boot on",
				"sfdisk --part-type /dev/sda 1 ext4",
				"parted -s -a optimal /dev/sda -- mkpart primary linux-swap 10% 12%",
				"parted -s /dev/sda -- name 2 swap",
				"partprobe /dev/sda",
				"udevadm settle",
				"mkswap -L swap /dev/sda2",
			}))

			Expect(disk.Table).To(Equal("msdos"))
			Expect(disk.Partitions).To(HaveLen(2))
			root := disk.Partitions["root"]
			Expect(root.Number).To(Equal(1))
			Expect(root.Device).To(Equal("/dev/sda1"))
			Expect(root.FstabID).To(Equal("/dev/sda1"))
			Expect(root.Size).To(Equal("10G"))
			Expect(root.Kind).To(Equal(partitions.Primary))
			Expect(root.Extent).To(Equal(partitions.Extent{StartPercent: 0, EndPercent: 10}))

			swap := disk.Partitions["swap"]
			Expect(swap.Number).To(Equal(2))
			Expect(swap.Device).To(Equal("/dev/sda2"))
			Expect(swap.FstabID).To(Equal("LABEL=swap"))
			Expect(swap.FSType).To(Equal("linux-swap"))

			Expect(disk.Swaps).To(HaveLen(1))
			Expect(disk.Swaps[0].Label).To(Equal("swap"))
			Expect(disk.Swaps[0].Partition).To(BeIdenticalTo(disk.Partitions["swap"]))
			Expect(res.Swaps).To(Equal(disk.Swaps))
		})

		It("computes identical records when reusing the disk", func() {
			_, err := builder.Partition(disk, decl, partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			built := snapshot(disk.Partitions)

			fakeRunner.ClearCmds()
			reused := &partitions.Disk{Name: "main", Device: "/dev/sda", Size: 100 * units.GiB, FstabID: "/dev/sda"}
			_, err = builder.Partition(reused, decl, partitioner.Reuse)
			Expect(err).ToNot(HaveOccurred())
			Expect(snapshot(reused.Partitions)).To(Equal(built))
			Expect(reused.Swaps).To(HaveLen(1))
			Expect(fakeRunner.CmdLines()).To(Equal([]string{"partprobe /dev/sda", "udevadm settle"}))
		})

		It("refuses to partition a disk twice", func() {
			_, err := builder.Partition(disk, decl, partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			fakeRunner.ClearCmds()
			_, err = builder.Partition(disk, decl, partitioner.Build)
			var cfgErr *partitioner.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(fakeRunner.Commands).To(BeEmpty())
		})

		It("uses sudo when configured", func() {
			builder.Executor.Sudo = true
			_, err := builder.Partition(disk, decl, partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			Expect(fakeRunner.IncludesCmd("sudo parted -s /dev/sda -- mklabel msdos")).To(BeTrue())
			Expect(fakeRunner.IncludesCmd("sudo mkswap -L swap /dev/sda2")).To(BeTrue())
		})
	})

	It("fails on a missing disk", func() {
		_, err := builder.Partition(nil, nil, partitioner.Build)
		var cfgErr *partitioner.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("stops at the 5th primary partition of an msdos table", func() {
		res, err := builder.Partition(disk, specs(map[string]string{
			"part_a": "01,10G,ext2",
			"part_b": "02,10G,ext2",
			"part_c": "03,10G,ext2",
			"part_d": "04,10G,ext2",
			"part_e": "05,10G,ext2",
		}), partitioner.Build)
		var capErr *partitioner.CapacityError
		Expect(errors.As(err, &capErr)).To(BeTrue())
		Expect(capErr.Partition).To(Equal("e"))
		Expect(capErr.Ordinal).To(Equal(5))
		Expect(capErr.Slots).To(Equal(4))
		Expect(err.Error()).To(ContainSubstring("partition 5"))
		Expect(disk.Partitions).To(HaveLen(4))
		Expect(res.Partitions).To(HaveKey("d"))
		Expect(res.Partitions).ToNot(HaveKey("e"))
		Expect(fakeRunner.IncludesCmd("partprobe /dev/sda")).To(BeFalse())
	})

	It("rejects a logical partition without extended before running anything", func() {
		_, err := builder.Partition(disk, specs(map[string]string{
			"part_root": "01,10G,ext2",
			"part_home": "2E:1L,10G,ext2",
		}), partitioner.Build)
		var cfgErr *partitioner.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Partition).To(Equal("home"))
		Expect(fakeRunner.Commands).To(BeEmpty())
		Expect(disk.Partitions).To(BeNil())
	})

	It("rejects a second extended partition", func() {
		_, err := builder.Partition(disk, specs(map[string]string{
			"part_ext1": "2E,10G,ext2",
			"part_ext2": "3E,10G,ext2",
		}), partitioner.Build)
		var cfgErr *partitioner.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Partition).To(Equal("ext2"))
		Expect(fakeRunner.Commands).To(BeEmpty())
	})

	It("rejects malformed order tokens and sizes", func() {
		_, err := builder.Partition(disk, specs(map[string]string{"part_bad": "5L,10G,ext2"}), partitioner.Build)
		Expect(err).To(HaveOccurred())
		_, err = builder.Partition(disk, specs(map[string]string{"part_bad": "01,lots,ext2"}), partitioner.Build)
		Expect(errors.Is(err, partitioner.ErrInvalidSizeSpec)).To(BeTrue())
		Expect(fakeRunner.Commands).To(BeEmpty())
	})

	It("clamps a tiny partition to 1% with a warning", func() {
		disk.Size = units.TiB
		res, err := builder.Partition(disk, specs(map[string]string{"part_tiny": "01,1M,ext2"}), partitioner.Reuse)
		Expect(err).ToNot(HaveOccurred())
		Expect(disk.Partitions["tiny"].Extent).To(Equal(partitions.Extent{StartPercent: 0, EndPercent: 1}))
		Expect(res.Warnings).To(HaveLen(1))
		Expect(res.Warnings[0].Kind).To(Equal(partitioner.GeometryWarning))
		Expect(res.WarningsError()).To(HaveOccurred())
	})

	Describe("extended and logical partitions on a loop device", func() {
		BeforeEach(func() {
			disk = &partitions.Disk{Name: "img", Device: "/dev/loop0", Size: 100 * units.GiB, FstabID: "PTUUID=abcd1234"}
		})

		It("numbers logicals from 5 inside the extended span", func() {
			res, err := builder.Partition(disk, specs(map[string]string{
				"part_boot": "1,10G,ext2,boot",
				"part_ext":  "2E,50G,ext2",
				"part_home": "2E:1L,20G,ext2",
				"part_var":  "2E:2L,40G,0x83",
				"part_data": "3,20G,ext2",
			}), partitioner.Build)
			Expect(err).ToNot(HaveOccurred())

			p := disk.Partitions
			Expect(p["boot"].Number).To(Equal(1))
			Expect(p["ext"].Number).To(Equal(2))
			Expect(p["home"].Number).To(Equal(5))
			Expect(p["var"].Number).To(Equal(6))
			Expect(p["data"].Number).To(Equal(3))

			Expect(p["ext"].Kind).To(Equal(partitions.Extended))
			Expect(p["ext"].FSType).To(BeEmpty())
			Expect(p["home"].Kind).To(Equal(partitions.Logical))

			Expect(p["boot"].Device).To(Equal("/dev/loop0p1"))
			Expect(p["home"].Device).To(Equal("/dev/loop0p5"))
			Expect(p["home"].FstabID).To(Equal("PARTUUID=abcd1234-05"))

			Expect(p["ext"].Extent).To(Equal(partitions.Extent{StartPercent: 10, EndPercent: 60}))
			Expect(p["home"].Extent).To(Equal(partitions.Extent{StartPercent: 10, EndPercent: 30}))
			Expect(p["var"].Extent).To(Equal(partitions.Extent{StartPercent: 30, EndPercent: 60}))
			Expect(p["data"].Extent).To(Equal(partitions.Extent{StartPercent: 60, EndPercent: 80}))
			for _, l := range []string{"home", "var"} {
				Expect(p["ext"].Extent.Contains(p[l].Extent)).To(BeTrue(), l)
			}
			for _, a := range []string{"boot", "ext", "data"} {
				for _, b := range []string{"boot", "ext", "data"} {
					if a != b {
						Expect(p[a].Extent.Overlaps(p[b].Extent)).To(BeFalse(), a+"/"+b)
					}
				}
			}

			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Partition).To(Equal("var"))
			Expect(res.Warnings[0].Message).To(ContainSubstring("10% beyond the extended partition"))

			Expect(fakeRunner.IncludesCmd("parted -s -a optimal /dev/loop0 -- mkpart extended 10% 60%")).To(BeTrue())
			Expect(fakeRunner.IncludesCmd("parted -s -a optimal /dev/loop0 -- mkpart logical ext2 10% 30%")).To(BeTrue())
			Expect(fakeRunner.IncludesCmd("parted -s -a optimal /dev/loop0 -- mkpart logical ext2 30% 60%")).To(BeTrue())
			Expect(fakeRunner.IncludesCmd("sfdisk --part-type /dev/loop0 6 0x83")).To(BeTrue())
			Expect(fakeRunner.IncludesCmd("parted -s -a optimal /dev/loop0 -- mkpart primary ext2 60% 80%")).To(BeTrue())
		})

		It("truncates a primary going past the end of the disk", func() {
			res, err := builder.Partition(disk, specs(map[string]string{
				"part_a": "1,60G,ext2",
				"part_b": "2,60G,ext2",
			}), partitioner.Reuse)
			Expect(err).ToNot(HaveOccurred())
			Expect(disk.Partitions["b"].Extent).To(Equal(partitions.Extent{StartPercent: 60, EndPercent: 100}))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(res.Warnings[0].Message).To(ContainSubstring("20% beyond the end of the disk"))
		})
	})

	Describe("with a gpt policy", func() {
		BeforeEach(func() {
			builder.Policy = partitioner.GptPolicy()
		})

		It("refuses extended partitions", func() {
			_, err := builder.Partition(disk, specs(map[string]string{"part_ext": "2E,10G,ext2"}), partitioner.Build)
			var cfgErr *partitioner.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(fakeRunner.Commands).To(BeEmpty())
		})

		It("allows more than 4 primaries and sets type codes with sgdisk", func() {
			_, err := builder.Partition(disk, specs(map[string]string{
				"part_efi":  "1,1G,ef00",
				"part_b":    "2,1G,ext2",
				"part_c":    "3,1G,ext2",
				"part_d":    "4,1G,ext2",
				"part_root": "5,10G,ext2",
			}), partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			Expect(disk.Table).To(Equal("gpt"))
			Expect(disk.Partitions["root"].Number).To(Equal(5))
			Expect(fakeRunner.IncludesCmd("parted -s /dev/sda -- mklabel gpt")).To(BeTrue())
			Expect(fakeRunner.IncludesCmd("sgdisk --typecode=1:ef00 /dev/sda")).To(BeTrue())
		})

		It("leaves fstab ids of a disk referenced by GUID to the labeling", func() {
			disk.FstabID = "PTUUID=1b2c3d4e-aaaa-bbbb-cccc-0123456789ab"
			_, err := builder.Partition(disk, specs(map[string]string{
				"part_efi":  "1,1G,ef00",
				"part_root": "2,10G,ext2",
			}), partitioner.Reuse)
			Expect(err).ToNot(HaveOccurred())
			Expect(disk.Partitions["efi"].FstabID).To(BeEmpty())
			Expect(disk.Partitions["root"].FstabID).To(BeEmpty())
		})
	})

	Describe("tool failures", func() {
		It("downgrades best-effort failures to warnings", func() {
			fakeRunner.FailPrefix("parted -s /dev/sda -- set")
			fakeRunner.FailPrefix("sfdisk")
			fakeRunner.FailPrefix("partprobe")
			res, err := builder.Partition(disk, specs(map[string]string{"part_root": "01,10G,0x83,boot,lba"}), partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			Expect(disk.Partitions).To(HaveKey("root"))
			Expect(res.Warnings).To(HaveLen(4))
			for _, w := range res.Warnings {
				Expect(w.Kind).To(Equal(partitioner.ToolWarning))
			}
			Expect(fakeRunner.IncludesCmd("udevadm settle")).To(BeTrue())
		})

		It("aborts when a partition cannot be created", func() {
			fakeRunner.AddResult("parted -s -a optimal /dev/sda -- mkpart primary ext2 10% 20%", mocks.FakeResult{Error: errors.New("exit status 1")})
			res, err := builder.Partition(disk, specs(map[string]string{
				"part_a": "01,10G,ext2",
				"part_b": "02,10G,ext2",
				"part_c": "03,10G,ext2",
			}), partitioner.Build)
			var toolErr *partitioner.ToolFatalError
			Expect(errors.As(err, &toolErr)).To(BeTrue())
			Expect(toolErr.Partition).To(Equal("b"))
			Expect(res.Partitions).To(HaveLen(1))
			Expect(res.Partitions).To(HaveKey("a"))
			Expect(fakeRunner.IncludesCmd("parted -s /dev/sda -- name 2 b")).To(BeFalse())
		})

		It("aborts when the table cannot be created", func() {
			fakeRunner.FailPrefix("parted -s /dev/sda -- mklabel")
			_, err := builder.Partition(disk, specs(map[string]string{"part_a": "01,10G,ext2"}), partitioner.Build)
			var toolErr *partitioner.ToolFatalError
			Expect(errors.As(err, &toolErr)).To(BeTrue())
			Expect(fakeRunner.Commands).To(HaveLen(1))
		})

		It("keeps going when one swap cannot be initialized", func() {
			fakeRunner.FailPrefix("mkswap -L swap1")
			res, err := builder.Partition(disk, specs(map[string]string{
				"part_swap1": "01,1G,linux-swap",
				"part_swap2": "02,1G,linux-swap",
			}), partitioner.Build)
			Expect(err).ToNot(HaveOccurred())
			Expect(disk.Swaps).To(HaveLen(1))
			Expect(disk.Swaps[0].Label).To(Equal("swap2"))
			Expect(disk.Partitions["swap1"].FstabID).To(Equal("/dev/sda1"))
			Expect(disk.Partitions["swap2"].FstabID).To(Equal("LABEL=swap2"))
			Expect(res.Warnings).To(HaveLen(1))
			Expect(buf.String()).To(ContainSubstring("swap could not be initialized"))
		})
	})
})
