package pagetable_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmemsim/pagetable"
	"github.com/sarchlab/vmemsim/physmem"
)

func standardConfig() pagetable.Config {
	return pagetable.Config{
		PgdEntries: 512, PudEntries: 512, PmdEntries: 512, PteEntries: 512,
		L1TLBEntries: 4, L1TLBWays: 4,
		L2TLBEntries: 8, L2TLBWays: 4,
		PgdPWCEntries: 4, PgdPWCWays: 4,
		PudPWCEntries: 4, PudPWCWays: 4,
		PmdPWCEntries: 4, PmdPWCWays: 4,
	}
}

var _ = Describe("Config", func() {
	It("should accept the standard 512-entry-per-level configuration", func() {
		Expect(standardConfig().Validate()).To(Succeed())
	})

	It("should reject a non-power-of-two entry count", func() {
		cfg := standardConfig()
		cfg.PteEntries = 500
		Expect(cfg.Validate()).To(MatchError(pagetable.ErrInvalidConfig))
	})

	It("should reject level widths that don't sum to 48 bits", func() {
		cfg := standardConfig()
		cfg.PgdEntries = 1024
		Expect(cfg.Validate()).To(MatchError(pagetable.ErrInvalidConfig))
	})

	It("should reject a nonzero TOC size when TOC is disabled", func() {
		cfg := standardConfig()
		cfg.TOCSize = 4
		Expect(cfg.Validate()).To(MatchError(pagetable.ErrInvalidConfig))
	})

	It("should reject a non-power-of-two TOC size when enabled", func() {
		cfg := standardConfig()
		cfg.TOCEnabled = true
		cfg.TOCSize = 3
		Expect(cfg.Validate()).To(MatchError(pagetable.ErrInvalidConfig))
	})
})

var _ = Describe("PageTable", func() {
	var mem *physmem.Memory
	var pt *pagetable.PageTable

	BeforeEach(func() {
		mem = physmem.NewLinear(256 * 4096)
		var err error
		pt, err = pagetable.New(standardConfig(), mem, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should allocate only the root frame at construction", func() {
		Expect(pt.NumPageTables()).To(Equal(1))
	})

	It("should resolve a cold address through a full walk and allocate PUD/PMD/PTE/data frames", func() {
		paddr, err := pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(paddr & 0xFFF).To(Equal(uint64(0))) // offset preserved

		Expect(pt.Stats().FullWalks).To(Equal(uint64(1)))
		Expect(pt.NumPageTables()).To(Equal(5)) // root + PUD + PMD + PTE + data frame
	})

	It("should hit the L1 TLB on a repeated translation of the same page", func() {
		_, err := pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())

		_, err = pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())

		Expect(pt.Stats().L1TLBHits).To(Equal(uint64(1)))
	})

	It("should preserve the page offset across a TLB hit", func() {
		first, err := pt.Translate(0x1 << 12)
		Expect(err).NotTo(HaveOccurred())

		second, err := pt.Translate((0x1 << 12) | 0x123)
		Expect(err).NotTo(HaveOccurred())

		Expect(second).To(Equal(first | 0x123))
	})

	It("should hit the PMD PWC for a different PTE within the same PMD region", func() {
		_, err := pt.Translate(0x1000) // vpn 1
		Expect(err).NotTo(HaveOccurred())

		_, err = pt.Translate(0x2000) // vpn 2, same PMD, different PTE, different L1/L2 TLB entry
		Expect(err).NotTo(HaveOccurred())

		Expect(pt.Stats().PMDHits).To(Equal(uint64(1)))
		Expect(pt.Stats().FullWalks).To(Equal(uint64(1)))
	})

	It("should fill the L1 and L2 TLBs after resolving through a PWC hit", func() {
		_, err := pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())
		_, err = pt.Translate(0x2000)
		Expect(err).NotTo(HaveOccurred())

		_, err = pt.Translate(0x2000)
		Expect(err).NotTo(HaveOccurred())
		Expect(pt.Stats().L1TLBHits).To(Equal(uint64(1)))
	})

	It("should propagate physical memory exhaustion as an error", func() {
		tiny := physmem.NewLinear(2 * 4096) // 2 frames: 1 reserved, 1 usable (the root)
		smallPT, err := pagetable.New(standardConfig(), tiny, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = smallPT.Translate(0x1000)
		Expect(err).To(HaveOccurred())
	})

	It("should track per-level allocation and access counts", func() {
		_, err := pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())

		Expect(pt.PgdStats().Allocations).To(Equal(uint64(1)))
		Expect(pt.PudStats().Allocations).To(Equal(uint64(1)))
		Expect(pt.PmdStats().Allocations).To(Equal(uint64(1)))
		Expect(pt.PteStats().Allocations).To(Equal(uint64(1)))
	})

	It("should render a report without error", func() {
		_, err := pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(pt.WriteReport(&buf)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("Translation Path Breakdown"))
	})
})

var _ = Describe("PageTable over a tiny-pointer-backed physical memory", func() {
	It("should resolve a cold address through a full walk over the tiny-pointer backend", func() {
		mem := physmem.NewTinyPtr(4096*physmem.BinSize*4, 7, 13)
		pt, err := pagetable.New(standardConfig(), mem, nil)
		Expect(err).NotTo(HaveOccurred())

		paddr, err := pt.Translate(0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(paddr & 0xFFF).To(Equal(uint64(0)))
		Expect(pt.Stats().FullWalks).To(Equal(uint64(1)))
	})
})
