package datacache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmemsim/datacache"
)

var _ = Describe("CacheHierarchy", func() {
	var h *datacache.CacheHierarchy

	BeforeEach(func() {
		// Tiny but distinct sizes at each level, all 64B lines, 1 way, so
		// each level holds exactly as many lines as it has sets.
		h = datacache.NewHierarchy(
			64, 1, 64, // L1: 1 line
			128, 1, 64, // L2: 2 lines
			256, 1, 64, // L3: 4 lines
		)
	})

	It("should miss all levels on a cold address and count one memory access", func() {
		hit := h.Access(0x1000, false)
		Expect(hit).To(BeFalse())
		Expect(h.MemoryAccesses()).To(Equal(uint64(1)))
	})

	It("should hit in L1 after a fill", func() {
		h.Access(0x1000, false)
		hit := h.Access(0x1000, false)
		Expect(hit).To(BeTrue())
		Expect(h.MemoryAccesses()).To(Equal(uint64(1)))
	})

	It("should fill the hierarchy on a cold write so a later read hits in L1", func() {
		h.Access(0x1000, true)
		// A second read to the same line hits at L1.
		hit := h.Access(0x1000, false)
		Expect(hit).To(BeTrue())
	})

	It("should start TranslateLookup at L2, never touching L1", func() {
		hit := h.TranslateLookup(0x2000)
		Expect(hit).To(BeFalse())
		Expect(h.L1.Accesses()).To(Equal(uint64(0)))
		Expect(h.L2.Accesses()).To(Equal(uint64(1)))

		hit = h.TranslateLookup(0x2000)
		Expect(hit).To(BeTrue())
		Expect(h.L1.Accesses()).To(Equal(uint64(0)))
	})

	It("should report an access cost combining all levels and memory", func() {
		h.Access(0x1000, false) // miss: L1+L2+L3 access, 1 memory access
		cost := h.AccessCost()
		Expect(cost).To(Equal(h.L1.Accesses()*1 + h.L2.Accesses()*4 + h.L3.Accesses()*10 + h.MemoryAccesses()*100))
		Expect(cost).To(BeNumerically(">", 0))
	})

	It("should evict from L1 to L2 on capacity pressure and mark the L2 copy dirty on a write eviction", func() {
		h.Access(0x1000, true)  // L1 line A, dirty
		h.Access(0x2000, false) // evicts A from L1 (1 way); write-back to L2 with isWrite=true

		Expect(h.L1.Writebacks()).To(Equal(uint64(1)))
	})
})
