package pwc_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmemsim/pwc"
)

var _ = Describe("PWC", func() {
	Describe("without a table of contents", func() {
		var p *pwc.PWC

		BeforeEach(func() {
			p = pwc.New("PMD PWC", 4, 4, 12, 20) // 1 set, 4 ways, tag = bits [12,20]
		})

		It("should miss on an empty cache", func() {
			_, hit := p.Lookup(0x1000)
			Expect(hit).To(BeFalse())
		})

		It("should hit after an insert for any address sharing the same tag bits", func() {
			p.Insert(0x1000, 7)
			_, hit := p.Lookup(0x1000) // same tag, same low bits below 12 (0)
			Expect(hit).To(BeTrue())

			pfn, hit := p.Lookup(0x1abc) // same tag bits [12,20], different low bits
			Expect(hit).To(BeTrue())
			Expect(pfn).To(Equal(uint64(7)))
		})

		It("should report accesses and hits", func() {
			p.Insert(0x1000, 7)
			p.Lookup(0x1000)
			p.Lookup(0x900000) // different tag, miss
			Expect(p.Accesses()).To(Equal(uint64(2)))
			Expect(p.Hits()).To(Equal(uint64(1)))
		})
	})

	Describe("with a table of contents", func() {
		var p *pwc.PWC

		BeforeEach(func() {
			// tocSize=4 (2 index bits) consumes bits [12,13]; tag becomes
			// bits [14,29].
			p = pwc.NewTOC("PMD PWC", 4, 4, 12, 29, 4)
		})

		It("should be reported as TOC-enabled with the configured size", func() {
			Expect(p.TOCEnabled()).To(BeTrue())
			Expect(p.TOCSize()).To(Equal(uint32(4)))
		})

		It("should share one block across addresses with the same tag but different sub-indices", func() {
			base := uint64(0x10000) // bits [14,29] identical for both addresses below
			a := base
			b := base | (1 << 12) // differs only in the TOC sub-index bits

			p.Insert(a, 11)
			p.Insert(b, 22)

			pfn, hit := p.Lookup(a)
			Expect(hit).To(BeTrue())
			Expect(pfn).To(Equal(uint64(11)))

			pfn, hit = p.Lookup(b)
			Expect(hit).To(BeTrue())
			Expect(pfn).To(Equal(uint64(22)))
		})

		It("should miss a populated tag whose specific sub-slot was never inserted", func() {
			base := uint64(0x20000)
			p.Insert(base, 99) // populates sub-index 0 only

			_, hit := p.Lookup(base | (2 << 12)) // same tag, sub-index 2, never inserted
			Expect(hit).To(BeFalse())
		})

		It("should not count a tag hit with an empty sub-slot toward Hits", func() {
			base := uint64(0x30000)
			p.Insert(base, 5)

			p.Lookup(base | (3 << 12)) // tag hits, sub-slot empty: miss
			Expect(p.Accesses()).To(Equal(uint64(1)))
			Expect(p.Hits()).To(Equal(uint64(0)))
		})
	})
})
