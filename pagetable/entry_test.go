package pagetable_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmemsim/pagetable"
)

var _ = Describe("Page entry views", func() {
	var p *pagetable.Page

	BeforeEach(func() {
		p = &pagetable.Page{}
	})

	Describe("Entries8B", func() {
		It("should start absent", func() {
			Expect(p.Entries8B(0).Present()).To(BeFalse())
		})

		It("should store present, writable and PFN independently", func() {
			e := p.Entries8B(5)
			e.SetPresent(true)
			e.SetWritable(true)
			e.SetPFN(0xABCDE)

			Expect(e.Present()).To(BeTrue())
			Expect(e.Writable()).To(BeTrue())
			Expect(e.PFN()).To(Equal(uint64(0xABCDE)))
		})

		It("should not disturb neighboring entries", func() {
			p.Entries8B(0).SetPFN(0x1111)
			p.Entries8B(1).SetPFN(0x2222)

			Expect(p.Entries8B(0).PFN()).To(Equal(uint64(0x1111)))
			Expect(p.Entries8B(1).PFN()).To(Equal(uint64(0x2222)))
		})

		It("should clear present without disturbing the PFN", func() {
			e := p.Entries8B(0)
			e.SetPresent(true)
			e.SetPFN(0x42)
			e.SetPresent(false)

			Expect(e.Present()).To(BeFalse())
			Expect(e.PFN()).To(Equal(uint64(0x42)))
		})
	})

	Describe("Entries4B", func() {
		It("should round-trip an 8-bit tiny pointer", func() {
			e := p.Entries4B(3)
			e.SetPresent(true)
			e.SetTinyPointer(0xAB)

			Expect(e.Present()).To(BeTrue())
			Expect(e.TinyPointer()).To(Equal(uint8(0xAB)))
		})
	})

	Describe("Entries2B", func() {
		It("should round-trip an 8-bit tiny pointer", func() {
			e := p.Entries2B(7)
			e.SetTinyPointer(0xFF)
			Expect(e.TinyPointer()).To(Equal(uint8(0xFF)))
		})
	})

	Describe("Entries1B", func() {
		It("should round-trip only the top 6 bits as the tiny pointer", func() {
			e := p.Entries1B(0)
			e.SetTinyPointer(0x3F) // max 6-bit value
			Expect(e.TinyPointer()).To(Equal(uint8(0x3F)))
		})

		It("should keep present independent of the tiny pointer field", func() {
			e := p.Entries1B(1)
			e.SetTinyPointer(0x3F)
			e.SetPresent(true)

			Expect(e.Present()).To(BeTrue())
			Expect(e.TinyPointer()).To(Equal(uint8(0x3F)))
		})
	})
})
