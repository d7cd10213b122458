package simulator_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmemsim/config"
	"github.com/sarchlab/vmemsim/simulator"
	"github.com/sarchlab/vmemsim/trace"
)

var _ = Describe("Construct", func() {
	It("should build a simulator from the default configuration", func() {
		sim, err := simulator.Construct(*config.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.ID()).NotTo(BeEmpty())
	})

	It("should reject an invalid configuration before building anything", func() {
		cfg := config.DefaultConfig()
		cfg.PageTable.PteEntries = 100
		_, err := simulator.Construct(*cfg)
		Expect(err).To(HaveOccurred())
	})

	It("should build over a tiny-pointer-backed physical memory when enabled", func() {
		cfg := config.DefaultConfig()
		cfg.TinyPtrEnabled = true
		_, err := simulator.Construct(*cfg)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("ProcessBatch", func() {
	var sim *simulator.Simulator

	BeforeEach(func() {
		var err error
		sim, err = simulator.Construct(*config.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should count every reference processed", func() {
		refs := []trace.Reference{
			{PC: 0, EA: 0x1000, Size: 8, IsRead: 1},
			{PC: 4, EA: 0x2000, Size: 4, IsRead: 0},
		}
		Expect(sim.ProcessBatch(refs)).To(Succeed())
		Expect(sim.AccessCount()).To(Equal(uint64(2)))
	})

	It("should accumulate across multiple batches", func() {
		Expect(sim.ProcessBatch([]trace.Reference{{EA: 0x1000, IsRead: 1}})).To(Succeed())
		Expect(sim.ProcessBatch([]trace.Reference{{EA: 0x2000, IsRead: 1}})).To(Succeed())
		Expect(sim.AccessCount()).To(Equal(uint64(2)))
	})
})

var _ = Describe("Report", func() {
	It("should render every major section without error", func() {
		sim, err := simulator.Construct(*config.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		Expect(sim.ProcessBatch([]trace.Reference{
			{EA: 0x1000, IsRead: 1},
			{EA: 0x1000, IsRead: 0},
		})).To(Succeed())

		var buf bytes.Buffer
		Expect(sim.Report(&buf)).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring("Simulation Results"))
		Expect(out).To(ContainSubstring("Translation Path Breakdown"))
		Expect(out).To(ContainSubstring("Data Cache Hierarchy"))
		Expect(out).To(ContainSubstring("Total access cost"))
	})
})
