package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmemsim/config"
)

var _ = Describe("DefaultConfig", func() {
	It("should pass its own validation", func() {
		Expect(config.DefaultConfig().Validate()).To(Succeed())
	})
})

var _ = Describe("SaveConfig and LoadConfig", func() {
	It("should round-trip through a JSON file", func() {
		dir, err := os.MkdirTemp("", "vmemsim-config")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "config.json")
		cfg := config.DefaultConfig()
		cfg.PhysMemGB = 4
		cfg.PageTable.PteCachable = true

		Expect(cfg.SaveConfig(path)).To(Succeed())

		loaded, err := config.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(cfg))
	})

	It("should fail when the file does not exist", func() {
		_, err := config.LoadConfig("/nonexistent/config.json")
		Expect(err).To(HaveOccurred())
	})

	It("should keep unspecified fields at their defaults", func() {
		dir, err := os.MkdirTemp("", "vmemsim-config")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "partial.json")
		Expect(os.WriteFile(path, []byte(`{"phys_mem_gb": 8}`), 0644)).To(Succeed())

		loaded, err := config.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.PhysMemGB).To(Equal(uint64(8)))
		Expect(loaded.L1TLB).To(Equal(config.DefaultConfig().L1TLB))
	})
})

var _ = Describe("Validate", func() {
	It("should reject a zero batch size", func() {
		cfg := config.DefaultConfig()
		cfg.BatchSize = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should reject a non-power-of-two page table entry count", func() {
		cfg := config.DefaultConfig()
		cfg.PageTable.PteEntries = 100
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should reject a nonzero TOC size when TOC is disabled", func() {
		cfg := config.DefaultConfig()
		cfg.PageTable.TOCSize = 4
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should accept a TOC configuration with a power-of-two size", func() {
		cfg := config.DefaultConfig()
		cfg.PageTable.TOCEnabled = true
		cfg.PageTable.TOCSize = 4
		Expect(cfg.Validate()).To(Succeed())
	})
})
