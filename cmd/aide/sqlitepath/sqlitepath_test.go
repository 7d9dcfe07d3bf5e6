package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resolve", func() {
	var (
		origSQLite string
		origCwd    string
	)

	BeforeEach(func() {
		origSQLite = os.Getenv("AIDE_SQLITE")
		var err error
		origCwd, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Setenv("AIDE_SQLITE", origSQLite)).To(Succeed())
		Expect(os.Chdir(origCwd)).To(Succeed())
	})

	It("prefers the configured path over everything", func() {
		Expect(os.Setenv("AIDE_SQLITE", "/tmp/env.db")).To(Succeed())

		path, err := Resolve("/data/aide.db", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/data/aide.db"))
	})

	It("falls back to AIDE_SQLITE when nothing is configured", func() {
		Expect(os.Setenv("AIDE_SQLITE", "/tmp/env.db")).To(Succeed())

		path, err := Resolve("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/env.db"))
	})

	It("defaults to aide.db inside the resolved .aide directory", func() {
		Expect(os.Setenv("AIDE_SQLITE", "")).To(Succeed())

		tmpDir, err := os.MkdirTemp("", "aide-sqlitepath-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			_ = os.RemoveAll(tmpDir)
		})

		configDir := filepath.Join(tmpDir, ".aide")
		path, err := Resolve("", configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(configDir, DBFile)))
		Expect(configDir).To(BeADirectory())
	})
})
