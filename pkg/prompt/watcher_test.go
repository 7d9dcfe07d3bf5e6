package prompt_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/prompt"
)

var _ = Describe("Watcher", func() {
	var (
		dir  string
		path string
		src  *prompt.SwappableSource
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "system_prompt.md")
		src = prompt.NewSwappableSource("")
	})

	It("loads the file on start", func() {
		Expect(os.WriteFile(path, []byte("You are aide.\n"), 0o644)).To(Succeed())

		w, err := prompt.NewWatcher(path, src, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		Expect(src.SystemPrompt()).To(Equal("You are aide."))
	})

	It("swaps the prompt when the file changes", func() {
		Expect(os.WriteFile(path, []byte("first"), 0o644)).To(Succeed())

		w, err := prompt.NewWatcher(path, src, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		Expect(os.WriteFile(path, []byte("second"), 0o644)).To(Succeed())
		Eventually(src.SystemPrompt, 2*time.Second, 10*time.Millisecond).Should(Equal("second"))
	})

	It("picks up a file created after start", func() {
		w, err := prompt.NewWatcher(path, src, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		Expect(src.SystemPrompt()).To(BeEmpty())
		Expect(os.WriteFile(path, []byte("late arrival"), 0o644)).To(Succeed())
		Eventually(src.SystemPrompt, 2*time.Second, 10*time.Millisecond).Should(Equal("late arrival"))
	})
})
