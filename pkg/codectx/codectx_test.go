package codectx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/pkg/codectx"
)

var _ = Describe("Codectx", func() {
	var log *zap.Logger

	BeforeEach(func() {
		log = zap.NewNop()
	})

	It("returns the bridge body", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("user_id")).To(Equal("user-1"))
			_, _ = w.Write([]byte("Editing pkg/router/router.go on branch fix-fallback"))
		}))
		defer srv.Close()

		p := codectx.NewHTTP(srv.URL, log)
		out := p.Summary(context.Background(), "user-1", "why does routing fail?")
		Expect(out).To(Equal("Editing pkg/router/router.go on branch fix-fallback"))
	})

	It("degrades to empty on failure", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		p := codectx.NewHTTP(srv.URL, log)
		Expect(p.Summary(context.Background(), "user-1", "")).To(BeEmpty())
	})

	It("degrades to empty when unreachable", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		p := codectx.NewHTTP(srv.URL, log)
		Expect(p.Summary(context.Background(), "user-1", "")).To(BeEmpty())
	})

	Describe("New", func() {
		It("defaults to the silent provider", func() {
			p, err := codectx.New(nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Summary(context.Background(), "user-1", "")).To(BeEmpty())
		})

		It("requires a target for the http kind", func() {
			_, err := codectx.New(&codectx.NewOpts{Kind: codectx.KindHTTP})
			Expect(err).To(HaveOccurred())
		})

		It("builds the git provider", func() {
			p, err := codectx.New(&codectx.NewOpts{Kind: codectx.KindGit})
			Expect(err).ToNot(HaveOccurred())
			Expect(p).To(BeAssignableToTypeOf(&codectx.Git{}))
		})
	})
})

var _ = Describe("Git", func() {
	var (
		log    *zap.Logger
		tmpDir string
	)

	BeforeEach(func() {
		if _, err := exec.LookPath("git"); err != nil {
			Skip("git not installed")
		}
		log = zap.NewNop()

		var err error
		tmpDir, err = os.MkdirTemp("", "codectx-git-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	git := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", tmpDir}, args...)...)
		Expect(cmd.Run()).To(Succeed())
	}

	initRepo := func() {
		git("init", "-q")
		git("config", "user.email", "aide@example.com")
		git("config", "user.name", "aide")
		Expect(os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("hello\n"), 0o644)).To(Succeed())
		git("add", ".")
		git("commit", "-q", "-m", "initial")
	}

	It("describes the repository in one line", func() {
		initRepo()

		p := codectx.NewGit(tmpDir, log)
		out := p.Summary(context.Background(), "user-1", "")
		Expect(out).To(HavePrefix("Repository: " + filepath.Base(tmpDir)))
		Expect(out).To(ContainSubstring(" on branch "))
		Expect(out).To(ContainSubstring(" at "))
		Expect(out).NotTo(ContainSubstring("uncommitted"))
	})

	It("flags uncommitted changes", func() {
		initRepo()
		Expect(os.WriteFile(filepath.Join(tmpDir, "wip.txt"), []byte("draft\n"), 0o644)).To(Succeed())

		p := codectx.NewGit(tmpDir, log)
		Expect(p.Summary(context.Background(), "user-1", "")).To(ContainSubstring("with uncommitted changes"))
	})

	It("degrades to empty outside a repository", func() {
		p := codectx.NewGit(tmpDir, log)
		Expect(p.Summary(context.Background(), "user-1", "")).To(BeEmpty())
	})
})
