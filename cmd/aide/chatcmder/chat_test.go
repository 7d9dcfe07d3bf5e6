package chatcmder_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/lodestarhq/aide/cmd/aide/chatcmder"
	"github.com/lodestarhq/aide/pkg/config"
	"github.com/lodestarhq/aide/pkg/dotdir"
	"github.com/lodestarhq/aide/pkg/llm/router"
)

var _ = Describe("NewChatCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := chatcmder.NewChatCmd()
		Expect(cmd.Use).To(Equal("chat <message>"))
	})

	It("has --user flag defaulting to the local user", func() {
		cmd := chatcmder.NewChatCmd()
		flag := cmd.Flags().Lookup("user")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("u"))
		Expect(flag.DefValue).To(Equal("local"))
	})

	It("has session control flags", func() {
		cmd := chatcmder.NewChatCmd()
		Expect(cmd.Flags().Lookup("session")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("new")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("local")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("system")).NotTo(BeNil())
	})

	It("registers the shared config flags with their defaults", func() {
		cmd := chatcmder.NewChatCmd()

		driver := cmd.Flags().Lookup("driver")
		Expect(driver).NotTo(BeNil())
		Expect(driver.DefValue).To(Equal("sqlite"))

		sqlite := cmd.Flags().Lookup("sqlite")
		Expect(sqlite).NotTo(BeNil())
		Expect(sqlite.Shorthand).To(Equal("s"))

		Expect(cmd.Flags().Lookup("postgres")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("prefer")).NotTo(BeNil())

		localModel := cmd.Flags().Lookup("local-model")
		Expect(localModel).NotTo(BeNil())
		Expect(localModel.DefValue).To(Equal("llama3.2"))

		Expect(cmd.Flags().Lookup("cloud-model")).NotTo(BeNil())
	})

	It("rejects a run without a message", func() {
		cmd := chatcmder.NewChatCmd()
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("requires at least 1 arg"))
	})
})

var _ = Describe("running a turn", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatcmd-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	// newFakeOllama answers the availability probe and one chat call the way
	// a local Ollama server would.
	newFakeOllama := func() *httptest.Server {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"models":[]}`)
		})
		mux.HandleFunc("/api/chat", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"model":"llama3.2","message":{"role":"assistant","content":"Hello! All set."},"done":true,"done_reason":"stop"}`)
		})
		return httptest.NewServer(mux)
	}

	writeConfig := func(localTarget string) {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.NewDefaultConfig()
		cfg.Storage.Driver = "inmemory"
		cfg.LLM.Local.Target = localTarget
		// Dead port so the cloud probe fails immediately.
		cfg.LLM.Cloud.Target = "http://127.0.0.1:1"
		cfg.LLM.Probe.TimeoutSeconds = 1
		Expect(cfger.SaveConfig(cfg)).To(Succeed())
	}

	execute := func(args ...string) error {
		cmd := chatcmder.NewChatCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .aide/ config directory")
		cmd.SetArgs(append([]string{"--config-dir", tmpDir}, args...))
		return cmd.Execute()
	}

	loadState := func() *dotdir.SessionState {
		state, err := dotdir.NewManager().LoadSessionState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).NotTo(BeNil())
		return state
	}

	It("completes a turn against the local backend and saves the session", func() {
		server := newFakeOllama()
		defer server.Close()
		writeConfig(server.URL)

		Expect(execute("hello", "there")).To(Succeed())

		state := loadState()
		Expect(state.UserID).To(Equal("local"))
		Expect(state.SessionID).To(HavePrefix("ses-"))
		Expect(filepath.Join(tmpDir, "chat.log")).To(BeARegularFile())
	})

	It("continues the saved session until --new", func() {
		server := newFakeOllama()
		defer server.Close()
		writeConfig(server.URL)

		Expect(execute("first message")).To(Succeed())
		first := loadState().SessionID

		Expect(execute("second message")).To(Succeed())
		Expect(loadState().SessionID).To(Equal(first))

		Expect(execute("--new", "third message")).To(Succeed())
		Expect(loadState().SessionID).NotTo(Equal(first))
	})

	It("starts a separate session for a different user", func() {
		server := newFakeOllama()
		defer server.Close()
		writeConfig(server.URL)

		Expect(execute("hi from the default user")).To(Succeed())
		first := loadState().SessionID

		Expect(execute("--user", "alice", "hi from alice")).To(Succeed())
		state := loadState()
		Expect(state.UserID).To(Equal("alice"))
		Expect(state.SessionID).NotTo(Equal(first))
	})

	It("fails when no backend is reachable", func() {
		writeConfig("http://127.0.0.1:1")

		err := execute("hello?")
		Expect(err).To(MatchError(router.ErrNoProviderAvailable))
	})

	It("rejects an unknown storage driver", func() {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		cfg := config.NewDefaultConfig()
		cfg.Storage.Driver = "bolt"
		Expect(cfger.SaveConfig(cfg)).To(Succeed())

		err = execute("hello?")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown storage driver"))
	})
})

var _ = Describe("flag overrides", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatcmd-flags-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("lets --driver override the configured driver", func() {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		cfg := config.NewDefaultConfig()
		// Configured driver is fine; the flag forces a broken one so the
		// override is observable.
		cfg.Storage.Driver = "inmemory"
		cfg.LLM.Local.Target = "http://127.0.0.1:1"
		cfg.LLM.Cloud.Target = "http://127.0.0.1:1"
		Expect(cfger.SaveConfig(cfg)).To(Succeed())

		cmd := chatcmder.NewChatCmd()
		cmd.PersistentFlags().String("config-dir", "", "Override path to .aide/ config directory")
		cmd.SetArgs([]string{"--config-dir", tmpDir, "--driver", "bolt", "hello"})

		err = cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown storage driver"))
	})
})

var _ = Describe("command wiring", func() {
	It("exposes chat on a parent command", func() {
		parent := &cobra.Command{Use: "aide"}
		parent.AddCommand(chatcmder.NewChatCmd())

		sub, _, err := parent.Find([]string{"chat"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Use).To(Equal("chat <message>"))
	})
})
