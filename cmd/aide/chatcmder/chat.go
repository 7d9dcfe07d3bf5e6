// Package chatcmder provides the chat command: one conversational turn with
// the aide assistant from the terminal.
package chatcmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/cmd/aide/sqlitepath"
	"github.com/lodestarhq/aide/pkg/calendar"
	"github.com/lodestarhq/aide/pkg/chat"
	"github.com/lodestarhq/aide/pkg/cliui"
	"github.com/lodestarhq/aide/pkg/codectx"
	"github.com/lodestarhq/aide/pkg/config"
	"github.com/lodestarhq/aide/pkg/credentials"
	"github.com/lodestarhq/aide/pkg/dotdir"
	providerutils "github.com/lodestarhq/aide/pkg/llm/provider/utils"
	"github.com/lodestarhq/aide/pkg/llm/router"
	"github.com/lodestarhq/aide/pkg/logger"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/prompt"
	"github.com/lodestarhq/aide/pkg/storage"
	storageutils "github.com/lodestarhq/aide/pkg/storage/utils"
)

// chatLogFile is the JSON turn log inside the .aide/ directory.
const chatLogFile = "chat.log"

type chatCommander struct {
	user       string
	session    string
	newSession bool
	local      bool
	system     string

	prefer      string
	driver      string
	sqlitePath  string
	postgresDSN string
	localModel  string
	cloudModel  string

	debug     bool
	configDir string
	cfg       *config.Config

	logger *zap.Logger
	turns  *slog.Logger
}

const chatLongDesc string = `Send a message to aide and print the reply.

Conversations continue across invocations: the last session id is kept in
.aide/session.json and reused until --new starts a fresh one, or --session
picks a specific one. Every turn assembles the memory layers into the
system prompt, so aide remembers what it has learned about you.

The reply comes from the configured inference backend. Use --local to
prefer the local backend for this turn regardless of the configured
preference. Memory extraction does not run here; a running "aide serve"
picks sessions up out of band, or run "aide memory extract" by hand.

Examples:
  aide chat how do I tune a viper config chain in Go?
  aide chat --new let's plan the week
  aide chat --user alice --local what did we decide yesterday?`

const chatShortDesc string = "Chat with aide"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.configDir = configDir

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagPrefer,
				config.FlagStorageDriver,
				config.FlagSQLite,
				config.FlagPostgres,
				config.FlagLocalModel,
				config.FlagCloudModel,
			})

			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			return cmder.run(strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.user, "user", "u", "local", "User the conversation belongs to")
	cmd.Flags().StringVar(&cmder.session, "session", "", "Continue a specific session id")
	cmd.Flags().BoolVar(&cmder.newSession, "new", false, "Start a new session instead of continuing the last one")
	cmd.Flags().BoolVar(&cmder.local, "local", false, "Prefer the local backend for this turn")
	cmd.Flags().StringVar(&cmder.system, "system", "", "Replace the assembled system prompt verbatim")

	config.AddStringFlag(cmd, fs, config.FlagPrefer, &cmder.prefer)
	config.AddStringFlag(cmd, fs, config.FlagStorageDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagLocalModel, &cmder.localModel)
	config.AddStringFlag(cmd, fs, config.FlagCloudModel, &cmder.cloudModel)

	return cmd
}

func (c *chatCommander) run(message string) error {
	debug := c.debug || c.cfg.Log.Debug

	// Component logs go to stderr so the rendered reply on stdout stays
	// pipeable.
	c.logger = logger.NewLoggerWithWriters(debug, os.Stderr)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()

	ddm := dotdir.NewManager()
	stateDir, err := ddm.Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving .aide/ directory: %w", err)
	}

	turns, closeLog := c.turnLogger(stateDir, debug)
	c.turns = turns
	defer closeLog()

	sessionID, err := c.resolveSession(ddm)
	if err != nil {
		return err
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rtr, avail, err := c.buildRouter(ctx)
	if err != nil {
		return err
	}
	defer avail.Close()

	assembler, err := c.buildAssembler(store)
	if err != nil {
		return err
	}

	resolver := chat.NewSendMessageResolver(chat.NewNopMessenger(c.logger), c.logger)
	orch, err := chat.NewOrchestrator(assembler, rtr, store,
		[]chat.ResponseProcessor{resolver}, c.cfg.LLM.Timeout(), c.logger)
	if err != nil {
		return err
	}

	resp, err := orch.ProcessChatRequest(ctx, chat.Request{
		UserID:               c.user,
		Message:              message,
		SessionID:            sessionID,
		SystemPromptOverride: c.system,
		PreferLocal:          c.local,
	})
	if err != nil {
		return err
	}

	c.printReply(resp)

	c.turns.Info("chat turn",
		"user", c.user,
		"session", resp.SessionID,
		"provider", resp.Provider,
		"model", resp.Model,
	)

	state := &dotdir.SessionState{
		SessionID: resp.SessionID,
		UserID:    c.user,
		UpdatedAt: time.Now().UTC(),
	}
	if err := ddm.SaveSession(state, c.configDir); err != nil {
		c.turns.Warn("saving session state", "error", err)
	}

	return nil
}

// resolveSession picks the session this turn continues: the explicit
// --session id, then the saved state when it belongs to the same user,
// otherwise empty so the orchestrator mints a new one.
func (c *chatCommander) resolveSession(ddm *dotdir.Manager) (string, error) {
	if c.newSession {
		if err := ddm.ClearSession(c.configDir); err != nil {
			return "", fmt.Errorf("clearing session state: %w", err)
		}
	}
	if c.session != "" {
		return c.session, nil
	}
	if c.newSession {
		return "", nil
	}

	state, err := ddm.LoadSessionState(c.configDir)
	if err != nil {
		return "", fmt.Errorf("loading session state: %w", err)
	}
	if state == nil || state.UserID != c.user {
		return "", nil
	}
	return state.SessionID, nil
}

func (c *chatCommander) openStore(ctx context.Context) (storage.Store, error) {
	dbPath := c.cfg.Storage.SQLitePath
	if c.cfg.Storage.Driver == "" || c.cfg.Storage.Driver == storageutils.DriverSQLite {
		var err error
		dbPath, err = sqlitepath.Resolve(dbPath, c.configDir)
		if err != nil {
			return nil, err
		}
	}

	store, err := storageutils.NewStore(ctx, &storageutils.NewStoreOpts{
		Driver:      c.cfg.Storage.Driver,
		SQLitePath:  dbPath,
		PostgresDSN: c.cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func (c *chatCommander) buildRouter(ctx context.Context) (*router.Router, *router.Availability, error) {
	creds, err := credentials.NewManager(c.configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening credentials: %w", err)
	}

	localClient, err := providerutils.NewClient(&providerutils.NewClientOpts{
		Kind:        c.cfg.LLM.Local.Provider,
		BaseURL:     c.cfg.LLM.Local.Target,
		Credentials: creds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building local backend: %w", err)
	}

	cloudClient, err := providerutils.NewClient(&providerutils.NewClientOpts{
		Kind:        c.cfg.LLM.Cloud.Provider,
		BaseURL:     c.cfg.LLM.Cloud.Target,
		APIKey:      c.cfg.LLM.Cloud.APIKey,
		Credentials: creds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building cloud backend: %w", err)
	}

	avail, err := router.NewAvailability(c.cfg.LLM.Probe.TTL(), c.cfg.LLM.Probe.Timeout(), c.logger)
	if err != nil {
		return nil, nil, err
	}

	params := c.cfg.LLM.Params.LLMParams()
	rtr, err := router.New(ctx, router.Config{
		Preference: c.cfg.LLM.Prefer,
		Local:      router.Backend{Client: localClient, Model: c.cfg.LLM.Local.Model, Params: params},
		Cloud:      router.Backend{Client: cloudClient, Model: c.cfg.LLM.Cloud.Model, Params: params},
	}, avail, c.logger)
	if err != nil {
		avail.Close()
		return nil, nil, err
	}

	return rtr, avail, nil
}

func (c *chatCommander) buildAssembler(store storage.Store) (*prompt.Assembler, error) {
	cal, err := calendar.New(&calendar.NewOpts{
		Kind:   c.cfg.Calendar.Provider,
		Target: c.cfg.Calendar.Target,
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}

	code, err := codectx.New(&codectx.NewOpts{
		Kind:   c.cfg.CodeContext.Provider,
		Target: c.cfg.CodeContext.Target,
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}

	src, err := c.promptSource()
	if err != nil {
		return nil, err
	}

	memories := memory.NewManager(store, cal, c.logger)

	return prompt.NewAssembler(src, memories, code, c.logger), nil
}

// promptSource loads the configured system prompt file once. One-shot turns
// never hot-reload; the watcher belongs to serve.
func (c *chatCommander) promptSource() (prompt.Source, error) {
	if c.cfg.Prompt.Path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.cfg.Prompt.Path)
	if err != nil {
		return nil, fmt.Errorf("reading system prompt file: %w", err)
	}
	return prompt.StaticSource(strings.TrimSpace(string(data))), nil
}

// turnLogger writes pretty records to the terminal and a JSON record of
// every turn to .aide/chat.log.
func (c *chatCommander) turnLogger(stateDir string, debug bool) (*slog.Logger, func()) {
	term := logger.New(
		logger.WithPretty(true),
		logger.WithDebug(debug),
		logger.WithWriter(os.Stderr),
	)

	f, err := os.OpenFile(filepath.Join(stateDir, chatLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		term.Warn("chat log file unavailable", "error", err)
		return term, func() {}
	}

	file := logger.New(
		logger.WithJSON(true),
		logger.WithDebug(true),
		logger.WithWriter(f),
	)

	return logger.Multi(term, file), func() { _ = f.Close() }
}

func (c *chatCommander) printReply(resp *chat.Response) {
	rendered, err := cliui.RenderMarkdown(resp.Content)
	if err != nil {
		fmt.Println(resp.Content)
		return
	}
	fmt.Print(rendered)
}
