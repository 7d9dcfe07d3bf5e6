// Package servecmder provides the serve command: the long-running aide
// backend with the HTTP API, the MCP endpoint, the extraction worker pool,
// and the periodic revision sweep.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/api"
	aidemcp "github.com/lodestarhq/aide/api/mcp"
	"github.com/lodestarhq/aide/cmd/aide/sqlitepath"
	"github.com/lodestarhq/aide/pkg/calendar"
	"github.com/lodestarhq/aide/pkg/chat"
	"github.com/lodestarhq/aide/pkg/codectx"
	"github.com/lodestarhq/aide/pkg/config"
	"github.com/lodestarhq/aide/pkg/credentials"
	"github.com/lodestarhq/aide/pkg/eventstream"
	"github.com/lodestarhq/aide/pkg/eventstream/kafka"
	"github.com/lodestarhq/aide/pkg/eventstream/nop"
	"github.com/lodestarhq/aide/pkg/extraction"
	providerutils "github.com/lodestarhq/aide/pkg/llm/provider/utils"
	"github.com/lodestarhq/aide/pkg/llm/router"
	"github.com/lodestarhq/aide/pkg/logger"
	"github.com/lodestarhq/aide/pkg/memory"
	"github.com/lodestarhq/aide/pkg/prompt"
	"github.com/lodestarhq/aide/pkg/storage"
	storageutils "github.com/lodestarhq/aide/pkg/storage/utils"
)

type serveCommander struct {
	listen      string
	driver      string
	sqlitePath  string
	postgresDSN string

	prefer        string
	localProvider string
	localTarget   string
	localModel    string
	cloudProvider string
	cloudTarget   string
	cloudModel    string

	promptPath  string
	promptWatch bool
	workers     uint
	autoApply   bool
	revision    bool
	brokers     string
	noMCP       bool

	debug     bool
	configDir string
	cfg       *config.Config

	logger *zap.Logger
}

const serveLongDesc string = `Run the aide backend.

Serves the HTTP API and the MCP endpoint on the configured listen
address, with the async memory extraction pool behind it. Chat turns
served over HTTP enqueue extraction out of band, so replies never wait
on memory writes. With --revision, a timer sweeps recent sessions and
re-extracts the ones that kept growing after their first pass; adding
--auto-apply promotes high-confidence candidates without curation.

Storage, backends, and routing come from the same config chain as the
rest of the CLI: flags override AIDE_* environment variables, which
override config.toml, which overrides defaults.

Examples:
  aide serve
  aide serve --listen :9090 --driver postgres --postgres "$AIDE_DSN"
  aide serve --revision --auto-apply
  aide serve --prompt ./prompt.md --watch-prompt`

const serveShortDesc string = "Run the aide API server and memory pipeline"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}
	fs := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.configDir = configDir

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagAPIListen,
				config.FlagStorageDriver,
				config.FlagSQLite,
				config.FlagPostgres,
				config.FlagPrefer,
				config.FlagLocalProvider,
				config.FlagLocalTarget,
				config.FlagLocalModel,
				config.FlagCloudProvider,
				config.FlagCloudTarget,
				config.FlagCloudModel,
				config.FlagPromptPath,
				config.FlagPromptWatch,
				config.FlagWorkers,
				config.FlagAutoApply,
				config.FlagRevision,
				config.FlagEventsBrokers,
			})

			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagStorageDriver, &cmder.driver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagPrefer, &cmder.prefer)
	config.AddStringFlag(cmd, fs, config.FlagLocalProvider, &cmder.localProvider)
	config.AddStringFlag(cmd, fs, config.FlagLocalTarget, &cmder.localTarget)
	config.AddStringFlag(cmd, fs, config.FlagLocalModel, &cmder.localModel)
	config.AddStringFlag(cmd, fs, config.FlagCloudProvider, &cmder.cloudProvider)
	config.AddStringFlag(cmd, fs, config.FlagCloudTarget, &cmder.cloudTarget)
	config.AddStringFlag(cmd, fs, config.FlagCloudModel, &cmder.cloudModel)
	config.AddStringFlag(cmd, fs, config.FlagPromptPath, &cmder.promptPath)
	config.AddBoolFlag(cmd, fs, config.FlagPromptWatch, &cmder.promptWatch)
	config.AddUintFlag(cmd, fs, config.FlagWorkers, &cmder.workers)
	config.AddBoolFlag(cmd, fs, config.FlagAutoApply, &cmder.autoApply)
	config.AddBoolFlag(cmd, fs, config.FlagRevision, &cmder.revision)
	config.AddStringFlag(cmd, fs, config.FlagEventsBrokers, &cmder.brokers)
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Serve an empty MCP endpoint with no memory tools")

	return cmd
}

func (c *serveCommander) run() error {
	debug := c.debug || c.cfg.Log.Debug
	c.logger = logger.NewLogger(debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()

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

	memories, assembler, closePrompt, err := c.buildPromptSide(store)
	if err != nil {
		return err
	}
	defer closePrompt()

	resolver := chat.NewSendMessageResolver(chat.NewNopMessenger(c.logger), c.logger)
	orch, err := chat.NewOrchestrator(assembler, rtr, store,
		[]chat.ResponseProcessor{resolver}, c.cfg.LLM.Timeout(), c.logger)
	if err != nil {
		return err
	}

	pub, err := c.buildPublisher()
	if err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()

	call := extraction.RoutedCall(rtr, c.cfg.Extraction.Model, c.cfg.LLM.Timeout())
	extractor, err := extraction.New(store, call, pub, c.logger, extraction.Options{
		MaxMessages: int(c.cfg.Extraction.MaxMessages),
	})
	if err != nil {
		return err
	}

	pool, err := extraction.NewPool(&extraction.PoolConfig{
		Extractor:  extractor,
		NumWorkers: c.cfg.Extraction.Workers,
		QueueSize:  c.cfg.Extraction.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	mcpServer, err := aidemcp.NewServer(aidemcp.Config{
		Memories: memories,
		Store:    store,
		Noop:     c.noMCP,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{ListenAddr: c.cfg.API.Listen},
		store, orch, extractor, pool, memories, mcpServer.Handler(), c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// The sweep stops before the pool drains, so no tick enqueues into a
	// closed queue.
	if c.cfg.Revision.Enabled {
		stopSweep := c.startRevisionSweep(ctx, extractor, pool)
		defer stopSweep()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}

func (c *serveCommander) openStore(ctx context.Context) (storage.Store, error) {
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

	c.logger.Info("storage ready",
		zap.String("driver", storageDriverName(c.cfg.Storage.Driver)),
	)
	return store, nil
}

func storageDriverName(driver string) string {
	if driver == "" {
		return storageutils.DriverSQLite
	}
	return driver
}

func (c *serveCommander) buildRouter(ctx context.Context) (*router.Router, *router.Availability, error) {
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

func (c *serveCommander) buildPromptSide(store storage.Store) (*memory.Manager, *prompt.Assembler, func(), error) {
	cal, err := calendar.New(&calendar.NewOpts{
		Kind:   c.cfg.Calendar.Provider,
		Target: c.cfg.Calendar.Target,
		Logger: c.logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	code, err := codectx.New(&codectx.NewOpts{
		Kind:   c.cfg.CodeContext.Provider,
		Target: c.cfg.CodeContext.Target,
		Logger: c.logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	src, closeSrc, err := c.promptSource()
	if err != nil {
		return nil, nil, nil, err
	}

	memories := memory.NewManager(store, cal, c.logger)

	return memories, prompt.NewAssembler(src, memories, code, c.logger), closeSrc, nil
}

// promptSource loads the configured system prompt file. With prompt.watch
// set the file hot-reloads through the fsnotify watcher, and a missing file
// only logs a warning; without it the file loads once and must exist.
func (c *serveCommander) promptSource() (prompt.Source, func(), error) {
	noop := func() {}

	if c.cfg.Prompt.Path == "" {
		return nil, noop, nil
	}

	if !c.cfg.Prompt.Watch {
		data, err := os.ReadFile(c.cfg.Prompt.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading system prompt file: %w", err)
		}
		return prompt.StaticSource(strings.TrimSpace(string(data))), noop, nil
	}

	src := prompt.NewSwappableSource("")
	watcher, err := prompt.NewWatcher(c.cfg.Prompt.Path, src, c.logger)
	if err != nil {
		return nil, nil, err
	}
	return src, func() { _ = watcher.Close() }, nil
}

func (c *serveCommander) buildPublisher() (eventstream.Publisher, error) {
	if len(c.cfg.Events.Brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.cfg.Events.Brokers,
		Topic:   c.cfg.Events.Topic,
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("building kafka publisher: %w", err)
	}

	c.logger.Info("publishing memory events",
		zap.Strings("brokers", c.cfg.Events.Brokers),
	)
	return pub, nil
}

// startRevisionSweep runs the periodic revision pass: queue re-extraction
// and re-summarization for sessions that kept growing after their first
// pass, then promote whatever clears the auto-apply bar. The returned stop
// function waits for the sweep goroutine to exit.
func (c *serveCommander) startRevisionSweep(ctx context.Context, extractor *extraction.Extractor, pool *extraction.Pool) func() {
	interval := c.cfg.Revision.Interval()
	if interval <= 0 {
		interval = time.Hour
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.sweepOnce(ctx, extractor, pool)
			}
		}
	}()

	c.logger.Info("revision sweep scheduled",
		zap.Duration("interval", interval),
		zap.Bool("auto_apply", c.cfg.Extraction.AutoApply),
	)

	return func() {
		close(done)
		wg.Wait()
	}
}

func (c *serveCommander) sweepOnce(ctx context.Context, extractor *extraction.Extractor, pool *extraction.Pool) {
	sessions, err := extractor.RevisionCandidates(ctx, int(c.cfg.Revision.Limit), int(c.cfg.Revision.DaysBack))
	if err != nil {
		c.logger.Warn("revision sweep failed", zap.Error(err))
		return
	}

	for _, sess := range sessions {
		pool.Enqueue(extraction.Job{
			Kind:        extraction.JobExtract,
			SessionID:   sess.ID,
			UserID:      sess.UserID,
			MaxMessages: int(c.cfg.Extraction.MaxMessages),
			Revision:    true,
		})
		pool.Enqueue(extraction.Job{
			Kind:      extraction.JobSummarize,
			SessionID: sess.ID,
			UserID:    sess.UserID,
		})
	}
	if len(sessions) > 0 {
		c.logger.Info("revision sweep queued",
			zap.Int("sessions", len(sessions)),
		)
	}

	if !c.cfg.Extraction.AutoApply {
		return
	}

	result, err := extractor.AutoApply(ctx, c.cfg.Extraction.AutoApplyThreshold)
	if err != nil {
		c.logger.Warn("auto-apply pass failed", zap.Error(err))
		return
	}
	if result.Applied > 0 || len(result.Errors) > 0 {
		c.logger.Info("auto-apply pass",
			zap.Int("applied", result.Applied),
			zap.Int("skipped", result.Skipped),
			zap.Int("errors", len(result.Errors)),
		)
	}
}
