package memorycmder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lodestarhq/aide/cmd/aide/sqlitepath"
	"github.com/lodestarhq/aide/pkg/calendar"
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
	"github.com/lodestarhq/aide/pkg/storage"
	storageutils "github.com/lodestarhq/aide/pkg/storage/utils"
)

// errNoInference guards the extractor's LLM seam on subcommands that only
// move spots through their lifecycle. Nothing on those paths calls the model.
var errNoInference = errors.New("this command runs no inference")

// commonFlags are the storage selection flags every memory subcommand takes.
// The values only exist for flag registration; the effective settings come
// out of the viper chain in PreRunE.
type commonFlags struct {
	driver      string
	sqlitePath  string
	postgresDSN string
}

func addCommonFlags(cmd *cobra.Command, fs config.FlagSet, f *commonFlags) {
	config.AddStringFlag(cmd, fs, config.FlagStorageDriver, &f.driver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgres, &f.postgresDSN)
}

// bindConfig resolves the effective config for a memory subcommand:
// flag > env > config file > default. extra names registry keys the
// subcommand registered beyond the storage trio.
func bindConfig(cmd *cobra.Command, fs config.FlagSet, extra ...string) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	keys := append([]string{
		config.FlagStorageDriver,
		config.FlagSQLite,
		config.FlagPostgres,
	}, extra...)
	config.BindRegisteredFlags(v, cmd, fs, keys)

	return config.FromViper(v), configDir, nil
}

// toolbox is the wiring every memory subcommand shares: the store, the
// extractor over it, and the memory manager for read-side rendering.
type toolbox struct {
	store     storage.Store
	extractor *extraction.Extractor
	memories  *memory.Manager
	log       *zap.Logger

	closers []func()
}

// openToolbox builds the shared wiring. needLLM wires the extractor's
// inference seam through the router; subcommands that only move spots
// through their lifecycle skip the router and its availability probes.
func openToolbox(ctx context.Context, cfg *config.Config, configDir string, debug, needLLM bool) (*toolbox, error) {
	// Logs go to stderr so listing output on stdout stays pipeable.
	log := logger.NewLoggerWithWriters(debug, os.Stderr)

	t := &toolbox{log: log}
	t.closers = append(t.closers, func() { _ = log.Sync() })

	store, err := openStore(ctx, cfg, configDir)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.store = store
	t.closers = append(t.closers, func() { _ = store.Close() })

	call := extraction.LLMCallFunc(func(context.Context, string, string) (string, error) {
		return "", errNoInference
	})
	if needLLM {
		call, err = routedCall(ctx, cfg, configDir, t)
		if err != nil {
			t.Close()
			return nil, err
		}
	}

	pub, err := buildPublisher(cfg, log)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.closers = append(t.closers, func() { _ = pub.Close() })

	t.extractor, err = extraction.New(store, call, pub, log, extraction.Options{
		MaxMessages: int(cfg.Extraction.MaxMessages),
	})
	if err != nil {
		t.Close()
		return nil, err
	}

	cal, err := calendar.New(&calendar.NewOpts{
		Kind:   cfg.Calendar.Provider,
		Target: cfg.Calendar.Target,
		Logger: log,
	})
	if err != nil {
		t.Close()
		return nil, err
	}
	t.memories = memory.NewManager(store, cal, log)

	return t, nil
}

// Close releases the toolbox's resources in reverse acquisition order.
func (t *toolbox) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
}

// sessionUser resolves the user an extraction runs for: the --user flag when
// given, otherwise the owner of the session.
func (t *toolbox) sessionUser(ctx context.Context, sessionID, flagUser string) (string, error) {
	if flagUser != "" {
		return flagUser, nil
	}

	sess, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("looking up session %s: %w", sessionID, err)
	}
	return sess.UserID, nil
}

// plural appends an "s" for counts other than one. Every noun in this
// package's output pluralizes that way.
func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func openStore(ctx context.Context, cfg *config.Config, configDir string) (storage.Store, error) {
	dbPath := cfg.Storage.SQLitePath
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == storageutils.DriverSQLite {
		var err error
		dbPath, err = sqlitepath.Resolve(dbPath, configDir)
		if err != nil {
			return nil, err
		}
	}

	store, err := storageutils.NewStore(ctx, &storageutils.NewStoreOpts{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  dbPath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// routedCall wires the extraction LLM seam through the same router the chat
// path uses, so extraction shares availability checks and fallback.
func routedCall(ctx context.Context, cfg *config.Config, configDir string, t *toolbox) (extraction.LLMCallFunc, error) {
	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening credentials: %w", err)
	}

	localClient, err := providerutils.NewClient(&providerutils.NewClientOpts{
		Kind:        cfg.LLM.Local.Provider,
		BaseURL:     cfg.LLM.Local.Target,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("building local backend: %w", err)
	}

	cloudClient, err := providerutils.NewClient(&providerutils.NewClientOpts{
		Kind:        cfg.LLM.Cloud.Provider,
		BaseURL:     cfg.LLM.Cloud.Target,
		APIKey:      cfg.LLM.Cloud.APIKey,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("building cloud backend: %w", err)
	}

	avail, err := router.NewAvailability(cfg.LLM.Probe.TTL(), cfg.LLM.Probe.Timeout(), t.log)
	if err != nil {
		return nil, err
	}

	params := cfg.LLM.Params.LLMParams()
	rtr, err := router.New(ctx, router.Config{
		Preference: cfg.LLM.Prefer,
		Local:      router.Backend{Client: localClient, Model: cfg.LLM.Local.Model, Params: params},
		Cloud:      router.Backend{Client: cloudClient, Model: cfg.LLM.Cloud.Model, Params: params},
	}, avail, t.log)
	if err != nil {
		avail.Close()
		return nil, err
	}
	t.closers = append(t.closers, avail.Close)

	return extraction.RoutedCall(rtr, cfg.Extraction.Model, cfg.LLM.Timeout()), nil
}

// buildPublisher returns the kafka publisher when brokers are configured and
// the drop-everything publisher otherwise.
func buildPublisher(cfg *config.Config, log *zap.Logger) (eventstream.Publisher, error) {
	if len(cfg.Events.Brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("building kafka publisher: %w", err)
	}
	return pub, nil
}
