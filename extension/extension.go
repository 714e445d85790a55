// Package extension provides the Forge extension adapter for starledger.
//
// It implements the forge.Extension interface to integrate the star ledger
// into a Forge application with DI registration and lifecycle management.
// The engine and, unless routes are disabled, the HTTP API server are
// provided through the container.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.starledger" or
// "starledger" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/api"
	"github.com/xraph/starledger/guard"
	"github.com/xraph/starledger/store"
	"github.com/xraph/starledger/store/memory"
	mongostore "github.com/xraph/starledger/store/mongo"
	pgstore "github.com/xraph/starledger/store/postgres"
	sqlitestore "github.com/xraph/starledger/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "starledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Family star ledger with approvals, credit and settlement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts starledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *starledger.Ledger
	server     *api.Server
	store      store.Store
	grove      *grove.DB
	ledgerOpts []starledger.Option
}

// New creates a new starledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying ledger. This is nil until Register is called.
func (e *Extension) Engine() *starledger.Ledger { return e.engine }

// Server returns the HTTP API server, or nil when routes are disabled.
func (e *Extension) Server() *api.Server { return e.server }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil && e.grove != nil {
		s, err := storeForGrove(e.grove)
		if err != nil {
			return err
		}
		e.store = s
	}
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = starledger.New(e.store, e.buildLedgerOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*starledger.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	e.server = api.NewServer(e.engine,
		api.WithLogger(e.engine.Logger()),
		api.WithBasePath(e.config.BasePath),
		api.WithTimeout(e.config.RequestTimeout),
	)
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("starledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("starledger: extension not initialized")
	}
	return e.engine.Ping(ctx)
}

// buildLedgerOpts constructs starledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []starledger.Option {
	opts := make([]starledger.Option, 0, len(e.ledgerOpts)+3)

	opts = append(opts,
		starledger.WithGuardPolicy(guard.Policy{
			QuestCooldown: e.config.QuestCooldown,
			GlobalWindow:  e.config.GlobalWindow,
			GlobalLimit:   e.config.GlobalLimit,
		}),
		starledger.WithDefaultTimezone(e.config.DefaultTimezone),
		starledger.WithPluginTimeout(e.config.PluginTimeout),
	)

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// storeForGrove picks the store backend matching the grove driver.
func storeForGrove(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return pgstore.New(db), nil
	case "sqlite":
		return sqlitestore.New(db), nil
	case "mongo":
		return mongostore.New(db), nil
	default:
		return nil, fmt.Errorf("starledger: unsupported grove driver %q", name)
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("starledger: configuration is required but not found in config files; " +
				"ensure 'extensions.starledger' or 'starledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("starledger: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("default_timezone", e.config.DefaultTimezone),
		forge.F("quest_cooldown", e.config.QuestCooldown),
		forge.F("global_limit", e.config.GlobalLimit),
		forge.F("global_window", e.config.GlobalWindow),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.starledger", "starledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("starledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("starledger: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = d.BasePath
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = d.DefaultTimezone
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = d.PluginTimeout
	}
	if cfg.QuestCooldown == 0 {
		cfg.QuestCooldown = d.QuestCooldown
	}
	if cfg.GlobalWindow == 0 {
		cfg.GlobalWindow = d.GlobalWindow
	}
	if cfg.GlobalLimit == 0 {
		cfg.GlobalLimit = d.GlobalLimit
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.DefaultTimezone == "" {
		yamlConfig.DefaultTimezone = programmaticConfig.DefaultTimezone
	}
	if yamlConfig.RequestTimeout == 0 {
		yamlConfig.RequestTimeout = programmaticConfig.RequestTimeout
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.QuestCooldown == 0 {
		yamlConfig.QuestCooldown = programmaticConfig.QuestCooldown
	}
	if yamlConfig.GlobalWindow == 0 {
		yamlConfig.GlobalWindow = programmaticConfig.GlobalWindow
	}
	if yamlConfig.GlobalLimit == 0 {
		yamlConfig.GlobalLimit = programmaticConfig.GlobalLimit
	}

	return mergeWithDefaults(yamlConfig)
}
