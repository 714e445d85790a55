package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/plugin"
	"github.com/xraph/starledger/store"
)

// Option configures the starledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from an open grove.DB. The backend
// (postgres/sqlite/mongo) is picked from the grove driver name.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.grove = db
	}
}

// WithLedgerOption passes a starledger.Option through to the underlying engine.
func WithLedgerOption(opt starledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, starledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips building the HTTP API server.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for API routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithQuestCooldown sets the per-quest request cooldown.
func WithQuestCooldown(d time.Duration) Option {
	return func(e *Extension) { e.config.QuestCooldown = d }
}

// WithGlobalRateLimit caps requests per child to limit within window.
func WithGlobalRateLimit(limit int, window time.Duration) Option {
	return func(e *Extension) {
		e.config.GlobalLimit = limit
		e.config.GlobalWindow = window
	}
}

// WithDefaultTimezone sets the timezone for families created without one.
func WithDefaultTimezone(name string) Option {
	return func(e *Extension) { e.config.DefaultTimezone = name }
}
