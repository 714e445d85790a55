package extension

import "time"

// Config holds the starledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.starledger" or "starledger" keys).
type Config struct {
	// DisableRoutes skips building the HTTP API server.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for API routes (default: "/starledger").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// RequestTimeout bounds each API request (default: 30s).
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout"`

	// DefaultTimezone is used for families created without one (default: "UTC").
	DefaultTimezone string `json:"default_timezone" mapstructure:"default_timezone" yaml:"default_timezone"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// QuestCooldown is the minimum gap between two requests for the same
	// quest by the same child (default: 2m).
	QuestCooldown time.Duration `json:"quest_cooldown" mapstructure:"quest_cooldown" yaml:"quest_cooldown"`

	// GlobalWindow and GlobalLimit cap how many requests a child may submit
	// in a sliding window (default: 2 per minute).
	GlobalWindow time.Duration `json:"global_window" mapstructure:"global_window" yaml:"global_window"`
	GlobalLimit  int           `json:"global_limit" mapstructure:"global_limit" yaml:"global_limit"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:        "/starledger",
		RequestTimeout:  30 * time.Second,
		DefaultTimezone: "UTC",
		PluginTimeout:   5 * time.Second,
		QuestCooldown:   2 * time.Minute,
		GlobalWindow:    time.Minute,
		GlobalLimit:     2,
	}
}
