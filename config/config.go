// Package config loads the starledger service configuration.
//
// Values are layered: Default, then an optional TOML file, then an
// optional .env file, then STARLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/xraph/starledger/guard"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "STARLEDGER_"

// Config is the full service configuration.
type Config struct {
	DefaultTimezone string        `toml:"default_timezone" env:"DEFAULT_TIMEZONE"`
	PluginTimeout   time.Duration `toml:"plugin_timeout" env:"PLUGIN_TIMEOUT"`
	AuditLog        bool          `toml:"audit_log" env:"AUDIT_LOG"` // log audit events through the process logger

	Log        LogConfig        `toml:"log" envPrefix:"LOG_"`
	HTTP       HTTPConfig       `toml:"http" envPrefix:"HTTP_"`
	Store      StoreConfig      `toml:"store" envPrefix:"STORE_"`
	Redis      RedisConfig      `toml:"redis" envPrefix:"REDIS_"`
	Kafka      KafkaConfig      `toml:"kafka" envPrefix:"KAFKA_"`
	Guard      GuardConfig      `toml:"guard" envPrefix:"GUARD_"`
	Settlement SettlementConfig `toml:"settlement" envPrefix:"SETTLEMENT_"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "text" or "json"
}

type HTTPConfig struct {
	Addr     string        `toml:"addr" env:"ADDR"`
	BasePath string        `toml:"base_path" env:"BASE_PATH"`
	Timeout  time.Duration `toml:"timeout" env:"TIMEOUT"`
	Metrics  bool          `toml:"metrics" env:"METRICS"`
}

// StoreConfig selects the storage backend. Driver is one of "sqlite",
// "postgres", "mongo" or "memory".
type StoreConfig struct {
	Driver   string `toml:"driver" env:"DRIVER"`
	DSN      string `toml:"dsn" env:"DSN"`
	Database string `toml:"database" env:"DATABASE"` // mongo only
}

// RedisConfig enables the balance cache and settlement locks when Addr is set.
type RedisConfig struct {
	Addr     string        `toml:"addr" env:"ADDR"`
	Password string        `toml:"password" env:"PASSWORD"`
	DB       int           `toml:"db" env:"DB"`
	CacheTTL time.Duration `toml:"cache_ttl" env:"CACHE_TTL"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// KafkaConfig enables the event stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `toml:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `toml:"topic" env:"TOPIC"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type GuardConfig struct {
	QuestCooldown time.Duration `toml:"quest_cooldown" env:"QUEST_COOLDOWN"`
	GlobalWindow  time.Duration `toml:"global_window" env:"GLOBAL_WINDOW"`
	GlobalLimit   int           `toml:"global_limit" env:"GLOBAL_LIMIT"`
}

// Policy converts the section into a guard policy.
func (g GuardConfig) Policy() guard.Policy {
	return guard.Policy{
		QuestCooldown: g.QuestCooldown,
		GlobalWindow:  g.GlobalWindow,
		GlobalLimit:   g.GlobalLimit,
	}
}

// SettlementConfig drives the settlement scheduler.
type SettlementConfig struct {
	Enabled  bool          `toml:"enabled" env:"ENABLED"`
	Interval time.Duration `toml:"interval" env:"INTERVAL"`
	LockTTL  time.Duration `toml:"lock_ttl" env:"LOCK_TTL"`
	Period   string        `toml:"period" env:"PERIOD"`   // "weekly" or "daily"
	Weekday  string        `toml:"weekday" env:"WEEKDAY"` // weekly period boundary
	Families []string      `toml:"families" env:"FAMILIES" envSeparator:","`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	p := guard.DefaultPolicy()
	return Config{
		DefaultTimezone: "UTC",
		PluginTimeout:   5 * time.Second,
		Log:             LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr:    ":8080",
			Timeout: 30 * time.Second,
			Metrics: true,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "file:starledger.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		Redis: RedisConfig{CacheTTL: 10 * time.Minute},
		Kafka: KafkaConfig{Topic: "starledger.events"},
		Guard: GuardConfig{
			QuestCooldown: p.QuestCooldown,
			GlobalWindow:  p.GlobalWindow,
			GlobalLimit:   p.GlobalLimit,
		},
		Settlement: SettlementConfig{
			Interval: time.Hour,
			LockTTL:  5 * time.Minute,
			Period:   "weekly",
			Weekday:  "monday",
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// empty), the .env files in dotenv and the environment.
func Load(path string, dotenv ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		// Existing environment variables win over the file.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "postgres", "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want sqlite, postgres, mongo or memory", c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if c.Store.Driver == "mongo" && c.Store.Database == "" {
		errs = append(errs, errors.New("store.database is required for mongo"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if c.Guard.GlobalLimit < 0 || c.Guard.QuestCooldown < 0 || c.Guard.GlobalWindow < 0 {
		errs = append(errs, errors.New("guard: values must not be negative"))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Settlement.Enabled {
		if c.Settlement.Interval <= 0 {
			errs = append(errs, errors.New("settlement.interval must be positive"))
		}
		if _, err := c.Settlement.PeriodWeekday(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PeriodWeekday parses Weekday. Daily periods ignore it.
func (s SettlementConfig) PeriodWeekday() (time.Weekday, error) {
	switch strings.ToLower(s.Period) {
	case "daily":
		return time.Sunday, nil
	case "weekly", "":
	default:
		return 0, fmt.Errorf("settlement.period %q: want weekly or daily", s.Period)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s.Weekday) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("settlement.weekday %q is not a weekday", s.Weekday)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// Logger builds the process logger described by the log section.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
