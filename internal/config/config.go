package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreRedis     = "redis"
	StoreRistretto = "ristretto"
	StoreBigCache  = "bigcache"
)

type Config struct {
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	CacheStore        string        `mapstructure:"CACHE_STORE"`
	CacheTTL          time.Duration `mapstructure:"CACHE_TTL"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	CacheCodec        string        `mapstructure:"CACHE_CODEC"`
	CacheListEncoding string        `mapstructure:"CACHE_LIST_ENCODING"`
	CacheMaxDecode    int           `mapstructure:"CACHE_MAX_DECODE"`
	CacheFallback     bool          `mapstructure:"CACHE_FALLBACK"`
	CacheCoalesce     bool          `mapstructure:"CACHE_COALESCE"`
	CacheOpTimeout    time.Duration `mapstructure:"CACHE_OP_TIMEOUT"`
	CacheLocalMaxCost int64         `mapstructure:"CACHE_LOCAL_MAX_COST"`

	DBDSN         string `mapstructure:"DB_DSN"`
	SnowflakeNode int64  `mapstructure:"SNOWFLAKE_NODE"`

	LogBackend   string `mapstructure:"LOG_BACKEND"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	Hooks        string `mapstructure:"HOOKS"`
	HooksWorkers int    `mapstructure:"HOOKS_WORKERS"`
	HooksQueue   int    `mapstructure:"HOOKS_QUEUE"`
}

var defaults = map[string]any{
	"REDIS_ADDR":           "localhost:6379",
	"REDIS_DB":             0,
	"CACHE_STORE":          StoreRedis,
	"CACHE_TTL":            7 * 24 * time.Hour,
	"SESSION_TTL":          600000 * time.Second,
	"CACHE_CODEC":          "json",
	"CACHE_LIST_ENCODING":  "framed",
	"CACHE_MAX_DECODE":     0,
	"CACHE_FALLBACK":       false,
	"CACHE_COALESCE":       false,
	"CACHE_OP_TIMEOUT":     5 * time.Second,
	"CACHE_LOCAL_MAX_COST": int64(64 << 20),
	"DB_DSN":               "",
	"SNOWFLAKE_NODE":       1,
	"LOG_BACKEND":          "zap",
	"LOG_LEVEL":            "info",
	"HOOKS":                "none",
	"HOOKS_WORKERS":        1,
	"HOOKS_QUEUE":          1024,
	"REDIS_PASSWORD":       "",
}

// Load reads the environment, after loading files (default ".env" when it
// exists). Variables already set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func oneOf(name, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return fmt.Errorf("%s: %q is not one of %s", name, val, strings.Join(allowed, "|"))
}

func (c *Config) Validate() error {
	var errs []error
	errs = append(errs,
		oneOf("CACHE_STORE", c.CacheStore, StoreRedis, StoreRistretto, StoreBigCache),
		oneOf("CACHE_CODEC", c.CacheCodec, "json", "msgpack", "cbor"),
		oneOf("CACHE_LIST_ENCODING", c.CacheListEncoding, "framed", "delimited"),
		oneOf("LOG_BACKEND", c.LogBackend, "zap", "logrus", "slog"),
		oneOf("HOOKS", c.Hooks, "none", "slog", "otel"),
	)
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		errs = append(errs, fmt.Errorf("SNOWFLAKE_NODE %d out of range 0..1023", c.SnowflakeNode))
	}
	return errors.Join(errs...)
}

// String masks secrets.
func (c *Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return "(empty)"
		}
		return "********"
	}
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  RedisAddr: %s\n", c.RedisAddr))
	sb.WriteString(fmt.Sprintf("  RedisPassword: %s\n", mask(c.RedisPassword)))
	sb.WriteString(fmt.Sprintf("  RedisDB: %d\n", c.RedisDB))
	sb.WriteString(fmt.Sprintf("  CacheStore: %s\n", c.CacheStore))
	sb.WriteString(fmt.Sprintf("  CacheTTL: %s\n", c.CacheTTL))
	sb.WriteString(fmt.Sprintf("  SessionTTL: %s\n", c.SessionTTL))
	sb.WriteString(fmt.Sprintf("  CacheCodec: %s/%s\n", c.CacheCodec, c.CacheListEncoding))
	sb.WriteString(fmt.Sprintf("  CacheFallback: %v\n", c.CacheFallback))
	sb.WriteString(fmt.Sprintf("  CacheCoalesce: %v\n", c.CacheCoalesce))
	sb.WriteString(fmt.Sprintf("  DBDSN: %s\n", mask(c.DBDSN)))
	sb.WriteString(fmt.Sprintf("  Log: %s@%s\n", c.LogBackend, c.LogLevel))
	sb.WriteString(fmt.Sprintf("  Hooks: %s\n", c.Hooks))
	return sb.String()
}
