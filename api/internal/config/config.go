// Package config loads settings from .env, an optional YAML file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Scan     ScanConfig     `yaml:"scan"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Telegram TelegramConfig `yaml:"telegram"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes bounds request bodies (base64 images included).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type GeminiConfig struct {
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	LightModel   string  `yaml:"light_model"`
	CapableModel string  `yaml:"capable_model"`
	Temperature  float32 `yaml:"temperature"`
}

type ScanConfig struct {
	SingleTimeout      time.Duration `yaml:"single_timeout"`
	MultiTimeout       time.Duration `yaml:"multi_timeout"`
	EscalateSingle     bool          `yaml:"escalate_single"`
	PromptDir          string        `yaml:"prompt_dir"`
	AutoApplyThreshold float64       `yaml:"auto_apply_threshold"`
}

type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
}

type CacheConfig struct {
	// Driver is memory, redis or none.
	Driver     string        `yaml:"driver"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type TelegramConfig struct {
	Token      string `yaml:"token"`
	WebhookURL string `yaml:"webhook_url"`
	// AlbumDebounce is how long the bot waits for more photos of an album.
	AlbumDebounce time.Duration `yaml:"album_debounce"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    20 << 20,
		},
		Gemini: GeminiConfig{
			Model:        "gemini-1.5-flash",
			LightModel:   "gemini-1.5-flash",
			CapableModel: "gemini-1.5-pro",
			Temperature:  0.1,
		},
		Scan: ScanConfig{
			SingleTimeout:      30 * time.Second,
			MultiTimeout:       45 * time.Second,
			AutoApplyThreshold: 0.9,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "gradescan.db",
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 500,
			Redis:      RedisConfig{Addr: "localhost:6379", Prefix: "gradescan:"},
		},
		Telegram: TelegramConfig{AlbumDebounce: 1200 * time.Millisecond},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env when present, then the YAML file at path (or
// $GRADESCAN_CONFIG), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GRADESCAN_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setStr(&c.Server.Port, "PORT")
	setStr(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setStr(&c.Gemini.Model, "GEMINI_MODEL")
	setStr(&c.Gemini.LightModel, "GEMINI_LIGHT_MODEL")
	setStr(&c.Gemini.CapableModel, "GEMINI_CAPABLE_MODEL")
	setStr(&c.Database.DSN, "DATABASE_URL")
	setStr(&c.Database.Driver, "DB_DRIVER")
	setStr(&c.Database.SQLitePath, "SQLITE_PATH")
	setStr(&c.Cache.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.Cache.Driver, "CACHE_DRIVER")
	setStr(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setStr(&c.Telegram.WebhookURL, "WEBHOOK_URL")
	setStr(&c.Log.Level, "LOG_LEVEL")
	setStr(&c.Log.Format, "LOG_FORMAT")
	setStr(&c.Scan.PromptDir, "PROMPT_DIR")

	if v := getEnv("AUTO_APPLY_THRESHOLD", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AUTO_APPLY_THRESHOLD: %w", err)
		}
		c.Scan.AutoApplyThreshold = f
	}
	if v := getEnv("ESCALATE_SINGLE", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ESCALATE_SINGLE: %w", err)
		}
		c.Scan.EscalateSingle = b
	}
	// a DSN without an explicit driver means Postgres
	if os.Getenv("DATABASE_URL") != "" && os.Getenv("DB_DRIVER") == "" {
		c.Database.Driver = "postgres"
	}
	return nil
}

func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid server port: %q", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite", "sqlite3", "memory":
	default:
		return fmt.Errorf("invalid database driver: %q", c.Database.Driver)
	}
	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache driver: %q", c.Cache.Driver)
	}
	if t := c.Scan.AutoApplyThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("auto apply threshold must be in (0, 1]: %v", t)
	}
	return nil
}

// RequireGemini reports a missing API key; binaries that scan call it.
func (c *Config) RequireGemini() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return errors.New("missing required env GEMINI_API_KEY")
	}
	return nil
}

func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("missing required env TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// StoreDSN returns the store driver and DSN. Postgres without a DSN is built
// from POSTGRES_* / PG* variables.
func (c *Config) StoreDSN() (driver, dsn string) {
	switch c.Database.Driver {
	case "postgres", "pgx":
		if c.Database.DSN != "" {
			return "pgx", c.Database.DSN
		}
		return "pgx", resolveDSN()
	case "sqlite", "sqlite3":
		path := c.Database.SQLitePath
		if c.Database.DSN != "" {
			path = c.Database.DSN
		}
		return "sqlite3", path
	}
	return "memory", ""
}

func resolveDSN() string {
	user := getEnv("POSTGRES_USER", "gradescan")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getEnv("PGHOST", "db")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "gradescan")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary describes a DSN without its password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "dsn=" + dsn
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}

func setStr(dst *string, key string) {
	if v := getEnv(key, ""); v != "" {
		*dst = v
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
