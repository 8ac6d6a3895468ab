package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Config struct {
	Addr        string `envconfig:"STOCKSIM_API_ADDR" default:":8080"`
	Port        string `envconfig:"PORT"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Storage     string `envconfig:"STOCKSIM_STORAGE" default:"postgres"`
	SQLitePath  string `envconfig:"STOCKSIM_SQLITE_PATH"`
	DBMaxConns  int32  `envconfig:"STOCKSIM_DB_MAX_CONNS" default:"20"`

	TickEvery         time.Duration `envconfig:"STOCKSIM_TICK_EVERY" default:"10s"`
	EventCooldown     time.Duration `envconfig:"STOCKSIM_EVENT_COOLDOWN" default:"3m"`
	EventHistory      int           `envconfig:"STOCKSIM_EVENT_HISTORY" default:"10"`
	PersistWorkers    int           `envconfig:"STOCKSIM_PERSIST_WORKERS" default:"4"`
	LeaderboardEvery  time.Duration `envconfig:"STOCKSIM_LEADERBOARD_EVERY" default:"10s"`
	LeaderboardSize   int           `envconfig:"STOCKSIM_LEADERBOARD_SIZE" default:"10"`
	CatalogFile       string        `envconfig:"STOCKSIM_CATALOG_FILE"`
	StartupSeedStocks bool          `envconfig:"STOCKSIM_STARTUP_SEED_STOCKS" default:"true"`
	EmbedEngine       bool          `envconfig:"STOCKSIM_EMBED_ENGINE" default:"false"`
	WorkerRunOnce     bool          `envconfig:"STOCKSIM_WORKER_RUN_ONCE" default:"false"`
	WorkerReset       bool          `envconfig:"STOCKSIM_WORKER_RESET" default:"false"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisChannel  string `envconfig:"STOCKSIM_REDIS_CHANNEL" default:"stocksim:broadcast"`

	DiscordWebhookID    string `envconfig:"DISCORD_WEBHOOK_ID"`
	DiscordWebhookToken string `envconfig:"DISCORD_WEBHOOK_TOKEN"`
	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID      int64  `envconfig:"TELEGRAM_CHAT_ID"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

type CLIConfig struct {
	APIBaseURL string `envconfig:"STK_API_BASE_URL" default:"http://localhost:8080"`
}

// LoadFromEnv reads a .env file when present, then the process environment.
func LoadFromEnv() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	_ = godotenv.Load()

	var cfg CLIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

func (c *Config) normalize() {
	if p := strings.TrimSpace(c.Port); p != "" {
		if !strings.HasPrefix(p, ":") {
			p = ":" + p
		}
		c.Addr = p
	}
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	case StorageSQLite:
	default:
		return fmt.Errorf("unknown STOCKSIM_STORAGE %q", c.Storage)
	}
	if c.TickEvery < time.Second {
		return fmt.Errorf("STOCKSIM_TICK_EVERY must be at least 1s")
	}
	if c.EventCooldown < 0 {
		return fmt.Errorf("STOCKSIM_EVENT_COOLDOWN must not be negative")
	}
	if c.LeaderboardEvery < time.Second {
		return fmt.Errorf("STOCKSIM_LEADERBOARD_EVERY must be at least 1s")
	}
	if c.LeaderboardSize < 1 {
		return fmt.Errorf("STOCKSIM_LEADERBOARD_SIZE must be at least 1")
	}
	if c.EventHistory < 1 {
		return fmt.Errorf("STOCKSIM_EVENT_HISTORY must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if (c.DiscordWebhookID == "") != (c.DiscordWebhookToken == "") {
		return fmt.Errorf("DISCORD_WEBHOOK_ID and DISCORD_WEBHOOK_TOKEN must be set together")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}
