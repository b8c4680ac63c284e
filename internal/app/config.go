package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (SETTLE_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; empty keeps all state in memory" flag:"database-url"`
	Settlement  SettlementConfig
	Receipt     ReceiptConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// SettlementConfig tunes the settlement flow.
type SettlementConfig struct {
	ChangeDisplay time.Duration `default:"4s" usage:"How long the change due stays on screen before the order is finalized" flag:"change-display"`
	SessionTTL    time.Duration `default:"15m" usage:"How long a partial settlement waits for confirmation" flag:"session-ttl"`
	// MaxPendingIntents is the readiness limit for commits left unfinished.
	MaxPendingIntents int `default:"10" usage:"Pending settlement intents tolerated before readiness fails" flag:"max-pending-intents"`
}

// ReceiptConfig controls printed documents.
type ReceiptConfig struct {
	Width  int      `default:"42" usage:"Receipt width in columns"`
	Venue  []string `usage:"Header lines printed on every document"`
	Footer string   `default:"Thank you" usage:"Footer line printed on every document"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a .env file (if present), environment
// variables, and YAML config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SETTLE",
		Files:     []string{"config.yaml", "/etc/settle/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.Settlement.ChangeDisplay < 0 {
		return nil, errors.New("change display duration must not be negative")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the application's
// SETTLE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
