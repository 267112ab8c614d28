// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables. The configuration is static for the process lifetime; nothing
// in the engine mutates it after startup.
type Config struct {
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
	Symbols  []string `toml:"symbols"`

	Arbitrage   ArbitrageConfig        `toml:"arbitrage"`
	Venues      map[string]VenueConfig `toml:"venues"`
	Credentials CredentialsConfig      `toml:"credentials"`
	Postgres    PostgresConfig         `toml:"postgres"`
	Redis       RedisConfig            `toml:"redis"`
	S3          S3Config               `toml:"s3"`
	Archive     ArchiveConfig          `toml:"archive"`
	Server      ServerConfig           `toml:"server"`
	Notify      NotifyConfig           `toml:"notify"`
}

// ArbitrageConfig holds the detection and execution parameters.
type ArbitrageConfig struct {
	// MinProfitRatio is the minimum net profit per unit of buy-leg capital.
	MinProfitRatio float64 `toml:"min_profit_ratio"`
	// MinLiquidityUSD is the smallest buy-leg notional worth acting on.
	MinLiquidityUSD float64 `toml:"min_liquidity_usd"`
	// MaxOrderValueUSD caps the buy-leg notional of a single attempt.
	MaxOrderValueUSD float64 `toml:"max_order_value_usd"`
	// SafetyRatio (<1) haircuts displayed depth against partial fills.
	SafetyRatio float64 `toml:"safety_ratio"`
	// FeeMargin (>1) pads fee rates against tier uncertainty.
	FeeMargin float64 `toml:"fee_margin"`
	// MaxSlippage is the fractional slippage allowance per leg.
	MaxSlippage float64 `toml:"max_slippage"`

	FetchTimeout  duration `toml:"fetch_timeout"`
	ScanInterval  duration `toml:"scan_interval"`
	CycleTimeout  duration `toml:"cycle_timeout"`
	BackoffMax    duration `toml:"backoff_max"`
	MaxStaleness  duration `toml:"max_staleness"`
	PlaceAttempts int      `toml:"place_attempts"`
	RetryBackoff  duration `toml:"retry_backoff"`

	// CacheQuotes enables writing fetched quotes to Redis for inspection.
	CacheQuotes bool `toml:"cache_quotes"`
}

// VenueConfig is one venue's typed configuration entry. The venue name is
// the map key in the TOML file ([venues.binance]); unknown names fail
// validation at startup rather than at first use.
type VenueConfig struct {
	// Pairs maps canonical symbols to this venue's pair spelling,
	// e.g. BTC = "BTC/USDC".
	Pairs map[string]string `toml:"pairs"`
	// MakerFee/TakerFee override the built-in fee table when non-zero.
	MakerFee float64 `toml:"maker_fee"`
	TakerFee float64 `toml:"taker_fee"`
	// Plaintext API credentials. Prefer the encrypted credentials file.
	APIKey     string `toml:"api_key"`
	APISecret  string `toml:"api_secret"`
	Passphrase string `toml:"passphrase"`
}

// CredentialsConfig points at an encrypted venue-credentials file produced
// by the crossarb encrypt-creds helper.
type CredentialsConfig struct {
	EncryptedPath string `toml:"encrypted_path"`
	Password      string `toml:"password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls history archival to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds the ops HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "250ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the engine's default values.
// Thresholds match the risk settings the system was tuned with: 0.3% minimum
// profit, $5000 liquidity floor, $150 order cap, 1.2 fee margin, 0.9 depth
// haircut, 5 second quote expiry.
func Defaults() Config {
	return Config{
		Mode:     "scan",
		LogLevel: "info",
		Symbols:  []string{"BTC", "ETH", "SOL"},
		Arbitrage: ArbitrageConfig{
			MinProfitRatio:   0.003,
			MinLiquidityUSD:  5000,
			MaxOrderValueUSD: 150,
			SafetyRatio:      0.9,
			FeeMargin:        1.2,
			MaxSlippage:      0.0005,
			FetchTimeout:     duration{3 * time.Second},
			ScanInterval:     duration{5 * time.Second},
			CycleTimeout:     duration{5 * time.Second},
			BackoffMax:       duration{2 * time.Minute},
			MaxStaleness:     duration{5 * time.Second},
			PlaceAttempts:    3,
			RetryBackoff:     duration{250 * time.Millisecond},
			CacheQuotes:      false,
		},
		Venues: map[string]VenueConfig{
			"binance": {Pairs: map[string]string{"BTC": "BTC/USDC", "ETH": "ETH/USDC", "SOL": "SOL/USDC"}},
			"okx":     {Pairs: map[string]string{"BTC": "BTC/USDT", "ETH": "ETH/USDT", "SOL": "SOL/USDT"}},
			"gateio":  {Pairs: map[string]string{"BTC": "BTC/USDT", "ETH": "ETH/USDT", "SOL": "SOL/USDT"}},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "execution_settled", "execution_failed", "unwind_failed"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"trade":  true,
	"paper":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, paper, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Symbols) == 0 && c.Mode != "server" {
		errs = append(errs, "symbols: at least one symbol is required")
	}

	// Venues: names must parse, and every symbol needs at least two
	// venue mappings or no cross-venue comparison is ever possible.
	venueCount := map[string]int{}
	for name, vc := range c.Venues {
		if _, err := domain.ParseVenue(name); err != nil {
			errs = append(errs, "venues: "+err.Error())
			continue
		}
		for sym := range vc.Pairs {
			venueCount[strings.ToUpper(sym)]++
		}
	}
	for _, sym := range c.Symbols {
		if venueCount[strings.ToUpper(sym)] < 2 {
			errs = append(errs, fmt.Sprintf("symbols: %q is mapped on fewer than two venues", sym))
		}
	}

	a := c.Arbitrage
	if a.MinProfitRatio <= 0 {
		errs = append(errs, "arbitrage: min_profit_ratio must be > 0")
	}
	if a.MaxOrderValueUSD <= 0 {
		errs = append(errs, "arbitrage: max_order_value_usd must be > 0")
	}
	if a.SafetyRatio <= 0 || a.SafetyRatio >= 1 {
		errs = append(errs, fmt.Sprintf("arbitrage: safety_ratio must be in (0,1), got %v", a.SafetyRatio))
	}
	if a.FeeMargin < 1 {
		errs = append(errs, fmt.Sprintf("arbitrage: fee_margin must be >= 1, got %v", a.FeeMargin))
	}
	if a.MaxSlippage < 0 {
		errs = append(errs, "arbitrage: max_slippage must be >= 0")
	}
	if a.FetchTimeout.Duration <= 0 {
		errs = append(errs, "arbitrage: fetch_timeout must be positive")
	}
	if a.ScanInterval.Duration <= 0 {
		errs = append(errs, "arbitrage: scan_interval must be positive")
	}
	if a.MaxStaleness.Duration <= 0 {
		errs = append(errs, "arbitrage: max_staleness must be positive")
	}
	if a.PlaceAttempts < 1 {
		errs = append(errs, "arbitrage: place_attempts must be >= 1")
	}

	if c.Credentials.EncryptedPath != "" && c.Credentials.Password == "" {
		errs = append(errs, "credentials: password is required when encrypted_path is set")
	}

	needsPostgres := c.Mode == "trade" || c.Mode == "server" || c.Mode == "full"
	if needsPostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SymbolMap builds the typed symbol-resolution table from the venue config.
// Call only after Validate.
func (c *Config) SymbolMap() *domain.SymbolMap {
	entries := make(map[string]map[domain.Venue]string)
	for name, vc := range c.Venues {
		venue, err := domain.ParseVenue(name)
		if err != nil {
			continue
		}
		for sym, pair := range vc.Pairs {
			sym = strings.ToUpper(sym)
			if entries[sym] == nil {
				entries[sym] = make(map[domain.Venue]string)
			}
			entries[sym][venue] = pair
		}
	}
	return domain.NewSymbolMap(entries)
}

// FeeSchedules returns the per-venue fee overrides present in the config.
func (c *Config) FeeSchedules() map[domain.Venue]domain.FeeSchedule {
	out := make(map[domain.Venue]domain.FeeSchedule)
	for name, vc := range c.Venues {
		venue, err := domain.ParseVenue(name)
		if err != nil {
			continue
		}
		if vc.MakerFee == 0 && vc.TakerFee == 0 {
			continue
		}
		out[venue] = domain.FeeSchedule{Venue: venue, MakerRate: vc.MakerFee, TakerRate: vc.TakerFee}
	}
	return out
}

// ConfiguredVenues returns the parsed venue identifiers in the config.
func (c *Config) ConfiguredVenues() []domain.Venue {
	out := make([]domain.Venue, 0, len(c.Venues))
	for name := range c.Venues {
		if venue, err := domain.ParseVenue(name); err == nil {
			out = append(out, venue)
		}
	}
	return out
}
