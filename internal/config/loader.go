package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in layers: built-in defaults, then the TOML file
// at path (if it exists), then CROSSARB_* environment variables. A .env file
// in the working directory is loaded first so local development does not
// need exported variables.
func Load(path string) (*Config, error) {
	// Missing .env is fine; only a malformed one is an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("decoding config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides maps CROSSARB_* environment variables onto config
// fields. Only operational knobs and secrets are overridable; structural
// tables like venue pair mappings stay in the file.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			dst.Duration = d
		}
	}

	setString("CROSSARB_MODE", &cfg.Mode)
	setString("CROSSARB_LOG_LEVEL", &cfg.LogLevel)
	if v, ok := os.LookupEnv("CROSSARB_SYMBOLS"); ok {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		cfg.Symbols = symbols
	}

	setFloat("CROSSARB_MIN_PROFIT_RATIO", &cfg.Arbitrage.MinProfitRatio)
	setFloat("CROSSARB_MIN_LIQUIDITY_USD", &cfg.Arbitrage.MinLiquidityUSD)
	setFloat("CROSSARB_MAX_ORDER_VALUE_USD", &cfg.Arbitrage.MaxOrderValueUSD)
	setFloat("CROSSARB_SAFETY_RATIO", &cfg.Arbitrage.SafetyRatio)
	setFloat("CROSSARB_FEE_MARGIN", &cfg.Arbitrage.FeeMargin)
	setFloat("CROSSARB_MAX_SLIPPAGE", &cfg.Arbitrage.MaxSlippage)
	setDuration("CROSSARB_SCAN_INTERVAL", &cfg.Arbitrage.ScanInterval)
	setDuration("CROSSARB_FETCH_TIMEOUT", &cfg.Arbitrage.FetchTimeout)
	setDuration("CROSSARB_MAX_STALENESS", &cfg.Arbitrage.MaxStaleness)
	setBool("CROSSARB_CACHE_QUOTES", &cfg.Arbitrage.CacheQuotes)

	setString("CROSSARB_CREDENTIALS_PATH", &cfg.Credentials.EncryptedPath)
	setString("CROSSARB_CREDENTIALS_PASSWORD", &cfg.Credentials.Password)

	setString("CROSSARB_POSTGRES_DSN", &cfg.Postgres.DSN)
	setString("CROSSARB_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("CROSSARB_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("CROSSARB_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("CROSSARB_POSTGRES_USER", &cfg.Postgres.User)
	setString("CROSSARB_POSTGRES_PASSWORD", &cfg.Postgres.Password)

	setString("CROSSARB_REDIS_ADDR", &cfg.Redis.Addr)
	setString("CROSSARB_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("CROSSARB_REDIS_DB", &cfg.Redis.DB)
	setBool("CROSSARB_REDIS_TLS", &cfg.Redis.TLSEnabled)

	setString("CROSSARB_S3_ENDPOINT", &cfg.S3.Endpoint)
	setString("CROSSARB_S3_REGION", &cfg.S3.Region)
	setString("CROSSARB_S3_BUCKET", &cfg.S3.Bucket)
	setString("CROSSARB_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setString("CROSSARB_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setBool("CROSSARB_ARCHIVE_ENABLED", &cfg.Archive.Enabled)

	setBool("CROSSARB_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("CROSSARB_SERVER_PORT", &cfg.Server.Port)

	setString("CROSSARB_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setString("CROSSARB_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setString("CROSSARB_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)

	if len(errs) > 0 {
		return fmt.Errorf("invalid values:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
