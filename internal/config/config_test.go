package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.LogLevel = "loud"
	cfg.Arbitrage.SafetyRatio = 1.5
	cfg.Arbitrage.FeeMargin = 0.5
	cfg.Arbitrage.MaxOrderValueUSD = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "safety_ratio", "fee_margin", "max_order_value_usd"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateSymbolNeedsTwoVenues(t *testing.T) {
	cfg := Defaults()
	cfg.Symbols = []string{"BTC", "DOGE"}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `"DOGE" is mapped on fewer than two venues`) {
		t.Fatalf("err = %v, want unmapped-symbol complaint", err)
	}
}

func TestValidateRejectsUnknownVenue(t *testing.T) {
	cfg := Defaults()
	cfg.Venues["mtgox"] = VenueConfig{Pairs: map[string]string{"BTC": "BTC/USD"}}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown venue") {
		t.Fatalf("err = %v, want unknown venue complaint", err)
	}
}

func TestValidateTradeModeRequiresPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "postgres: host") {
		t.Fatalf("err = %v, want postgres host complaint", err)
	}

	// A DSN stands in for the discrete fields.
	cfg.Postgres.DSN = "postgres://u:p@db:5432/crossarb"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DSN should satisfy postgres requirements: %v", err)
	}
}

func TestValidateScanModeSkipsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("scan mode must not require postgres: %v", err)
	}
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "s3: bucket") {
		t.Fatalf("err = %v, want s3 bucket complaint", err)
	}
}

func TestSymbolMap(t *testing.T) {
	cfg := Defaults()
	sm := cfg.SymbolMap()

	pair, err := sm.Pair("BTC", domain.VenueBinance)
	if err != nil || pair != "BTC/USDC" {
		t.Fatalf("Pair(BTC, binance) = %q, %v", pair, err)
	}
	pair, err = sm.Pair("btc", domain.VenueOKX)
	if err != nil || pair != "BTC/USDT" {
		t.Fatalf("Pair(btc, okx) = %q, %v", pair, err)
	}
	if venues := sm.Venues("BTC"); len(venues) != 3 {
		t.Fatalf("Venues(BTC) = %v, want 3", venues)
	}
}

func TestFeeSchedulesOnlyOverrides(t *testing.T) {
	cfg := Defaults()
	vc := cfg.Venues["okx"]
	vc.TakerFee = 0.0008
	cfg.Venues["okx"] = vc

	schedules := cfg.FeeSchedules()
	if len(schedules) != 1 {
		t.Fatalf("schedules = %v, want only the okx override", schedules)
	}
	if fs := schedules[domain.VenueOKX]; fs.TakerRate != 0.0008 {
		t.Fatalf("okx taker = %v, want 0.0008", fs.TakerRate)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "scan" || cfg.Arbitrage.MinProfitRatio != 0.003 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crossarb.toml")
	body := `
mode = "paper"
symbols = ["BTC"]

[arbitrage]
min_profit_ratio = 0.01
scan_interval = "2s"

[venues.binance]
maker_fee = 0.00075
[venues.binance.pairs]
BTC = "BTC/USDC"

[venues.okx.pairs]
BTC = "BTC/USDT"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "paper" {
		t.Fatalf("mode = %q, want paper", cfg.Mode)
	}
	if cfg.Arbitrage.MinProfitRatio != 0.01 {
		t.Fatalf("min_profit_ratio = %v, want 0.01", cfg.Arbitrage.MinProfitRatio)
	}
	if cfg.Arbitrage.ScanInterval.Duration != 2*time.Second {
		t.Fatalf("scan_interval = %v, want 2s", cfg.Arbitrage.ScanInterval.Duration)
	}
	if cfg.Venues["binance"].MakerFee != 0.00075 {
		t.Fatalf("binance maker_fee = %v", cfg.Venues["binance"].MakerFee)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CROSSARB_MODE", "trade")
	t.Setenv("CROSSARB_SYMBOLS", "BTC, ETH ,")
	t.Setenv("CROSSARB_MIN_PROFIT_RATIO", "0.005")
	t.Setenv("CROSSARB_MAX_ORDER_VALUE_USD", "500")
	t.Setenv("CROSSARB_SCAN_INTERVAL", "1s")
	t.Setenv("CROSSARB_REDIS_ADDR", "redis:6380")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "trade" {
		t.Fatalf("mode = %q, want trade", cfg.Mode)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "BTC" || cfg.Symbols[1] != "ETH" {
		t.Fatalf("symbols = %v", cfg.Symbols)
	}
	if cfg.Arbitrage.MinProfitRatio != 0.005 {
		t.Fatalf("min_profit_ratio = %v", cfg.Arbitrage.MinProfitRatio)
	}
	if cfg.Arbitrage.MaxOrderValueUSD != 500 {
		t.Fatalf("max_order_value_usd = %v", cfg.Arbitrage.MaxOrderValueUSD)
	}
	if cfg.Arbitrage.ScanInterval.Duration != time.Second {
		t.Fatalf("scan_interval = %v", cfg.Arbitrage.ScanInterval.Duration)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadEnvOverrideBadValue(t *testing.T) {
	t.Setenv("CROSSARB_MIN_PROFIT_RATIO", "a lot")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric override")
	}
}
