// Package config defines the top-level configuration for the tokenomics
// engine and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sooncult/soon-coin/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SOON_* environment variables.
type Config struct {
	Token      TokenConfig      `toml:"token"`
	Tax        TaxConfig        `toml:"tax"`
	Rebalancer RebalancerConfig `toml:"rebalancer"`
	Oracle     OracleConfig     `toml:"oracle"`
	Chain      ChainConfig      `toml:"chain"`
	Claims     ClaimsConfig     `toml:"claims"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// TokenConfig holds the token identity and genesis parameters.
type TokenConfig struct {
	// Address is the token's external identity; it orders the trading pair.
	Address string `toml:"address"`
	// Owner is the admin identity for every owner-gated operation.
	Owner string `toml:"owner"`
	// Genesis receives the entire initial supply.
	Genesis string `toml:"genesis"`
	// Supply is the initial true supply, a decimal string in base units.
	Supply string `toml:"supply"`
}

// TaxConfig holds the transfer tax split in bips.
type TaxConfig struct {
	TotalBips      uint32 `toml:"total_bips"`
	ReflectionBips uint32 `toml:"reflection_bips"`
	BurnBips       uint32 `toml:"burn_bips"`
	LiquidityBips  uint32 `toml:"liquidity_bips"`
	// LiquidityRecipient receives the liquidity share; empty leaves it unset
	// (transfers with a non-zero liquidity share then fail).
	LiquidityRecipient string `toml:"liquidity_recipient"`
}

// RebalancerConfig holds the liquidity position parameters.
type RebalancerConfig struct {
	// Treasury holds the working capital the position is minted from.
	Treasury string `toml:"treasury"`
	// PairedToken is the asset the token trades against.
	PairedToken string `toml:"paired_token"`
	// BaseToken is the chain's base currency wrapper, used for rescue only.
	BaseToken string `toml:"base_token"`
	// PoolAccount holds deposited liquidity in sim mode.
	PoolAccount string `toml:"pool_account"`

	FeeTier        uint32 `toml:"fee_tier"`
	HalfWidthTicks int32  `toml:"half_width_ticks"`
	TwapWindowSec  uint32 `toml:"twap_window_seconds"`

	// AutoRebalance runs Rebalance on a timer in full mode.
	AutoRebalance bool     `toml:"auto_rebalance"`
	AutoInterval  duration `toml:"auto_interval"`
}

// OracleConfig selects the price oracle.
type OracleConfig struct {
	// Pool is the v3 pool whose observations drive the TWAP (full mode).
	Pool string `toml:"pool"`
	// StaticTick is the fixed tick reported in sim and server modes.
	StaticTick int64 `toml:"static_tick"`
}

// ChainConfig holds the on-chain adapter parameters (full mode).
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int64  `toml:"chain_id"`
	PrivateKey      string `toml:"private_key"`
	PositionManager string `toml:"position_manager"`
}

// ClaimsConfig holds the Merkle allocation distributor parameters.
type ClaimsConfig struct {
	Enabled bool `toml:"enabled"`
	// Root is the hex-encoded Merkle root claims are verified against.
	Root string `toml:"root"`
	// Source is the funded, fee-exempt account claims are paid from.
	Source string `toml:"source"`
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
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every endpoint except /api/health; empty disables auth.
	APIKey string `toml:"api_key"`
}

// SnapshotConfig holds the periodic ledger snapshot parameters.
type SnapshotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Token: TokenConfig{
			Supply: "6942000000",
		},
		Tax: TaxConfig{
			TotalBips:      690,
			ReflectionBips: 333,
			BurnBips:       200,
			LiquidityBips:  157,
		},
		Rebalancer: RebalancerConfig{
			FeeTier:        3000,
			HalfWidthTicks: 4000,
			TwapWindowSec:  1800,
			AutoRebalance:  false,
			AutoInterval:   duration{15 * time.Minute},
		},
		Oracle: OracleConfig{
			StaticTick: 0,
		},
		Claims: ClaimsConfig{
			Enabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "soon-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Snapshot: SnapshotConfig{
			Enabled:  false,
			Interval: duration{1 * time.Hour},
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"sim":    true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Parameter bounds, matching the engine's own limits.
const (
	maxHalfWidthTicks = 20_000
	minTwapWindowSec  = 600
	maxTwapWindowSec  = 86_400
)

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, sim, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	checkAddr := func(section, field, v string, required bool) {
		if v == "" {
			if required {
				errs = append(errs, fmt.Sprintf("%s: %s must be set", section, field))
			}
			return
		}
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Sprintf("%s: %s is not a valid address: %q", section, field, v))
		}
	}

	// Token
	checkAddr("token", "address", c.Token.Address, true)
	checkAddr("token", "owner", c.Token.Owner, true)
	checkAddr("token", "genesis", c.Token.Genesis, true)
	if supply, ok := new(big.Int).SetString(c.Token.Supply, 10); !ok || supply.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("token: supply must be a positive decimal, got %q", c.Token.Supply))
	}

	// Tax
	if c.Tax.TotalBips > domain.MaxTotalTaxBips {
		errs = append(errs, fmt.Sprintf("tax: total_bips must be <= %d, got %d", domain.MaxTotalTaxBips, c.Tax.TotalBips))
	}
	if c.Tax.ReflectionBips+c.Tax.BurnBips+c.Tax.LiquidityBips != c.Tax.TotalBips {
		errs = append(errs, fmt.Sprintf("tax: reflection+burn+liquidity (%d) must equal total_bips (%d)",
			c.Tax.ReflectionBips+c.Tax.BurnBips+c.Tax.LiquidityBips, c.Tax.TotalBips))
	}
	checkAddr("tax", "liquidity_recipient", c.Tax.LiquidityRecipient, false)

	// Rebalancer
	checkAddr("rebalancer", "treasury", c.Rebalancer.Treasury, true)
	checkAddr("rebalancer", "paired_token", c.Rebalancer.PairedToken, true)
	checkAddr("rebalancer", "base_token", c.Rebalancer.BaseToken, false)
	if mode == "sim" {
		checkAddr("rebalancer", "pool_account", c.Rebalancer.PoolAccount, true)
	}
	if c.Rebalancer.HalfWidthTicks <= 0 || c.Rebalancer.HalfWidthTicks >= maxHalfWidthTicks {
		errs = append(errs, fmt.Sprintf("rebalancer: half_width_ticks must be in (0, %d), got %d",
			maxHalfWidthTicks, c.Rebalancer.HalfWidthTicks))
	}
	if c.Rebalancer.TwapWindowSec < minTwapWindowSec || c.Rebalancer.TwapWindowSec > maxTwapWindowSec {
		errs = append(errs, fmt.Sprintf("rebalancer: twap_window_seconds must be in [%d, %d], got %d",
			minTwapWindowSec, maxTwapWindowSec, c.Rebalancer.TwapWindowSec))
	}
	if c.Rebalancer.AutoRebalance && c.Rebalancer.AutoInterval.Duration <= 0 {
		errs = append(errs, "rebalancer: auto_interval must be > 0 when auto_rebalance is set")
	}

	// Chain adapters are only dialed in full mode.
	if mode == "full" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url is required for mode full")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
		}
		if c.Chain.PrivateKey == "" {
			errs = append(errs, "chain: private_key is required for mode full")
		}
		checkAddr("chain", "position_manager", c.Chain.PositionManager, true)
		checkAddr("oracle", "pool", c.Oracle.Pool, true)
	}

	// Claims
	if c.Claims.Enabled {
		if len(common.FromHex(c.Claims.Root)) != 32 {
			errs = append(errs, fmt.Sprintf("claims: root must be a 32-byte hex hash, got %q", c.Claims.Root))
		}
		checkAddr("claims", "source", c.Claims.Source, true)
	}

	// Postgres and Redis are not dialed in sim mode.
	if mode != "sim" {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 is only reached when snapshots are on.
	if c.Snapshot.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when snapshots are enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when snapshots are enabled")
		}
		if c.Snapshot.Interval.Duration <= 0 {
			errs = append(errs, "snapshot: interval must be > 0")
		}
	}

	// Server
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
