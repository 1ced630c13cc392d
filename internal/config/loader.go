package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOON_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOON_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Token ──
	setStr(&cfg.Token.Address, "SOON_TOKEN_ADDRESS")
	setStr(&cfg.Token.Owner, "SOON_TOKEN_OWNER")
	setStr(&cfg.Token.Genesis, "SOON_TOKEN_GENESIS")
	setStr(&cfg.Token.Supply, "SOON_TOKEN_SUPPLY")

	// ── Tax ──
	setUint32(&cfg.Tax.TotalBips, "SOON_TAX_TOTAL_BIPS")
	setUint32(&cfg.Tax.ReflectionBips, "SOON_TAX_REFLECTION_BIPS")
	setUint32(&cfg.Tax.BurnBips, "SOON_TAX_BURN_BIPS")
	setUint32(&cfg.Tax.LiquidityBips, "SOON_TAX_LIQUIDITY_BIPS")
	setStr(&cfg.Tax.LiquidityRecipient, "SOON_TAX_LIQUIDITY_RECIPIENT")

	// ── Rebalancer ──
	setStr(&cfg.Rebalancer.Treasury, "SOON_REBALANCER_TREASURY")
	setStr(&cfg.Rebalancer.PairedToken, "SOON_REBALANCER_PAIRED_TOKEN")
	setStr(&cfg.Rebalancer.BaseToken, "SOON_REBALANCER_BASE_TOKEN")
	setStr(&cfg.Rebalancer.PoolAccount, "SOON_REBALANCER_POOL_ACCOUNT")
	setUint32(&cfg.Rebalancer.FeeTier, "SOON_REBALANCER_FEE_TIER")
	setInt32(&cfg.Rebalancer.HalfWidthTicks, "SOON_REBALANCER_HALF_WIDTH_TICKS")
	setUint32(&cfg.Rebalancer.TwapWindowSec, "SOON_REBALANCER_TWAP_WINDOW_SECONDS")
	setBool(&cfg.Rebalancer.AutoRebalance, "SOON_REBALANCER_AUTO_REBALANCE")
	setDuration(&cfg.Rebalancer.AutoInterval, "SOON_REBALANCER_AUTO_INTERVAL")

	// ── Oracle ──
	setStr(&cfg.Oracle.Pool, "SOON_ORACLE_POOL")
	setInt64(&cfg.Oracle.StaticTick, "SOON_ORACLE_STATIC_TICK")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SOON_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "SOON_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.PrivateKey, "SOON_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.PositionManager, "SOON_CHAIN_POSITION_MANAGER")

	// ── Claims ──
	setBool(&cfg.Claims.Enabled, "SOON_CLAIMS_ENABLED")
	setStr(&cfg.Claims.Root, "SOON_CLAIMS_ROOT")
	setStr(&cfg.Claims.Source, "SOON_CLAIMS_SOURCE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SOON_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SOON_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOON_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOON_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOON_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOON_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOON_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SOON_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SOON_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SOON_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOON_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOON_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOON_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOON_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOON_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SOON_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SOON_S3_REGION")
	setStr(&cfg.S3.Bucket, "SOON_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SOON_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SOON_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "SOON_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOON_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOON_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOON_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SOON_SERVER_API_KEY")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "SOON_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "SOON_SNAPSHOT_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOON_MODE")
	setStr(&cfg.LogLevel, "SOON_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
