package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// validConfig returns a sim-mode config that passes validation.
func validConfig() Config {
	cfg := Defaults()
	cfg.Token.Address = "0x1111111111111111111111111111111111111111"
	cfg.Token.Owner = "0x2222222222222222222222222222222222222222"
	cfg.Token.Genesis = "0x3333333333333333333333333333333333333333"
	cfg.Rebalancer.Treasury = "0x4444444444444444444444444444444444444444"
	cfg.Rebalancer.PairedToken = "0x5555555555555555555555555555555555555555"
	cfg.Rebalancer.PoolAccount = "0x6666666666666666666666666666666666666666"
	return cfg
}

func TestValidateAcceptsSimDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"missing token owner", func(c *Config) { c.Token.Owner = "" }},
		{"bad token address", func(c *Config) { c.Token.Address = "not-hex" }},
		{"zero supply", func(c *Config) { c.Token.Supply = "0" }},
		{"non-decimal supply", func(c *Config) { c.Token.Supply = "1e9" }},
		{"tax split mismatch", func(c *Config) { c.Tax.BurnBips = 201 }},
		{"tax total above engine cap", func(c *Config) {
			c.Tax.TotalBips = 1_001
			c.Tax.ReflectionBips = 1_001
			c.Tax.BurnBips = 0
			c.Tax.LiquidityBips = 0
		}},
		{"half width too large", func(c *Config) { c.Rebalancer.HalfWidthTicks = 20_000 }},
		{"half width zero", func(c *Config) { c.Rebalancer.HalfWidthTicks = 0 }},
		{"twap window too short", func(c *Config) { c.Rebalancer.TwapWindowSec = 599 }},
		{"twap window too long", func(c *Config) { c.Rebalancer.TwapWindowSec = 86_401 }},
		{"sim without pool account", func(c *Config) { c.Rebalancer.PoolAccount = "" }},
		{"claims without root", func(c *Config) {
			c.Claims.Enabled = true
			c.Claims.Source = "0x7777777777777777777777777777777777777777"
		}},
		{"full without rpc", func(c *Config) { c.Mode = "full" }},
		{"server port out of range", func(c *Config) { c.Server.Port = 70_000 }},
		{"snapshot without bucket", func(c *Config) {
			c.Snapshot.Enabled = true
			c.S3.Bucket = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "sim"

[token]
address = "0x1111111111111111111111111111111111111111"
owner = "0x2222222222222222222222222222222222222222"
genesis = "0x3333333333333333333333333333333333333333"
supply = "1000000"

[rebalancer]
auto_interval = "5m"
`), 0o600))

	t.Setenv("SOON_TOKEN_SUPPLY", "2000000")
	t.Setenv("SOON_SERVER_PORT", "9100")
	t.Setenv("SOON_REBALANCER_AUTO_REBALANCE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File overrides defaults, env overrides file.
	require.Equal(t, "sim", cfg.Mode)
	require.Equal(t, "2000000", cfg.Token.Supply)
	require.Equal(t, 9100, cfg.Server.Port)
	require.True(t, cfg.Rebalancer.AutoRebalance)
	require.Equal(t, "5m0s", cfg.Rebalancer.AutoInterval.String())

	// Untouched sections keep their defaults.
	require.Equal(t, uint32(690), cfg.Tax.TotalBips)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.APIKey = "hunter2"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Chain.PrivateKey)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Redis.Password)
	require.Equal(t, "***", red.S3.SecretKey)
	require.Equal(t, "***", red.Server.APIKey)

	// Originals are untouched.
	require.Equal(t, "deadbeef", cfg.Chain.PrivateKey)

	// The redacted copy owns its slices.
	red.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
