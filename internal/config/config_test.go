package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "grid_trader/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateSpacingDrivesPricesNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.SpacingPercent = 15.0
	cfg.Grid.LowerCount = 10

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigError(err))
	assert.Contains(t, err.Error(), "spacing_percent")
}

func TestValidateRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero spacing", func(c *Config) { c.Grid.SpacingPercent = 0 }, "spacing_percent"},
		{"no upper levels", func(c *Config) { c.Grid.UpperCount = 0 }, "upper_count"},
		{"no lower levels", func(c *Config) { c.Grid.LowerCount = 0 }, "lower_count"},
		{"zero per-order", func(c *Config) { c.Grid.PerOrderAmount = 0 }, "per_order_amount"},
		{"zero balance", func(c *Config) { c.Grid.InitialBalance = 0 }, "initial_balance"},
		{"unknown fill policy", func(c *Config) { c.Grid.FillPolicy = "martingale" }, "fill_policy"},
		{"unknown reposition mode", func(c *Config) { c.Grid.RepositionMode = "teleport" }, "reposition_mode"},
		{"multiplier out of range", func(c *Config) { c.Grid.BreakthroughMultiplier = 1.5 }, "breakthrough_multiplier"},
		{"missing ticker", func(c *Config) { c.App.Ticker = "" }, "ticker"},
		{"bad log level", func(c *Config) { c.System.LogLevel = "VERBOSE" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateInsufficientBalance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.InitialBalance = 500 // 20 levels * 50 = 1000 required

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_balance")
}

func TestAdvisoriesCompressedLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.SpacingPercent = 8.0
	cfg.Grid.LowerCount = 10 // 80% reduction: valid but compressed
	cfg.Grid.InitialBalance = 5000

	require.NoError(t, cfg.Validate())

	warnings := cfg.Advisories()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "compressed") {
			found = true
		}
	}
	assert.True(t, found, "expected a compression advisory, got %v", warnings)
}

func TestAdvisoriesCleanConfig(t *testing.T) {
	cfg := DefaultConfig()
	for _, w := range cfg.Advisories() {
		assert.NotContains(t, w, "compressed")
	}
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GRID_TICKER", "SOL")

	yamlContent := `
app:
  exchange: sim
  ticker: ${TEST_GRID_TICKER}
  contract_id: SOL-USDT
grid:
  spacing_percent: 1.5
  upper_count: 5
  lower_count: 5
  per_order_amount: 20
  initial_balance: 500
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "SOL", cfg.App.Ticker)
	assert.Equal(t, FillPolicyRefill, cfg.Grid.FillPolicy)
	assert.Equal(t, RepositionRebuild, cfg.Grid.RepositionMode)
	assert.Equal(t, 0.5, cfg.Grid.BreakthroughMultiplier)
	assert.Equal(t, 60, cfg.Timing.MonitorInterval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestSpacingFraction(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "0.01", cfg.Spacing().String())
}
