// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	apperrors "grid_trader/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Fill policies
const (
	FillPolicyRefill = "refill"
	FillPolicyFlip   = "flip"
)

// Reposition modes
const (
	RepositionRebuild = "rebuild"
	RepositionShift   = "shift"
)

// Config represents the complete configuration structure
type Config struct {
	App    AppConfig    `yaml:"app"`
	Grid   GridConfig   `yaml:"grid"`
	System SystemConfig `yaml:"system"`
	Timing TimingConfig `yaml:"timing"`
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Exchange   string `yaml:"exchange"`    // Exchange name, drives precision tiers
	Ticker     string `yaml:"ticker"`      // Base asset symbol, e.g. ETH
	ContractID string `yaml:"contract_id"` // Venue contract identifier, e.g. ETH-USDT
}

// GridConfig contains the grid strategy parameters
type GridConfig struct {
	SpacingPercent          float64 `yaml:"spacing_percent"`          // Grid spacing as percent, e.g. 1.0 = 1%
	UpperCount              int     `yaml:"upper_count"`              // Sell levels above center
	LowerCount              int     `yaml:"lower_count"`              // Buy levels below center
	PerOrderAmount          float64 `yaml:"per_order_amount"`         // Quote notional per order
	InitialBalance          float64 `yaml:"initial_balance"`          // Quote balance available to the grid
	FillPolicy              string  `yaml:"fill_policy"`              // refill | flip
	RepositionMode          string  `yaml:"reposition_mode"`          // rebuild | shift
	DynamicEnabled          bool    `yaml:"dynamic_enabled"`          // Enable breakthrough repositioning
	BreakthroughMultiplier  float64 `yaml:"breakthrough_multiplier"`  // Fraction of one grid step, default 0.5
	StopPrice               float64 `yaml:"stop_price"`               // Graceful shutdown when crossed, 0 disables
	PausePrice              float64 `yaml:"pause_price"`              // Suspend placements when crossed, 0 disables
	CancelOnExit            bool    `yaml:"cancel_on_exit"`           // Cancel resting orders during shutdown
	MaxActiveOrders         int     `yaml:"max_active_orders"`        // Safety cap, 0 means upper+lower
	HealthWarnRatioPercent  int     `yaml:"health_warn_ratio"`        // Warn when active/expected drops below, default 80
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TimingConfig contains timing-related settings, all in seconds unless noted
type TimingConfig struct {
	LoopInterval         int `yaml:"loop_interval"`          // Control loop tick, default 1
	MonitorInterval      int `yaml:"monitor_interval"`       // Health reconciliation cadence, default 60
	BreakthroughInterval int `yaml:"breakthrough_interval"`  // Breakthrough check cadence, default 10
	OrderPaceMillis      int `yaml:"order_pace_millis"`      // Delay between successive order calls, default 100
}

// ServerConfig contains the live status server and metrics endpoint settings
type ServerConfig struct {
	LiveAddr    string `yaml:"live_addr"`    // WebSocket status server address, empty disables
	MetricsPort int    `yaml:"metrics_port"` // Prometheus endpoint port, 0 disables
}

// StoreConfig contains snapshot persistence settings
type StoreConfig struct {
	DBPath string `yaml:"db_path"` // SQLite file path, empty uses in-memory store
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Grid.FillPolicy == "" {
		c.Grid.FillPolicy = FillPolicyRefill
	}
	if c.Grid.RepositionMode == "" {
		c.Grid.RepositionMode = RepositionRebuild
	}
	if c.Grid.BreakthroughMultiplier == 0 {
		c.Grid.BreakthroughMultiplier = 0.5
	}
	if c.Grid.HealthWarnRatioPercent == 0 {
		c.Grid.HealthWarnRatioPercent = 80
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Timing.LoopInterval == 0 {
		c.Timing.LoopInterval = 1
	}
	if c.Timing.MonitorInterval == 0 {
		c.Timing.MonitorInterval = 60
	}
	if c.Timing.BreakthroughInterval == 0 {
		c.Timing.BreakthroughInterval = 10
	}
	if c.Timing.OrderPaceMillis == 0 {
		c.Timing.OrderPaceMillis = 100
	}
}

// Validate performs comprehensive validation of the configuration. Every
// problem it returns is fatal; nothing touches the network before it passes.
func (c *Config) Validate() error {
	if c.App.Ticker == "" {
		return apperrors.NewConfigError("app.ticker", "ticker is required")
	}
	if c.App.ContractID == "" {
		return apperrors.NewConfigError("app.contract_id", "contract id is required")
	}

	g := &c.Grid
	if g.SpacingPercent <= 0 {
		return apperrors.NewConfigError("grid.spacing_percent", "spacing must be positive, got %v", g.SpacingPercent)
	}
	if g.UpperCount < 1 {
		return apperrors.NewConfigError("grid.upper_count", "at least one sell level required, got %d", g.UpperCount)
	}
	if g.LowerCount < 1 {
		return apperrors.NewConfigError("grid.lower_count", "at least one buy level required, got %d", g.LowerCount)
	}
	if g.PerOrderAmount <= 0 {
		return apperrors.NewConfigError("grid.per_order_amount", "per-order amount must be positive, got %v", g.PerOrderAmount)
	}
	if g.InitialBalance <= 0 {
		return apperrors.NewConfigError("grid.initial_balance", "initial balance must be positive, got %v", g.InitialBalance)
	}

	// The lowest buy level is center*(1 - spacing*lowerCount); a total lower
	// reduction at or beyond 100% would price levels at or below zero.
	lowerReduction := g.SpacingPercent / 100 * float64(g.LowerCount)
	if lowerReduction >= 1.0 {
		return apperrors.NewConfigError("grid.spacing_percent",
			"spacing %.2f%% over %d lower levels reduces price by %.0f%%, lowest levels would be non-positive",
			g.SpacingPercent, g.LowerCount, lowerReduction*100)
	}

	if g.FillPolicy != FillPolicyRefill && g.FillPolicy != FillPolicyFlip {
		return apperrors.NewConfigError("grid.fill_policy", "must be %q or %q, got %q", FillPolicyRefill, FillPolicyFlip, g.FillPolicy)
	}
	if g.RepositionMode != RepositionRebuild && g.RepositionMode != RepositionShift {
		return apperrors.NewConfigError("grid.reposition_mode", "must be %q or %q, got %q", RepositionRebuild, RepositionShift, g.RepositionMode)
	}
	if g.BreakthroughMultiplier <= 0 || g.BreakthroughMultiplier > 1 {
		return apperrors.NewConfigError("grid.breakthrough_multiplier", "must be in (0, 1], got %v", g.BreakthroughMultiplier)
	}

	required := float64(g.UpperCount+g.LowerCount) * g.PerOrderAmount
	if required > g.InitialBalance {
		return apperrors.NewConfigError("grid.initial_balance",
			"grid requires %.2f but initial balance is %.2f", required, g.InitialBalance)
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return apperrors.NewConfigError("system.log_level", "must be one of: %s", strings.Join(validLevels, ", "))
	}

	return nil
}

// Advisories returns non-fatal warnings about the grid parameters. They are
// logged once at startup and never block the run.
func (c *Config) Advisories() []string {
	var warnings []string
	g := &c.Grid

	lowerReduction := g.SpacingPercent / 100 * float64(g.LowerCount)
	if lowerReduction >= 0.8 {
		warnings = append(warnings, fmt.Sprintf(
			"lower levels compressed near zero: spacing %.2f%% over %d levels reduces price by %.0f%%",
			g.SpacingPercent, g.LowerCount, lowerReduction*100))
	}

	if g.SpacingPercent < 0.1 {
		warnings = append(warnings, "grid spacing below 0.1% may trade too frequently to cover fees")
	}
	if g.SpacingPercent > 10 {
		warnings = append(warnings, "grid spacing above 10% may miss most trading opportunities")
	}
	if g.UpperCount > 50 || g.LowerCount > 50 {
		warnings = append(warnings, "more than 50 levels per side ties up capital with little added benefit")
	}
	if g.PerOrderAmount < 10 {
		warnings = append(warnings, "per-order amount below 10 may not be worth the trading fees")
	}

	totalRange := g.SpacingPercent * float64(g.UpperCount+g.LowerCount)
	if totalRange < 10 {
		warnings = append(warnings, fmt.Sprintf(
			"price coverage is narrow (%.1f%%), volatile markets may break through the band quickly", totalRange))
	} else if totalRange > 50 {
		warnings = append(warnings, fmt.Sprintf(
			"price coverage is wide (%.1f%%), capital may sit unused for long stretches", totalRange))
	}

	required := float64(g.UpperCount+g.LowerCount) * g.PerOrderAmount
	if required < g.InitialBalance*0.1 {
		warnings = append(warnings, fmt.Sprintf(
			"capital utilization is low (%.1f%%), consider more levels or a larger per-order amount",
			required/g.InitialBalance*100))
	}

	return warnings
}

// Spacing returns the spacing as a decimal fraction (1.0% -> 0.01).
func (c *Config) Spacing() decimal.Decimal {
	return decimal.NewFromFloat(c.Grid.SpacingPercent).Div(decimal.NewFromInt(100))
}

// PerOrderAmount returns the per-order quote notional as a decimal.
func (c *Config) PerOrderAmount() decimal.Decimal {
	return decimal.NewFromFloat(c.Grid.PerOrderAmount)
}

// String returns a YAML rendering of the configuration for the startup echo.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	cfg := &Config{
		App: AppConfig{
			Exchange:   "sim",
			Ticker:     "ETH",
			ContractID: "ETH-USDT",
		},
		Grid: GridConfig{
			SpacingPercent:         1.0,
			UpperCount:             10,
			LowerCount:             10,
			PerOrderAmount:         50.0,
			InitialBalance:         1000.0,
			FillPolicy:             FillPolicyRefill,
			RepositionMode:         RepositionRebuild,
			DynamicEnabled:         true,
			BreakthroughMultiplier: 0.5,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
	}
	cfg.applyDefaults()
	return cfg
}
