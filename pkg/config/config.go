// Package config provides configuration management for riskdesk
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/cost"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/market"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/order"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/portfolio"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
)

// EnvPrefix prefixes environment overrides, e.g. RISKDESK_ACCOUNT_BALANCE.
const EnvPrefix = "RISKDESK"

// Config represents the application configuration
type Config struct {
	Account    AccountConfig      `mapstructure:"account" yaml:"account"`
	Risk       RiskConfig         `mapstructure:"risk" yaml:"risk"`
	Order      OrderConfig        `mapstructure:"order" yaml:"order"`
	Market     MarketConfig       `mapstructure:"market" yaml:"market"`
	Commission CommissionConfig   `mapstructure:"commission" yaml:"commission"`
	Portfolio  portfolio.Settings `mapstructure:"portfolio" yaml:"portfolio"`
	Alerts     AlertsConfig       `mapstructure:"alerts" yaml:"alerts"`
	Hooks      HooksConfig        `mapstructure:"hooks" yaml:"hooks"`
	Feed       FeedConfig         `mapstructure:"feed" yaml:"feed"`
	Metrics    MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Log        LogConfig          `mapstructure:"log" yaml:"log"`
	Cache      CacheConfig        `mapstructure:"cache" yaml:"cache"`
}

type AccountConfig struct {
	Balance float64 `mapstructure:"balance" yaml:"balance" validate:"gte=0"`
}

type RiskConfig struct {
	Profile string      `mapstructure:"profile" yaml:"profile" validate:"oneof=conservative moderate aggressive custom"`
	Custom  risk.Limits `mapstructure:"custom" yaml:"custom,omitempty" validate:"-"`
}

type OrderConfig struct {
	StopBuffer    float64 `mapstructure:"stop_buffer" yaml:"stop_buffer" validate:"gte=0,lt=1"`
	RewardRatio   float64 `mapstructure:"reward_ratio" yaml:"reward_ratio" validate:"gt=0"`
	PennyFloor    float64 `mapstructure:"penny_floor" yaml:"penny_floor" validate:"gte=0"`
	DeviationWarn float64 `mapstructure:"deviation_warn" yaml:"deviation_warn" validate:"gt=0"`
}

type MarketConfig struct {
	Zone     string   `mapstructure:"zone" yaml:"zone" validate:"required"`
	Open     string   `mapstructure:"open" yaml:"open" validate:"required"`
	Close    string   `mapstructure:"close" yaml:"close" validate:"required"`
	Holidays []string `mapstructure:"holidays" yaml:"holidays,omitempty"`
}

// CommissionConfig selects a named plan. Set fields override the plan.
type CommissionConfig struct {
	Plan           string   `mapstructure:"plan" yaml:"plan"`
	PerShare       *float64 `mapstructure:"per_share" yaml:"per_share,omitempty" validate:"omitempty,gte=0"`
	Minimum        *float64 `mapstructure:"minimum" yaml:"minimum,omitempty" validate:"omitempty,gte=0"`
	MaxRate        *float64 `mapstructure:"max_rate" yaml:"max_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	RegulatoryRate *float64 `mapstructure:"regulatory_rate" yaml:"regulatory_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
}

type AlertsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type HooksConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type FeedConfig struct {
	Kind     string        `mapstructure:"kind" yaml:"kind" validate:"oneof=mock sina ws"`
	URL      string        `mapstructure:"url" yaml:"url,omitempty" validate:"required_if=Kind ws,omitempty,url"`
	Symbols  []string      `mapstructure:"symbols" yaml:"symbols,omitempty"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	Seed     int64         `mapstructure:"seed" yaml:"seed"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
	MaxCost int64         `mapstructure:"max_cost" yaml:"max_cost" validate:"gt=0"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	hours := market.DefaultHours()
	vs := order.DefaultSettings()
	return &Config{
		Account: AccountConfig{Balance: 100000},
		Risk:    RiskConfig{Profile: string(risk.ProfileModerate)},
		Order: OrderConfig{
			StopBuffer:    order.DefaultStopBuffer.InexactFloat64(),
			RewardRatio:   2,
			PennyFloor:    vs.PennyFloor.InexactFloat64(),
			DeviationWarn: vs.DeviationWarn,
		},
		Market: MarketConfig{
			Zone:  hours.Location.String(),
			Open:  "09:30",
			Close: "16:00",
		},
		Commission: CommissionConfig{Plan: "standard"},
		Portfolio:  portfolio.DefaultSettings(),
		Feed: FeedConfig{
			Kind:     "mock",
			Symbols:  []string{"AAPL", "MSFT", "TSLA"},
			Interval: 5 * time.Second,
			Seed:     1,
		},
		Metrics: MetricsConfig{Addr: ":9464"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Cache:   CacheConfig{TTL: 30 * time.Second, MaxCost: 1 << 20},
	}
}

// setDefaults mirrors DefaultConfig into v so env overrides work for every key.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("account.balance", d.Account.Balance)
	v.SetDefault("risk.profile", d.Risk.Profile)
	v.SetDefault("risk.custom.max_position_size", d.Risk.Custom.MaxPositionSize)
	v.SetDefault("risk.custom.max_sector_exposure", d.Risk.Custom.MaxSectorExposure)
	v.SetDefault("risk.custom.max_daily_loss", d.Risk.Custom.MaxDailyLoss)
	v.SetDefault("risk.custom.max_volatility", d.Risk.Custom.MaxVolatility)
	v.SetDefault("risk.custom.max_drawdown", d.Risk.Custom.MaxDrawdown)
	v.SetDefault("risk.custom.max_var", d.Risk.Custom.MaxVaR)
	v.SetDefault("risk.custom.hard_risk_ceiling", d.Risk.Custom.HardRiskCeiling)
	v.SetDefault("risk.custom.risk_warn_threshold", d.Risk.Custom.RiskWarnThreshold)
	v.SetDefault("order.stop_buffer", d.Order.StopBuffer)
	v.SetDefault("order.reward_ratio", d.Order.RewardRatio)
	v.SetDefault("order.penny_floor", d.Order.PennyFloor)
	v.SetDefault("order.deviation_warn", d.Order.DeviationWarn)
	v.SetDefault("market.zone", d.Market.Zone)
	v.SetDefault("market.open", d.Market.Open)
	v.SetDefault("market.close", d.Market.Close)
	v.SetDefault("market.holidays", []string{})
	v.SetDefault("commission.plan", d.Commission.Plan)
	v.SetDefault("portfolio.default_beta", d.Portfolio.DefaultBeta)
	v.SetDefault("portfolio.default_volatility", d.Portfolio.DefaultVolatility)
	v.SetDefault("portfolio.correlation", d.Portfolio.Correlation)
	v.SetDefault("portfolio.z", d.Portfolio.Z)
	v.SetDefault("portfolio.trading_days", d.Portfolio.TradingDays)
	v.SetDefault("portfolio.high_beta", d.Portfolio.HighBeta)
	v.SetDefault("alerts.dir", "")
	v.SetDefault("hooks.file", "")
	v.SetDefault("feed.kind", d.Feed.Kind)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.symbols", d.Feed.Symbols)
	v.SetDefault("feed.interval", d.Feed.Interval)
	v.SetDefault("feed.seed", d.Feed.Seed)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_cost", d.Cache.MaxCost)
}

// ConfigManager manages configuration loading and saving
type ConfigManager struct {
	viper    *viper.Viper
	validate *validator.Validate
	path     string

	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)
}

// NewConfigManager creates a configuration manager. An empty path uses
// ~/.riskdesk/config.yaml when it exists and defaults otherwise.
func NewConfigManager(path string) (*ConfigManager, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		if p, err := GetConfigPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	cm := &ConfigManager{
		viper:    v,
		validate: newValidator(),
		path:     path,
	}
	return cm, nil
}

// Load reads the config file, if any, and applies env overrides. It does
// not validate; callers check the result with ValidateConfig.
func (cm *ConfigManager) Load() error {
	if cm.path != "" {
		abs, err := filepath.Abs(cm.path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		cm.viper.SetConfigFile(abs)
		if err := cm.viper.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	return cm.decode()
}

func (cm *ConfigManager) decode() error {
	cfg, err := cm.read()
	if err != nil {
		return err
	}
	cm.store(cfg)
	return nil
}

// read unmarshals the current viper state without installing it.
func (cm *ConfigManager) read() (*Config, error) {
	var cfg Config
	if err := cm.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (cm *ConfigManager) store(cfg *Config) {
	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()
}

// Get returns the loaded configuration
func (cm *ConfigManager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.config == nil {
		return DefaultConfig()
	}
	return cm.config
}

// Path returns the config file in use, or "" when running on defaults.
func (cm *ConfigManager) Path() string {
	return cm.path
}

// Set overrides a key for this process and re-decodes.
func (cm *ConfigManager) Set(key string, value any) error {
	cm.viper.Set(key, value)
	return cm.decode()
}

// Watch reloads the file on change and calls fn with the new configuration.
// Invalid edits are reported through onError and the previous config is kept.
func (cm *ConfigManager) Watch(fn func(*Config), onError func(error)) {
	if cm.path == "" {
		return
	}
	cm.mu.Lock()
	cm.onChange = append(cm.onChange, fn)
	cm.mu.Unlock()

	cm.viper.OnConfigChange(func(fsnotify.Event) {
		cfg, err := cm.read()
		if err == nil {
			err = cm.ValidateConfig(cfg).Err()
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		cm.store(cfg)

		cm.mu.RLock()
		callbacks := append([]func(*Config){}, cm.onChange...)
		cm.mu.RUnlock()
		for _, cb := range callbacks {
			cb(cfg)
		}
	})
	cm.viper.WatchConfig()
}

// Save writes the configuration to path as YAML
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Limits resolves the risk profile into limits.
func (c *Config) Limits() (risk.Limits, error) {
	p, err := risk.ParseProfile(c.Risk.Profile)
	if err != nil {
		return risk.Limits{}, err
	}
	if p == risk.ProfileCustom {
		return risk.Custom(c.Risk.Custom)
	}
	return risk.LimitsFor(p)
}

// Hours builds the market session.
func (c *Config) Hours() (*market.Hours, error) {
	return market.NewHours(c.Market.Zone, c.Market.Open, c.Market.Close, c.Market.Holidays)
}

// Schedule returns the commission plan with any overrides applied.
func (c *Config) Schedule() cost.Schedule {
	s := cost.Lookup(c.Commission.Plan)
	set := func(dst *decimal.Decimal, v *float64) {
		if v != nil {
			*dst = decimal.NewFromFloat(*v)
		}
	}
	set(&s.PerShare, c.Commission.PerShare)
	set(&s.Minimum, c.Commission.Minimum)
	set(&s.MaxRate, c.Commission.MaxRate)
	set(&s.RegulatoryRate, c.Commission.RegulatoryRate)
	return s
}

// ValidatorSettings returns the order sanity thresholds.
func (c *Config) ValidatorSettings() order.Settings {
	return order.Settings{
		PennyFloor:    decimal.NewFromFloat(c.Order.PennyFloor),
		DeviationWarn: c.Order.DeviationWarn,
	}
}

// Builder returns an order builder with the configured stop buffer.
func (c *Config) Builder() *order.Builder {
	b := order.NewBuilder(decimal.NewFromFloat(c.Order.StopBuffer))
	if c.Order.RewardRatio > 0 {
		b.RewardRatio = decimal.NewFromFloat(c.Order.RewardRatio)
	}
	return b
}

// Balance returns the account balance as a decimal.
func (c *Config) Balance() decimal.Decimal {
	return decimal.NewFromFloat(c.Account.Balance)
}

// AlertsDir returns the alert store directory, defaulting under the app dir.
func (c *Config) AlertsDir() (string, error) {
	if c.Alerts.Dir != "" {
		return c.Alerts.Dir, nil
	}
	return GetAlertsDir()
}

// HooksFile returns the hooks file, defaulting under the app dir.
func (c *Config) HooksFile() (string, error) {
	if c.Hooks.File != "" {
		return c.Hooks.File, nil
	}
	return GetHooksPath()
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are warnings
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err joins the errors, or returns nil.
func (r *ValidationResult) Err() error {
	errs := make([]error, len(r.Errors))
	for i := range r.Errors {
		errs[i] = &r.Errors[i]
	}
	return errors.Join(errs...)
}

func (r *ValidationResult) fail(field string, value any, msg string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (r *ValidationResult) warn(field string, value any, msg string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Value: value, Message: msg})
}

var validate = newValidator()

// newValidator reports fields by their config key rather than Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate validates the configuration and returns validation results
func (c *Config) Validate() *ValidationResult {
	return validateConfig(validate, c)
}

// ValidateConfig validates cfg with the manager's validator.
func (cm *ConfigManager) ValidateConfig(cfg *Config) *ValidationResult {
	return validateConfig(cm.validate, cfg)
}

func validateConfig(v *validator.Validate, c *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]ValidationError, 0),
	}

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			result.fail("", nil, err.Error())
			return result
		}
		for _, fe := range verrs {
			result.fail(fieldPath(fe.Namespace()), fe.Value(), ruleMessage(fe))
		}
	}

	if _, err := c.Limits(); err != nil {
		result.fail("risk", c.Risk.Profile, err.Error())
	}
	if _, err := c.Hours(); err != nil {
		result.fail("market", c.Market.Zone, err.Error())
	}
	if _, ok := cost.Schedules[strings.ToLower(c.Commission.Plan)]; !ok && c.Commission.Plan != "" {
		result.warn("commission.plan", c.Commission.Plan, "unknown plan, using standard")
	}
	if c.Account.Balance == 0 {
		result.warn("account.balance", c.Account.Balance, "zero balance rejects every priced order")
	}
	if c.Feed.Kind != "mock" && len(c.Feed.Symbols) == 0 {
		result.warn("feed.symbols", c.Feed.Symbols, "no symbols to subscribe")
	}
	if c.Hooks.File != "" {
		if _, err := os.Stat(c.Hooks.File); os.IsNotExist(err) {
			result.warn("hooks.file", c.Hooks.File, "file does not exist")
		}
	}
	if c.Portfolio.TradingDays <= 0 {
		result.warn("portfolio.trading_days", c.Portfolio.TradingDays, "using 252")
	}

	return result
}

// fieldPath turns "Config.order.stop_buffer" into "order.stop_buffer".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "required", "required_if":
		return "is required"
	case "url":
		return "must be a URL"
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}

// ValidateAndPrint validates and prints errors/warnings
func (c *Config) ValidateAndPrint() bool {
	result := c.Validate()

	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "Configuration errors:\n")
		for _, err := range result.Errors {
			fmt.Fprintf(os.Stderr, "  ✗ %s: %s (value: %v)\n", err.Field, err.Message, err.Value)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(os.Stderr, "Configuration warnings:\n")
		for _, warn := range result.Warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ %s: %s (value: %v)\n", warn.Field, warn.Message, warn.Value)
		}
	}

	return result.IsValid()
}
