// File: internal/config/config.go
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// EnvPrefix is prepended to every environment override, e.g. GOVLEDGER_SERVER_PORT
const EnvPrefix = "GOVLEDGER"

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Staking       StakingConfig      `mapstructure:"staking"`
	Severity      SeverityConfig     `mapstructure:"severity"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LedgerConfig contains economic and validation parameters of the ledger
type LedgerConfig struct {
	BaseBurnRate         uint64           `mapstructure:"base_burn_rate"`
	BurnShareBps         uint64           `mapstructure:"burn_share_bps"`
	FeeCollector         string           `mapstructure:"fee_collector"`
	DelegationLockPeriod time.Duration    `mapstructure:"delegation_lock_period"`
	TimelockInterval     time.Duration    `mapstructure:"timelock_interval"`
	Governance           GovernanceConfig `mapstructure:"governance"`
	MinReasonLength      int              `mapstructure:"min_reason_length"`
	MaxNameLength        int              `mapstructure:"max_name_length"`
	MaxTags              int              `mapstructure:"max_tags"`
	MaxTagLength         int              `mapstructure:"max_tag_length"`
	MaxLockDays          uint64           `mapstructure:"max_lock_days"`
	RewardPerVote        uint64           `mapstructure:"reward_per_vote"`
	ClaimLockPeriod      time.Duration    `mapstructure:"claim_lock_period"`
	HashCacheSize        int              `mapstructure:"hash_cache_size"`
}

// GovernanceConfig holds the initial governance parameters
type GovernanceConfig struct {
	MinDuration  uint64 `mapstructure:"min_duration"`
	QuorumPct    uint64 `mapstructure:"quorum_pct"`
	DelaySeconds uint64 `mapstructure:"delay_seconds"`
}

// StakingConfig holds the tier table; empty means the stock tiers
type StakingConfig struct {
	Tiers []models.Tier `mapstructure:"tiers"`
}

// SeverityConfig holds the default alert thresholds
type SeverityConfig struct {
	MinDurationDelta uint64 `mapstructure:"min_duration_delta"`
	QuorumDelta      uint64 `mapstructure:"quorum_delta"`
	DelayDelta       uint64 `mapstructure:"delay_delta"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres, leveldb
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	BatchSize        int           `mapstructure:"batch_size"`
}

// MonitorConfig controls the event log watcher
type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	StartSequence uint64        `mapstructure:"start_sequence"`
}

// WebhookConfig describes one webhook alert target
type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	MinSeverity string          `mapstructure:"min_severity"`
	MaxRetries  int             `mapstructure:"max_retries"`
	RetryDelay  time.Duration   `mapstructure:"retry_delay"`
	Webhooks    []WebhookConfig `mapstructure:"webhooks"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from .env files, the config file and environment variables
func Load(configPath string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Set environment variable prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Error reading config file", err.Error())
		}
		utils.GetLogger().Debug("Config file not found, using defaults and environment variables")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Error unmarshaling config", err.Error())
	}

	return &config, nil
}

// loadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; existing variables win.
func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return utils.NewAppError(utils.ErrCodeConfiguration, "Error loading env file", err.Error())
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "govledger")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Ledger defaults
	v.SetDefault("ledger.base_burn_rate", 50)
	v.SetDefault("ledger.burn_share_bps", 8000)
	v.SetDefault("ledger.fee_collector", "")
	v.SetDefault("ledger.delegation_lock_period", "72h")
	v.SetDefault("ledger.timelock_interval", "24h")
	v.SetDefault("ledger.governance.min_duration", 3)
	v.SetDefault("ledger.governance.quorum_pct", 20)
	v.SetDefault("ledger.governance.delay_seconds", 86400)
	v.SetDefault("ledger.min_reason_length", 10)
	v.SetDefault("ledger.max_name_length", 20)
	v.SetDefault("ledger.max_tags", 5)
	v.SetDefault("ledger.max_tag_length", 32)
	v.SetDefault("ledger.max_lock_days", 3650)
	v.SetDefault("ledger.reward_per_vote", 100)
	v.SetDefault("ledger.claim_lock_period", "168h")
	v.SetDefault("ledger.hash_cache_size", 1024)

	// Severity defaults
	v.SetDefault("severity.min_duration_delta", 3)
	v.SetDefault("severity.quorum_delta", 10)
	v.SetDefault("severity.delay_delta", 43200)

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/ledger.db")
	v.SetDefault("storage.max_connections", 25)
	v.SetDefault("storage.max_idle_time", "15m")
	v.SetDefault("storage.batch_size", 500)

	// Monitor defaults
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.poll_interval", "2s")
	v.SetDefault("monitor.batch_size", 100)
	v.SetDefault("monitor.start_sequence", 0)

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.min_severity", "HIGH")
	v.SetDefault("notifications.max_retries", 3)
	v.SetDefault("notifications.retry_delay", "2s")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required")
	}
	if c.Monitor.Enabled && c.Monitor.PollInterval <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Monitor poll interval must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Server port out of range")
	}
	if c.Ledger.FeeCollector != "" && !utils.IsValidAddress(c.Ledger.FeeCollector) {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid fee collector address", c.Ledger.FeeCollector)
	}
	if _, err := models.ParseSeverity(c.Notifications.MinSeverity); err != nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid notification severity", c.Notifications.MinSeverity)
	}
	for _, wh := range c.Notifications.Webhooks {
		if wh.URL == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Webhook URL is required", wh.Name)
		}
	}
	return c.ToLedgerConfig().Validate()
}

// ToLedgerConfig converts the loaded sections into the ledger's configuration
func (c *Config) ToLedgerConfig() *ledger.Config {
	cfg := ledger.DefaultConfig()
	l := c.Ledger

	if len(c.Staking.Tiers) > 0 {
		cfg.Tiers = append([]models.Tier(nil), c.Staking.Tiers...)
	}
	cfg.BaseBurnRate = l.BaseBurnRate
	cfg.BurnShareBps = l.BurnShareBps
	if l.FeeCollector != "" {
		cfg.FeeCollector = common.HexToAddress(l.FeeCollector)
	}
	cfg.DelegationLockPeriod = l.DelegationLockPeriod
	cfg.TimelockInterval = l.TimelockInterval
	cfg.InitialGovernance = models.GovernanceParams{
		MinDuration:  l.Governance.MinDuration,
		QuorumPct:    l.Governance.QuorumPct,
		DelaySeconds: l.Governance.DelaySeconds,
	}
	cfg.DefaultThresholds = models.AlertThreshold{
		MinDurationDelta: c.Severity.MinDurationDelta,
		QuorumDelta:      c.Severity.QuorumDelta,
		DelayDelta:       c.Severity.DelayDelta,
		Enabled:          true,
	}
	cfg.MinReasonLength = l.MinReasonLength
	cfg.MaxNameLength = l.MaxNameLength
	cfg.MaxTags = l.MaxTags
	cfg.MaxTagLength = l.MaxTagLength
	cfg.MaxLockDays = l.MaxLockDays
	cfg.RewardPerVote = l.RewardPerVote
	cfg.ClaimLockPeriod = l.ClaimLockPeriod
	if l.HashCacheSize > 0 {
		cfg.HashCacheSize = l.HashCacheSize
	}
	return cfg
}
