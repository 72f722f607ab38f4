package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

// Source kinds understood by the harvester.
const (
	KindDocuments = "documents"
	KindEvents    = "events"
)

// Notification destination families.
const (
	FamilyTelegram = "telegram"
	FamilyRedis    = "redis"
)

// Default values.
const (
	defaultServiceName     = "harvester"
	defaultDBPort          = 5432
	defaultDBName          = "fia_documents"
	defaultDBUser          = "postgres"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultServerPort      = 8060
	defaultSlice           = 10 * time.Second
	defaultRecoveryDelay   = 60 * time.Second
	defaultCheckInterval   = 3600
	defaultRequestTimeout  = 30 * time.Second
	defaultPoliteDelay     = 500 * time.Millisecond
	defaultDeliveryBase    = 2 * time.Second
	defaultDeliveryMax     = 30 * time.Second
	defaultDeliveryTries   = 3
	defaultSendTimeout     = 30 * time.Second
	defaultPoolSize        = 8
	defaultTelegramAPI     = "https://api.telegram.org"
	defaultRedisChannel    = "harvester:records"
	defaultDocumentsURL    = "https://www.fia.com/documents/championships/fia-formula-one-world-championship-14/season/season-2025-2071"
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config is the root harvester configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Logging   logger.Config   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `env:"SERVICE_VERSION" yaml:"version"`
	Debug   bool   `env:"APP_DEBUG"       yaml:"debug"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"` //nolint:gosec // connection config
	Name            string        `env:"DB_NAME"     yaml:"name"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" yaml:"auto_migrate"`
}

// DSN returns the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings. An empty Address disables Redis.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"` //nolint:gosec // connection config
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Address != ""
}

// ServerConfig holds the control API settings.
type ServerConfig struct {
	Enabled bool `env:"SERVER_ENABLED" yaml:"enabled"`
	Port    int  `env:"SERVER_PORT"    yaml:"port"`
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

// SchedulerConfig controls the polling loop.
type SchedulerConfig struct {
	// CheckInterval is the default interval in seconds when the setting is absent.
	CheckInterval int           `env:"CHECK_INTERVAL" yaml:"check_interval"`
	Slice         time.Duration `yaml:"slice"`
	RecoveryDelay time.Duration `yaml:"recovery_delay"`
}

// NotifierConfig holds delivery settings shared by every destination family.
type NotifierConfig struct {
	TelegramToken   string        `env:"TELEGRAM_BOT_TOKEN" yaml:"telegram_token"` //nolint:gosec // credential from env
	TelegramAPIURL  string        `yaml:"telegram_api_url"`
	DefaultChatID   string        `env:"TELEGRAM_CHAT_ID"   yaml:"default_chat_id"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
}

// DestinationConfig addresses one notification channel.
type DestinationConfig struct {
	Family string `yaml:"family"`
	ChatID string `yaml:"chat_id"`
}

// SourceConfig describes one harvest source and its loop.
type SourceConfig struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"`
	URL            string            `yaml:"url"`
	Enabled        bool              `yaml:"enabled"`
	SettingsPrefix string            `yaml:"settings_prefix"`
	Destination    DestinationConfig `yaml:"destination"`
	UserAgent      string            `yaml:"user_agent"`
	AcceptLanguage string            `yaml:"accept_language"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	PoliteDelay    time.Duration     `yaml:"polite_delay"`
	// Season is attached to document records.
	Season string `yaml:"season"`
	// Container is the events calendar container id.
	Container string `yaml:"container"`
}

// Load reads the configuration at path (optional), applies defaults and validates it.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile[Config](path, true)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = defaultServiceName
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}
	c.Logging.SetDefaults()
	c.Database.setDefaults()
	c.Server.setDefaults()
	c.Scheduler.setDefaults()
	c.Notifier.setDefaults()

	if len(c.Sources) == 0 {
		c.Sources = defaultSources()
	}
	for i := range c.Sources {
		c.Sources[i].setDefaults(c.Notifier.DefaultChatID)
	}
}

func (c *DatabaseConfig) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = defaultDBPort
	}
	if c.User == "" {
		c.User = defaultDBUser
	}
	if c.Name == "" {
		c.Name = defaultDBName
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaultConnMaxLifetime
	}
}

func (c *ServerConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = defaultServerPort
	}
}

func (c *SchedulerConfig) setDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.Slice == 0 {
		c.Slice = defaultSlice
	}
	if c.RecoveryDelay == 0 {
		c.RecoveryDelay = defaultRecoveryDelay
	}
}

func (c *NotifierConfig) setDefaults() {
	if c.TelegramAPIURL == "" {
		c.TelegramAPIURL = defaultTelegramAPI
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultDeliveryTries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaultDeliveryBase
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = defaultDeliveryMax
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = defaultPoolSize
	}
}

func (s *SourceConfig) setDefaults(defaultChatID string) {
	if s.Destination.Family == "" {
		s.Destination.Family = FamilyTelegram
	}
	if s.Destination.ChatID == "" {
		switch s.Destination.Family {
		case FamilyRedis:
			s.Destination.ChatID = defaultRedisChannel
		default:
			s.Destination.ChatID = defaultChatID
		}
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = defaultRequestTimeout
	}
	if s.PoliteDelay == 0 {
		s.PoliteDelay = defaultPoliteDelay
	}
}

func defaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:    KindDocuments,
			Kind:    KindDocuments,
			URL:     defaultDocumentsURL,
			Enabled: true,
			Season:  "2025",
		},
		{
			Name:           KindEvents,
			Kind:           KindEvents,
			Enabled:        false,
			SettingsPrefix: "events_",
			AcceptLanguage: "el-GR,el;q=0.9,en;q=0.8",
			Container:      "mec_skin_15101",
		},
	}
}

// EnabledSources returns the sources with Enabled set.
func (c *Config) EnabledSources() []SourceConfig {
	enabled := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// FindSource returns the source named name.
func (c *Config) FindSource(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
