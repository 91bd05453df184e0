package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // campaign send windows name IANA zones

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/escalation"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	SES         SESConfig         `yaml:"ses"`
	SMSProvider SMSProviderConfig `yaml:"sms_provider"`
	Gate        GateConfig        `yaml:"gate"`
	Escalation  EscalationConfig  `yaml:"escalation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	RateLimits  RateLimitsConfig  `yaml:"rate_limits"`
	Personas    []domain.Persona  `yaml:"personas"`
	Campaigns   []CampaignConfig  `yaml:"campaigns"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL settings. An empty URL runs the
// in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis URL used for scheduler locks. When empty,
// Postgres advisory locks are used instead.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES configuration for the email transport
type SESConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SMSProviderConfig holds the sms/voice provider API settings
type SMSProviderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c SMSProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig caps sends per sending identity on one channel. Zero
// leaves a window unlimited.
type RateLimitConfig struct {
	PerSecond int `yaml:"per_second"`
	PerMinute int `yaml:"per_minute"`
	PerDay    int `yaml:"per_day"`
}

// RateLimitsConfig holds per-channel send limits. Limits need Redis and are
// ignored without it.
type RateLimitsConfig struct {
	SMS   RateLimitConfig `yaml:"sms"`
	Voice RateLimitConfig `yaml:"voice"`
	Email RateLimitConfig `yaml:"email"`
}

// For returns the limit for ch.
func (c RateLimitsConfig) For(ch domain.Channel) RateLimitConfig {
	switch ch {
	case domain.ChannelSMS:
		return c.SMS
	case domain.ChannelVoice:
		return c.Voice
	case domain.ChannelEmail:
		return c.Email
	}
	return RateLimitConfig{}
}

// GateConfig tunes the contact gate.
type GateConfig struct {
	BatchConcurrency int `yaml:"batch_concurrency"`
}

// EscalationConfig holds the default escalation settings. Campaigns inherit
// any value they leave unset. pause_after_step defaults to each campaign's
// max_steps. A negative send_pacing_ms disables pacing.
type EscalationConfig struct {
	MaxSteps            int `yaml:"max_steps"`
	InterStepDelayHours int `yaml:"inter_step_delay_hours"`
	PauseAfterStep      int `yaml:"pause_after_step"`
	SendPacingMS        int `yaml:"send_pacing_ms"`
	SendTimeoutSeconds  int `yaml:"send_timeout_seconds"`
	BatchSize           int `yaml:"batch_size"`
}

// Settings converts the section into escalation settings.
func (c EscalationConfig) Settings() escalation.Settings {
	pacing := time.Duration(c.SendPacingMS) * time.Millisecond
	if pacing < 0 {
		pacing = 0
	}
	return escalation.Settings{
		MaxSteps:       c.MaxSteps,
		InterStepDelay: time.Duration(c.InterStepDelayHours) * time.Hour,
		PauseAfterStep: c.PauseAfterStep,
		SendPacing:     pacing,
		SendTimeout:    time.Duration(c.SendTimeoutSeconds) * time.Second,
		BatchSize:      c.BatchSize,
	}
}

// SchedulerConfig holds the escalation scheduler settings
type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	LockTTLSeconds  int  `yaml:"lock_ttl_seconds"`
}

// Interval returns the tick interval as a duration
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns the per-campaign lock TTL as a duration
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// CampaignConfig is one escalation sequence. Zero-valued overrides inherit
// from the escalation section.
type CampaignConfig struct {
	ID        string                `yaml:"id"`
	TenantID  string                `yaml:"tenant_id"`
	Name      string                `yaml:"name"`
	Channel   domain.Channel        `yaml:"channel"`
	PersonaID string                `yaml:"persona_id"`
	Steps     []domain.SequenceStep `yaml:"steps"`
	Window    domain.SendWindow     `yaml:"window"`

	MaxSteps            int `yaml:"max_steps"`
	InterStepDelayHours int `yaml:"inter_step_delay_hours"`
	PauseAfterStep      int `yaml:"pause_after_step"`
	BatchSize           int `yaml:"batch_size"`
}

// Campaign converts the entry into an escalation campaign.
func (c CampaignConfig) Campaign() escalation.Campaign {
	return escalation.Campaign{
		Sequence: domain.Sequence{
			CampaignID: c.ID,
			TenantID:   c.TenantID,
			Name:       c.Name,
			Channel:    c.Channel,
			PersonaID:  c.PersonaID,
			Steps:      c.Steps,
			Window:     c.Window,
		},
		Settings: escalation.Settings{
			MaxSteps:       c.MaxSteps,
			InterStepDelay: time.Duration(c.InterStepDelayHours) * time.Hour,
			PauseAfterStep: c.PauseAfterStep,
			BatchSize:      c.BatchSize,
		},
	}
}

// Catalog builds the validated campaign catalog.
func (c *Config) Catalog() (*escalation.Catalog, error) {
	camps := make([]escalation.Campaign, 0, len(c.Campaigns))
	for _, cc := range c.Campaigns {
		camps = append(camps, cc.Campaign())
	}
	return escalation.NewCatalog(c.Escalation.Settings(), camps)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SMSProvider.TimeoutSeconds == 0 {
		cfg.SMSProvider.TimeoutSeconds = 30
	}
	if cfg.SMSProvider.MaxRetries == 0 {
		cfg.SMSProvider.MaxRetries = 3
	}
	if cfg.Gate.BatchConcurrency == 0 {
		cfg.Gate.BatchConcurrency = 16
	}
	if cfg.Escalation.MaxSteps == 0 {
		cfg.Escalation.MaxSteps = escalation.DefaultMaxSteps
	}
	if cfg.Escalation.InterStepDelayHours == 0 {
		cfg.Escalation.InterStepDelayHours = int(escalation.DefaultInterStepDelay / time.Hour)
	}
	if cfg.Escalation.SendPacingMS == 0 {
		cfg.Escalation.SendPacingMS = int(escalation.DefaultSendPacing / time.Millisecond)
	}
	if cfg.Escalation.SendTimeoutSeconds == 0 {
		cfg.Escalation.SendTimeoutSeconds = int(escalation.DefaultSendTimeout / time.Second)
	}
	if cfg.Escalation.BatchSize == 0 {
		cfg.Escalation.BatchSize = escalation.DefaultBatchSize
	}
	if cfg.Scheduler.IntervalSeconds == 0 {
		cfg.Scheduler.IntervalSeconds = 60
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 120
	}
	for i := range cfg.Campaigns {
		if cfg.Campaigns[i].Channel == "" {
			cfg.Campaigns[i].Channel = domain.ChannelSMS
		}
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}

	if v := os.Getenv("SMS_PROVIDER_BASE_URL"); v != "" {
		cfg.SMSProvider.BaseURL = v
	}
	if v := os.Getenv("SMS_PROVIDER_API_KEY"); v != "" {
		cfg.SMSProvider.APIKey = v
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
