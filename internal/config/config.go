package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"masterhand/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Booking       BookingConfig       `yaml:"booking"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Events        EventsConfig        `yaml:"events"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	// Enabled defaults to true. With auth off the API trusts the caller's
	// X-User-ID and X-User-Role headers; never do that outside local development.
	Enabled   *bool  `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Required reports whether callers must present a bearer token.
func (a APIAuthConfig) Required() bool {
	return a.Enabled == nil || *a.Enabled
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// GatewayConfig describes the hosted card/wallet payment processor.
type GatewayConfig struct {
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	Currency            string `yaml:"currency"`
	CardIntegrationID   int64  `yaml:"card_integration_id"`
	WalletIntegrationID int64  `yaml:"wallet_integration_id"`
	IframeID            string `yaml:"iframe_id"`
	HMACSecret          string `yaml:"hmac_secret"`
	// AllowUnsignedWebhooks disables callback signature checks when no secret is set.
	// Never enable outside local development.
	AllowUnsignedWebhooks bool          `yaml:"allow_unsigned_webhooks"`
	Timeout               time.Duration `yaml:"timeout"`
}

type BookingConfig struct {
	PaymentWindow   time.Duration `yaml:"payment_window"`
	DefaultLeadTime time.Duration `yaml:"default_lead_time"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type NotificationsConfig struct {
	QueueSize  int `yaml:"queue_size"`
	MaxRetries int `yaml:"max_retries"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway base_url is required")
	}
	if c.Gateway.HMACSecret == "" && !c.Gateway.AllowUnsignedWebhooks {
		return errors.New("gateway hmac_secret is required unless allow_unsigned_webhooks is set")
	}
	if c.API.Auth.Required() && c.API.Auth.JWTSecret == "" {
		return errors.New("api auth jwt_secret is required unless api.auth.enabled is explicitly false")
	}
	if c.Booking.PaymentWindow < 0 || c.Booking.DefaultLeadTime < 0 {
		return errors.New("booking durations must not be negative")
	}
	return nil
}

// UnsignedWebhooks reports whether callbacks will be accepted without a signature check.
func (c *Config) UnsignedWebhooks() bool {
	return c.Gateway.HMACSecret == "" && c.Gateway.AllowUnsignedWebhooks
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "masterhand"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Gateway.Currency == "" {
		c.Gateway.Currency = "EGP"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Booking.PaymentWindow == 0 {
		c.Booking.PaymentWindow = models.DefaultPaymentWindow
	}
	if c.Booking.DefaultLeadTime == 0 {
		c.Booking.DefaultLeadTime = models.DefaultLeadTime
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "masterhand.events"
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = 256
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 3
	}
}
