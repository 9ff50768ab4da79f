package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"maidlink/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	API          APIConfig          `yaml:"api"`
	Auth         AuthConfig         `yaml:"auth"`
	Payments     PaymentsConfig     `yaml:"payments"`
	Verification VerificationConfig `yaml:"verification"`
	Storage      StorageConfig      `yaml:"storage"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Uploads      UploadsConfig      `yaml:"uploads"`
	Workers      WorkersConfig      `yaml:"workers"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Google       GoogleConfig       `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type DatabaseConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	CheckTTL time.Duration `yaml:"check_ttl"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig covers operator access: static API keys with permissions.
type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AuthConfig covers end users: HS256 bearer tokens.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

const (
	PaymentProviderStripe  = "stripe"
	PaymentProviderSandbox = "sandbox"
)

type PaymentsConfig struct {
	Provider     string        `yaml:"provider"`
	Currency     string        `yaml:"currency"`
	Stripe       StripeConfig  `yaml:"stripe"`
	Sandbox      SandboxConfig `yaml:"sandbox"`
	StatusRetry  RetryConfig   `yaml:"status_retry"`
	WebhookSkew  time.Duration `yaml:"webhook_tolerance"`
	SweepAge     time.Duration `yaml:"sweep_age"`
	SweepBatch   int           `yaml:"sweep_batch"`
	ProductLabel string        `yaml:"product_label"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type SandboxConfig struct {
	WebhookSecret     string        `yaml:"webhook_secret"`
	AutoCompleteAfter time.Duration `yaml:"auto_complete_after"`
	CheckoutBaseURL   string        `yaml:"checkout_base_url"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        float64       `yaml:"jitter"`
}

const (
	VerificationSimulated = "simulated"
	VerificationCheckr    = "checkr"
)

type VerificationConfig struct {
	Provider  string          `yaml:"provider"`
	Simulated SimulatedConfig `yaml:"simulated"`
	Checkr    CheckrConfig    `yaml:"checkr"`
}

type SimulatedConfig struct {
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
	PassRate float64       `yaml:"pass_rate"`
}

type CheckrConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Package string        `yaml:"package"`
	Timeout time.Duration `yaml:"timeout"`
}

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

type StorageConfig struct {
	Provider string      `yaml:"provider"`
	Local    LocalConfig `yaml:"local"`
	Minio    MinioConfig `yaml:"minio"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type CatalogConfig struct {
	Services     []models.ServicePackage `yaml:"services"`
	ServiceAreas []string                `yaml:"service_areas"`
}

type UploadsConfig struct {
	MaxBytes   int64         `yaml:"max_bytes"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type WorkersConfig struct {
	// Embedded runs the periodic jobs inside the API process. Required with the
	// sandbox gateway, whose sessions live in process memory.
	Embedded                bool          `yaml:"embedded"`
	BackgroundCheckInterval time.Duration `yaml:"background_check_interval"`
	PaymentSweepInterval    time.Duration `yaml:"payment_sweep_interval"`
	SheetsResyncInterval    time.Duration `yaml:"sheets_resync_interval"`
	SheetsRetry             RetryConfig   `yaml:"sheets_retry"`
}

// TelegramConfig drives operator alerts and the operator bot. Only the listed
// chats receive alerts and may issue bot commands.
type TelegramConfig struct {
	BotToken          string        `yaml:"bot_token"`
	OperatorChatIDs   []int64       `yaml:"operator_chat_ids"`
	Debug             bool          `yaml:"debug"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	PaginationSize    int           `yaml:"pagination_size"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	BookingSpreadSheetID string `yaml:"bookings_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
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
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("database.mongo.uri is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}

	switch c.Payments.Provider {
	case PaymentProviderStripe:
		if c.Payments.Stripe.SecretKey == "" || c.Payments.Stripe.WebhookSecret == "" {
			return errors.New("payments.stripe.secret_key and webhook_secret are required")
		}
	case PaymentProviderSandbox:
		if c.Payments.Sandbox.WebhookSecret == "" {
			return errors.New("payments.sandbox.webhook_secret is required")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payments.Provider)
	}

	switch c.Verification.Provider {
	case VerificationSimulated:
		s := c.Verification.Simulated
		if s.MaxDelay < s.MinDelay {
			return errors.New("verification.simulated.max_delay must not be less than min_delay")
		}
		if s.PassRate < 0 || s.PassRate > 1 {
			return errors.New("verification.simulated.pass_rate must be within [0,1]")
		}
	case VerificationCheckr:
		if c.Verification.Checkr.APIKey == "" {
			return errors.New("verification.checkr.api_key is required")
		}
	default:
		return fmt.Errorf("unknown verification provider %q", c.Verification.Provider)
	}

	switch c.Storage.Provider {
	case StorageLocal:
		if c.Storage.Local.Path == "" {
			return errors.New("storage.local.path is required")
		}
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return errors.New("storage.minio.endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}

	for name, r := range map[string]RetryConfig{
		"payments.status_retry": c.Payments.StatusRetry,
		"workers.sheets_retry":  c.Workers.SheetsRetry,
	} {
		if r.Jitter < 0 || r.Jitter > 1 {
			return fmt.Errorf("%s.jitter must be within [0,1]", name)
		}
	}

	return ValidateCatalog(c.Catalog)
}

func ValidateCatalog(cat CatalogConfig) error {
	seen := make(map[models.ServiceKind]bool)
	for _, p := range cat.Services {
		if p.Kind == "" {
			return fmt.Errorf("service '%s' has empty kind", p.Name)
		}
		if p.HourlyRate <= 0 {
			return fmt.Errorf("service %s must have a positive hourly_rate", p.Kind)
		}
		if seen[p.Kind] {
			return fmt.Errorf("duplicate service kind found: %s", p.Kind)
		}
		seen[p.Kind] = true
	}
	for _, a := range cat.ServiceAreas {
		if strings.TrimSpace(a) == "" {
			return errors.New("service_areas must not contain empty names")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "maidlink"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Mongo.Database == "" {
		c.Database.Mongo.Database = "maidlink"
	}
	if c.Database.Mongo.ConnectTimeout == 0 {
		c.Database.Mongo.ConnectTimeout = 10 * time.Second
	}
	if c.Redis.CheckTTL == 0 {
		c.Redis.CheckTTL = models.DefaultCheckRecordTTL
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = c.App.Name
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	if c.Payments.Provider == "" {
		c.Payments.Provider = PaymentProviderSandbox
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = models.DefaultCurrency
	}
	if c.Payments.StatusRetry.MaxRetries == 0 {
		c.Payments.StatusRetry.MaxRetries = 3
	}
	if c.Payments.StatusRetry.InitialDelay == 0 {
		c.Payments.StatusRetry.InitialDelay = 200 * time.Millisecond
	}
	if c.Payments.StatusRetry.MaxDelay == 0 {
		c.Payments.StatusRetry.MaxDelay = 2 * time.Second
	}
	if c.Payments.StatusRetry.BackoffFactor == 0 {
		c.Payments.StatusRetry.BackoffFactor = 2
	}
	if c.Payments.WebhookSkew == 0 {
		c.Payments.WebhookSkew = 5 * time.Minute
	}
	if c.Payments.SweepAge == 0 {
		c.Payments.SweepAge = 15 * time.Minute
	}
	if c.Payments.SweepBatch == 0 {
		c.Payments.SweepBatch = 50
	}
	if c.Payments.ProductLabel == "" {
		c.Payments.ProductLabel = "Cleaning service"
	}

	if c.Verification.Provider == "" {
		c.Verification.Provider = VerificationSimulated
	}
	if c.Verification.Simulated.MinDelay == 0 && c.Verification.Simulated.MaxDelay == 0 {
		c.Verification.Simulated.MinDelay = 5 * time.Second
		c.Verification.Simulated.MaxDelay = 30 * time.Second
	}
	if c.Verification.Simulated.PassRate == 0 {
		c.Verification.Simulated.PassRate = 0.9
	}
	if c.Verification.Checkr.BaseURL == "" {
		c.Verification.Checkr.BaseURL = "https://api.checkr.com/v1"
	}
	if c.Verification.Checkr.Package == "" {
		c.Verification.Checkr.Package = "driver_pro"
	}
	if c.Verification.Checkr.Timeout == 0 {
		c.Verification.Checkr.Timeout = 30 * time.Second
	}

	if c.Storage.Provider == "" {
		c.Storage.Provider = StorageLocal
	}
	if c.Storage.Local.Path == "" {
		c.Storage.Local.Path = "./data/uploads"
	}

	if len(c.Catalog.Services) == 0 {
		c.Catalog.Services = models.DefaultServicePackages()
	}
	if len(c.Catalog.ServiceAreas) == 0 {
		c.Catalog.ServiceAreas = models.DefaultServiceAreas()
	}

	if c.Uploads.MaxBytes == 0 {
		c.Uploads.MaxBytes = models.MaxUploadBytes
	}
	if c.Uploads.RateLimit == 0 {
		c.Uploads.RateLimit = models.UploadRateLimit
	}
	if c.Uploads.RateWindow == 0 {
		c.Uploads.RateWindow = models.UploadRateWindow
	}

	if c.Workers.BackgroundCheckInterval == 0 {
		c.Workers.BackgroundCheckInterval = time.Minute
	}
	if c.Workers.PaymentSweepInterval == 0 {
		c.Workers.PaymentSweepInterval = 5 * time.Minute
	}
	if c.Workers.SheetsResyncInterval == 0 {
		c.Workers.SheetsResyncInterval = time.Hour
	}
	if c.Workers.SheetsRetry.MaxRetries == 0 {
		c.Workers.SheetsRetry.MaxRetries = 5
	}
	if c.Workers.SheetsRetry.InitialDelay == 0 {
		c.Workers.SheetsRetry.InitialDelay = 2 * time.Second
	}
	if c.Workers.SheetsRetry.MaxDelay == 0 {
		c.Workers.SheetsRetry.MaxDelay = time.Minute
	}
	if c.Workers.SheetsRetry.BackoffFactor == 0 {
		c.Workers.SheetsRetry.BackoffFactor = 2
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./data/backups"
	}

	if c.Telegram.RateLimitMessages == 0 {
		c.Telegram.RateLimitMessages = 30
	}
	if c.Telegram.RateLimitWindow == 0 {
		c.Telegram.RateLimitWindow = time.Minute
	}
	if c.Telegram.PaginationSize == 0 {
		c.Telegram.PaginationSize = models.DefaultPaginationSize
	}
}
