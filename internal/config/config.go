package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Cache    CacheConfig
	Store    StoreConfig
	Vault    VaultConfig
	Payment  PaymentConfig
	Sweeper  SweeperConfig
	Auth     AuthConfig
	Notifier NotifierConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"atstore-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// CacheConfig holds Redis settings. Redis is optional; without it the
// process falls back to in-memory caching and locking.
type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"1m"`

	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"atstore"`
}

// StoreConfig selects and configures the persistence backend for listings and orders.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mysql, postgres, or mongodb

	SQLitePath string `envconfig:"STORE_SQLITE_PATH" default:"./data/atstore.db"`

	// MySQL settings
	MySQLHost     string `envconfig:"MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"MYSQL_DB" default:"atstore"`
	MySQLUser     string `envconfig:"MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"MYSQL_PASS" default:""`

	// PostgreSQL settings
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresName     string `envconfig:"POSTGRES_DB" default:"atstore"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASS" default:""`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"atstore"`
}

// VaultConfig holds the credential encryption secret.
type VaultConfig struct {
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`
}

// PaymentConfig holds webhook authentication, narrative matching and QR settings.
type PaymentConfig struct {
	WebhookAPIKey      string        `envconfig:"WEBHOOK_API_KEY" required:"true"`
	ProtocolTag        string        `envconfig:"PAYMENT_PROTOCOL_TAG" default:"SEVQR"`
	SubAccountTag      string        `envconfig:"PAYMENT_SUBACCOUNT_TAG" default:"TKPAT1"`
	CheckoutCodePrefix string        `envconfig:"CHECKOUT_CODE_PREFIX" default:"AT"`
	OrderTTL           time.Duration `envconfig:"ORDER_TTL" default:"45m"`
	QRBaseURL          string        `envconfig:"SEPAY_QR_API_URL" default:"https://qr.sepay.vn/img"`
	AccountNo          string        `envconfig:"SEPAY_VIRTUAL_ACCOUNT" default:""`
	BankCode           string        `envconfig:"SEPAY_BANK_CODE" default:"BIDV"`
	DeliveryTimeout    time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"15s"`
	LockTTL            time.Duration `envconfig:"CHECKOUT_LOCK_TTL" default:"30s"`
}

// SweeperConfig holds the expiry and retention schedule.
type SweeperConfig struct {
	ExpireInterval time.Duration `envconfig:"SWEEP_EXPIRE_INTERVAL" default:"1m"`
	PurgeInterval  time.Duration `envconfig:"SWEEP_PURGE_INTERVAL" default:"24h"`
	Retention      time.Duration `envconfig:"SWEEP_RETENTION" default:"168h"`
	BatchSize      int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" default:""`
}

// NotifierConfig selects how delivered credentials reach the buyer.
type NotifierConfig struct {
	Type          string   `envconfig:"NOTIFIER_TYPE" default:"log"` // log or kafka
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	DeliveryTopic string   `envconfig:"KAFKA_DELIVERY_TOPIC" default:"account-delivery"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		s.MySQLUser, s.MySQLPassword, s.MySQLHost, s.MySQLPort, s.MySQLName)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.PostgresUser, s.PostgresPassword, s.PostgresHost, s.PostgresPort, s.PostgresName, s.PostgresSSLMode)
}

// SQLiteDSN returns the modernc SQLite DSN with WAL and a busy timeout.
func (s *StoreConfig) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", s.SQLitePath)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if strings.TrimSpace(cfg.Vault.EncryptionKey) == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY must not be empty")
	}
	if strings.TrimSpace(cfg.Payment.WebhookAPIKey) == "" {
		return nil, fmt.Errorf("WEBHOOK_API_KEY must not be empty")
	}
	if cfg.Sweeper.BatchSize <= 0 || cfg.Sweeper.BatchSize > 500 {
		return nil, fmt.Errorf("SWEEP_BATCH_SIZE must be between 1 and 500, got %d", cfg.Sweeper.BatchSize)
	}
	if len(cfg.Payment.CheckoutCodePrefix) != 2 {
		return nil, fmt.Errorf("CHECKOUT_CODE_PREFIX must be exactly 2 letters, got %q", cfg.Payment.CheckoutCodePrefix)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
