package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTPPort    int    `env:"HTTP_PORT" env-default:"8080"`
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres"`

	DBConfig struct {
		Host     string `env:"SETTLEMENT_DB_HOST" env-default:"localhost"`
		Port     int    `env:"SETTLEMENT_DB_PORT" env-default:"5432"`
		User     string `env:"SETTLEMENT_DB_USER" env-default:"user"`
		Password string `env:"SETTLEMENT_DB_PASSWORD" env-default:"password"`
		Name     string `env:"SETTLEMENT_DB_NAME" env-default:"settlement_db"`
		SSLMode  string `env:"SETTLEMENT_DB_SSLMODE" env-default:"disable"`
	}
	MigrationsPath string `env:"MIGRATIONS_PATH" env-default:"file:///app/migrations"`

	KafkaEnabled             bool   `env:"KAFKA_ENABLED" env-default:"true"`
	KafkaBrokerURL           string `env:"KAFKA_BROKER_URL" env-default:"localhost:9092"`
	KafkaProviderEventsTopic string `env:"KAFKA_PROVIDER_EVENTS_TOPIC" env-default:"payment_provider_events"`
	KafkaOrderEventsTopic    string `env:"KAFKA_ORDER_EVENTS_TOPIC" env-default:"order_events"`
	KafkaConsumerGroup       string `env:"KAFKA_CONSUMER_GROUP" env-default:"settlement-provider-events-group"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" env-default:"1s"`
	// OutboxPollTimeout bounds a whole batch: the locking transaction and every produce in it.
	OutboxPollTimeout time.Duration `env:"OUTBOX_POLL_TIMEOUT" env-default:"30s"`
	OutboxBatchSize   int           `env:"OUTBOX_BATCH_SIZE" env-default:"10"`

	Provider  ProviderConfig
	Carrier   CarrierConfig
	Mailer    MailerConfig
	Checkout  CheckoutConfig
	Currency  CurrencyConfig
	Admin     AdminConfig
	HTTPLimit HTTPLimitConfig
}

type ProviderConfig struct {
	BaseURL          string        `env:"PAYMENT_PROVIDER_URL" env-default:"https://api.stripe.com"`
	SecretKey        string        `env:"PAYMENT_PROVIDER_SECRET_KEY"`
	WebhookSecret    string        `env:"PAYMENT_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `env:"PAYMENT_WEBHOOK_TOLERANCE" env-default:"5m"`
	ReferencePattern string        `env:"PAYMENT_REFERENCE_PATTERN" env-default:"^pi_[A-Za-z0-9_]+$"`
	RetryAttempts    int           `env:"PAYMENT_PROVIDER_RETRY_ATTEMPTS" env-default:"3"`
	RetryBackoff     time.Duration `env:"PAYMENT_PROVIDER_RETRY_BACKOFF" env-default:"200ms"`
	Timeout          time.Duration `env:"PAYMENT_PROVIDER_TIMEOUT" env-default:"5s"`
}

type CarrierConfig struct {
	BaseURL string        `env:"CARRIER_API_URL" env-default:"https://api.sendcloud.sc/api/v2"`
	APIKey  string        `env:"CARRIER_API_KEY"`
	Timeout time.Duration `env:"CARRIER_TIMEOUT" env-default:"3s"`
}

type MailerConfig struct {
	BaseURL    string        `env:"MAILER_API_URL" env-default:"https://api.resend.com"`
	APIKey     string        `env:"MAILER_API_KEY"`
	From       string        `env:"MAILER_FROM" env-default:"orders@shop.example"`
	AdminEmail string        `env:"ADMIN_EMAIL" env-default:"admin@shop.example"`
	Timeout    time.Duration `env:"MAILER_TIMEOUT" env-default:"10s"`
}

type CheckoutConfig struct {
	WarehouseCountry string        `env:"WAREHOUSE_COUNTRY" env-default:"NL"`
	DefaultLocale    string        `env:"DEFAULT_LOCALE" env-default:"en"`
	SupportedLocales []string      `env:"SUPPORTED_LOCALES" env-default:"en,fr,de,es,it,nl,pt,ja"`
	FinalizeTimeout  time.Duration `env:"FINALIZE_TIMEOUT" env-default:"20s"`
	ItemWeightGrams  int           `env:"ITEM_WEIGHT_GRAMS" env-default:"500"`
}

type CurrencyConfig struct {
	Base  string            `env:"BASE_CURRENCY" env-default:"EUR"`
	Rates map[string]string `env:"CURRENCY_RATES" env-default:"USD:1.08,GBP:0.86,JPY:160,CHF:0.95"`
}

type AdminConfig struct {
	JWTSecret   string   `env:"ADMIN_JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:5173"`
}

type HTTPLimitConfig struct {
	QuoteRPS   float64 `env:"QUOTE_RATE_LIMIT_RPS" env-default:"5"`
	QuoteBurst int     `env:"QUOTE_RATE_LIMIT_BURST" env-default:"10"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Provider.RetryAttempts < 1 {
		return fmt.Errorf("PAYMENT_PROVIDER_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Checkout.ItemWeightGrams <= 0 {
		return fmt.Errorf("ITEM_WEIGHT_GRAMS must be positive")
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	brokers := strings.Split(c.KafkaBrokerURL, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}
