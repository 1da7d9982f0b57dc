package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Delivery  DeliveryConfig
	Scheduler SchedulerConfig
	Quota     QuotaConfig
	Currency  CurrencyConfig
	Notify    NotifyConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MigrationsPath string
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type DeliveryConfig struct {
	WorkerCount    int
	MaxAttempts    int
	Timeout        time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
	SignatureName  string
	ResponseBodyKB int
}

type SchedulerConfig struct {
	QuotaInterval    time.Duration
	UsageInterval    time.Duration
	CurrencyInterval time.Duration
	ExpiryInterval   time.Duration
	WebhookInterval  time.Duration
	UsageBatchSize   int
}

type QuotaConfig struct {
	WarningPercent  float64
	CriticalPercent float64
	BlockPercent    float64
	GraceDays       int
}

type CurrencyConfig struct {
	ProviderURL     string
	ProviderTimeout time.Duration
	BaseCurrency    string
}

type NotifyConfig struct {
	SMTPHost   string
	SMTPPort   int
	SMTPFrom   string
	SMSPerHour int
}

func Load() (*Config, error) {
	// .env is optional, used in local development
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("PLATFORM")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.migrationspath", "migrations")
	viper.SetDefault("auth.tokenttl", "24h")
	viper.SetDefault("delivery.workercount", 10)
	viper.SetDefault("delivery.maxattempts", 3)
	viper.SetDefault("delivery.timeout", "10s")
	viper.SetDefault("delivery.maxbackoff", "60s")
	viper.SetDefault("delivery.useragent", "platform-core-webhooks/1.0")
	viper.SetDefault("delivery.signaturename", "X-Platform-Signature")
	viper.SetDefault("delivery.responsebodykb", 4)
	viper.SetDefault("scheduler.quotainterval", "5m")
	viper.SetDefault("scheduler.usageinterval", "15m")
	viper.SetDefault("scheduler.currencyinterval", "6h")
	viper.SetDefault("scheduler.expiryinterval", "1h")
	viper.SetDefault("scheduler.webhookinterval", "30m")
	viper.SetDefault("scheduler.usagebatchsize", 500)
	viper.SetDefault("quota.warningpercent", 80)
	viper.SetDefault("quota.criticalpercent", 90)
	viper.SetDefault("quota.blockpercent", 100)
	viper.SetDefault("quota.gracedays", 10)
	viper.SetDefault("currency.providertimeout", "5s")
	viper.SetDefault("currency.basecurrency", "USD")
	viper.SetDefault("notify.smtpport", 587)
	viper.SetDefault("notify.smsperhour", 10)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("CURRENCY_PROVIDER_URL"); url != "" {
		cfg.Currency.ProviderURL = url
	}

	return &cfg, nil
}
