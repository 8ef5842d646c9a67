package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix is passed to envconfig; individual tags carry the full name.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	Paygate   PaygateConfig
	Digiflazz DigiflazzConfig
	Gamestore GamestoreConfig
	Sosmed    SosmedConfig
	Virtusim  VirtusimConfig
	Sweep     SweepConfig
	Pricing   PricingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TOPUPID_APP_ENV" required:"true"`
	Port         string `envconfig:"TOPUPID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TOPUPID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TOPUPID_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"TOPUPID_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TOPUPID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TOPUPID_DB_DSN"`
	Driver string `envconfig:"TOPUPID_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TOPUPID_DB_HOST"`
	Port     int    `envconfig:"TOPUPID_DB_PORT" default:"5432"`
	User     string `envconfig:"TOPUPID_DB_USER"`
	Password string `envconfig:"TOPUPID_DB_PASSWORD"`
	Name     string `envconfig:"TOPUPID_DB_NAME"`
	SSLMode  string `envconfig:"TOPUPID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TOPUPID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TOPUPID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TOPUPID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TOPUPID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TOPUPID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TOPUPID_REDIS_ADDR"`
	Password     string        `envconfig:"TOPUPID_REDIS_PASSWORD"`
	DB           int           `envconfig:"TOPUPID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TOPUPID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TOPUPID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TOPUPID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TOPUPID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TOPUPID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaygateConfig holds the QRIS payment gateway credentials. The callback
// signature is an HMAC-SHA256 of the raw body keyed with PrivateKey.
type PaygateConfig struct {
	MerchantCode string `envconfig:"TOPUPID_PAYGATE_MERCHANT_CODE" required:"true"`
	APIKey       string `envconfig:"TOPUPID_PAYGATE_API_KEY" required:"true"`
	PrivateKey   string `envconfig:"TOPUPID_PAYGATE_PRIVATE_KEY" required:"true"`
}

type DigiflazzConfig struct {
	BaseURL  string        `envconfig:"TOPUPID_DIGIFLAZZ_BASE_URL" default:"https://api.digiflazz.com/v1"`
	Username string        `envconfig:"TOPUPID_DIGIFLAZZ_USERNAME" required:"true"`
	APIKey   string        `envconfig:"TOPUPID_DIGIFLAZZ_API_KEY" required:"true"`
	Timeout  time.Duration `envconfig:"TOPUPID_DIGIFLAZZ_TIMEOUT" default:"10s"`
}

type GamestoreConfig struct {
	BaseURL    string        `envconfig:"TOPUPID_GAMESTORE_BASE_URL" required:"true"`
	MerchantID string        `envconfig:"TOPUPID_GAMESTORE_MERCHANT_ID" required:"true"`
	Secret     string        `envconfig:"TOPUPID_GAMESTORE_SECRET" required:"true"`
	Timeout    time.Duration `envconfig:"TOPUPID_GAMESTORE_TIMEOUT" default:"10s"`
}

type SosmedConfig struct {
	BaseURL string        `envconfig:"TOPUPID_SOSMED_BASE_URL" required:"true"`
	APIID   string        `envconfig:"TOPUPID_SOSMED_API_ID" required:"true"`
	APIKey  string        `envconfig:"TOPUPID_SOSMED_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"TOPUPID_SOSMED_TIMEOUT" default:"10s"`
}

type VirtusimConfig struct {
	BaseURL string        `envconfig:"TOPUPID_VIRTUSIM_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"TOPUPID_VIRTUSIM_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"TOPUPID_VIRTUSIM_TIMEOUT" default:"10s"`
}

// SweepConfig bounds the timeout sweeper. Grace is how long an order may sit
// in pending/processing before the sweep resolves it; BatchSize caps one pass.
type SweepConfig struct {
	Grace     time.Duration `envconfig:"TOPUPID_SWEEP_GRACE" default:"10m"`
	BatchSize int           `envconfig:"TOPUPID_SWEEP_BATCH_SIZE" default:"100"`
	Interval  time.Duration `envconfig:"TOPUPID_SWEEP_INTERVAL" default:"1m"`
}

type PricingConfig struct {
	TierCacheTTL time.Duration `envconfig:"TOPUPID_PRICING_TIER_CACHE_TTL" default:"5m"`
}
