package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every configuration value of the service. Only this struct
// must be used to hold configuration; no direct access to env or any other
// config source should be made elsewhere.
type Config struct {
	AppEnv   string `env:"APP_ENV,default=dev"`
	AppName  string `env:"APP_NAME,default=group_factory"`
	AppDebug bool   `env:"APP_DEBUG,default=1"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`
	AdminToken         string        `env:"ADMIN_TOKEN"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresMaxOpenConns  int    `env:"POSTGRES_MAX_OPEN_CONNS,default=20"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=gf:"`

	PromNamespace  string `env:"PROM_NAMESPACE,default=group_factory"`
	PromListenAddr string `env:"PROM_LISTEN_ADDR,default=:9100"`

	FulfillmentWorkers         int           `env:"FULFILLMENT_WORKERS,default=8"`
	FulfillmentQueueSize       int           `env:"FULFILLMENT_QUEUE_SIZE,default=256"`
	FulfillmentGroupDelay      time.Duration `env:"FULFILLMENT_GROUP_DELAY,default=2s"`
	FulfillmentLockTTL         time.Duration `env:"FULFILLMENT_LOCK_TTL,default=10m"`
	FulfillmentFloodWait       time.Duration `env:"FULFILLMENT_MAX_FLOOD_WAIT,default=30s"`
	FulfillmentRecoverAge      time.Duration `env:"FULFILLMENT_RECOVER_AGE,default=1m"`
	FulfillmentRecoverInterval time.Duration `env:"FULFILLMENT_RECOVER_INTERVAL,default=1m"`

	DefaultMaxGroupsPerOrder int    `env:"DEFAULT_MAX_GROUPS_PER_ORDER,default=50"`
	DefaultPricePerHundred   string `env:"DEFAULT_PRICE_PER_HUNDRED,default=2.00"`

	BridgeURL            string        `env:"BRIDGE_URL,default=http://localhost:8081"`
	BridgeTimeout        time.Duration `env:"BRIDGE_TIMEOUT,default=15s"`
	BridgeConnectRetries int           `env:"BRIDGE_CONNECT_RETRIES,default=5"`
	BridgeRetryDelay     time.Duration `env:"BRIDGE_RETRY_DELAY,default=500ms"`

	ChallengeTTL time.Duration `env:"CHALLENGE_TTL,default=5m"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

// Set replaces the active configuration; used by tests and embedded setups.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
