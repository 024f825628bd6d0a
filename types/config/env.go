package config

import (
	"sort"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvConfig mirrors TaskfireConfig as TASKFIRE_* environment variables.
type EnvConfig struct {
	StorageKey    string `env:"TASKFIRE_STORAGE_KEY" envDefault:"default"`
	StorageDriver string `env:"TASKFIRE_STORAGE_DRIVER" envDefault:"memory"`
	PostgresURL   string `env:"TASKFIRE_POSTGRES_URL"`

	MaxNumberOfRetries int `env:"TASKFIRE_MAX_RETRIES" envDefault:"3"`
	MaxNumberOfTries   int `env:"TASKFIRE_MAX_TRIES" envDefault:"3"`

	// Queues is a list of name:threads pairs, e.g. "emails:4,reports:1".
	Queues map[string]int `env:"TASKFIRE_QUEUES"`

	NotifierDriver string `env:"TASKFIRE_NOTIFIER" envDefault:"none"`
	EventTopic     string `env:"TASKFIRE_EVENT_TOPIC" envDefault:"taskfire.events"`
	EventBuffer    int    `env:"TASKFIRE_EVENT_BUFFER" envDefault:"1000"`

	RabbitMQURL        string `env:"TASKFIRE_RABBITMQ_URL"`
	RabbitMQExchange   string `env:"TASKFIRE_RABBITMQ_EXCHANGE" envDefault:"taskfire"`
	RabbitMQQueue      string `env:"TASKFIRE_RABBITMQ_QUEUE" envDefault:"taskfire.events"`
	RabbitMQRoutingKey string `env:"TASKFIRE_RABBITMQ_ROUTING_KEY" envDefault:"taskfire.events"`

	RedisAddress  string `env:"TASKFIRE_REDIS_ADDRESS"`
	RedisPassword string `env:"TASKFIRE_REDIS_PASSWORD"`
	RedisDB       int    `env:"TASKFIRE_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"TASKFIRE_REDIS_PREFIX" envDefault:"taskfire"`

	MetricsAddr string `env:"TASKFIRE_METRICS_ADDR"`
	LogLevel    string `env:"TASKFIRE_LOG_LEVEL" envDefault:"info"`
}

// LoadFromEnv builds a config from the environment. A .env file in the working directory is
// read first when present.
func LoadFromEnv() (*TaskfireConfig, error) {
	// the .env file is optional
	_ = godotenv.Load()

	e, err := env.ParseAs[EnvConfig]()
	if err != nil {
		return nil, err
	}
	return e.Config()
}

// Config validates e and converts it into a TaskfireConfig.
func (e EnvConfig) Config() (*TaskfireConfig, error) {
	var opts []ConfigOption

	driver, err := ParseStorageDriver(e.StorageDriver)
	if err != nil {
		opts = append(opts, fail(err))
	}
	if driver == Postgres || e.PostgresURL != "" {
		opts = append(opts, WithPostgresConfig(PostgresConfig{ConnectionUrl: e.PostgresURL}))
	}

	opts = append(opts, WithRetryPolicy(e.MaxNumberOfRetries, e.MaxNumberOfTries))

	names := make([]string, 0, len(e.Queues))
	for name := range e.Queues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, WithQueue(name, e.Queues[name]))
	}

	notifier, err := ParseNotifierDriver(e.NotifierDriver)
	if err != nil {
		opts = append(opts, fail(err))
	}
	switch notifier {
	case RabbitMQ:
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:        e.RabbitMQURL,
			Exchange:   e.RabbitMQExchange,
			Queue:      e.RabbitMQQueue,
			RoutingKey: e.RabbitMQRoutingKey,
		}))
	case Redis:
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:  e.RedisAddress,
			Password: e.RedisPassword,
			DB:       e.RedisDB,
			Prefix:   e.RedisPrefix,
		}))
	}

	opts = append(opts,
		WithEventTopic(e.EventTopic),
		WithEventBuffer(e.EventBuffer),
		WithLogLevel(e.LogLevel),
	)
	if e.MetricsAddr != "" {
		opts = append(opts, WithMetrics(e.MetricsAddr))
	}

	return NewTaskfireConfig(e.StorageKey, opts...)
}

func fail(err error) ConfigOption {
	return func(*TaskfireConfig) error {
		return err
	}
}
