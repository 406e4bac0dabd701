package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Service holds process-level settings shared by both binaries.
type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	Host        string `envconfig:"SERVICE_HOST" default:"localhost:8080"`
}

// ClickHouse holds the signal store connection settings.
type ClickHouse struct {
	Host            string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port            string `envconfig:"CLICKHOUSE_PORT" required:"true"`
	Database        string `envconfig:"CLICKHOUSE_DB" required:"true"`
	User            string `envconfig:"CLICKHOUSE_USER" default:""`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	UseTLS          bool   `envconfig:"CLICKHOUSE_USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`
}

// SQLite holds the nudge store settings.
type SQLite struct {
	Path string `envconfig:"SQLITE_PATH" required:"true"`
}

// SQS holds the interaction feedback queue settings.
type SQS struct {
	Endpoint string `envconfig:"SQS_ENDPOINT"`
	QueueURL string `envconfig:"SQS_QUEUE_URL" required:"true"`
	Region   string `envconfig:"SQS_REGION" required:"true"`
}

// Feeds holds the upstream metric provider endpoints. Empty feeds are
// skipped at wiring time.
type Feeds struct {
	SpendURL  string `envconfig:"FEED_SPEND_URL"`
	BudgetURL string `envconfig:"FEED_BUDGET_URL"`
	GoalURL   string `envconfig:"FEED_GOAL_URL"`
}

// Engine holds batch run settings.
type Engine struct {
	AggregationWorkers int `envconfig:"ENGINE_AGGREGATION_WORKERS" default:"16"`
	EvaluationWorkers  int `envconfig:"ENGINE_EVALUATION_WORKERS" default:"16"`
}

// Consumer holds interaction consumer settings.
type Consumer struct {
	HealthCheckPort string `envconfig:"CONSUMER_HEALTH_CHECK_PORT" default:"8081"`
}

// Config is the full engine configuration loaded from the environment.
type Config struct {
	Service    Service
	ClickHouse ClickHouse
	SQLite     SQLite
	SQS        SQS
	Feeds      Feeds
	Engine     Engine
	Consumer   Consumer
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
