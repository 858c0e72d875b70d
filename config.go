package profilex

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config is the environment-driven configuration for the profilex daemon.
// Library users configure components through functional options instead.
type Config struct {
	Addr        string `env:"PROFILEX_ADDR" envDefault:":8000"`
	DatabaseDSN string `env:"PROFILEX_DB_DSN" envDefault:"profilex.db"`
	TableName   string `env:"PROFILEX_TABLE" envDefault:"profile_records"`

	SuccessTTL    time.Duration `env:"PROFILEX_SUCCESS_TTL" envDefault:"1h"`
	ErrorTTL      time.Duration `env:"PROFILEX_ERROR_TTL" envDefault:"5m"`
	SourceTimeout time.Duration `env:"PROFILEX_SOURCE_TIMEOUT" envDefault:"10s"`

	FetchConcurrency int `env:"PROFILEX_FETCH_CONCURRENCY" envDefault:"2"`
	RefreshLimit     int `env:"PROFILEX_REFRESH_LIMIT" envDefault:"3"`
	EventLogSize     int `env:"PROFILEX_EVENT_LOG_SIZE" envDefault:"256"`

	ResponseCacheTTL time.Duration `env:"PROFILEX_RESPONSE_CACHE_TTL" envDefault:"2s"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse environment")
	}
	return cfg, nil
}
