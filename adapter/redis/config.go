package redis

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/flumeworks/flume"
)

// Config holds Redis connection settings.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string `env:"FLUME_REDIS_ADDR" envDefault:"localhost:6379"`

	// Password authenticates against a protected server. Empty means no auth.
	Password string `env:"FLUME_REDIS_PASSWORD"`

	// DB selects the logical database.
	DB int `env:"FLUME_REDIS_DB" envDefault:"0"`
}

// ConfigFromEnv builds a Config from FLUME_REDIS_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse redis config: %v", flume.ErrInvalidConfiguration, err)
	}
	return cfg, nil
}
