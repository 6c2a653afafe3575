// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration. The browser and session-storage
// settings are opaque to the core; they are handed to the client driver
// untouched.
type Config struct {
	Port     string `env:"PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Client driver environment.
	ClientDriver string `env:"CLIENT_DRIVER" envDefault:"simulated"`
	BrowserPath  string `env:"BROWSER_PATH"`
	SessionDir   string `env:"SESSION_DIR" envDefault:".session"`
	Headless     bool   `env:"HEADLESS" envDefault:"true"`

	// Lifecycle policy.
	SendTimeout           time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`
	LaunchRetryDelay      time.Duration `env:"LAUNCH_RETRY_DELAY" envDefault:"30s"`
	AuthRetryDelay        time.Duration `env:"AUTH_RETRY_DELAY" envDefault:"30s"`
	RestartDelay          time.Duration `env:"RESTART_DELAY" envDefault:"5s"`
	PairingTTL            time.Duration `env:"PAIRING_TTL" envDefault:"120s"`
	ReconnectOnDisconnect bool          `env:"RECONNECT_ON_DISCONNECT" envDefault:"true"`

	// Relaunch circuit breaker.
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"5m"`

	// HTTP server shutdown grace period.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env if present, then parses the environment.
func Load() (Config, error) {
	// A missing .env file is not an error; real deployments configure the
	// process environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
