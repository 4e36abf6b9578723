// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/necpgame/combat-session-engine/internal/engine"
)

type Config struct {
	ListenAddr string `env:"COMBAT_LISTEN_ADDR" envDefault:":8080"`

	// DatabaseURL selects the durable store. Empty means the in-memory
	// store, which is fine for tests and local runs but loses sessions on
	// restart.
	DatabaseURL string `env:"COMBAT_DATABASE_URL"`

	LogLevel string `env:"COMBAT_LOG_LEVEL" envDefault:"info"`

	RewardsURL string `env:"COMBAT_REWARDS_URL"`

	ShutdownTimeout time.Duration `env:"COMBAT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Session policy defaults; create requests may override per session.
	MaxParticipants    int           `env:"COMBAT_MAX_PARTICIPANTS" envDefault:"8"`
	AllowLateJoin      bool          `env:"COMBAT_ALLOW_LATE_JOIN" envDefault:"false"`
	TurnTimer          time.Duration `env:"COMBAT_TURN_TIMER" envDefault:"30s"`
	CompensationWindow time.Duration `env:"COMBAT_COMPENSATION_WINDOW" envDefault:"250ms"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Rules translates the configured policy into the engine defaults applied to
// sessions that do not override them.
func (c Config) Rules() engine.Rules {
	rules := engine.DefaultRules()
	if c.MaxParticipants > 0 {
		rules.MaxParticipants = c.MaxParticipants
	}
	rules.AllowLateJoin = c.AllowLateJoin
	if c.TurnTimer > 0 {
		rules.TurnTimer = c.TurnTimer
	}
	if c.CompensationWindow > 0 {
		rules.MaxCompensationWindow = c.CompensationWindow
	}
	return rules
}
