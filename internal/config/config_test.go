package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/necpgame/combat-session-engine/internal/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 30*time.Second, cfg.TurnTimer)
	require.Equal(t, 250*time.Millisecond, cfg.CompensationWindow)
}

func TestRulesConversion(t *testing.T) {
	cfg := Config{
		MaxParticipants:    4,
		AllowLateJoin:      true,
		TurnTimer:          10 * time.Second,
		CompensationWindow: 100 * time.Millisecond,
	}
	rules := cfg.Rules()
	require.Equal(t, 4, rules.MaxParticipants)
	require.True(t, rules.AllowLateJoin)
	require.Equal(t, 10*time.Second, rules.TurnTimer)
	require.Equal(t, 100*time.Millisecond, rules.MaxCompensationWindow)

	// zero values keep the engine defaults
	rules = Config{}.Rules()
	require.Equal(t, engine.DefaultRules().TurnTimer, rules.TurnTimer)
	require.Equal(t, engine.DefaultRules().MaxParticipants, rules.MaxParticipants)
	require.False(t, rules.AllowLateJoin)
}
