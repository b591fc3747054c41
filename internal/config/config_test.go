package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Run("returns the default when unset", func(t *testing.T) {
		assert.Equal(t, "fallback", getEnv("PAINTSHOP_UNSET_VAR", "fallback"))
	})

	t.Run("returns the environment value when set", func(t *testing.T) {
		t.Setenv("PAINTSHOP_TEST_VAR", "overridden")
		assert.Equal(t, "overridden", getEnv("PAINTSHOP_TEST_VAR", "fallback"))
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("returns the default when unset", func(t *testing.T) {
		assert.Equal(t, 42, getEnvInt("PAINTSHOP_UNSET_INT", 42))
	})

	t.Run("parses a set value", func(t *testing.T) {
		t.Setenv("PAINTSHOP_TEST_INT", "900")
		assert.Equal(t, 900, getEnvInt("PAINTSHOP_TEST_INT", 42))
	})

	t.Run("falls back to the default on an unparseable value", func(t *testing.T) {
		t.Setenv("PAINTSHOP_TEST_INT", "not-a-number")
		assert.Equal(t, 42, getEnvInt("PAINTSHOP_TEST_INT", 42))
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("returns the default when unset", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, getEnvDuration("PAINTSHOP_UNSET_DURATION", 5*time.Second))
	})

	t.Run("parses a set duration", func(t *testing.T) {
		t.Setenv("PAINTSHOP_TEST_DURATION", "250ms")
		assert.Equal(t, 250*time.Millisecond, getEnvDuration("PAINTSHOP_TEST_DURATION", 5*time.Second))
	})

	t.Run("falls back to the default on an unparseable value", func(t *testing.T) {
		t.Setenv("PAINTSHOP_TEST_DURATION", "not-a-duration")
		assert.Equal(t, 5*time.Second, getEnvDuration("PAINTSHOP_TEST_DURATION", 5*time.Second))
	})
}

func TestLoadDefaults(t *testing.T) {
	t.Run("produces usable development defaults with no environment set", func(t *testing.T) {
		cfg := Load()
		assert.Equal(t, "default", cfg.ShopID)
		assert.Equal(t, 900, cfg.VehicleCount)
		assert.NotEmpty(t, cfg.Operators)
		assert.Equal(t, 500*time.Millisecond, cfg.TickInterval)
	})
}
