package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("IRACING_USERNAME", "user@example.com")
	t.Setenv("IRACING_PASSWORD", "hunter2")
	t.Setenv("IRACING_CLIENT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	s, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "ar-pwlimited", s.ClientID)
	assert.Equal(t, "iracing.auth", s.Scope)
	assert.Equal(t, 60, s.RateLimitRPM)
	assert.Equal(t, 15*time.Second, s.HTTPTimeout)
	assert.Equal(t, []string{"sports_car"}, s.Categories)
	assert.Equal(t, time.Duration(0), s.CacheCycle)
	assert.Equal(t, "data/snapshots", s.SnapshotsDir)
}

func TestLoad_Overrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("CATEGORIES", "sports_car, formula_car ,oval")
	t.Setenv("IRACING_RATE_LIMIT_RPM", "10")
	t.Setenv("CACHE_CYCLE_HOURS", "6")

	s, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, []string{"sports_car", "formula_car", "oval"}, s.Categories)
	assert.Equal(t, 10, s.RateLimitRPM)
	assert.Equal(t, 6*time.Hour, s.CacheCycle)
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("IRACING_USERNAME", "user@example.com")
	t.Setenv("IRACING_PASSWORD", "")
	t.Setenv("IRACING_CLIENT_SECRET", "secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestSupportsCategory(t *testing.T) {
	s := Settings{Categories: []string{"sports_car", "formula_car"}}
	assert.True(t, s.SupportsCategory("sports_car"))
	assert.False(t, s.SupportsCategory("oval"))
}
