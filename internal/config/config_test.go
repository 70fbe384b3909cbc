package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:        "postgres://localhost/test",
		ServerOrigin:       "https://example.com",
		HealthCheckTimeout: 5 * time.Second,
		BackoffSchedule:    "3s,15s",
	}
}

func TestValidateForServe_RequiresDatabaseURLUnlessMemoryBackends(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	require.Error(t, cfg.ValidateForServe())

	cfg.UseMemoryBackends = true
	require.NoError(t, cfg.ValidateForServe())
}

func TestValidateForServe_RequiresServerOrigin(t *testing.T) {
	cfg := validConfig()
	cfg.ServerOrigin = ""
	require.Error(t, cfg.ValidateForServe())
}

func TestValidateForServe_RejectsNonPositiveHealthCheckTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.HealthCheckTimeout = 0
	require.Error(t, cfg.ValidateForServe())
}

func TestValidateForServe_RejectsMalformedBackoffSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.BackoffSchedule = "not-a-duration"
	require.Error(t, cfg.ValidateForServe())
}

func TestValidateForServe_ActorHandleRequiresPrivateKey(t *testing.T) {
	cfg := validConfig()
	cfg.ActorHandle = "alice"
	require.Error(t, cfg.ValidateForServe())

	cfg.ActorPrivateKeyJWK = `{"kty":"RSA"}`
	require.NoError(t, cfg.ValidateForServe())
}

func TestValidateForServe_NoActorHandleDoesNotRequirePrivateKey(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateForServe())
}

func TestValidateForDB_RequiresDatabaseURL(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.ValidateForDB())

	cfg.DatabaseURL = "postgres://localhost/test"
	require.NoError(t, cfg.ValidateForDB())
}

func TestParsedBackoffSchedule_DefaultsWhenEmpty(t *testing.T) {
	cfg := &Config{}
	schedule, err := cfg.ParsedBackoffSchedule()
	require.NoError(t, err)
	assert.Equal(t, DefaultBackoffSchedule(), schedule)
}

func TestParsedBackoffSchedule_ParsesCommaSeparatedDurations(t *testing.T) {
	cfg := &Config{BackoffSchedule: "1s, 2m ,3h"}
	schedule, err := cfg.ParsedBackoffSchedule()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Minute, 3 * time.Hour}, schedule)
}

func TestParsedBackoffSchedule_RejectsInvalidEntry(t *testing.T) {
	cfg := &Config{BackoffSchedule: "1s,bogus"}
	_, err := cfg.ParsedBackoffSchedule()
	require.Error(t, err)
}
