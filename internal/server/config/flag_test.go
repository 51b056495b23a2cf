package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-d", "db", "-s", "secret",
				"-t", "15", "-r", "60", "-b", "10", "-m", "5", "-R", "redis:6379", "-l", "debug",
			},
			expected: &Config{
				EndpointAddrHTTP:             "127.0.0.1:9090",
				DatabaseDSN:                  "db",
				SecretKey:                    "secret",
				AccessTokenValidityDuration:  15 * time.Minute,
				RefreshTokenValidityDuration: 60 * time.Minute,
				BcryptCost:                   10,
				MaxFailedLoginAttempts:       5,
				RedisAddr:                    "redis:6379",
				LogLevel:                     "debug",
			},
		},
		{
			name: "config flag is ignored here",
			args: []string{"-c", "auth.json", "-a", ":7000"},
			expected: &Config{
				EndpointAddrHTTP: ":7000",
			},
		},
		{
			name:        "non numeric ttl panics",
			args:        []string{"-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}

			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}

func TestParseFlags_KeepsLifetimesWithoutTTLFlags(t *testing.T) {
	t.Setenv("EMES_ACCESS_TOKEN_TTL", "90s")
	t.Setenv("EMES_REFRESH_TOKEN_TTL", "30s")

	var c Config
	c.LoadDefaults()
	parseEnv(&c, "")

	require.NotPanics(t, func() { parseFlags(&c, nil) })
	assert.Equal(t, 90*time.Second, c.AccessTokenValidityDuration)
	assert.Equal(t, 30*time.Second, c.RefreshTokenValidityDuration)

	parseFlags(&c, []string{"-a", ":9000"})
	assert.Equal(t, 90*time.Second, c.AccessTokenValidityDuration)
	assert.Equal(t, 30*time.Second, c.RefreshTokenValidityDuration)
}

func TestParseFlags_OnlyGivenTTLReplaced(t *testing.T) {
	c := &Config{
		AccessTokenValidityDuration:  45 * time.Second,
		RefreshTokenValidityDuration: 90 * time.Minute,
	}

	parseFlags(c, []string{"-r", "120"})

	assert.Equal(t, 45*time.Second, c.AccessTokenValidityDuration)
	assert.Equal(t, 2*time.Hour, c.RefreshTokenValidityDuration)
}
