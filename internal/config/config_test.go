package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{envRegion, envChannelName, envAccessKeyID, envSecretAccessKey, envCABundlePath, envMaxViewers} {
		old, had := os.LookupEnv(name)
		os.Unsetenv(name)
		t.Cleanup(func() {
			if had {
				os.Setenv(name, old)
			}
		})
	}
}

func TestFromEnvironmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, defaultRegion, cfg.Region)
	assert.Equal(t, defaultMaxViewers, cfg.MaxConcurrentViewers)
	assert.Empty(t, cfg.ChannelName)
}

func TestFromEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv(envRegion, "us-east-1")
	os.Setenv(envChannelName, "my-channel")
	os.Setenv(envMaxViewers, "25")

	cfg, err := FromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "my-channel", cfg.ChannelName)
	assert.Equal(t, 25, cfg.MaxConcurrentViewers)
}

func TestFromEnvironmentInvalidMaxViewers(t *testing.T) {
	clearEnv(t)
	os.Setenv(envMaxViewers, "not-a-number")

	_, err := FromEnvironment()
	assert.Error(t, err)
}

func TestFromEnvironmentNonPositiveMaxViewers(t *testing.T) {
	clearEnv(t)
	os.Setenv(envMaxViewers, "0")

	_, err := FromEnvironment()
	assert.Error(t, err)
}
