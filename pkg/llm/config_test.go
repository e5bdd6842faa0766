package llm

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigFromViperDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	config, err := GetConfigFromViper()
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, config.Provider)
	assert.Equal(t, DefaultRetryConfig, config.Retry)
}

func TestGetConfigFromViperProfileAndAliases(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("provider", "anthropic")
	viper.Set("model", "sonnet")
	viper.Set("max_tokens", 2048)
	viper.Set("retry", map[string]any{"attempts": 5, "initial_delay_ms": 200, "backoff_type": "fixed"})
	viper.Set("aliases", map[string]any{"sonnet": "claude-sonnet-4-5-20250929", "flash": "gemini-2.5-flash"})
	viper.Set("profiles", map[string]any{
		"default": map[string]any{"model": "ignored"},
		"offline": map[string]any{"provider": "static", "static": map[string]any{"dir": "./drafts"}},
		"gemini":  map[string]any{"provider": "google", "model": "flash", "google": map[string]any{"backend": "gemini"}},
	})

	config, err := GetConfigFromViper()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5-20250929", config.Model)
	assert.Equal(t, 2048, config.MaxTokens)
	assert.Equal(t, 5, config.Retry.Attempts)
	assert.Equal(t, "fixed", config.Retry.BackoffType)
	assert.NotContains(t, config.Profiles, "default")

	viper.Set("profile", "gemini")
	config, err = GetConfigFromViper()
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, config.Provider)
	assert.Equal(t, "gemini-2.5-flash", config.Model)
	assert.Equal(t, "gemini", config.Google.Backend)
	assert.Equal(t, 2048, config.MaxTokens, "profile keeps unset fields")

	viper.Set("profile", "offline")
	config, err = GetConfigFromViper()
	require.NoError(t, err)
	assert.Equal(t, ProviderStatic, config.Provider)
	assert.Equal(t, "./drafts", config.Static.Dir)

	viper.Set("profile", "missing")
	_, err = GetConfigFromViper()
	assert.ErrorContains(t, err, `profile "missing" not found`)
}
