package llm

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Provider names accepted by the provider setting
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderStatic    = "static"
)

// Config holds the configuration for section generation
type Config struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`

	Retry RetryConfig `mapstructure:"retry"`

	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Google    GoogleConfig    `mapstructure:"google"`
	Static    StaticConfig    `mapstructure:"static"`

	// Profiles are named overlays selected with the profile key.
	Profiles map[string]ProfileConfig `mapstructure:"profiles"`
	// Aliases map short model names to full model identifiers.
	Aliases map[string]string `mapstructure:"aliases"`
}

// ProfileConfig is a partial Config applied on top of the base config
type ProfileConfig map[string]any

// AnthropicConfig holds Anthropic specific settings
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// OpenAIConfig holds OpenAI specific settings
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GoogleConfig holds Google GenAI specific settings
type GoogleConfig struct {
	Backend  string `mapstructure:"backend"` // "gemini" or "vertexai"
	APIKey   string `mapstructure:"api_key"`
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
}

// StaticConfig points the static provider at a directory of drafts
type StaticConfig struct {
	Dir string `mapstructure:"dir"`
}

// GetConfigFromViper loads the generator configuration, applies the
// active profile and resolves model aliases.
func GetConfigFromViper() (Config, error) {
	config, err := loadViperConfig()
	if err != nil {
		return config, err
	}

	if config.Profiles != nil {
		delete(config.Profiles, "default")
	}

	profileName := getActiveProfile()
	if profileName != "" {
		profile, exists := config.Profiles[profileName]
		if !exists {
			return config, errors.Errorf("profile %q not found", profileName)
		}
		if err := applyProfile(&config, profile); err != nil {
			return config, err
		}
	}

	config.Model = resolveModelAlias(config.Model, config.Aliases)
	return config, nil
}

func loadViperConfig() (Config, error) {
	var config Config

	if err := viper.Unmarshal(&config); err != nil {
		return config, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if config.Provider == "" {
		config.Provider = ProviderAnthropic
	}
	if config.Retry.Attempts == 0 {
		config.Retry = DefaultRetryConfig
	}

	return config, nil
}

func getActiveProfile() string {
	profile := viper.GetString("profile")
	if profile == "default" || profile == "" {
		return ""
	}
	return profile
}

func applyProfile(config *Config, profile ProfileConfig) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		WeaklyTypedInput: true,
		ZeroFields:       false,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}

	if err := decoder.Decode(map[string]any(profile)); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}

	return nil
}

func resolveModelAlias(model string, aliases map[string]string) string {
	if full, ok := aliases[model]; ok {
		return full
	}
	return model
}
