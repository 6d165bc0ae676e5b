package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader reads configuration from a file and the environment and can
// watch the file for changes
type Loader struct {
	v        *viper.Viper
	watching sync.Once
}

// NewLoader creates a loader with its own viper instance
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(configPath string) (*Config, error) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pdn-sentinel/")
	v.AddConfigPath("$HOME/.pdn-sentinel/")

	// Environment variable overrides, e.g. SENTINEL_SCANNER_PROFILE=pdn
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered key by key so env overrides work without a file
	if err := registerDefaults(v, GetDefaults()); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// ConfigFile returns the file the configuration was read from, if any
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// registerDefaults flattens the default configuration into viper defaults
func registerDefaults(v *viper.Viper, defaults *Config) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok && len(sub) > 0 {
			setDefaults(v, full, sub)
			continue
		}
		v.SetDefault(full, value)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Scanner.Profile {
	case privacy.ProfileConfidential, privacy.ProfilePersonalData:
	default:
		return fmt.Errorf("invalid scanner profile: %s (must be %s or %s)",
			config.Scanner.Profile, privacy.ProfileConfidential, privacy.ProfilePersonalData)
	}

	if config.Scanner.PatternTimeout < 0 {
		return fmt.Errorf("invalid pattern timeout: %s", config.Scanner.PatternTimeout)
	}

	if config.Scanner.Concurrency < 1 {
		return fmt.Errorf("invalid scanner concurrency: %d (must be at least 1)", config.Scanner.Concurrency)
	}

	if _, err := privacy.ParseMode(config.Redaction.Mode); err != nil {
		return fmt.Errorf("invalid redaction mode: %s (must be mask or delete)", config.Redaction.Mode)
	}

	if _, err := workflow.ParseDecision(config.Decision.Default); err != nil {
		return fmt.Errorf("invalid default decision: %s (must be erase, mask, or ignore)", config.Decision.Default)
	}

	for category, answer := range config.Decision.Policy {
		if _, err := workflow.ParseDecision(answer); err != nil {
			return fmt.Errorf("invalid policy decision for %s: %s", category, answer)
		}
	}

	if config.Decision.MaxAttempts < 1 {
		return fmt.Errorf("invalid decision max attempts: %d (must be at least 1)", config.Decision.MaxAttempts)
	}

	if config.Output.Format != "text" && config.Output.Format != "json" {
		return fmt.Errorf("invalid output format: %s (must be text or json)", config.Output.Format)
	}

	if config.Security.RateLimit.Enabled && config.Security.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.Security.RateLimit.RequestsPerMin)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Batch.Workers < 1 {
		return fmt.Errorf("invalid batch workers: %d (must be at least 1)", config.Batch.Workers)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid
// edits are reported to onError and the previous configuration stays in
// effect.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.watching.Do(func() {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			newConfig, err := l.decode()
			if err != nil {
				if onError != nil {
					onError(fmt.Errorf("reload of %s rejected: %w", e.Name, err))
				}
				return
			}
			callback(newConfig)
		})
		l.v.WatchConfig()
	})
}

// Logger converts the logging section to the logger's configuration
func (c *Config) Logger() logger.Config {
	cfg := logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
	if c.Logging.File.Enabled {
		cfg.File = &logger.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		}
	}
	return cfg
}
