package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/cuentosapp/cuentos-server/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("tts_providers", defaults.TTSProviders)
	viper.SetDefault("asr_providers", defaults.ASRProviders)
	viper.SetDefault("defaults", defaults.Defaults)
	viper.SetDefault("defra", defaults.Defra)
	viper.SetDefault("server", defaults.Server)

	// Environment variables with CUENTOS_ prefix
	viper.SetEnvPrefix("CUENTOS")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.cuentos")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// BuildTTSProvider constructs the configured default synthesis provider,
// resolving ${ENV_VAR} references in the API key.
func (c *Config) BuildTTSProvider() (providers.TTSProvider, error) {
	name := c.Defaults.TTSProvider
	cfg, ok := c.GetTTSProvider(name)
	if !ok {
		return nil, fmt.Errorf("tts provider %q is not configured", name)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("tts provider %q is disabled", name)
	}

	switch cfg.Type {
	case "openai":
		return providers.NewOpenAITTSClient(providers.OpenAITTSConfig{
			APIKey:    ResolveEnvVars(cfg.APIKey),
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			RateLimit: cfg.RateLimit,
		}), nil
	case "elevenlabs":
		return providers.NewElevenLabsTTSClient(providers.ElevenLabsTTSConfig{
			APIKey:    ResolveEnvVars(cfg.APIKey),
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			Format:    cfg.Format,
			RateLimit: cfg.RateLimit,
		}), nil
	default:
		return nil, fmt.Errorf("unknown tts provider type %q", cfg.Type)
	}
}

// BuildASRProvider constructs the configured default recognition
// provider, resolving ${ENV_VAR} references in the API key.
func (c *Config) BuildASRProvider() (providers.ASRProvider, error) {
	name := c.Defaults.ASRProvider
	cfg, ok := c.GetASRProvider(name)
	if !ok {
		return nil, fmt.Errorf("asr provider %q is not configured", name)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("asr provider %q is disabled", name)
	}

	switch cfg.Type {
	case "openai-whisper":
		return providers.NewOpenAIASRClient(providers.OpenAIASRConfig{
			APIKey:    ResolveEnvVars(cfg.APIKey),
			Model:     cfg.Model,
			Language:  cfg.Language,
			RateLimit: cfg.RateLimit,
		}), nil
	default:
		return nil, fmt.Errorf("unknown asr provider type %q", cfg.Type)
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Cuentos configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx ELEVENLABS_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
