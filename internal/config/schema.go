package config

// Config holds cuentos configuration.
// Stored at: {home}/config.yaml
type Config struct {
	TTSProviders map[string]TTSProviderCfg `mapstructure:"tts_providers" yaml:"tts_providers"`
	ASRProviders map[string]ASRProviderCfg `mapstructure:"asr_providers" yaml:"asr_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Defra        DefraConfig               `mapstructure:"defra" yaml:"defra"`
	Server       ServerConfig              `mapstructure:"server" yaml:"server"`
}

// TTSProviderCfg configures a speech-synthesis provider.
type TTSProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openai", "elevenlabs"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	Voice     string  `mapstructure:"voice" yaml:"voice"`           // Default voice
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	Format    string  `mapstructure:"format" yaml:"format"`         // Output audio format
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// ASRProviderCfg configures a speech-recognition provider.
type ASRProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openai-whisper"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	Language  string  `mapstructure:"language" yaml:"language"`     // ISO 639-1 hint
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections and worker limits.
type DefaultsCfg struct {
	TTSProvider string `mapstructure:"tts_provider" yaml:"tts_provider"` // Default synthesis provider
	ASRProvider string `mapstructure:"asr_provider" yaml:"asr_provider"` // Default recognition provider
	MaxWorkers  int    `mapstructure:"max_workers" yaml:"max_workers"`   // Max concurrent job workers
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: cuentos-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TTSProviders: map[string]TTSProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "tts-1-hd",
				Voice:     "nova",
				APIKey:    "${OPENAI_API_KEY}",
				Format:    "mp3",
				RateLimit: 8.0,
				Enabled:   true,
			},
			"elevenlabs": {
				Type:      "elevenlabs",
				Model:     "eleven_multilingual_v2",
				APIKey:    "${ELEVENLABS_API_KEY}",
				Format:    "mp3_44100_128",
				RateLimit: 10.0,
				Enabled:   false,
			},
		},
		ASRProviders: map[string]ASRProviderCfg{
			"whisper": {
				Type:      "openai-whisper",
				Model:     "whisper-1",
				Language:  "es",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 2.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			TTSProvider: "openai",
			ASRProvider: "whisper",
			MaxWorkers:  4,
		},
		Defra: DefraConfig{
			ContainerName: "cuentos-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// GetTTSProvider returns a synthesis provider config by name.
func (c *Config) GetTTSProvider(name string) (TTSProviderCfg, bool) {
	cfg, ok := c.TTSProviders[name]
	return cfg, ok
}

// GetASRProvider returns a recognition provider config by name.
func (c *Config) GetASRProvider(name string) (ASRProviderCfg, bool) {
	cfg, ok := c.ASRProviders[name]
	return cfg, ok
}

// EnabledTTSProviders returns all enabled synthesis providers.
func (c *Config) EnabledTTSProviders() map[string]TTSProviderCfg {
	result := make(map[string]TTSProviderCfg)
	for name, cfg := range c.TTSProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledASRProviders returns all enabled recognition providers.
func (c *Config) EnabledASRProviders() map[string]ASRProviderCfg {
	result := make(map[string]ASRProviderCfg)
	for name, cfg := range c.ASRProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
