package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.TTSProviders) == 0 {
		t.Error("expected default TTS providers")
	}
	openai, ok := cfg.GetTTSProvider("openai")
	if !ok {
		t.Fatal("expected openai TTS provider")
	}
	if openai.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if !openai.Enabled {
		t.Error("expected openai enabled by default")
	}

	whisper, ok := cfg.GetASRProvider("whisper")
	if !ok {
		t.Fatal("expected whisper ASR provider")
	}
	if whisper.Language != "es" {
		t.Errorf("expected language hint es, got %s", whisper.Language)
	}

	if cfg.Defaults.TTSProvider != "openai" || cfg.Defaults.ASRProvider != "whisper" {
		t.Errorf("unexpected defaults: %+v", cfg.Defaults)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestEnabledProviders(t *testing.T) {
	cfg := &Config{
		TTSProviders: map[string]TTSProviderCfg{
			"openai":     {Type: "openai", Enabled: true},
			"elevenlabs": {Type: "elevenlabs", Enabled: false},
		},
	}

	enabled := cfg.EnabledTTSProviders()
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled provider, got %d", len(enabled))
	}
	if _, ok := enabled["openai"]; !ok {
		t.Error("expected openai to be enabled")
	}
}

func TestBuildTTSProvider(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		cfg := DefaultConfig()
		p, err := cfg.BuildTTSProvider()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Name() != "openai-tts" {
			t.Errorf("unexpected provider name %s", p.Name())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Defaults.TTSProvider = "nope"
		if _, err := cfg.BuildTTSProvider(); err == nil {
			t.Error("expected error for unknown provider")
		}
	})

	t.Run("disabled provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Defaults.TTSProvider = "elevenlabs"
		if _, err := cfg.BuildTTSProvider(); err == nil {
			t.Error("expected error for disabled provider")
		}
	})
}

func TestBuildASRProvider(t *testing.T) {
	cfg := DefaultConfig()
	p, err := cfg.BuildASRProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai-whisper" {
		t.Errorf("unexpected provider name %s", p.Name())
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
defaults:
  tts_provider: "elevenlabs"
  max_workers: 7
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.TTSProvider != "elevenlabs" {
			t.Errorf("expected elevenlabs, got %s", cfg.Defaults.TTSProvider)
		}
		if cfg.Defaults.MaxWorkers != 7 {
			t.Errorf("expected 7 workers, got %d", cfg.Defaults.MaxWorkers)
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  max_workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  max_workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Defaults.MaxWorkers
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  tts_provider: \"openai\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Verify initial value
	cfg := mgr.Get()
	if cfg.Defaults.TTSProvider != "openai" {
		t.Errorf("initial value mismatch: got %s", cfg.Defaults.TTSProvider)
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Defaults.TTSProvider)
	})

	// Start watching
	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	// Update the config file
	if err := os.WriteFile(configFile, []byte("defaults:\n  tts_provider: \"elevenlabs\"\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}

	// Verify the config was updated
	newCfg := mgr.Get()
	if newCfg.Defaults.TTSProvider != "elevenlabs" {
		t.Errorf("config not updated: got %s", newCfg.Defaults.TTSProvider)
	}

	// Verify callback received the updated value
	if v := lastValue.Load(); v != "elevenlabs" {
		t.Errorf("callback received wrong value: got %v", v)
	}
}
