package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default configuration entries.
// These are seeded into DefraDB on first run.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// TTS Providers
		// ===================

		// TTS Providers - OpenAI
		{
			Key:         "providers.tts.openai.type",
			Value:       "openai",
			Description: "TTS provider type for OpenAI",
		},
		{
			Key:         "providers.tts.openai.model",
			Value:       "tts-1-hd",
			Description: "Default OpenAI TTS model",
		},
		{
			Key:         "providers.tts.openai.voice",
			Value:       "nova",
			Description: "Default OpenAI TTS voice",
		},
		{
			Key:         "providers.tts.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.tts.openai.rate_limit",
			Value:       8.0,
			Description: "Rate limit in requests per second for OpenAI TTS",
		},
		{
			Key:         "providers.tts.openai.enabled",
			Value:       true,
			Description: "Whether OpenAI TTS provider is enabled",
		},
		{
			Key:         "providers.tts.openai.format",
			Value:       "mp3",
			Description: "Default OpenAI audio output format",
		},
		{
			Key:         "providers.tts.openai.speed",
			Value:       1.0,
			Description: "Default OpenAI speech speed",
		},

		// TTS Providers - ElevenLabs
		{
			Key:         "providers.tts.elevenlabs.type",
			Value:       "elevenlabs",
			Description: "TTS provider type for ElevenLabs",
		},
		{
			Key:         "providers.tts.elevenlabs.model",
			Value:       "eleven_multilingual_v2",
			Description: "Model name for ElevenLabs TTS (Spanish narration needs the multilingual model)",
		},
		{
			Key:         "providers.tts.elevenlabs.api_key",
			Value:       "${ELEVENLABS_API_KEY}",
			Description: "ElevenLabs API key (uses environment variable)",
		},
		{
			Key:         "providers.tts.elevenlabs.rate_limit",
			Value:       10.0,
			Description: "Rate limit in requests per second for ElevenLabs",
		},
		{
			Key:         "providers.tts.elevenlabs.enabled",
			Value:       false,
			Description: "Whether ElevenLabs TTS provider is enabled",
		},
		{
			Key:         "providers.tts.elevenlabs.format",
			Value:       "mp3_44100_128",
			Description: "Default audio output format",
		},
		{
			Key:         "providers.tts.elevenlabs.stability",
			Value:       0.5,
			Description: "Voice stability (0-1)",
		},
		{
			Key:         "providers.tts.elevenlabs.similarity",
			Value:       0.75,
			Description: "Similarity boost (0-1)",
		},

		// ===================
		// ASR Providers
		// ===================

		// ASR Providers - Whisper
		{
			Key:         "providers.asr.whisper.type",
			Value:       "openai-whisper",
			Description: "ASR provider type for word-level transcription",
		},
		{
			Key:         "providers.asr.whisper.model",
			Value:       "whisper-1",
			Description: "Default Whisper model",
		},
		{
			Key:         "providers.asr.whisper.language",
			Value:       "es",
			Description: "Language hint passed to transcription",
		},
		{
			Key:         "providers.asr.whisper.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.asr.whisper.rate_limit",
			Value:       2.0,
			Description: "Rate limit in requests per second for Whisper",
		},
		{
			Key:         "providers.asr.whisper.enabled",
			Value:       true,
			Description: "Whether the Whisper ASR provider is enabled",
		},

		// ===================
		// Pipeline Defaults
		// ===================
		{
			Key:         "defaults.tts_provider",
			Value:       "openai",
			Description: "Default TTS provider for narration",
		},
		{
			Key:         "defaults.asr_provider",
			Value:       "whisper",
			Description: "Default ASR provider for timing alignment",
		},
		{
			Key:         "defaults.max_workers",
			Value:       4,
			Description: "Maximum concurrent job workers",
		},
		{
			Key:         "defaults.openai_tts_instructions",
			Value:       "",
			Description: "Optional instructions for OpenAI gpt-4o-mini-tts generation",
		},
	}
}

// SeedDefaults seeds default configuration entries into the store.
// This is idempotent - existing entries are not overwritten.
func SeedDefaults(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultEntries()
	seeded := 0
	skipped := 0

	for _, entry := range defaults {
		// Check if key already exists
		existing, err := store.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}

		if existing != nil {
			skipped++
			continue
		}

		// Create the entry
		if err := store.Set(ctx, entry.Key, entry.Value, entry.Description); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default config entries", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(ctx context.Context, store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(ctx, key, def.Value, def.Description)
}
