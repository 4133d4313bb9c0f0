package config

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuentosapp/cuentos-server/internal/defra"
)

// mockDefraServer creates a test server that simulates DefraDB responses.
func mockDefraServer(t *testing.T, handler func(req defra.GQLRequest) map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health-check" {
			w.WriteHeader(http.StatusOK)
			return
		}

		var req defra.GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		data := handler(req)
		resp := defra.GQLResponse{Data: data}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestDefraStore_Get(t *testing.T) {
	server := mockDefraServer(t, func(req defra.GQLRequest) map[string]any {
		if req.Variables["v0"] == "providers.tts.openai.voice" {
			return map[string]any{
				"Config": []any{
					map[string]any{
						"_docID":      "doc123",
						"name":        "providers.tts.openai.voice",
						"value":       `"nova"`,
						"description": "Default OpenAI TTS voice",
					},
				},
			}
		}
		return map[string]any{"Config": []any{}}
	})
	defer server.Close()

	client := defra.NewClient(server.URL)
	store := NewStore(client)

	t.Run("existing_key", func(t *testing.T) {
		entry, err := store.Get(context.Background(), "providers.tts.openai.voice")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if entry == nil {
			t.Fatal("Get() returned nil for existing key")
		}
		if entry.Key != "providers.tts.openai.voice" {
			t.Errorf("Key = %q", entry.Key)
		}
		if entry.Value != "nova" {
			t.Errorf("Value = %v, want %q", entry.Value, "nova")
		}
	})

	t.Run("non_existent_key", func(t *testing.T) {
		entry, err := store.Get(context.Background(), "does.not.exist")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if entry != nil {
			t.Errorf("Get() = %v, want nil for non-existent key", entry)
		}
	})
}

func TestDefraStore_GetAll(t *testing.T) {
	server := mockDefraServer(t, func(req defra.GQLRequest) map[string]any {
		return map[string]any{
			"Config": []any{
				map[string]any{
					"_docID":      "doc1",
					"name":        "providers.tts.openai.voice",
					"value":       `"nova"`,
					"description": "Default voice",
				},
				map[string]any{
					"_docID":      "doc2",
					"name":        "providers.asr.whisper.model",
					"value":       `"whisper-1"`,
					"description": "Whisper model",
				},
			},
		}
	})
	defer server.Close()

	client := defra.NewClient(server.URL)
	store := NewStore(client)

	entries, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("GetAll() returned %d entries, want 2", len(entries))
	}

	if _, ok := entries["providers.tts.openai.voice"]; !ok {
		t.Error("GetAll() missing key 'providers.tts.openai.voice'")
	}
	if _, ok := entries["providers.asr.whisper.model"]; !ok {
		t.Error("GetAll() missing key 'providers.asr.whisper.model'")
	}
}

func TestDefraStore_GetByPrefix(t *testing.T) {
	server := mockDefraServer(t, func(req defra.GQLRequest) map[string]any {
		return map[string]any{
			"Config": []any{
				map[string]any{
					"_docID": "doc1",
					"name":   "providers.tts.openai.type",
					"value":  `"openai"`,
				},
				map[string]any{
					"_docID": "doc2",
					"name":   "providers.tts.elevenlabs.type",
					"value":  `"elevenlabs"`,
				},
				map[string]any{
					"_docID": "doc3",
					"name":   "providers.asr.whisper.type",
					"value":  `"openai-whisper"`,
				},
			},
		}
	})
	defer server.Close()

	client := defra.NewClient(server.URL)
	store := NewStore(client)

	entries, err := store.GetByPrefix(context.Background(), "providers.tts.")
	if err != nil {
		t.Fatalf("GetByPrefix() error = %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("GetByPrefix('providers.tts.') returned %d entries, want 2", len(entries))
	}

	// Should not include ASR providers
	if _, ok := entries["providers.asr.whisper.type"]; ok {
		t.Error("GetByPrefix() should not include non-matching prefix")
	}
}

func TestExtractProviders(t *testing.T) {
	entries := map[string]Entry{
		"providers.tts.openai.type":       {Key: "providers.tts.openai.type", Value: "openai"},
		"providers.tts.openai.api_key":    {Key: "providers.tts.openai.api_key", Value: "${OPENAI_API_KEY}"},
		"providers.tts.openai.rate_limit": {Key: "providers.tts.openai.rate_limit", Value: float64(8)},
		"providers.tts.openai.enabled":    {Key: "providers.tts.openai.enabled", Value: true},
		"providers.tts.elevenlabs.type":   {Key: "providers.tts.elevenlabs.type", Value: "elevenlabs"},
		"providers.asr.whisper.type":      {Key: "providers.asr.whisper.type", Value: "openai-whisper"},
		"defaults.max_workers":            {Key: "defaults.max_workers", Value: float64(4)},
	}

	t.Run("extract_tts_providers", func(t *testing.T) {
		result := extractProviders(entries, "providers.tts.")

		if len(result) != 2 {
			t.Errorf("extractProviders() returned %d providers, want 2", len(result))
		}

		openai, ok := result["openai"]
		if !ok {
			t.Fatal("extractProviders() missing 'openai' provider")
		}
		if openai["type"] != "openai" {
			t.Errorf("openai.type = %v", openai["type"])
		}
		if openai["enabled"] != true {
			t.Errorf("openai.enabled = %v, want true", openai["enabled"])
		}
	})

	t.Run("extract_asr_providers", func(t *testing.T) {
		result := extractProviders(entries, "providers.asr.")

		if len(result) != 1 {
			t.Errorf("extractProviders() returned %d providers, want 1", len(result))
		}

		whisper, ok := result["whisper"]
		if !ok {
			t.Fatal("extractProviders() missing 'whisper' provider")
		}
		if whisper["type"] != "openai-whisper" {
			t.Errorf("whisper.type = %v", whisper["type"])
		}
	})

	t.Run("no_matching_prefix", func(t *testing.T) {
		result := extractProviders(entries, "nonexistent.")
		if len(result) != 0 {
			t.Errorf("extractProviders() with non-matching prefix should return empty map")
		}
	})
}

func TestApplyHelpers(t *testing.T) {
	m := map[string]any{
		"string_val": "hello",
		"float_val":  3.14,
		"int_val":    42,
		"bool_val":   true,
	}

	var s string
	applyString(m, "string_val", &s)
	if s != "hello" {
		t.Errorf("applyString() = %q, want %q", s, "hello")
	}
	s = "keep"
	applyString(m, "missing", &s)
	if s != "keep" {
		t.Errorf("applyString() for missing should not overwrite, got %q", s)
	}

	var f float64
	applyFloat(m, "float_val", &f)
	if f != 3.14 {
		t.Errorf("applyFloat() = %v, want %v", f, 3.14)
	}
	applyFloat(m, "int_val", &f)
	if f != 42 {
		t.Errorf("applyFloat() for int = %v, want %v", f, 42)
	}

	var b bool
	applyBool(m, "bool_val", &b)
	if !b {
		t.Error("applyBool() = false, want true")
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid simple key", "foo", false},
		{"valid dotted key", "providers.tts.openai.type", false},
		{"valid with underscore", "defaults.max_workers", false},
		{"valid with hyphen", "my-setting", false},
		{"valid with numbers", "provider1.config2", false},
		{"empty key", "", true},
		{"starts with dot", ".foo", true},
		{"ends with dot", "foo.", true},
		{"contains space", "foo bar", true},
		{"contains special char", "foo@bar", true},
		{"contains slash", "foo/bar", true},
		{"contains colon", "foo:bar", true},
		{"contains quote", "foo\"bar", true},
		{"contains curly brace", "foo{bar}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("ValidateKey(%q) error should wrap ErrInvalidKey, got %v", tt.key, err)
			}
		})
	}
}
