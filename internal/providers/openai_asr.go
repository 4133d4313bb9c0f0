package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIASRName = "openai"

	// Whisper API pricing, USD per minute of audio.
	openAIWhisperCostPerMinute = 0.006
)

// OpenAIASRConfig holds configuration for the OpenAI transcription client.
type OpenAIASRConfig struct {
	APIKey     string
	Model      string // "whisper-1" (default)
	Language   string // ISO 639-1 hint, e.g. "es"
	RateLimit  float64
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	BaseURL    string       // optional (tests)
	HTTPClient *http.Client // optional (tests)
}

// OpenAIASRClient implements ASRProvider on the OpenAI SDK, requesting
// word-level timestamp granularity.
type OpenAIASRClient struct {
	model      string
	language   string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	client     openai.Client
}

// NewOpenAIASRClient creates a transcription client with defaults applied.
func NewOpenAIASRClient(cfg OpenAIASRConfig) *OpenAIASRClient {
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIASRClient{
		model:      cfg.Model,
		language:   cfg.Language,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     openai.NewClient(opts...),
	}
}

func (c *OpenAIASRClient) Name() string                  { return OpenAIASRName }
func (c *OpenAIASRClient) RequestsPerSecond() float64    { return c.rateLimit }
func (c *OpenAIASRClient) MaxRetries() int               { return c.maxRetries }
func (c *OpenAIASRClient) RetryDelayBase() time.Duration { return c.retryDelay }

// verbose_json response shape; the typed SDK response omits the word
// timeline, so the raw body is decoded here instead.
type whisperVerboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe recognizes speech in audio and returns the transcript with
// per-word intervals in seconds.
func (c *OpenAIASRClient) Transcribe(ctx context.Context, audio []byte, format string) (*TranscribeResult, error) {
	start := time.Now()

	if len(audio) == 0 {
		return nil, fmt.Errorf("audio is required")
	}

	filename, contentType := audioFileInfo(format)
	params := openai.AudioTranscriptionNewParams{
		File:                   openai.File(bytes.NewReader(audio), filename, contentType),
		Model:                  openai.AudioModel(c.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	}
	if c.language != "" {
		params.Language = openai.String(c.language)
	}

	var raw []byte
	if _, err := c.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&raw)); err != nil {
		return nil, fmt.Errorf("openai transcription failed: %w", mapOpenAIError(err))
	}

	var verbose whisperVerboseResponse
	if err := json.Unmarshal(raw, &verbose); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	words := make([]RecognizedWord, 0, len(verbose.Words))
	for _, w := range verbose.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, RecognizedWord{
			Text:  text,
			Start: w.Start,
			End:   w.End,
		})
	}

	return &TranscribeResult{
		Transcript:    strings.TrimSpace(verbose.Text),
		Words:         words,
		Language:      verbose.Language,
		DurationSec:   verbose.Duration,
		CostUSD:       verbose.Duration / 60.0 * openAIWhisperCostPerMinute,
		ExecutionTime: time.Since(start),
	}, nil
}

func audioFileInfo(format string) (filename, contentType string) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav":
		return "audio.wav", "audio/wav"
	case "opus":
		return "audio.opus", "audio/ogg"
	case "aac":
		return "audio.aac", "audio/aac"
	case "flac":
		return "audio.flac", "audio/flac"
	default:
		return "audio.mp3", "audio/mpeg"
	}
}

var _ ASRProvider = (*OpenAIASRClient)(nil)
