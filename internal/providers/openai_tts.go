package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAITTSName         = "openai"
	openAITTSDefaultModel = openai.SpeechModelTTS1HD
	openAITTSDefaultVoice = "nova"
)

// OpenAITTSConfig holds configuration for the OpenAI TTS client.
type OpenAITTSConfig struct {
	APIKey       string
	Model        string        // "tts-1-hd" (default), "tts-1", "gpt-4o-mini-tts"
	Voice        string        // "nova" (default)
	Speed        float64       // 0.25-4.0
	Instructions string        // used by gpt-4o-mini-tts
	RateLimit    float64       // requests per second
	MaxRetries   int           // SDK transport retries
	RetryDelay   time.Duration // base delay for worker backoff
	Timeout      time.Duration // narration of long chapters is slow
	BaseURL      string        // optional (tests)
	HTTPClient   *http.Client  // optional (tests)
}

// OpenAITTSClient implements TTSProvider on the official OpenAI SDK.
type OpenAITTSClient struct {
	model        string
	voice        string
	speed        float64
	instructions string
	rateLimit    float64
	maxRetries   int
	retryDelay   time.Duration
	client       openai.Client
}

// NewOpenAITTSClient creates an OpenAI TTS client with defaults applied.
func NewOpenAITTSClient(cfg OpenAITTSConfig) *OpenAITTSClient {
	if cfg.Model == "" {
		cfg.Model = openAITTSDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAITTSDefaultVoice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 8.0 // ~500 RPM
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

	return &OpenAITTSClient{
		model:        cfg.Model,
		voice:        cfg.Voice,
		speed:        cfg.Speed,
		instructions: cfg.Instructions,
		rateLimit:    cfg.RateLimit,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		client:       openai.NewClient(opts...),
	}
}

func (c *OpenAITTSClient) Name() string                  { return OpenAITTSName }
func (c *OpenAITTSClient) RequestsPerSecond() float64    { return c.rateLimit }
func (c *OpenAITTSClient) MaxRetries() int               { return c.maxRetries }
func (c *OpenAITTSClient) RetryDelayBase() time.Duration { return c.retryDelay }

// HealthCheck verifies the API is reachable and the key is valid.
func (c *OpenAITTSClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai models list failed: %w", mapOpenAIError(err))
	}
	if page == nil {
		return fmt.Errorf("openai models list returned nil response")
	}
	return nil
}

// Synthesize converts text to audio via the OpenAI speech endpoint.
// OpenAI voices the input verbatim, so SpokenText is the input text.
func (c *OpenAITTSClient) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	if req == nil {
		err := fmt.Errorf("request is required")
		return &TTSResult{ErrorMessage: err.Error(), ExecutionTime: time.Since(start)}, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		err := fmt.Errorf("text is required")
		return &TTSResult{ErrorMessage: err.Error(), ExecutionTime: time.Since(start)}, err
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.voice
	}

	format := normalizeOpenAIFormat(req.Format)
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
		Speed:          openai.Float(c.speed),
	}

	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = strings.TrimSpace(c.instructions)
	}
	if instructions != "" && supportsInstructions(c.model) {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		err = mapOpenAIError(err)
		return &TTSResult{
			ErrorMessage:  err.Error(),
			CharCount:     len(text),
			ExecutionTime: time.Since(start),
		}, err
	}
	defer resp.Body.Close()

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed reading openai audio response: %w", err)
		return &TTSResult{
			ErrorMessage:  err.Error(),
			CharCount:     len(text),
			ExecutionTime: time.Since(start),
		}, err
	}

	return &TTSResult{
		Success:       true,
		Audio:         audioBytes,
		Format:        openAIResultFormat(format),
		SpokenText:    text,
		DurationMS:    estimateDurationMS(text),
		CharCount:     len(text),
		CostUSD:       estimateOpenAITTSCostUSD(c.model, text),
		ExecutionTime: time.Since(start),
	}, nil
}

// Character pricing per the published speech rates; unknown models fall
// back to the tts-1 rate rather than reporting zero cost.
func estimateOpenAITTSCostUSD(model, text string) float64 {
	switch strings.TrimSpace(strings.ToLower(model)) {
	case "tts-1-hd":
		return float64(len(text)) * (0.03 / 1000.0)
	default:
		return float64(len(text)) * (0.015 / 1000.0)
	}
}

// ListVoices returns the built-in OpenAI TTS voice list.
func (c *OpenAITTSClient) ListVoices(_ context.Context) ([]Voice, error) {
	names := []string{
		"alloy", "ash", "ballad", "coral", "echo", "fable", "nova",
		"onyx", "sage", "shimmer", "verse", "marin", "cedar",
	}

	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{VoiceID: name, Name: name})
	}
	return voices, nil
}

func supportsInstructions(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-4o-mini-tts")
}

func normalizeOpenAIFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "mp3":
		return openai.AudioSpeechNewParamsResponseFormatMP3
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "aac":
		return openai.AudioSpeechNewParamsResponseFormatAAC
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	case "pcm":
		return openai.AudioSpeechNewParamsResponseFormatPCM
	default:
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

func openAIResultFormat(format openai.AudioSpeechNewParamsResponseFormat) string {
	switch format {
	case openai.AudioSpeechNewParamsResponseFormatOpus:
		return "opus"
	case openai.AudioSpeechNewParamsResponseFormatAAC:
		return "aac"
	case openai.AudioSpeechNewParamsResponseFormatFLAC:
		return "flac"
	case openai.AudioSpeechNewParamsResponseFormatWAV,
		openai.AudioSpeechNewParamsResponseFormatPCM:
		return "wav"
	default:
		return "mp3"
	}
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ TTSProvider = (*OpenAITTSClient)(nil)
var _ VoicesLister = (*OpenAITTSClient)(nil)
