package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ElevenLabsTTSName      = "elevenlabs"
	elevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultModel = "eleven_multilingual_v2" // Spanish narration needs the multilingual model
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS client.
type ElevenLabsTTSConfig struct {
	APIKey     string
	Model      string
	Voice      string  // default voice ID
	Format     string  // mp3_44100_128, pcm_16000, ...
	Stability  float64 // 0.0-1.0, default 0.5
	Similarity float64 // 0.0-1.0, default 0.75
	Speed      float64 // 0.7-1.2, default 1.0
	Timeout    time.Duration
	RateLimit  float64
	MaxRetries int
	RetryDelay time.Duration
	BaseURL    string // optional (tests)
}

// ElevenLabsTTSClient implements TTSProvider over the ElevenLabs HTTP API.
type ElevenLabsTTSClient struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	format     string
	stability  float64
	similarity float64
	speed      float64
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewElevenLabsTTSClient creates an ElevenLabs client with defaults applied.
func NewElevenLabsTTSClient(cfg ElevenLabsTTSConfig) *ElevenLabsTTSClient {
	if cfg.Model == "" {
		cfg.Model = elevenLabsDefaultModel
	}
	if cfg.Format == "" {
		cfg.Format = "mp3_44100_128"
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.75
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsAPIBaseURL
	}

	return &ElevenLabsTTSClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		voice:      cfg.Voice,
		format:     cfg.Format,
		stability:  cfg.Stability,
		similarity: cfg.Similarity,
		speed:      cfg.Speed,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ElevenLabsTTSClient) Name() string                  { return ElevenLabsTTSName }
func (c *ElevenLabsTTSClient) RequestsPerSecond() float64    { return c.rateLimit }
func (c *ElevenLabsTTSClient) MaxRetries() int               { return c.maxRetries }
func (c *ElevenLabsTTSClient) RetryDelayBase() time.Duration { return c.retryDelay }

// HealthCheck verifies the API key against the /user endpoint.
func (c *ElevenLabsTTSClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Synthesize converts text to audio. ElevenLabs voices the submitted
// text as-is, so SpokenText is the input.
func (c *ElevenLabsTTSClient) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	if voice == "" {
		err := fmt.Errorf("voice_id is required")
		return &TTSResult{
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	format := req.Format
	if format == "" {
		format = c.format
	}

	body := elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: c.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
			Speed:           c.speed,
			UseSpeakerBoost: true,
		},
	}

	audioBytes, requestID, err := c.doRequest(ctx, voice, format, body)
	if err != nil {
		return &TTSResult{
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	container, _ := splitOutputFormat(format)

	return &TTSResult{
		Success:       true,
		Audio:         audioBytes,
		Format:        container,
		SpokenText:    req.Text,
		DurationMS:    estimateDurationMS(req.Text),
		CharCount:     len(req.Text),
		CostUSD:       float64(len(req.Text)) * 0.0003, // ~$0.30 per 1k chars
		ExecutionTime: time.Since(start),
		RequestID:     requestID,
	}, nil
}

func (c *ElevenLabsTTSClient) doRequest(ctx context.Context, voiceID, format string, body elevenLabsTTSRequest) ([]byte, string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", c.baseURL, voiceID, format)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp elevenLabsErrorResponse
		errMsg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail.Message != "" {
			errMsg = errResp.Detail.Message
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, "", &RateLimitError{
				Message:    fmt.Sprintf("ElevenLabs rate limited: %s", errMsg),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, "", fmt.Errorf("ElevenLabs TTS error (status %d): %s", resp.StatusCode, errMsg)
	}

	requestID := resp.Header.Get("request-id")
	if requestID == "" {
		requestID = resp.Header.Get("x-request-id")
	}
	return respBody, requestID, nil
}

// ListVoices retrieves the account's available voices.
func (c *ElevenLabsTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list voices (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Voices []struct {
			VoiceID     string `json:"voice_id"`
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: v.Description,
		})
	}
	return voices, nil
}

type elevenLabsTTSRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// splitOutputFormat extracts the container from an ElevenLabs output
// format string, e.g. mp3_44100_128 -> mp3.
func splitOutputFormat(format string) (container string, rest string) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "mp3", ""
	}
	parts := strings.SplitN(format, "_", 2)
	container = parts[0]
	if container == "pcm" || container == "ulaw" || container == "alaw" {
		container = "wav"
	}
	if len(parts) == 2 {
		rest = parts[1]
	}
	return container, rest
}

var _ TTSProvider = (*ElevenLabsTTSClient)(nil)
var _ VoicesLister = (*ElevenLabsTTSClient)(nil)
