// Package providers contains the speech synthesis and speech
// recognition adapters plus their shared rate limiting.
package providers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// TTSProvider converts chapter text to narrated audio.
type TTSProvider interface {
	// Name returns the provider identifier (e.g. "openai", "elevenlabs").
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error)

	// Rate limiting properties consumed by the worker pool.
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// VoicesLister is implemented by providers that expose a voice catalog.
type VoicesLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Voice is a TTS voice description.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TTSRequest is a synthesis request.
type TTSRequest struct {
	Text         string
	Voice        string // overrides the client default when set
	Format       string // mp3 (default), wav, opus, ...
	Instructions string // narration style hints, model-dependent
}

// TTSResult is the outcome of a synthesis call.
type TTSResult struct {
	Success bool
	Audio   []byte
	Format  string

	// SpokenText is the text the provider actually voiced. Providers
	// may normalize punctuation or expand abbreviations; downstream
	// alignment needs the exact spoken form.
	SpokenText string

	DurationMS    int // estimate; probe the audio for the real value
	CharCount     int
	CostUSD       float64
	ExecutionTime time.Duration
	RequestID     string
	ErrorMessage  string
}

// RateLimitError reports a 429 from a provider, with the server's
// requested backoff when given.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// IsRateLimitError unwraps err looking for a RateLimitError.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter parses a Retry-After header value (seconds form).
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// estimateDurationMS guesses narration length from text size, assuming
// ~150 words per minute and ~5 chars per word.
func estimateDurationMS(text string) int {
	return (len(text) * 60 * 1000) / (150 * 5)
}
