package providers

import (
	"context"
	"time"
)

// ASRProvider transcribes narrated audio back to text with word-level
// timestamps.
type ASRProvider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe recognizes speech in audio. format is the container
	// format of the bytes (mp3, wav, ...).
	Transcribe(ctx context.Context, audio []byte, format string) (*TranscribeResult, error)

	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// RecognizedWord is one recognized token with its interval in seconds.
type RecognizedWord struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TranscribeResult is the outcome of a recognition call.
type TranscribeResult struct {
	Transcript    string
	Words         []RecognizedWord
	Language      string
	DurationSec   float64
	CostUSD       float64
	ExecutionTime time.Duration
}
