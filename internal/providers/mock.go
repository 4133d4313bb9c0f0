package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockTTS is a test double that fabricates audio and records calls.
type MockTTS struct {
	mu    sync.Mutex
	calls []TTSRequest

	// Err, when set, fails every call.
	Err error
	// SpokenText overrides the echoed text when set.
	SpokenText string
}

// NewMockTTS creates a mock TTS provider.
func NewMockTTS() *MockTTS { return &MockTTS{} }

func (m *MockTTS) Name() string                  { return "mock" }
func (m *MockTTS) RequestsPerSecond() float64    { return 100 }
func (m *MockTTS) MaxRetries() int               { return 0 }
func (m *MockTTS) RetryDelayBase() time.Duration { return 0 }

func (m *MockTTS) Synthesize(_ context.Context, req *TTSRequest) (*TTSResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	m.mu.Unlock()

	if m.Err != nil {
		return &TTSResult{ErrorMessage: m.Err.Error()}, m.Err
	}

	spoken := m.SpokenText
	if spoken == "" {
		spoken = req.Text
	}
	return &TTSResult{
		Success:    true,
		Audio:      []byte("mock audio: " + req.Text),
		Format:     "mp3",
		SpokenText: spoken,
		DurationMS: estimateDurationMS(req.Text),
		CharCount:  len(req.Text),
	}, nil
}

// Calls returns a copy of the recorded requests.
func (m *MockTTS) Calls() []TTSRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TTSRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockASR is a test double that emits evenly spaced word timestamps
// derived from the text MockTTS embedded in the audio bytes.
type MockASR struct {
	mu    sync.Mutex
	calls int

	// Err, when set, fails every call.
	Err error
	// Result, when set, is returned as-is.
	Result *TranscribeResult
	// WordDuration spaces the fabricated timeline (default 400ms).
	WordDuration time.Duration
}

// NewMockASR creates a mock ASR provider.
func NewMockASR() *MockASR { return &MockASR{} }

func (m *MockASR) Name() string                  { return "mock" }
func (m *MockASR) RequestsPerSecond() float64    { return 100 }
func (m *MockASR) MaxRetries() int               { return 0 }
func (m *MockASR) RetryDelayBase() time.Duration { return 0 }

func (m *MockASR) Transcribe(_ context.Context, audio []byte, _ string) (*TranscribeResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio is required")
	}

	text := strings.TrimPrefix(string(audio), "mock audio: ")
	step := m.WordDuration
	if step == 0 {
		step = 400 * time.Millisecond
	}

	var words []RecognizedWord
	cursor := 0.0
	for _, w := range strings.Fields(text) {
		words = append(words, RecognizedWord{
			Text:       w,
			Start:      cursor,
			End:        cursor + step.Seconds(),
			Confidence: 1.0,
		})
		cursor += step.Seconds()
	}

	return &TranscribeResult{
		Transcript:  text,
		Words:       words,
		DurationSec: cursor,
	}, nil
}

// CallCount returns the number of Transcribe calls.
func (m *MockASR) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var (
	_ TTSProvider = (*MockTTS)(nil)
	_ ASRProvider = (*MockASR)(nil)
)
