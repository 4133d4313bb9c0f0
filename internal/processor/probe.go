package processor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DurationProber measures the playback duration of an audio file.
type DurationProber interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe shells out to ffprobe. The synthesis adapters only estimate
// duration from character counts, so the real container duration comes
// from here when the binary is available.
type FFProbe struct {
	// Binary overrides the executable name, mainly for tests.
	Binary string
}

func (f FFProbe) Probe(ctx context.Context, path string) (time.Duration, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return 0, fmt.Errorf("ffprobe failed: %s: %w", msg, err)
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q: %w", out.String(), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// StubProber returns a fixed duration. Test helper.
type StubProber struct {
	Duration time.Duration
	Err      error
}

func (s StubProber) Probe(context.Context, string) (time.Duration, error) {
	return s.Duration, s.Err
}
