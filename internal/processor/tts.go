package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuentosapp/cuentos-server/internal/align"
	"github.com/cuentosapp/cuentos-server/internal/content"
	"github.com/cuentosapp/cuentos-server/internal/providers"
	"github.com/cuentosapp/cuentos-server/internal/store"
)

// ErrNoApprovedChapters means the book has no chapters ready to narrate.
var ErrNoApprovedChapters = errors.New("no approved chapters to narrate")

// NarratedChapter describes one chapter's narration outcome.
type NarratedChapter struct {
	ChapterID    string  `json:"chapter_id"`
	Index        int     `json:"index"`
	AudioPath    string  `json:"audio_path"`
	DurationMS   int64   `json:"duration_ms"`
	Matched      int     `json:"matched"`
	Interpolated int     `json:"interpolated"`
	CostUSD      float64 `json:"cost_usd"`
}

// TTSResultSummary is persisted as a narration job's result JSON.
type TTSResultSummary struct {
	Chapters     []NarratedChapter `json:"chapters"`
	TotalCostUSD float64           `json:"total_cost_usd"`
}

// CreateTTSJob records a pending narration job for the book's approved
// chapters. Creation is rejected while the book has any active job.
func (p *Processor) CreateTTSJob(ctx context.Context, bookID string) (*store.ProcessingJob, error) {
	if p.tts == nil || p.asr == nil {
		return nil, fmt.Errorf("narration providers are not configured")
	}

	if _, err := p.store.GetBook(ctx, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: book %s", ErrSourceNotFound, bookID)
		}
		return nil, err
	}

	unlock := p.locks.lock("book:" + bookID)
	defer unlock()

	chapters, err := p.store.ChaptersForBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	if countApproved(chapters) == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrNoApprovedChapters, bookID)
	}

	sources, err := p.store.SourcesForBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	for _, src := range sources {
		jobs, err := p.store.JobsForSource(ctx, src.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		for _, j := range jobs {
			if j.Active() {
				return nil, fmt.Errorf("%w: job %s is %s", ErrJobAlreadyRunning, j.ID, j.Status)
			}
		}
	}

	job := &store.ProcessingJob{
		BookID: bookID,
		Kind:   store.JobKindTTSGeneration,
		Status: store.JobStatusPending,
	}
	// Narration jobs ride on the book's first source so the per-source
	// queue invariant covers them too.
	if len(sources) > 0 {
		job.BookSourceID = sources[0].ID
	}

	id, err := p.store.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	job.ID = id

	p.logger.Info("narration job created", "job_id", id, "book_id", bookID)
	return job, nil
}

// ExecuteTTSJob narrates every approved chapter of the job's book:
// synthesize, probe the audio duration, transcribe, align, and persist
// the timed content plus audio path. Progress advances per chapter and
// cancellation is observed between chapters, never mid-chapter.
func (p *Processor) ExecuteTTSJob(ctx context.Context, jobID string) error {
	job, err := p.start(ctx, jobID)
	if err != nil {
		return err
	}

	summary, err := p.runNarration(ctx, job)
	if err != nil {
		p.fail(jobID, err)
		return err
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		p.fail(jobID, fmt.Errorf("failed to encode result: %w", err))
		return err
	}
	if err := p.complete(ctx, jobID, string(payload)); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	p.logger.Info("narration completed",
		"job_id", jobID,
		"book_id", job.BookID,
		"chapters", len(summary.Chapters),
		"cost_usd", summary.TotalCostUSD)
	return nil
}

func (p *Processor) runNarration(ctx context.Context, job *store.ProcessingJob) (*TTSResultSummary, error) {
	if p.tts == nil || p.asr == nil {
		return nil, fmt.Errorf("narration providers are not configured")
	}

	chapters, err := p.store.ChaptersForBook(ctx, job.BookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}

	var approved []*store.Chapter
	for _, ch := range chapters {
		if ch.Status == store.ChapterStatusApproved {
			approved = append(approved, ch)
		}
	}
	if len(approved) == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrNoApprovedChapters, job.BookID)
	}

	summary := &TTSResultSummary{}
	for i, ch := range approved {
		if err := p.checkpoint(ctx, job.ID, i*100/len(approved)); err != nil {
			return nil, err
		}

		narrated, err := p.narrateChapter(ctx, job.BookID, ch)
		if err != nil {
			return nil, fmt.Errorf("chapter %d: %w", ch.Index, err)
		}
		summary.Chapters = append(summary.Chapters, *narrated)
		summary.TotalCostUSD += narrated.CostUSD
	}
	return summary, nil
}

func (p *Processor) narrateChapter(ctx context.Context, bookID string, ch *store.Chapter) (*NarratedChapter, error) {
	doc, err := content.Unmarshal([]byte(ch.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	if err := p.ttsLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	synth, err := p.tts.Synthesize(ctx, &providers.TTSRequest{
		Text:   doc.Text(),
		Voice:  p.ttsVoice,
		Format: p.ttsFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	audioPath, err := p.writeAudio(bookID, ch.Index, synth.Format, synth.Audio)
	if err != nil {
		return nil, err
	}

	durationMS := int64(synth.DurationMS)
	if d, err := p.prober.Probe(ctx, audioPath); err == nil {
		durationMS = d.Milliseconds()
	} else {
		p.logger.Warn("audio probe failed, using synthesis estimate",
			"chapter_id", ch.ID, "error", err)
	}

	if err := p.asrLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	tr, err := p.asr.Transcribe(ctx, synth.Audio, synth.Format)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	recognized := make([]align.RecognizedWord, len(tr.Words))
	for i, w := range tr.Words {
		recognized[i] = align.RecognizedWord{
			Text:       w.Text,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
		}
	}

	res, err := align.Align(doc.DisplayWords(), strings.Fields(synth.SpokenText), recognized, tr.Transcript)
	if err != nil {
		return nil, fmt.Errorf("alignment failed: %w", err)
	}
	if err := doc.ApplyTimings(res); err != nil {
		return nil, err
	}

	body, err := doc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode timed content: %w", err)
	}
	if err := p.store.UpdateChapter(ctx, ch.ID, map[string]any{
		"content":    string(body),
		"audio_path": audioPath,
		"status":     store.ChapterStatusNarrated,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist chapter: %w", err)
	}

	return &NarratedChapter{
		ChapterID:    ch.ID,
		Index:        ch.Index,
		AudioPath:    audioPath,
		DurationMS:   durationMS,
		Matched:      res.Matched,
		Interpolated: res.Interpolated,
		CostUSD:      synth.CostUSD + tr.CostUSD,
	}, nil
}

func (p *Processor) writeAudio(bookID string, index int, format string, audio []byte) (string, error) {
	dir := filepath.Join(p.audioDir, bookID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("chapter_%03d.%s", index, format))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	return path, nil
}

func countApproved(chapters []*store.Chapter) int {
	n := 0
	for _, ch := range chapters {
		if ch.Status == store.ChapterStatusApproved {
			n++
		}
	}
	return n
}
