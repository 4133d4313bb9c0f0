package processor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/cuentosapp/cuentos-server/internal/content"
	"github.com/cuentosapp/cuentos-server/internal/store"
)

// approveBook parses a book, materializes its chapters, and marks them
// all approved for narration.
func approveBook(t *testing.T, p *Processor, st store.Store) string {
	t.Helper()
	ctx := context.Background()

	bookID, _ := parseBook(t, p, st)
	if _, err := p.CreateChaptersForBook(ctx, bookID); err != nil {
		t.Fatalf("CreateChaptersForBook: %v", err)
	}

	chapters, err := st.ChaptersForBook(ctx, bookID)
	if err != nil {
		t.Fatal(err)
	}
	for _, ch := range chapters {
		if err := st.UpdateChapter(ctx, ch.ID, map[string]any{
			"status": store.ChapterStatusApproved,
		}); err != nil {
			t.Fatal(err)
		}
	}
	return bookID
}

func TestNarrationPipeline(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(t, st)
	bookID := approveBook(t, p, st)

	job, err := p.CreateTTSJob(ctx, bookID)
	if err != nil {
		t.Fatalf("CreateTTSJob: %v", err)
	}
	if job.Kind != store.JobKindTTSGeneration {
		t.Errorf("kind = %q", job.Kind)
	}

	if err := p.ExecuteTTSJob(ctx, job.ID); err != nil {
		t.Fatalf("ExecuteTTSJob: %v", err)
	}

	got, err := p.JobStatus(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.JobStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", got.Status, got.ErrorMessage)
	}

	var summary TTSResultSummary
	if err := json.Unmarshal([]byte(got.ResultJSON), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.Chapters) != 2 {
		t.Fatalf("narrated %d chapters, want 2", len(summary.Chapters))
	}

	chapters, _ := st.ChaptersForBook(ctx, bookID)
	for _, ch := range chapters {
		if ch.Status != store.ChapterStatusNarrated {
			t.Errorf("chapter %d status = %q, want narrated", ch.Index, ch.Status)
		}
		if ch.AudioPath == "" {
			t.Fatalf("chapter %d has no audio path", ch.Index)
		}
		audio, err := os.ReadFile(ch.AudioPath)
		if err != nil {
			t.Fatalf("read audio: %v", err)
		}
		if !strings.HasPrefix(string(audio), "mock audio: ") {
			t.Errorf("chapter %d audio not written by synthesis", ch.Index)
		}

		doc, err := content.Unmarshal([]byte(ch.Content))
		if err != nil {
			t.Fatalf("chapter %d content: %v", ch.Index, err)
		}
		first := doc.Paragraphs[0].Sentences[0].Words[0]
		if first.StartTime == nil || first.EndTime == nil {
			t.Errorf("chapter %d first word has no timing", ch.Index)
		}
	}
}

func TestNarrationTimingsMonotonic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(t, st)
	bookID := approveBook(t, p, st)

	job, err := p.CreateTTSJob(ctx, bookID)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ExecuteTTSJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	chapters, _ := st.ChaptersForBook(ctx, bookID)
	for _, ch := range chapters {
		doc, err := content.Unmarshal([]byte(ch.Content))
		if err != nil {
			t.Fatal(err)
		}
		prev := -1.0
		for _, para := range doc.Paragraphs {
			for _, sent := range para.Sentences {
				for _, word := range sent.Words {
					if word.StartTime == nil {
						t.Fatalf("chapter %d word %q untimed", ch.Index, word.Text)
					}
					if *word.StartTime < prev {
						t.Fatalf("chapter %d start %f before %f", ch.Index, *word.StartTime, prev)
					}
					prev = *word.StartTime
				}
			}
		}
	}
}

func TestCreateTTSJobRequiresApprovedChapters(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(t, st)
	bookID, _ := parseBook(t, p, st)

	// Chapters exist but remain drafts.
	if _, err := p.CreateChaptersForBook(ctx, bookID); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CreateTTSJob(ctx, bookID); !errors.Is(err, ErrNoApprovedChapters) {
		t.Errorf("err = %v, want ErrNoApprovedChapters", err)
	}
}

func TestCreateTTSJobConflictsWithActiveJob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newTestProcessor(t, st)
	bookID := approveBook(t, p, st)

	if _, err := p.CreateTTSJob(ctx, bookID); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CreateTTSJob(ctx, bookID); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Errorf("err = %v, want ErrJobAlreadyRunning", err)
	}
}

func TestCreateTTSJobUnknownBook(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestProcessor(t, st)

	if _, err := p.CreateTTSJob(context.Background(), "missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("err = %v, want ErrSourceNotFound", err)
	}
}
