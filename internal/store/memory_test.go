package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreBookSourceRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	bookID, err := m.CreateBook(ctx, &Book{Title: "El Bosque Encantado", Language: "es"})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	srcID, err := m.CreateBookSource(ctx, &BookSource{
		BookID:   bookID,
		Filename: "bosque.txt",
		FilePath: "/tmp/bosque.txt",
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	src, err := m.GetBookSource(ctx, srcID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if src.BookID != bookID || src.Filename != "bosque.txt" {
		t.Errorf("unexpected source %+v", src)
	}
	if src.Status != SourceStatusUploaded {
		t.Errorf("status = %q, want uploaded", src.Status)
	}

	if err := m.UpdateBookSource(ctx, srcID, map[string]any{"status": SourceStatusProcessed}); err != nil {
		t.Fatalf("update source: %v", err)
	}
	src, _ = m.GetBookSource(ctx, srcID)
	if src.Status != SourceStatusProcessed {
		t.Errorf("status = %q, want processed", src.Status)
	}

	if _, err := m.GetBookSource(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreJobsForSourceOrder(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.CreateJob(ctx, &ProcessingJob{
			BookSourceID: "src-1",
			Kind:         JobKindParsing,
			Status:       JobStatusPending,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create job: %v", err)
		}
		ids = append(ids, id)
	}
	// Unrelated source must not appear.
	if _, err := m.CreateJob(ctx, &ProcessingJob{BookSourceID: "src-2", Status: JobStatusPending}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	jobs, err := m.JobsForSource(ctx, "src-1")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i, j := range jobs {
		if j.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s (oldest first)", i, j.ID, ids[i])
		}
	}
}

func TestMemoryStoreUpdateJob(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	id, err := m.CreateJob(ctx, &ProcessingJob{BookSourceID: "src-1", Status: JobStatusPending})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	started := time.Now().UTC().Format(time.RFC3339Nano)
	err = m.UpdateJob(ctx, id, map[string]any{
		"status":     JobStatusRunning,
		"progress":   30,
		"started_at": started,
	})
	if err != nil {
		t.Fatalf("update job: %v", err)
	}

	j, err := m.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != JobStatusRunning || j.Progress != 30 {
		t.Errorf("unexpected job %+v", j)
	}
	if j.StartedAt.IsZero() {
		t.Error("started_at not recorded")
	}

	if err := m.UpdateJob(ctx, id, map[string]any{"bogus": 1}); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := m.UpdateJob(ctx, "missing", map[string]any{"status": JobStatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreJobsByStatus(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for _, status := range []string{JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed} {
		if _, err := m.CreateJob(ctx, &ProcessingJob{BookSourceID: "s", Status: status}); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	active, err := m.JobsByStatus(ctx, JobStatusPending, JobStatusRunning)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active jobs, got %d", len(active))
	}
	for _, j := range active {
		if !j.Active() {
			t.Errorf("job %s status %s is not active", j.ID, j.Status)
		}
	}
}

func TestMemoryStoreChaptersForBookOrder(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for _, idx := range []int{2, 0, 1} {
		if _, err := m.CreateChapter(ctx, &Chapter{
			BookID: "book-1",
			Index:  idx,
			Title:  "t",
			Status: ChapterStatusDraft,
		}); err != nil {
			t.Fatalf("create chapter: %v", err)
		}
	}

	chapters, err := m.ChaptersForBook(ctx, "book-1")
	if err != nil {
		t.Fatalf("list chapters: %v", err)
	}
	if len(chapters) != 3 {
		t.Fatalf("expected 3 chapters, got %d", len(chapters))
	}
	for i, c := range chapters {
		if c.Index != i {
			t.Errorf("position %d has index %d", i, c.Index)
		}
	}
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	id, _ := m.CreateJob(ctx, &ProcessingJob{BookSourceID: "s", Status: JobStatusPending})
	j, _ := m.GetJob(ctx, id)
	j.Status = JobStatusFailed

	again, _ := m.GetJob(ctx, id)
	if again.Status != JobStatusPending {
		t.Error("mutating a returned record leaked into the store")
	}
}
