// Package store provides typed persistence for books, manuscript
// sources, processing jobs, and chapters.
//
// The default implementation (DefraStore) runs on DefraDB via the
// defra client and write sink. MemoryStore backs unit tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Collection names in DefraDB.
const (
	CollectionBook          = "Book"
	CollectionBookSource    = "BookSource"
	CollectionProcessingJob = "ProcessingJob"
	CollectionChapter       = "Chapter"
)

// Book is a storybook being prepared for narration.
type Book struct {
	ID        string
	Title     string
	Language  string
	CreatedAt time.Time
}

// Source statuses. A source starts at uploaded; only job execution
// moves it through processing to processed or failed.
const (
	SourceStatusUploaded   = "uploaded"
	SourceStatusProcessing = "processing"
	SourceStatusProcessed  = "processed"
	SourceStatusFailed     = "failed"
)

// BookSource is an uploaded manuscript file attached to a book.
type BookSource struct {
	ID          string
	BookID      string
	Filename    string
	FilePath    string
	ContentType string
	SizeBytes   int64
	Status      string
	CreatedAt   time.Time
}

// Job kinds.
const (
	JobKindParsing         = "parsing"
	JobKindChapterCreation = "chapter_creation"
	JobKindTTSGeneration   = "tts_generation"
)

// Job statuses. Completed and failed are terminal.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ProcessingJob is one unit of asynchronous work against a book source.
type ProcessingJob struct {
	ID           string
	BookSourceID string
	BookID       string
	Kind         string
	Status       string
	Progress     int // 0-100
	ErrorMessage string
	ResultJSON   string // summary persisted on completion
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	UpdatedAt    time.Time
}

// Active reports whether the job still occupies its source.
func (j *ProcessingJob) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// Terminal reports whether the job reached a final state.
func (j *ProcessingJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Chapter statuses.
const (
	ChapterStatusDraft    = "draft"
	ChapterStatusApproved = "approved"
	ChapterStatusNarrated = "narrated"
)

// Chapter is one materialized chapter of a book. Content holds the
// reader-facing JSON document (paragraphs, sentences, word timings).
type Chapter struct {
	ID        string
	BookID    string
	Index     int // 0-based, contiguous per book
	Title     string
	Status    string
	WordCount int
	Content   string
	AudioPath string
	CreatedAt time.Time
}

// Store is the persistence surface used by the processor and endpoints.
type Store interface {
	CreateBook(ctx context.Context, b *Book) (string, error)
	GetBook(ctx context.Context, id string) (*Book, error)

	CreateBookSource(ctx context.Context, s *BookSource) (string, error)
	GetBookSource(ctx context.Context, id string) (*BookSource, error)
	// UpdateBookSource patches the named fields on a source record.
	UpdateBookSource(ctx context.Context, id string, fields map[string]any) error
	// SourcesForBook returns a book's sources ordered oldest first.
	SourcesForBook(ctx context.Context, bookID string) ([]*BookSource, error)

	CreateJob(ctx context.Context, j *ProcessingJob) (string, error)
	GetJob(ctx context.Context, id string) (*ProcessingJob, error)
	// UpdateJob patches the named fields on a job record. Field names
	// are the persisted (snake_case) names.
	UpdateJob(ctx context.Context, id string, fields map[string]any) error
	// JobsForSource returns a source's jobs ordered oldest first.
	JobsForSource(ctx context.Context, sourceID string) ([]*ProcessingJob, error)
	JobsByStatus(ctx context.Context, statuses ...string) ([]*ProcessingJob, error)

	CreateChapter(ctx context.Context, c *Chapter) (string, error)
	GetChapter(ctx context.Context, id string) (*Chapter, error)
	UpdateChapter(ctx context.Context, id string, fields map[string]any) error
	// ChaptersForBook returns a book's chapters ordered by index.
	ChaptersForBook(ctx context.Context, bookID string) ([]*Chapter, error)
}
