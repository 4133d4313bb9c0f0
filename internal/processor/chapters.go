package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/store"
)

// ErrNoParsingResult means no completed parsing job exists for the book.
var ErrNoParsingResult = errors.New("no completed parsing job for this book")

// ChapterSummary describes one materialized chapter.
type ChapterSummary struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	WordCount int    `json:"word_count"`
	Status    string `json:"status"`
}

// CreateChaptersForBook materializes draft Chapter records from the
// book's most recent completed parsing result. It refuses to touch a
// book that already has chapters; re-running never overwrites.
func (p *Processor) CreateChaptersForBook(ctx context.Context, bookID string) ([]ChapterSummary, error) {
	if _, err := p.store.GetBook(ctx, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: book %s", ErrSourceNotFound, bookID)
		}
		return nil, err
	}

	unlock := p.locks.lock("book:" + bookID)
	defer unlock()

	existing, err := p.store.ChaptersForBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %d chapters", ErrChaptersExist, len(existing))
	}

	result, err := p.latestParsingResult(ctx, bookID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChapterSummary, 0, len(result.Chapters))
	for _, ch := range result.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record := &store.Chapter{
			BookID:    bookID,
			Index:     ch.Index,
			Title:     ch.Title,
			Status:    store.ChapterStatusDraft,
			WordCount: ch.WordCount,
			Content:   string(ch.Content),
			CreatedAt: time.Now().UTC(),
		}
		id, err := p.store.CreateChapter(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("failed to create chapter %d: %w", ch.Index, err)
		}
		summaries = append(summaries, ChapterSummary{
			ID:        id,
			Index:     ch.Index,
			Title:     ch.Title,
			WordCount: ch.WordCount,
			Status:    store.ChapterStatusDraft,
		})
	}

	p.logger.Info("chapters created", "book_id", bookID, "count", len(summaries))
	return summaries, nil
}

// CreateChapterCreationJob records a pending materialization job so
// chapter creation can run through the job surface. Like narration
// jobs it rides on the book's first source.
func (p *Processor) CreateChapterCreationJob(ctx context.Context, bookID string) (*store.ProcessingJob, error) {
	if _, err := p.store.GetBook(ctx, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: book %s", ErrSourceNotFound, bookID)
		}
		return nil, err
	}

	unlock := p.locks.lock("book:" + bookID)
	defer unlock()

	existing, err := p.store.ChaptersForBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: book %s has %d chapters", ErrChaptersExist, bookID, len(existing))
	}
	if _, err := p.latestParsingResult(ctx, bookID); err != nil {
		return nil, err
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
		Kind:   store.JobKindChapterCreation,
		Status: store.JobStatusPending,
	}
	if len(sources) > 0 {
		job.BookSourceID = sources[0].ID
	}

	id, err := p.store.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	job.ID = id

	p.logger.Info("chapter creation job created", "job_id", id, "book_id", bookID)
	return job, nil
}

// latestParsingResult finds the newest completed parsing job across the
// book's sources and decodes its result.
func (p *Processor) latestParsingResult(ctx context.Context, bookID string) (*ParsingResult, error) {
	sources, err := p.store.SourcesForBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	var latest *store.ProcessingJob
	for _, src := range sources {
		jobs, err := p.store.JobsForSource(ctx, src.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		for _, j := range jobs {
			if j.Kind != store.JobKindParsing || j.Status != store.JobStatusCompleted {
				continue
			}
			if latest == nil || j.CompletedAt.After(latest.CompletedAt) {
				latest = j
			}
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: book %s", ErrNoParsingResult, bookID)
	}

	var result ParsingResult
	if err := json.Unmarshal([]byte(latest.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result of job %s: %w", latest.ID, err)
	}
	return &result, nil
}

// ExecuteChapterCreationJob runs chapter materialization under a job
// record for queue-swept executions.
func (p *Processor) ExecuteChapterCreationJob(ctx context.Context, jobID string) error {
	job, err := p.start(ctx, jobID)
	if err != nil {
		return err
	}

	summaries, err := p.CreateChaptersForBook(ctx, job.BookID)
	if err != nil {
		p.fail(jobID, err)
		return err
	}

	payload, err := json.Marshal(map[string]any{"chapters": summaries})
	if err != nil {
		p.fail(jobID, fmt.Errorf("failed to encode result: %w", err))
		return err
	}
	return p.complete(ctx, jobID, string(payload))
}
