package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cuentosapp/cuentos-server/internal/content"
	"github.com/cuentosapp/cuentos-server/internal/parser"
	"github.com/cuentosapp/cuentos-server/internal/store"
)

// ChapterResult is one chapter in a parsing job's result. Content holds
// the serialized structured document and is what chapter materialization
// copies into Chapter records.
type ChapterResult struct {
	Index     int             `json:"index"`
	Title     string          `json:"title"`
	WordCount int             `json:"word_count"`
	Preview   string          `json:"preview"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// ParsingResult is persisted as the job's result JSON on completion.
type ParsingResult struct {
	ChapterCount  int             `json:"chapter_count"`
	WordCount     int             `json:"word_count"`
	SentenceCount int             `json:"sentence_count"`
	DurationMS    int64           `json:"duration_ms"`
	Warnings      []string        `json:"warnings,omitempty"`
	Chapters      []ChapterResult `json:"chapters"`
}

// ExecuteParsingJob runs the parsing pipeline for a pending job. It
// moves the job to running, records progress at each phase boundary,
// and lands on completed with a ParsingResult or failed with the cause.
// The source record tracks the outcome too: processing while the job
// runs, then processed or failed alongside the job's terminal state.
func (p *Processor) ExecuteParsingJob(ctx context.Context, jobID string) error {
	job, err := p.start(ctx, jobID)
	if err != nil {
		return err
	}
	p.logger.Info("parsing started", "job_id", jobID, "book_source_id", job.BookSourceID)
	p.setSourceStatus(job.BookSourceID, store.SourceStatusProcessing)

	result, err := p.runParsing(ctx, job)
	if err != nil {
		p.fail(jobID, err)
		p.setSourceStatus(job.BookSourceID, store.SourceStatusFailed)
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		p.fail(jobID, fmt.Errorf("failed to encode result: %w", err))
		p.setSourceStatus(job.BookSourceID, store.SourceStatusFailed)
		return err
	}
	if err := p.complete(ctx, jobID, string(payload)); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	p.setSourceStatus(job.BookSourceID, store.SourceStatusProcessed)

	p.logger.Info("parsing completed",
		"job_id", jobID,
		"chapters", result.ChapterCount,
		"words", result.WordCount,
		"duration_ms", result.DurationMS)
	return nil
}

func (p *Processor) runParsing(ctx context.Context, job *store.ProcessingJob) (*ParsingResult, error) {
	src, err := p.store.GetBookSource(ctx, job.BookSourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, job.BookSourceID)
		}
		return nil, err
	}

	data, err := os.ReadFile(src.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	if err := p.checkpoint(ctx, job.ID, progressRead); err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, job.ID, progressExtract); err != nil {
		return nil, err
	}
	doc, err := parser.Parse(ctx, src.Filename, data)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	if err := p.checkpoint(ctx, job.ID, progressDetect); err != nil {
		return nil, err
	}

	report, err := parser.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if !report.OK() {
		p.logger.Warn("parse validation warnings",
			"job_id", job.ID, "warnings", len(report.Warnings))
	}
	if err := p.checkpoint(ctx, job.ID, progressValidate); err != nil {
		return nil, err
	}

	return buildParsingResult(doc, report)
}

func buildParsingResult(doc *parser.ParsedDocument, report parser.ValidationReport) (*ParsingResult, error) {
	result := &ParsingResult{
		ChapterCount:  doc.ChapterCount,
		WordCount:     doc.WordCount,
		SentenceCount: doc.SentenceCount,
		DurationMS:    doc.Duration.Milliseconds(),
		Warnings:      report.Warnings,
	}
	for _, ch := range doc.Chapters {
		body, err := content.FromChapter(ch).Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to encode chapter %d: %w", ch.Index, err)
		}
		result.Chapters = append(result.Chapters, ChapterResult{
			Index:     ch.Index,
			Title:     ch.Title,
			WordCount: ch.WordCount,
			Preview:   ch.Preview,
			Content:   body,
		})
	}
	return result, nil
}

// PreviewSource parses the source synchronously and returns a summary
// without chapter content. No job record is created.
func (p *Processor) PreviewSource(ctx context.Context, sourceID string) (*ParsingResult, error) {
	src, err := p.store.GetBookSource(ctx, sourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
		}
		return nil, err
	}

	data, err := os.ReadFile(src.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	doc, err := parser.Parse(ctx, src.Filename, data)
	if err != nil {
		return nil, err
	}
	report, err := parser.Validate(doc)
	if err != nil {
		return nil, err
	}

	result, err := buildParsingResult(doc, report)
	if err != nil {
		return nil, err
	}
	for i := range result.Chapters {
		result.Chapters[i].Content = nil
	}
	return result, nil
}
