package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/defra"
)

// DefraStore implements Store on DefraDB. Reads go straight to the
// client; job updates ride the write sink so they stay ordered with
// the processor's fire-and-forget progress writes.
type DefraStore struct {
	client *defra.Client
	sink   *defra.Sink
}

// NewDefraStore creates a store over the given client and sink.
func NewDefraStore(client *defra.Client, sink *defra.Sink) (*DefraStore, error) {
	if client == nil {
		return nil, fmt.Errorf("DefraStore requires a non-nil client")
	}
	if sink == nil {
		return nil, fmt.Errorf("DefraStore requires a non-nil sink")
	}
	return &DefraStore{client: client, sink: sink}, nil
}

var (
	bookFields    = []string{"_docID", "title", "language", "created_at"}
	sourceFields  = []string{"_docID", "book_id", "filename", "file_path", "content_type", "size_bytes", "status", "created_at"}
	jobFields     = []string{"_docID", "book_source_id", "book_id", "kind", "status", "progress", "error_message", "result_json", "created_at", "started_at", "completed_at", "updated_at"}
	chapterFields = []string{"_docID", "book_id", "chapter_index", "title", "status", "word_count", "content", "audio_path", "created_at"}
)

func (s *DefraStore) CreateBook(ctx context.Context, b *Book) (string, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return s.client.Create(ctx, CollectionBook, map[string]any{
		"title":      b.Title,
		"language":   b.Language,
		"created_at": b.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *DefraStore) GetBook(ctx context.Context, id string) (*Book, error) {
	doc, err := s.getByDocID(ctx, CollectionBook, id, bookFields)
	if err != nil {
		return nil, err
	}
	return bookFromDoc(doc), nil
}

func (s *DefraStore) CreateBookSource(ctx context.Context, src *BookSource) (string, error) {
	if src.Status == "" {
		src.Status = SourceStatusUploaded
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	return s.client.Create(ctx, CollectionBookSource, map[string]any{
		"book_id":      src.BookID,
		"filename":     src.Filename,
		"file_path":    src.FilePath,
		"content_type": src.ContentType,
		"size_bytes":   int(src.SizeBytes),
		"status":       src.Status,
		"created_at":   src.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *DefraStore) GetBookSource(ctx context.Context, id string) (*BookSource, error) {
	doc, err := s.getByDocID(ctx, CollectionBookSource, id, sourceFields)
	if err != nil {
		return nil, err
	}
	return sourceFromDoc(doc), nil
}

func (s *DefraStore) UpdateBookSource(ctx context.Context, id string, fields map[string]any) error {
	if err := defra.ValidateID(id); err != nil {
		return fmt.Errorf("invalid book source id: %w", err)
	}
	return s.client.Update(ctx, CollectionBookSource, id, fields)
}

func (s *DefraStore) SourcesForBook(ctx context.Context, bookID string) ([]*BookSource, error) {
	resp, err := defra.NewQuery(CollectionBookSource).
		Filter("book_id", bookID).
		Fields(sourceFields...).
		OrderBy("created_at", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}

	docs, err := docsFromResponse(resp, CollectionBookSource)
	if err != nil {
		return nil, err
	}
	sources := make([]*BookSource, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, sourceFromDoc(doc))
	}
	return sources, nil
}

func (s *DefraStore) CreateJob(ctx context.Context, j *ProcessingJob) (string, error) {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	result, err := s.sink.SendSync(ctx, defra.WriteOp{
		Collection: CollectionProcessingJob,
		Op:         defra.OpCreate,
		Document: map[string]any{
			"book_source_id": j.BookSourceID,
			"book_id":        j.BookID,
			"kind":           j.Kind,
			"status":         j.Status,
			"progress":       j.Progress,
			"error_message":  j.ErrorMessage,
			"result_json":    j.ResultJSON,
			"created_at":     j.CreatedAt.Format(time.RFC3339Nano),
			"updated_at":     j.UpdatedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return "", err
	}
	return result.DocID, nil
}

func (s *DefraStore) GetJob(ctx context.Context, id string) (*ProcessingJob, error) {
	doc, err := s.getByDocID(ctx, CollectionProcessingJob, id, jobFields)
	if err != nil {
		return nil, err
	}
	return jobFromDoc(doc), nil
}

func (s *DefraStore) UpdateJob(ctx context.Context, id string, fields map[string]any) error {
	if err := defra.ValidateID(id); err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.sink.SendSync(ctx, defra.WriteOp{
		Collection: CollectionProcessingJob,
		Op:         defra.OpUpdate,
		DocID:      id,
		Document:   patch,
	})
	return err
}

func (s *DefraStore) JobsForSource(ctx context.Context, sourceID string) ([]*ProcessingJob, error) {
	resp, err := defra.NewQuery(CollectionProcessingJob).
		Filter("book_source_id", sourceID).
		Fields(jobFields...).
		OrderBy("created_at", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return jobsFromResponse(resp)
}

func (s *DefraStore) JobsByStatus(ctx context.Context, statuses ...string) ([]*ProcessingJob, error) {
	resp, err := defra.NewQuery(CollectionProcessingJob).
		FilterIn("status", statuses).
		Fields(jobFields...).
		OrderBy("created_at", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return jobsFromResponse(resp)
}

func (s *DefraStore) CreateChapter(ctx context.Context, c *Chapter) (string, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return s.client.Create(ctx, CollectionChapter, map[string]any{
		"book_id":       c.BookID,
		"chapter_index": c.Index,
		"title":         c.Title,
		"status":        c.Status,
		"word_count":    c.WordCount,
		"content":       c.Content,
		"audio_path":    c.AudioPath,
		"created_at":    c.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *DefraStore) GetChapter(ctx context.Context, id string) (*Chapter, error) {
	doc, err := s.getByDocID(ctx, CollectionChapter, id, chapterFields)
	if err != nil {
		return nil, err
	}
	return chapterFromDoc(doc), nil
}

func (s *DefraStore) UpdateChapter(ctx context.Context, id string, fields map[string]any) error {
	if err := defra.ValidateID(id); err != nil {
		return fmt.Errorf("invalid chapter id: %w", err)
	}
	return s.client.Update(ctx, CollectionChapter, id, fields)
}

func (s *DefraStore) ChaptersForBook(ctx context.Context, bookID string) ([]*Chapter, error) {
	resp, err := defra.NewQuery(CollectionChapter).
		Filter("book_id", bookID).
		Fields(chapterFields...).
		OrderBy("chapter_index", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}

	docs, err := docsFromResponse(resp, CollectionChapter)
	if err != nil {
		return nil, err
	}
	chapters := make([]*Chapter, 0, len(docs))
	for _, doc := range docs {
		chapters = append(chapters, chapterFromDoc(doc))
	}
	return chapters, nil
}

func (s *DefraStore) getByDocID(ctx context.Context, collection, id string, fields []string) (map[string]any, error) {
	if err := defra.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	resp, err := defra.NewQuery(collection).
		Filter("_docID", id).
		Fields(fields...).
		Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}

	docs, err := docsFromResponse(resp, collection)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	return docs[0], nil
}

func docsFromResponse(resp *defra.GQLResponse, collection string) ([]map[string]any, error) {
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("query error: %s", msg)
	}
	raw, ok := resp.Data[collection].([]any)
	if !ok {
		return nil, nil
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		if doc, ok := d.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func jobsFromResponse(resp *defra.GQLResponse) ([]*ProcessingJob, error) {
	docs, err := docsFromResponse(resp, CollectionProcessingJob)
	if err != nil {
		return nil, err
	}
	jobs := make([]*ProcessingJob, 0, len(docs))
	for _, doc := range docs {
		jobs = append(jobs, jobFromDoc(doc))
	}
	return jobs, nil
}

func bookFromDoc(doc map[string]any) *Book {
	return &Book{
		ID:        docString(doc, "_docID"),
		Title:     docString(doc, "title"),
		Language:  docString(doc, "language"),
		CreatedAt: docTime(doc, "created_at"),
	}
}

func sourceFromDoc(doc map[string]any) *BookSource {
	return &BookSource{
		ID:          docString(doc, "_docID"),
		BookID:      docString(doc, "book_id"),
		Filename:    docString(doc, "filename"),
		FilePath:    docString(doc, "file_path"),
		ContentType: docString(doc, "content_type"),
		SizeBytes:   int64(docInt(doc, "size_bytes")),
		Status:      docString(doc, "status"),
		CreatedAt:   docTime(doc, "created_at"),
	}
}

func jobFromDoc(doc map[string]any) *ProcessingJob {
	return &ProcessingJob{
		ID:           docString(doc, "_docID"),
		BookSourceID: docString(doc, "book_source_id"),
		BookID:       docString(doc, "book_id"),
		Kind:         docString(doc, "kind"),
		Status:       docString(doc, "status"),
		Progress:     docInt(doc, "progress"),
		ErrorMessage: docString(doc, "error_message"),
		ResultJSON:   docString(doc, "result_json"),
		CreatedAt:    docTime(doc, "created_at"),
		StartedAt:    docTime(doc, "started_at"),
		CompletedAt:  docTime(doc, "completed_at"),
		UpdatedAt:    docTime(doc, "updated_at"),
	}
}

func chapterFromDoc(doc map[string]any) *Chapter {
	return &Chapter{
		ID:        docString(doc, "_docID"),
		BookID:    docString(doc, "book_id"),
		Index:     docInt(doc, "chapter_index"),
		Title:     docString(doc, "title"),
		Status:    docString(doc, "status"),
		WordCount: docInt(doc, "word_count"),
		Content:   docString(doc, "content"),
		AudioPath: docString(doc, "audio_path"),
		CreatedAt: docTime(doc, "created_at"),
	}
}

func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func docTime(doc map[string]any, key string) time.Time {
	s, ok := doc[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
