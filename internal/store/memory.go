package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory for unit tests. Methods copy
// records on the way in and out so callers never share state.
type MemoryStore struct {
	mu sync.RWMutex

	books    map[string]*Book
	sources  map[string]*BookSource
	jobs     map[string]*ProcessingJob
	chapters map[string]*Chapter

	seq     int            // creation order tiebreak for equal timestamps
	jobSeq  map[string]int // job ID -> creation sequence
	chapSeq map[string]int

	// Error injection for failure-path tests.
	CreateJobErr  error
	UpdateJobErr  error
	GetChapterErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:    make(map[string]*Book),
		sources:  make(map[string]*BookSource),
		jobs:     make(map[string]*ProcessingJob),
		chapters: make(map[string]*Chapter),
		jobSeq:   make(map[string]int),
		chapSeq:  make(map[string]int),
	}
}

func (m *MemoryStore) CreateBook(_ context.Context, b *Book) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	cp.ID = uuid.NewString()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.books[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemoryStore) GetBook(_ context.Context, id string) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.books[id]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) CreateBookSource(_ context.Context, s *BookSource) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.ID = uuid.NewString()
	if cp.Status == "" {
		cp.Status = SourceStatusUploaded
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.sources[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemoryStore) GetBookSource(_ context.Context, id string) (*BookSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sources[id]
	if !ok {
		return nil, fmt.Errorf("book source %s: %w", id, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateBookSource(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("book source %s: %w", id, ErrNotFound)
	}

	for k, v := range fields {
		switch k {
		case "status":
			s.Status, _ = v.(string)
		default:
			return fmt.Errorf("unknown book source field %q", k)
		}
	}
	return nil
}

func (m *MemoryStore) SourcesForBook(_ context.Context, bookID string) ([]*BookSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sources []*BookSource
	for _, s := range m.sources {
		if s.BookID == bookID {
			cp := *s
			sources = append(sources, &cp)
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].CreatedAt.Before(sources[j].CreatedAt)
	})
	return sources, nil
}

func (m *MemoryStore) CreateJob(_ context.Context, j *ProcessingJob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateJobErr != nil {
		return "", m.CreateJobErr
	}

	cp := *j
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	m.seq++
	m.jobSeq[cp.ID] = m.seq
	m.jobs[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateJobErr != nil {
		return m.UpdateJobErr
	}

	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	for k, v := range fields {
		switch k {
		case "status":
			j.Status, _ = v.(string)
		case "progress":
			j.Progress = asInt(v)
		case "error_message":
			j.ErrorMessage, _ = v.(string)
		case "result_json":
			j.ResultJSON, _ = v.(string)
		case "started_at":
			j.StartedAt = asTime(v)
		case "completed_at":
			j.CompletedAt = asTime(v)
		default:
			return fmt.Errorf("unknown job field %q", k)
		}
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) JobsForSource(_ context.Context, sourceID string) ([]*ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*ProcessingJob
	for _, j := range m.jobs {
		if j.BookSourceID == sourceID {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	m.sortJobs(jobs)
	return jobs, nil
}

func (m *MemoryStore) JobsByStatus(_ context.Context, statuses ...string) ([]*ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var jobs []*ProcessingJob
	for _, j := range m.jobs {
		if want[j.Status] {
			cp := *j
			jobs = append(jobs, &cp)
		}
	}
	m.sortJobs(jobs)
	return jobs, nil
}

// sortJobs orders oldest first, falling back to creation sequence when
// timestamps collide.
func (m *MemoryStore) sortJobs(jobs []*ProcessingJob) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return m.jobSeq[jobs[a].ID] < m.jobSeq[jobs[b].ID]
		}
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
}

func (m *MemoryStore) CreateChapter(_ context.Context, c *Chapter) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	cp.ID = uuid.NewString()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.seq++
	m.chapSeq[cp.ID] = m.seq
	m.chapters[cp.ID] = &cp
	return cp.ID, nil
}

func (m *MemoryStore) GetChapter(_ context.Context, id string) (*Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetChapterErr != nil {
		return nil, m.GetChapterErr
	}

	c, ok := m.chapters[id]
	if !ok {
		return nil, fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateChapter(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chapters[id]
	if !ok {
		return fmt.Errorf("chapter %s: %w", id, ErrNotFound)
	}

	for k, v := range fields {
		switch k {
		case "title":
			c.Title, _ = v.(string)
		case "status":
			c.Status, _ = v.(string)
		case "content":
			c.Content, _ = v.(string)
		case "audio_path":
			c.AudioPath, _ = v.(string)
		case "word_count":
			c.WordCount = asInt(v)
		default:
			return fmt.Errorf("unknown chapter field %q", k)
		}
	}
	return nil
}

func (m *MemoryStore) ChaptersForBook(_ context.Context, bookID string) ([]*Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chapters []*Chapter
	for _, c := range m.chapters {
		if c.BookID == bookID {
			cp := *c
			chapters = append(chapters, &cp)
		}
	}
	sort.SliceStable(chapters, func(a, b int) bool {
		if chapters[a].Index == chapters[b].Index {
			return m.chapSeq[chapters[a].ID] < m.chapSeq[chapters[b].ID]
		}
		return chapters[a].Index < chapters[b].Index
	})
	return chapters, nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
