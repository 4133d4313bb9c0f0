// Package processor runs asynchronous jobs against book sources:
// manuscript parsing, chapter materialization, and narration.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuentosapp/cuentos-server/internal/providers"
	"github.com/cuentosapp/cuentos-server/internal/store"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrSourceNotFound    = errors.New("book source not found")
	ErrJobAlreadyRunning = errors.New("a job is already active for this source")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobCompleted      = errors.New("job already completed")
	ErrJobFailed         = errors.New("job already failed")
	ErrChaptersExist     = errors.New("chapters already exist for this book")
)

// Progress checkpoints for parsing jobs. Cancellation is observed at
// these boundaries, never mid-phase.
const (
	progressRead     = 10
	progressExtract  = 30
	progressDetect   = 60
	progressValidate = 80
	progressDone     = 100
)

// Config configures a Processor.
type Config struct {
	Store     store.Store
	Logger    *slog.Logger
	Workers   int // bounded pool size (default 4)
	AudioDir  string
	TTS       providers.TTSProvider
	ASR       providers.ASRProvider
	Prober    DurationProber // defaults to ffprobe
	TTSVoice  string
	TTSFormat string // defaults to mp3
}

// Processor owns job lifecycle: conditional creation, execution on a
// bounded worker pool, cancellation, and the restart sweep.
type Processor struct {
	store  store.Store
	logger *slog.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	// locks serializes job creation per source so the no-concurrent-jobs
	// invariant holds under racing requests.
	locks keyedLocks

	// cancels holds cancel funcs for running executions.
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	audioDir  string
	tts       providers.TTSProvider
	asr       providers.ASRProvider
	prober    DurationProber
	ttsVoice  string
	ttsFormat string

	ttsLimiter *providers.RateLimiter
	asrLimiter *providers.RateLimiter
}

// New creates a Processor.
func New(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("processor requires a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Prober == nil {
		cfg.Prober = FFProbe{}
	}
	if cfg.TTSFormat == "" {
		cfg.TTSFormat = "mp3"
	}

	p := &Processor{
		store:     cfg.Store,
		logger:    cfg.Logger,
		slots:     make(chan struct{}, cfg.Workers),
		cancels:   make(map[string]context.CancelFunc),
		audioDir:  cfg.AudioDir,
		tts:       cfg.TTS,
		asr:       cfg.ASR,
		prober:    cfg.Prober,
		ttsVoice:  cfg.TTSVoice,
		ttsFormat: cfg.TTSFormat,
	}
	if cfg.TTS != nil {
		p.ttsLimiter = providers.NewRateLimiter(cfg.TTS.RequestsPerSecond())
	}
	if cfg.ASR != nil {
		p.asrLimiter = providers.NewRateLimiter(cfg.ASR.RequestsPerSecond())
	}
	return p, nil
}

// Wait blocks until all in-flight executions finish.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// CreateParsingJob records a pending parsing job for the source.
// Creation is atomic per source: the active-job check and the insert
// run under a per-source lock.
func (p *Processor) CreateParsingJob(ctx context.Context, bookSourceID string) (*store.ProcessingJob, error) {
	src, err := p.store.GetBookSource(ctx, bookSourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, bookSourceID)
		}
		return nil, fmt.Errorf("failed to load book source: %w", err)
	}

	unlock := p.locks.lock("source:" + bookSourceID)
	defer unlock()

	existing, err := p.store.JobsForSource(ctx, bookSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	for _, j := range existing {
		if j.Active() {
			return nil, fmt.Errorf("%w: job %s is %s", ErrJobAlreadyRunning, j.ID, j.Status)
		}
	}

	job := &store.ProcessingJob{
		BookSourceID: bookSourceID,
		BookID:       src.BookID,
		Kind:         store.JobKindParsing,
		Status:       store.JobStatusPending,
	}
	id, err := p.store.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	job.ID = id

	p.logger.Info("parsing job created", "job_id", id, "book_source_id", bookSourceID)
	return job, nil
}

// JobStatus returns a snapshot of the job.
func (p *Processor) JobStatus(ctx context.Context, jobID string) (*store.ProcessingJob, error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

// JobsForSource returns the source's jobs, oldest first.
func (p *Processor) JobsForSource(ctx context.Context, sourceID string) ([]*store.ProcessingJob, error) {
	return p.store.JobsForSource(ctx, sourceID)
}

// CancelJob cancels a pending or running job. The job moves to failed
// with a cancellation message; terminal jobs are rejected.
func (p *Processor) CancelJob(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return err
	}

	switch job.Status {
	case store.JobStatusCompleted:
		return fmt.Errorf("%w: %s", ErrJobCompleted, jobID)
	case store.JobStatusFailed:
		return fmt.Errorf("%w: %s", ErrJobFailed, jobID)
	}

	// Mark failed first so a running execution observes the terminal
	// status at its next phase boundary even if the cancel signal races.
	if err := p.store.UpdateJob(ctx, jobID, map[string]any{
		"status":        store.JobStatusFailed,
		"error_message": "job cancelled by request",
		"completed_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("failed to mark job cancelled: %w", err)
	}

	p.cancelMu.Lock()
	if cancel, ok := p.cancels[jobID]; ok {
		cancel()
	}
	p.cancelMu.Unlock()

	p.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

// ProcessQueue sweeps pending jobs and dispatches any whose source has
// no running sibling. Used on startup and via the queue endpoint.
// Returns the number of jobs dispatched.
func (p *Processor) ProcessQueue(ctx context.Context) (int, error) {
	pending, err := p.store.JobsByStatus(ctx, store.JobStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	running, err := p.store.JobsByStatus(ctx, store.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running jobs: %w", err)
	}
	busy := make(map[string]bool, len(running))
	for _, j := range running {
		busy[j.BookSourceID] = true
	}

	dispatched := 0
	seen := make(map[string]bool)
	for _, job := range pending {
		if busy[job.BookSourceID] || seen[job.BookSourceID] {
			continue
		}
		seen[job.BookSourceID] = true
		p.Dispatch(job.ID, job.Kind)
		dispatched++
	}

	p.logger.Info("queue sweep", "pending", len(pending), "dispatched", dispatched)
	return dispatched, nil
}

// Dispatch runs the job asynchronously on the bounded pool.
func (p *Processor) Dispatch(jobID, kind string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.slots <- struct{}{}
		defer func() { <-p.slots }()

		ctx, cancel := context.WithCancel(context.Background())
		p.cancelMu.Lock()
		p.cancels[jobID] = cancel
		p.cancelMu.Unlock()
		defer func() {
			cancel()
			p.cancelMu.Lock()
			delete(p.cancels, jobID)
			p.cancelMu.Unlock()
		}()

		var err error
		switch kind {
		case store.JobKindParsing:
			err = p.ExecuteParsingJob(ctx, jobID)
		case store.JobKindChapterCreation:
			err = p.ExecuteChapterCreationJob(ctx, jobID)
		case store.JobKindTTSGeneration:
			err = p.ExecuteTTSJob(ctx, jobID)
		default:
			err = fmt.Errorf("unknown job kind %q", kind)
		}
		if err != nil {
			p.logger.Error("job execution failed", "job_id", jobID, "kind", kind, "error", err)
		}
	}()
}

// start transitions pending → running. Returns the job, or an error if
// it is no longer pending (cancelled before starting, already claimed).
// The read-and-flip runs under a per-job lock: an endpoint dispatch and
// a queue sweep can race to claim the same pending job, and only one
// may win.
func (p *Processor) start(ctx context.Context, jobID string) (*store.ProcessingJob, error) {
	unlock := p.locks.lock("job:" + jobID)
	defer unlock()

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	if job.Status != store.JobStatusPending {
		return nil, fmt.Errorf("job %s is %s, not pending", jobID, job.Status)
	}

	if err := p.store.UpdateJob(ctx, jobID, map[string]any{
		"status":     store.JobStatusRunning,
		"progress":   0,
		"started_at": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}
	job.Status = store.JobStatusRunning
	return job, nil
}

// checkpoint records progress and observes cancellation. It returns an
// error when the context is done or the job left the running state.
func (p *Processor) checkpoint(ctx context.Context, jobID string, progress int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job %s cancelled: %w", jobID, err)
	}

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != store.JobStatusRunning {
		return fmt.Errorf("job %s is %s, stopping", jobID, job.Status)
	}

	return p.store.UpdateJob(ctx, jobID, map[string]any{"progress": progress})
}

// fail moves a running job to failed unless cancellation already did.
func (p *Processor) fail(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil || job.Terminal() {
		return
	}

	if err := p.store.UpdateJob(ctx, jobID, map[string]any{
		"status":        store.JobStatusFailed,
		"error_message": cause.Error(),
		"completed_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		p.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
}

// setSourceStatus records the source's processing state. Failures are
// logged and swallowed; the job record stays the source of truth. A
// fresh context is used so the update lands even after cancellation.
func (p *Processor) setSourceStatus(sourceID, status string) {
	if sourceID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.store.UpdateBookSource(ctx, sourceID, map[string]any{"status": status}); err != nil {
		p.logger.Error("failed to update source status",
			"book_source_id", sourceID, "status", status, "error", err)
	}
}

func (p *Processor) complete(ctx context.Context, jobID, resultJSON string) error {
	return p.store.UpdateJob(ctx, jobID, map[string]any{
		"status":       store.JobStatusCompleted,
		"progress":     progressDone,
		"result_json":  resultJSON,
		"completed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// keyedLocks hands out one mutex per key.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
