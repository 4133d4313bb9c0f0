package defra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OpType is the kind of buffered write.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// WriteOp is a single buffered write.
type WriteOp struct {
	Collection string
	Document   map[string]any
	DocID      string // required for updates and deletes
	Op         OpType

	result chan<- WriteResult // set by SendSync
}

// WriteResult is the outcome of a buffered write.
type WriteResult struct {
	DocID string
	Err   error
}

// sinkClient is the slice of Client the sink needs. Tests substitute
// an in-memory implementation.
type sinkClient interface {
	Create(ctx context.Context, collection string, input map[string]any) (string, error)
	Update(ctx context.Context, collection, docID string, input map[string]any) error
	Delete(ctx context.Context, collection, docID string) error
}

// SinkConfig configures the write sink.
type SinkConfig struct {
	Client        sinkClient
	BatchSize     int           // flush after N ops (default 100)
	FlushInterval time.Duration // or after this long (default 5s)
	QueueSize     int           // queue buffer (default 1000)
	Logger        *slog.Logger
}

// Sink buffers writes and applies them to DefraDB in arrival order.
// Job progress updates ride through here fire-and-forget so the
// processing pipeline never blocks on the database; status transitions
// use SendSync when the caller needs the write confirmed.
type Sink struct {
	client sinkClient
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan WriteOp
	batch   []WriteOp
	batchMu sync.Mutex
	flushCh chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSink creates a sink with defaults applied.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sink{
		client:        cfg.Client,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan WriteOp, cfg.QueueSize),
		batch:         make([]WriteOp, 0, cfg.BatchSize),
		flushCh:       make(chan struct{}, 1),
	}
}

// Start begins draining the queue.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop drains the queue, flushes the final batch, and shuts down.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sink, flushing remaining operations")
		close(s.queue)
		s.wg.Wait()
		s.cancel()
		s.logger.Info("sink stopped")
	})
}

// Send queues a write without waiting for the result. Ops sent after
// Stop are dropped with a warning.
func (s *Sink) Send(op WriteOp) {
	op.result = nil

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sink closed, dropping write op",
				"collection", op.Collection,
				"op", op.Op)
		}
	}()

	select {
	case s.queue <- op:
	case <-s.ctx.Done():
		s.logger.Warn("sink closed, dropping write op",
			"collection", op.Collection,
			"op", op.Op)
	}
}

// SendSync queues a write and waits for its result.
func (s *Sink) SendSync(ctx context.Context, op WriteOp) (WriteResult, error) {
	resultCh := make(chan WriteResult, 1)
	op.result = resultCh

	select {
	case s.queue <- op:
	case <-s.ctx.Done():
		return WriteResult{}, ErrSinkClosed
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}

	select {
	case result := <-resultCh:
		return result, result.Err
	case <-s.ctx.Done():
		return WriteResult{}, ErrSinkClosed
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}
}

// Flush requests an immediate flush of the pending batch.
func (s *Sink) Flush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				s.flushBatch()
				return
			}
			s.addToBatch(op)

		case <-ticker.C:
			s.flushBatch()

		case <-s.flushCh:
			s.flushBatch()
		}
	}
}

func (s *Sink) addToBatch(op WriteOp) {
	s.batchMu.Lock()
	s.batch = append(s.batch, op)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		s.flushBatch()
	}
}

// flushBatch applies the batch strictly in arrival order. Job records
// see multiple updates per run, so reordering writes within a batch
// would let stale progress overwrite a terminal status.
func (s *Sink) flushBatch() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	ops := s.batch
	s.batch = make([]WriteOp, 0, s.batchSize)
	s.batchMu.Unlock()

	s.logger.Debug("flushing batch", "count", len(ops))

	for _, op := range ops {
		s.apply(op)
	}
}

func (s *Sink) apply(op WriteOp) {
	var result WriteResult
	switch op.Op {
	case OpCreate:
		result.DocID, result.Err = s.client.Create(s.ctx, op.Collection, op.Document)
	case OpUpdate:
		result.DocID = op.DocID
		result.Err = s.client.Update(s.ctx, op.Collection, op.DocID, op.Document)
	case OpDelete:
		result.DocID = op.DocID
		result.Err = s.client.Delete(s.ctx, op.Collection, op.DocID)
	}

	if result.Err != nil {
		s.logger.Error("write failed",
			"collection", op.Collection,
			"op", op.Op,
			"docID", op.DocID,
			"error", result.Err)
	}

	if op.result != nil {
		op.result <- result
		close(op.result)
	}
}
