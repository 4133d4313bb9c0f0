package defra

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClient records applied ops in order.
type fakeClient struct {
	mu     sync.Mutex
	ops    []WriteOp
	nextID int
	fail   bool
}

func (f *fakeClient) Create(ctx context.Context, collection string, input map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("create rejected")
	}
	f.nextID++
	f.ops = append(f.ops, WriteOp{Collection: collection, Document: input, Op: OpCreate})
	return fmt.Sprintf("bae-%d", f.nextID), nil
}

func (f *fakeClient) Update(ctx context.Context, collection, docID string, input map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("update rejected")
	}
	f.ops = append(f.ops, WriteOp{Collection: collection, DocID: docID, Document: input, Op: OpUpdate})
	return nil
}

func (f *fakeClient) Delete(ctx context.Context, collection, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, WriteOp{Collection: collection, DocID: docID, Op: OpDelete})
	return nil
}

func (f *fakeClient) applied() []WriteOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WriteOp, len(f.ops))
	copy(out, f.ops)
	return out
}

func TestSinkSendSync(t *testing.T) {
	fc := &fakeClient{}
	s := NewSink(SinkConfig{Client: fc, FlushInterval: 10 * time.Millisecond})
	s.Start(context.Background())
	defer s.Stop()

	result, err := s.SendSync(context.Background(), WriteOp{
		Collection: "ProcessingJob",
		Document:   map[string]any{"status": "pending"},
		Op:         OpCreate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DocID == "" {
		t.Error("expected a docID")
	}
}

func TestSinkPreservesOrder(t *testing.T) {
	fc := &fakeClient{}
	s := NewSink(SinkConfig{Client: fc, BatchSize: 100, FlushInterval: time.Hour})
	s.Start(context.Background())

	for i := 0; i < 20; i++ {
		s.Send(WriteOp{
			Collection: "ProcessingJob",
			DocID:      "bae-job",
			Document:   map[string]any{"progress": i},
			Op:         OpUpdate,
		})
	}
	s.Stop() // drains and flushes

	ops := fc.applied()
	if len(ops) != 20 {
		t.Fatalf("expected 20 ops, got %d", len(ops))
	}
	for i, op := range ops {
		if op.Document["progress"] != i {
			t.Fatalf("op %d has progress %v, order not preserved", i, op.Document["progress"])
		}
	}
}

func TestSinkStopFlushesRemaining(t *testing.T) {
	fc := &fakeClient{}
	s := NewSink(SinkConfig{Client: fc, BatchSize: 1000, FlushInterval: time.Hour})
	s.Start(context.Background())

	s.Send(WriteOp{Collection: "Chapter", Document: map[string]any{"idx": 0}, Op: OpCreate})
	s.Stop()

	if len(fc.applied()) != 1 {
		t.Fatalf("expected buffered op flushed on stop, got %d", len(fc.applied()))
	}
}

func TestSinkSendSyncReportsFailure(t *testing.T) {
	fc := &fakeClient{fail: true}
	s := NewSink(SinkConfig{Client: fc, FlushInterval: 10 * time.Millisecond})
	s.Start(context.Background())
	defer s.Stop()

	_, err := s.SendSync(context.Background(), WriteOp{
		Collection: "ProcessingJob",
		Document:   map[string]any{"status": "pending"},
		Op:         OpCreate,
	})
	if err == nil {
		t.Fatal("expected error from rejected write")
	}
}
