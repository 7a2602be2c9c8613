package recorder

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/linguahub/aui-stream/internal/transport"
)

type fakeBatchResults struct{}

func (fakeBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (fakeBatchResults) Query() (pgx.Rows, error)         { return nil, nil }
func (fakeBatchResults) QueryRow() pgx.Row                { return nil }
func (fakeBatchResults) Close() error                     { return nil }

// fakeSender records each batch it is handed and the liveness of the
// context it was sent under.
type fakeSender struct {
	mu      sync.Mutex
	lens    []int
	ctxErrs []error
}

func (s *fakeSender) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lens = append(s.lens, b.Len())
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return fakeBatchResults{}
}

func (s *fakeSender) flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lens)
}

func (s *fakeSender) lastCtxErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ctxErrs) == 0 {
		return nil
	}
	return s.ctxErrs[len(s.ctxErrs)-1]
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func patchFrame() transport.Frame {
	return transport.Frame{Type: "patch", Raw: json.RawMessage(`{"type":"patch"}`)}
}

func TestRecorder_Transform(t *testing.T) {
	r := New(DefaultConfig(), "lesson", nil, nil)

	receivedAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	frame := transport.Frame{
		Type: "patch",
		Raw:  json.RawMessage(`{"type":"patch","seq":4}`),
	}

	row := r.transform(frame, receivedAt)

	if row.StreamType != "lesson" {
		t.Errorf("StreamType = %q, want lesson", row.StreamType)
	}
	if row.FrameType != "patch" {
		t.Errorf("FrameType = %q, want patch", row.FrameType)
	}
	if string(row.Payload) != `{"type":"patch","seq":4}` {
		t.Errorf("Payload = %s, want original frame", row.Payload)
	}
	if !row.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", row.ReceivedAt, receivedAt)
	}
}

func TestRecorder_TransformCopiesPayload(t *testing.T) {
	r := New(DefaultConfig(), "lesson", nil, nil)

	raw := []byte(`{"type":"patch"}`)
	row := r.transform(transport.Frame{Type: "patch", Raw: raw}, time.Now())

	raw[2] = 'X'
	if string(row.Payload) != `{"type":"patch"}` {
		t.Error("payload aliases the caller's buffer")
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 2
	r := New(cfg, "lesson", nil, nil)

	// Not started, so nothing drains the queue.
	for i := 0; i < 5; i++ {
		r.HandleFrame(transport.Frame{Type: "patch", Raw: json.RawMessage(`{}`)})
	}

	if got := r.Stats().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestRecorder_FlushOnBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.FlushInterval = time.Hour // size is the only trigger here

	sender := &fakeSender{}
	r := New(cfg, "lesson", sender, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())

	r.HandleFrame(patchFrame())
	r.HandleFrame(patchFrame())

	waitFor(t, "batch never flushed on size", func() bool { return r.Stats().Inserts == 2 })
	if n := sender.flushes(); n != 1 {
		t.Errorf("SendBatch called %d times, want 1", n)
	}
	if got := r.Stats().Errors; got != 0 {
		t.Errorf("Errors = %d, want 0", got)
	}
}

func TestRecorder_FlushOnInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 100 // never reached
	cfg.FlushInterval = 5 * time.Millisecond

	sender := &fakeSender{}
	r := New(cfg, "lesson", sender, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())

	r.HandleFrame(patchFrame())

	waitFor(t, "batch never flushed on interval", func() bool { return r.Stats().Inserts == 1 })
}

func TestRecorder_StopDrainsAndFlushes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.FlushInterval = time.Hour // only the shutdown flush can write

	sender := &fakeSender{}
	r := New(cfg, "lesson", sender, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		r.HandleFrame(patchFrame())
	}

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := r.Stats()
	if stats.Inserts != 3 {
		t.Errorf("Inserts = %d, want 3 (queued frames lost at shutdown)", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	if err := sender.lastCtxErr(); err != nil {
		t.Errorf("final flush ran under a dead context: %v", err)
	}
}
