package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linguahub/aui-stream/internal/transport"
)

// BatchSender is the slice of the pgx pool the recorder writes through.
// *pgxpool.Pool implements it; tests inject a fake.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config configures a Recorder.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		QueueSize:     1000,
	}
}

// Metrics counts recorder activity.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// frameRow is one archived frame.
type frameRow struct {
	StreamType string
	FrameType  string
	Payload    []byte
	ReceivedAt time.Time
}

// Recorder batches frames into the aui_frames table.
type Recorder struct {
	cfg        Config
	streamType string
	db         BatchSender
	logger     *slog.Logger

	input chan frameRow

	batchMu     sync.Mutex
	batch       []frameRow
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a recorder for one stream type.
func New(cfg Config, streamType string, db BatchSender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:        cfg,
		streamType: streamType,
		db:         db,
		logger:     logger,
		input:      make(chan frameRow, cfg.QueueSize),
		batch:      make([]frameRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming frames and writing batches.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"stream_type", r.streamType,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains and flushes what remains. The internal context is cancelled
// first, so the final flush runs under the caller's ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	r.drain()
	r.flush(ctx)
	return nil
}

// drain moves rows still queued into the batch so the final flush sees them.
func (r *Recorder) drain() {
	for {
		select {
		case row := <-r.input:
			r.batchMu.Lock()
			r.batch = append(r.batch, row)
			r.batchMu.Unlock()
		default:
			return
		}
	}
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// HandleFrame enqueues one frame. It never blocks: a full queue drops the
// frame and counts it.
func (r *Recorder) HandleFrame(f transport.Frame) {
	row := r.transform(f, time.Now())

	select {
	case r.input <- row:
	default:
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
		r.logger.Warn("recorder queue full, dropping frame", "frame_type", f.Type)
	}
}

// transform converts a frame to its archive row.
func (r *Recorder) transform(f transport.Frame, receivedAt time.Time) frameRow {
	payload := make([]byte, len(f.Raw))
	copy(payload, f.Raw)

	return frameRow{
		StreamType: r.streamType,
		FrameType:  f.Type,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}
}

func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case row := <-r.input:
			r.handleRow(row)
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

func (r *Recorder) handleRow(row frameRow) {
	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// flush writes the current batch to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]frameRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	if err := r.batchInsert(ctx, batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed frames",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (r *Recorder) batchInsert(ctx context.Context, rows []frameRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO aui_frames (stream_type, frame_type, payload, received_at)
			VALUES ($1, $2, $3, $4)
		`, row.StreamType, row.FrameType, row.Payload, row.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
