package clickhouse

import (
	"context"
	"sync"
	"time"

	"folioagent/pkg/logger"
)

// FlushFunc performs the INSERT for one batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// flushTimeout bounds one INSERT issued by the flush loop
const flushTimeout = 10 * time.Second

// BatchWriter accumulates rows in memory and hands them to FlushFunc in batches.
// All flushes run on the background loop: when the buffer reaches MaxBatchSize,
// every MaxAge, and on Stop. Add never waits for an INSERT.
// When MaxBuffered rows are pending, further rows are dropped and counted.
type BatchWriter[T any] struct {
	flushFunc FlushFunc[T]
	log       *logger.Logger

	maxBatchSize int
	maxBuffered  int
	maxAge       time.Duration

	mu        sync.Mutex
	buffer    []T
	dropped   int
	lastFlush time.Time
	running   bool

	flushCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// BatchWriterConfig contains configuration for BatchWriter
type BatchWriterConfig[T any] struct {
	FlushFunc    FlushFunc[T]
	TableName    string
	MaxBatchSize int           // Default: 500
	MaxBuffered  int           // Default: 10 * MaxBatchSize
	MaxAge       time.Duration // Default: 5s
	Logger       *logger.Logger
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter[T any](cfg BatchWriterConfig[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxBuffered < cfg.MaxBatchSize {
		cfg.MaxBuffered = cfg.MaxBatchSize * 10
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return &BatchWriter[T]{
		flushFunc:    cfg.FlushFunc,
		log:          log.With("component", "batch_writer", "table", cfg.TableName),
		maxBatchSize: cfg.MaxBatchSize,
		maxBuffered:  cfg.MaxBuffered,
		maxAge:       cfg.MaxAge,
		buffer:       make([]T, 0, cfg.MaxBatchSize),
		lastFlush:    time.Now(),
		flushCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the background flush loop
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)

	bw.log.Infof("BatchWriter started (maxBatchSize=%d, maxAge=%v)", bw.maxBatchSize, bw.maxAge)
}

// Add buffers rows and wakes the flush loop when the batch is full.
// It reports false when rows had to be dropped.
func (bw *BatchWriter[T]) Add(rows ...T) bool {
	bw.mu.Lock()
	accepted := true
	for _, r := range rows {
		if len(bw.buffer) >= bw.maxBuffered {
			bw.dropped++
			accepted = false
			continue
		}
		bw.buffer = append(bw.buffer, r)
	}
	shouldFlush := len(bw.buffer) >= bw.maxBatchSize
	bw.mu.Unlock()

	if shouldFlush {
		select {
		case bw.flushCh <- struct{}{}:
		default:
		}
	}
	return accepted
}

// Flush writes all buffered rows. Rows of a failed batch are not retried.
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.maxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	start := time.Now()
	err := bw.flushFunc(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		bw.log.Warnw("batch flush failed", "rows", len(batch), "duration", duration, "error", err)
		return err
	}

	bw.log.Debugw("batch flushed", "rows", len(batch), "duration", duration)
	return nil
}

func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush()
			return
		case <-bw.stopCh:
			bw.finalFlush()
			return
		case <-bw.flushCh:
			if err := bw.flushBounded(ctx); err != nil {
				bw.log.Debugw("batch-size flush failed", "error", err)
			}
		case <-ticker.C:
			if err := bw.flushBounded(ctx); err != nil {
				bw.log.Debugw("periodic flush failed", "error", err)
			}
		}
	}
}

func (bw *BatchWriter[T]) flushBounded(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	return bw.Flush(ctx)
}

func (bw *BatchWriter[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), bw.maxAge)
	defer cancel()
	if err := bw.Flush(ctx); err != nil {
		bw.log.Warnw("final flush failed", "error", err)
	}
}

// Stop flushes remaining rows and waits for the loop to exit
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return bw.Flush(ctx)
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		bw.log.Info("BatchWriter stopped")
		return nil
	case <-ctx.Done():
		bw.log.Warn("BatchWriter stop timed out")
		return ctx.Err()
	}
}

// BatchWriterStats is a point-in-time view of the writer
type BatchWriterStats struct {
	BufferSize   int
	Dropped      int
	LastFlushAge time.Duration
	Running      bool
}

// Stats returns current statistics
func (bw *BatchWriter[T]) Stats() BatchWriterStats {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	return BatchWriterStats{
		BufferSize:   len(bw.buffer),
		Dropped:      bw.dropped,
		LastFlushAge: time.Since(bw.lastFlush),
		Running:      bw.running,
	}
}
