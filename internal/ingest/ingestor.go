package ingest

import (
	"context"
	"log/slog"
	"time"

	"example.com/fairticket/internal/domain"
	"example.com/fairticket/internal/metrics"
)

// BatchWriter persists a batch of activity records and reports how many were
// newly stored.
type BatchWriter interface {
	InsertBatch(ctx context.Context, items []domain.Activity) (int64, error)
}

// Ingestor buffers activity records and flushes them to a BatchWriter in
// batches, by size or by time, whichever comes first.
type Ingestor struct {
	queue        chan domain.Activity
	writer       BatchWriter
	batchMaxSize int
	batchMaxWait time.Duration
	logger       *slog.Logger
	done         chan struct{}
}

func NewIngestor(writer BatchWriter, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		queue:        make(chan domain.Activity, queueMaxSize),
		writer:       writer,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		logger:       logger.With("component", "ingest"),
		done:         make(chan struct{}),
	}
}

func (ig *Ingestor) Start(ctx context.Context) {
	go func() {
		defer close(ig.done)
		batch := make([]domain.Activity, 0, ig.batchMaxSize)
		t := time.NewTimer(ig.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(ig.batchMaxWait)
		}

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			affected, err := ig.writer.InsertBatch(ctx, batch)
			if err != nil {
				metrics.IngestBatchesTotal.WithLabelValues("error").Inc()
				ig.logger.Error("batch insert failed", "error", err, "dropped", len(batch))
			} else {
				metrics.IngestBatchesTotal.WithLabelValues("ok").Inc()
				ig.logger.Debug("batch insert ok", "inserted", affected, "size", len(batch))
			}
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				// Drain what is already queued with a fresh deadline since ctx
				// is gone.
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			drain:
				for {
					select {
					case a := <-ig.queue:
						batch = append(batch, a)
						if len(batch) >= ig.batchMaxSize {
							flush(flushCtx)
						}
					default:
						break drain
					}
				}
				flush(flushCtx)
				cancel()
				return
			case a := <-ig.queue:
				batch = append(batch, a)
				if len(batch) >= ig.batchMaxSize {
					flush(ctx)
				}
			case <-t.C:
				flush(ctx)
			}
		}
	}()
}

// Enqueue never blocks; it reports false when the queue is full.
func (ig *Ingestor) Enqueue(a domain.Activity) bool {
	select {
	case ig.queue <- a:
		return true
	default:
		return false
	}
}

// Record implements domain.Recorder. Records that do not fit are dropped and
// counted; ticket operations never wait on storage.
func (ig *Ingestor) Record(a domain.Activity) {
	if !ig.Enqueue(a) {
		metrics.IngestDroppedTotal.Inc()
		ig.logger.Warn("activity queue full, record dropped", "kind", a.Kind, "event", a.Event, "id", a.ID)
	}
}

// Done is closed after the final flush once the Start context ends.
func (ig *Ingestor) Done() <-chan struct{} { return ig.done }
