package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/pkg/models"
)

// Recorder accepts audit events for eventual persistence.
type Recorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// Writer persists audit events asynchronously. Events are buffered on a
// channel and flushed in batches so request handlers never block on the
// audit table.
type Writer struct {
	logger    *zap.Logger
	db        *gorm.DB
	events    chan models.AuditEvent
	batchSize int
	interval  time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWriter starts a background audit writer.
func NewWriter(logger *zap.Logger, db *gorm.DB) *Writer {
	w := &Writer{
		logger:    logger,
		db:        db,
		events:    make(chan models.AuditEvent, 1024),
		batchSize: 64,
		interval:  2 * time.Second,
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record enqueues an audit event. When the buffer is full the event is
// dropped with a warning rather than stalling the caller.
func (w *Writer) Record(_ context.Context, event models.AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Severity == "" {
		event.Severity = "low"
	}

	select {
	case w.events <- event:
	default:
		w.logger.Warn("audit buffer full, dropping event",
			zap.String("action", event.Action),
			zap.String("actor_id", event.ActorID.String()))
	}
}

// Close flushes pending events and stops the writer.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]models.AuditEvent, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.db.Create(&batch).Error; err != nil {
			w.logger.Error("failed to write audit batch", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-w.events:
			batch = append(batch, ev)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case ev := <-w.events:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}
