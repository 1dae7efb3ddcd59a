package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
)

// Recorder writes audit entries asynchronously. Record never blocks the
// caller and never returns an error: a full queue drops the entry with a log
// line, because an audit write must not fail the authentication operation it
// describes.
type Recorder struct {
	repo    repository.AuditRepository
	logger  *slog.Logger
	queue   chan domain.AuditEntry
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewRecorder creates a recorder and starts its writer goroutine.
func NewRecorder(repo repository.AuditRepository, l *slog.Logger) *Recorder {
	r := &Recorder{
		repo:    repo,
		logger:  l,
		queue:   make(chan domain.AuditEntry, defaultQueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go r.run()

	return r
}

// Record enqueues an audit entry. ID and CreatedAt are filled here so
// callers only supply the event itself.
func (r *Recorder) Record(entry domain.AuditEntry) {
	entry.ID = uuid.New()
	entry.CreatedAt = r.now().UTC()

	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit entry dropped, queue full",
			slog.String("action", entry.Action))
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-r.closing:
			// Drain whatever was enqueued before Close.
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()

	if err := r.repo.Insert(ctx, &entry); err != nil {
		r.logger.Error("failed to write audit entry",
			slog.String("error", err.Error()),
			slog.String("action", entry.Action),
		)
	}
}

// Close drains the queue and waits for the writer goroutine to finish.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.closing) })
	<-r.done
}
