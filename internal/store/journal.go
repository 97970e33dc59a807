package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/pkg/model"
)

// DefaultJournalBuffer is the number of entries the journal queues before
// it starts dropping.
const DefaultJournalBuffer = 256

// Journal records scheduler activity in a Store. It implements
// scheduler.Observer: entries are queued without blocking and written by a
// single goroutine, so the tick loop never waits on the database.
type Journal struct {
	store  Store
	runID  string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	entries chan model.HistoryEntry
	done    chan struct{}

	written atomic.Int64
	dropped atomic.Int64
}

var _ scheduler.Observer = (*Journal)(nil)

// NewJournal starts a journal writing to st. A bufferSize <= 0 selects
// DefaultJournalBuffer.
func NewJournal(st Store, logger *slog.Logger, bufferSize int) *Journal {
	if bufferSize <= 0 {
		bufferSize = DefaultJournalBuffer
	}
	j := &Journal{
		store:   st,
		runID:   "run_" + uuid.New().String()[:8],
		now:     time.Now,
		entries: make(chan model.HistoryEntry, bufferSize),
		done:    make(chan struct{}),
	}
	j.logger = logging.Component(logger, "journal", "run_id", j.runID)
	go j.writeLoop()
	return j
}

// RunID identifies the entries of this process run.
func (j *Journal) RunID() string { return j.runID }

// Stats returns the number of entries written and dropped.
func (j *Journal) Stats() (written, dropped int64) {
	return j.written.Load(), j.dropped.Load()
}

func (j *Journal) writeLoop() {
	defer close(j.done)
	ctx := context.Background()
	for entry := range j.entries {
		if err := j.store.RecordHistory(ctx, &entry); err != nil {
			j.logger.Error("record history", "kind", entry.Kind, "error", err)
			continue
		}
		j.written.Add(1)
	}
}

func (j *Journal) record(kind model.HistoryKind, subject, detail string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	entry := model.HistoryEntry{
		RunID:   j.runID,
		Kind:    kind,
		Subject: subject,
		Detail:  detail,
		At:      j.now().UTC(),
	}
	select {
	case j.entries <- entry:
	default:
		if j.dropped.Add(1) == 1 {
			j.logger.Warn("journal buffer full, dropping entries")
		}
	}
}

// Close stops accepting entries and waits until the queued ones are written
// or ctx is done.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.entries)
	}
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return fmt.Errorf("journal flush: %w", ctx.Err())
	}
	if n := j.dropped.Load(); n > 0 {
		j.logger.Warn("journal dropped entries", "count", n)
	}
	return nil
}

func (j *Journal) EventAdded(e scheduler.Event) {
	j.record(model.HistoryEventAdded, e.ID(),
		fmt.Sprintf("type=%s priority=%s group=%s", scheduler.EventType(e), e.Priority(), e.Group()))
}

func (j *Journal) EventRemoved(e scheduler.Event) {
	j.record(model.HistoryEventRemoved, e.ID(), "type="+scheduler.EventType(e))
}

func (j *Journal) StateChanged(old, next scheduler.State) {
	j.record(model.HistoryStateChange, next.Name(), "from="+old.Name())
}

func (j *Journal) WindowChanged(w scheduler.Window, kind model.HistoryKind) {
	var detail string
	switch kind {
	case model.HistoryFocusChange:
		detail = fmt.Sprintf("focus=%t", w.HasFocus())
	default:
		detail = fmt.Sprintf("open=%t", w.IsOpen())
	}
	j.record(kind, w.Name(), detail)
}

func (j *Journal) TickOverrun(elapsed, period time.Duration) {
	j.record(model.HistoryTickOverrun, "tick", fmt.Sprintf("elapsed=%s period=%s", elapsed, period))
}
