package store

import (
	"context"
	"log/slog"

	"github.com/roach88/placesync/internal/clock"
	"github.com/roach88/placesync/internal/projection"
)

// DefaultJournalQueue is the number of snapshots buffered between the
// engine and the database.
const DefaultJournalQueue = 64

// Journal writes published snapshots to a Store off the delivery path.
//
// Record is a projection.Listener. It never blocks: when the queue is
// full the snapshot is dropped and logged, because listeners run inside
// snapshot delivery and must not stall the engine.
type Journal struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger
	queue  chan *projection.Snapshot
}

// NewJournal creates a journal feeding s. A non-positive capacity uses
// DefaultJournalQueue.
func NewJournal(s *Store, clk clock.Clock, logger *slog.Logger, capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultJournalQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:  s,
		clock:  clk,
		logger: logger,
		queue:  make(chan *projection.Snapshot, capacity),
	}
}

// Record enqueues snap. Reset snapshots (revision 0) carry no pass
// result and are skipped.
func (j *Journal) Record(snap *projection.Snapshot) {
	if snap == nil || snap.Revision == 0 {
		return
	}
	select {
	case j.queue <- snap:
	default:
		j.logger.Warn("journal_dropped", "dir", snap.ProjectDirectory, "revision", snap.Revision)
	}
}

// Run writes queued snapshots until ctx is done, then flushes what is
// still queued and returns.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case snap := <-j.queue:
			j.write(ctx, snap)
		case <-ctx.Done():
			flushCtx := context.WithoutCancel(ctx)
			for {
				select {
				case snap := <-j.queue:
					j.write(flushCtx, snap)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, snap *projection.Snapshot) {
	id, inserted, err := j.store.WriteSnapshot(ctx, snap, j.clock.Now())
	if err != nil {
		j.logger.Error("journal_write_failed", "dir", snap.ProjectDirectory, "revision", snap.Revision, "error", err)
		return
	}
	j.logger.Debug("journal_written", "id", id, "revision", snap.Revision, "inserted", inserted)
}
