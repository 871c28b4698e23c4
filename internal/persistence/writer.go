// Package persistence stores session snapshots as a bus subscriber.
// The engine never waits on a write: snapshots are coalesced per user
// (latest wins) and flushed on a background loop in one transaction.
package persistence

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"papertrader/internal/events"
	"papertrader/internal/sim"
	"papertrader/pkg/db"
)

// WriterMetrics provides statistics about snapshot flushes.
type WriterMetrics struct {
	TotalSnapshots uint64    `json:"total_snapshots"`
	TotalFlushes   uint64    `json:"total_flushes"`
	TotalErrors    uint64    `json:"total_errors"`
	LastFlushSize  int       `json:"last_flush_size"`
	LastFlushTime  time.Time `json:"last_flush_time"`
}

// Writer subscribes to snapshot events and writes them to SQLite.
type Writer struct {
	db          *db.Database
	mu          sync.Mutex
	pending     map[string]sim.Snapshot
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	unsub       func()
	metrics     WriterMetrics
}

// NewWriter starts a writer consuming events.EventSnapshot from bus.
func NewWriter(database *db.Database, bus *events.Bus, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	w := &Writer{
		db:          database,
		pending:     make(map[string]sim.Snapshot),
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	ch, unsub := bus.Subscribe(events.EventSnapshot, 256)
	w.unsub = unsub

	w.wg.Add(1)
	go w.run(ch)

	return w
}

func (w *Writer) run(ch <-chan any) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// Unsubscribed; the channel has drained, so this is
				// the last chance to persist what is still pending.
				if err := w.Flush(); err != nil {
					log.Printf("[PERSIST] final flush error: %v", err)
				}
				return
			}
			ev, okCast := msg.(sim.SnapshotEvent)
			if !okCast {
				continue
			}
			w.mu.Lock()
			w.pending[ev.UserID] = ev.Snapshot
			w.mu.Unlock()
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.Printf("[PERSIST] background flush error: %v", err)
			}
		case <-w.done:
			if err := w.Flush(); err != nil {
				log.Printf("[PERSIST] final flush error: %v", err)
			}
			return
		}
	}
}

// Flush writes all pending snapshots in one transaction.
func (w *Writer) Flush() error {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.pending
	w.pending = make(map[string]sim.Snapshot)
	w.mu.Unlock()

	atomic.AddUint64(&w.metrics.TotalSnapshots, uint64(len(batch)))
	atomic.AddUint64(&w.metrics.TotalFlushes, 1)
	w.mu.Lock()
	w.metrics.LastFlushSize = len(batch)
	w.metrics.LastFlushTime = time.Now()
	w.mu.Unlock()

	tx, err := w.db.DB.Begin()
	if err != nil {
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		return err
	}

	for userID, snap := range batch {
		payload, err := json.Marshal(snap)
		if err != nil {
			tx.Rollback()
			atomic.AddUint64(&w.metrics.TotalErrors, 1)
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO sessions (user_id, schema_version, snapshot, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id) DO UPDATE SET
				schema_version = excluded.schema_version,
				snapshot = excluded.snapshot,
				updated_at = CURRENT_TIMESTAMP
		`, userID, snap.SchemaVersion, string(payload)); err != nil {
			tx.Rollback()
			atomic.AddUint64(&w.metrics.TotalErrors, 1)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		return err
	}
	return nil
}

// Pending returns the number of snapshots waiting to be flushed.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// GetMetrics returns a copy of the flush statistics.
func (w *Writer) GetMetrics() WriterMetrics {
	w.mu.Lock()
	size := w.metrics.LastFlushSize
	at := w.metrics.LastFlushTime
	w.mu.Unlock()
	return WriterMetrics{
		TotalSnapshots: atomic.LoadUint64(&w.metrics.TotalSnapshots),
		TotalFlushes:   atomic.LoadUint64(&w.metrics.TotalFlushes),
		TotalErrors:    atomic.LoadUint64(&w.metrics.TotalErrors),
		LastFlushSize:  size,
		LastFlushTime:  at,
	}
}

// Close unsubscribes, flushes once more and stops the loop.
func (w *Writer) Close() error {
	w.unsub()
	close(w.done)
	w.wg.Wait()
	return nil
}

// Load reads and validates a stored snapshot. It returns nil (no
// error) when nothing usable is stored: missing row, incompatible
// schema version, or a snapshot that fails validation. Corrupt state
// never blocks a user from starting fresh.
func Load(ctx context.Context, database *db.Database, userID string) (*sim.Snapshot, error) {
	row, err := database.GetSession(ctx, userID)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if row.SchemaVersion != sim.SnapshotSchemaVersion {
		log.Printf("[PERSIST] discarding snapshot for %s: schema version %d", userID, row.SchemaVersion)
		return nil, nil
	}

	var snap sim.Snapshot
	if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
		log.Printf("[PERSIST] discarding undecodable snapshot for %s: %v", userID, err)
		return nil, nil
	}
	if err := snap.Validate(); err != nil {
		log.Printf("[PERSIST] discarding invalid snapshot for %s: %v", userID, err)
		return nil, nil
	}
	return &snap, nil
}
