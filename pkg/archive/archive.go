// Package archive copies attack log entries into PostgreSQL with batch support.
// The detection API only keeps a rolling window of attacks; the archive keeps
// every entry the console has seen.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/ddos-radar/pkg/classifier"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
	_ "github.com/lib/pq"
)

const (
	batchSize     = 50
	batchInterval = 2 * time.Second
	queueSize     = 10000
)

// Schema creates the archive table.
const Schema = `
CREATE TABLE IF NOT EXISTS attack_archive (
	attack_id     BIGINT PRIMARY KEY,
	source_ip     TEXT NOT NULL,
	attack_type   TEXT NOT NULL,
	attack_key    TEXT NOT NULL,
	details       JSONB NOT NULL DEFAULT '{}',
	email_status  TEXT NOT NULL DEFAULT '',
	call_status   TEXT NOT NULL DEFAULT '',
	detected_at   TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL,
	last_seen_at  TIMESTAMPTZ NOT NULL
)`

// AttackArchive handles batch writing of attack log entries to PostgreSQL.
// Entries are written once per id and again whenever their delivery
// status changes.
type AttackArchive struct {
	db      *sql.DB
	queue   chan models.AttackLogEntry
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	// seen maps attack id to the delivery state last queued. Ids of a batch
	// that fails to commit are removed again so the next poll retries them.
	seen map[int64]string

	write func(batch []models.AttackLogEntry) error

	// Stats
	entriesQueued  uint64
	entriesWritten uint64
	entriesDropped uint64
	batchesWritten uint64
}

// NewAttackArchive connects to PostgreSQL and creates the archive table.
func NewAttackArchive(databaseURL string) (*AttackArchive, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("Connected to PostgreSQL database")
	return newAttackArchive(db), nil
}

func newAttackArchive(db *sql.DB) *AttackArchive {
	a := &AttackArchive{
		db:    db,
		queue: make(chan models.AttackLogEntry, queueSize),
		done:  make(chan struct{}),
		seen:  make(map[int64]string),
	}
	a.write = a.writeBatch
	return a
}

// Start begins the background writer goroutine.
func (a *AttackArchive) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.writerLoop()
	log.Printf("Attack archive writer started")
}

// Stop flushes queued entries and closes the database.
func (a *AttackArchive) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	a.db.Close()
	log.Printf("Attack archive writer stopped (written=%d, dropped=%d, batches=%d)",
		atomic.LoadUint64(&a.entriesWritten), atomic.LoadUint64(&a.entriesDropped), atomic.LoadUint64(&a.batchesWritten))
}

// Observe queues every entry that is new or whose delivery status changed.
// It is safe to call with the full attack log on every poll.
func (a *AttackArchive) Observe(entries []models.AttackLogEntry) int {
	queued := 0
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, entry := range entries {
		state := deliveryState(entry)
		if prev, ok := a.seen[entry.ID]; ok && prev == state {
			continue
		}
		select {
		case a.queue <- entry:
			a.seen[entry.ID] = state
			queued++
		default:
			// Queue full, drop entry. It is retried on the next poll.
			dropped := atomic.AddUint64(&a.entriesDropped, 1)
			if dropped%1000 == 1 {
				log.Printf("Archive queue full, dropped %d entries", dropped)
			}
		}
	}
	atomic.AddUint64(&a.entriesQueued, uint64(queued))
	return queued
}

func deliveryState(entry models.AttackLogEntry) string {
	return entry.EmailStatus + "|" + entry.CallStatus
}

// Stats returns writer statistics.
func (a *AttackArchive) Stats() map[string]interface{} {
	return map[string]interface{}{
		"entries_queued":  atomic.LoadUint64(&a.entriesQueued),
		"entries_written": atomic.LoadUint64(&a.entriesWritten),
		"entries_dropped": atomic.LoadUint64(&a.entriesDropped),
		"batches_written": atomic.LoadUint64(&a.batchesWritten),
		"queue_len":       len(a.queue),
		"queue_cap":       cap(a.queue),
	}
}

func (a *AttackArchive) writerLoop() {
	defer a.wg.Done()

	batch := make([]models.AttackLogEntry, 0, batchSize)
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-a.queue:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				a.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}

		case <-a.done:
			// Flush remaining entries
			for len(a.queue) > 0 {
				batch = append(batch, <-a.queue)
				if len(batch) >= batchSize {
					a.flush(batch)
					batch = batch[:0]
				}
			}
			a.flush(batch)
			return
		}
	}
}

// flush writes a batch. On failure the batch's entries are forgotten unless
// a newer delivery state was queued since.
func (a *AttackArchive) flush(batch []models.AttackLogEntry) {
	if len(batch) == 0 {
		return
	}
	if err := a.write(batch); err != nil {
		log.Printf("Failed to archive batch of %d: %v", len(batch), err)
		a.mu.Lock()
		for _, entry := range batch {
			if a.seen[entry.ID] == deliveryState(entry) {
				delete(a.seen, entry.ID)
			}
		}
		a.mu.Unlock()
		return
	}
	atomic.AddUint64(&a.entriesWritten, uint64(len(batch)))
	atomic.AddUint64(&a.batchesWritten, 1)
}

// writeBatch upserts a batch in one transaction. Any failed statement aborts
// the transaction, so the whole batch is rolled back.
func (a *AttackArchive) writeBatch(batch []models.AttackLogEntry) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, entry := range batch {
		if err := writeEntry(tx, entry, now); err != nil {
			return fmt.Errorf("archive attack %d: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

const upsertEntry = `
	INSERT INTO attack_archive (
		attack_id, source_ip, attack_type, attack_key, details,
		email_status, call_status, detected_at, first_seen_at, last_seen_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	ON CONFLICT (attack_id) DO UPDATE
	SET email_status = EXCLUDED.email_status,
		call_status = EXCLUDED.call_status,
		last_seen_at = EXCLUDED.last_seen_at`

// row returns the upsert arguments for entry.
func row(entry models.AttackLogEntry, now time.Time) []interface{} {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		details = []byte("{}")
	}
	return []interface{}{
		entry.ID,
		entry.SourceIP,
		entry.Details.Type,
		classifier.CanonicalizeAttackType(entry.Details.Type).Key,
		details,
		entry.EmailStatus,
		entry.CallStatus,
		string(entry.Timestamp),
		now,
	}
}

func writeEntry(tx *sql.Tx, entry models.AttackLogEntry, now time.Time) error {
	_, err := tx.Exec(upsertEntry, row(entry, now)...)
	return err
}
