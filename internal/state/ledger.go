package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// sortableTime is a fixed-width UTC layout, so processed_at text compares in
// time order. RFC3339Nano trims trailing zeros and does not.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

// ProcessedEvent is a reward-bearing event the intake has already applied.
type ProcessedEvent struct {
	ID     string
	Arm    string
	Type   string
	Reward float64
}

// SQLiteLedger records processed event ids in the processed_events table.
type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db, now: time.Now}
}

// MarkProcessed inserts ev unless its id is already present. first reports
// whether this call recorded it.
func (l *SQLiteLedger) MarkProcessed(ctx context.Context, ev ProcessedEvent) (bool, error) {
	if ev.ID == "" {
		return false, fmt.Errorf("event id is empty")
	}
	res, err := l.db.ExecContext(ctx, `
INSERT INTO processed_events(event_id, arm, event_type, reward, processed_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING;
`, ev.ID, ev.Arm, ev.Type, ev.Reward, l.now().UTC().Format(sortableTime))
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Forget removes an event id so the event can be applied again.
func (l *SQLiteLedger) Forget(ctx context.Context, eventID string) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM processed_events WHERE event_id = ?;", eventID); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

// Purge drops ledger rows older than cutoff and returns how many went.
func (l *SQLiteLedger) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx, "DELETE FROM processed_events WHERE processed_at < ?;",
		cutoff.UTC().Format(sortableTime))
	if err != nil {
		return 0, fmt.Errorf("purge ledger: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MemoryLedger is the in-process ledger used with the memory store.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, ev ProcessedEvent) (bool, error) {
	if ev.ID == "" {
		return false, fmt.Errorf("event id is empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[ev.ID]; ok {
		return false, nil
	}
	l.seen[ev.ID] = l.now()
	return true, nil
}

func (l *MemoryLedger) Purge(_ context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, at := range l.seen {
		if at.Before(cutoff) {
			delete(l.seen, id)
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) Forget(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, eventID)
	return nil
}
