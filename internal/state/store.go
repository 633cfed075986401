package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/armsd/internal/bandit"
)

// SQLiteStore keeps belief records in the bandit_arms table. Open the
// database with storage.OpenSQLite so the schema and pragmas are in place.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ bandit.BeliefStore = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Get(ctx context.Context, arm string) (bandit.Record, bool, error) {
	if arm == "" {
		return bandit.Record{}, false, fmt.Errorf("arm name is empty")
	}

	row := s.db.QueryRowContext(ctx, "SELECT arm, alpha, beta, updated_at FROM bandit_arms WHERE arm = ?;", arm)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return bandit.Record{}, false, nil
	}
	if err != nil {
		return bandit.Record{}, false, fmt.Errorf("read belief: %w", err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]bandit.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT arm, alpha, beta, updated_at FROM bandit_arms ORDER BY arm;")
	if err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	defer rows.Close()

	var out []bandit.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan belief: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list beliefs: %w", err)
	}
	return out, nil
}

// EnsureArms inserts missing priors in a single transaction, so a concurrent
// reader sees either none or all of this call's new records.
func (s *SQLiteStore) EnsureArms(ctx context.Context, arms []string) (int, error) {
	if len(arms) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO bandit_arms(arm, alpha, beta, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(arm) DO NOTHING;
`)
	if err != nil {
		return 0, fmt.Errorf("prepare ensure: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC().Format(time.RFC3339Nano)
	created := 0
	for _, arm := range arms {
		res, err := stmt.ExecContext(ctx, arm, bandit.PriorAlpha, bandit.PriorBeta, now)
		if err != nil {
			return 0, fmt.Errorf("insert prior for %q: %w", arm, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

// Increment is a single upsert statement: the addition happens inside SQLite,
// never as read-then-write in this process.
func (s *SQLiteStore) Increment(ctx context.Context, arm string, dAlpha, dBeta float64) (bandit.Record, error) {
	if arm == "" {
		return bandit.Record{}, fmt.Errorf("arm name is empty")
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(ctx, `
INSERT INTO bandit_arms(arm, alpha, beta, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(arm) DO UPDATE SET
  alpha = bandit_arms.alpha + ?,
  beta = bandit_arms.beta + ?,
  updated_at = excluded.updated_at
RETURNING arm, alpha, beta, updated_at;
`, arm, bandit.PriorAlpha+dAlpha, bandit.PriorBeta+dBeta, now, dAlpha, dBeta)

	rec, err := scanRecord(row)
	if err != nil {
		return bandit.Record{}, fmt.Errorf("increment belief: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, arms []string) (int, error) {
	if len(arms) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted := 0
	for _, arm := range arms {
		res, err := tx.ExecContext(ctx, "DELETE FROM bandit_arms WHERE arm = ?;", arm)
		if err != nil {
			return 0, fmt.Errorf("delete belief %q: %w", arm, err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (bandit.Record, error) {
	var (
		rec       bandit.Record
		alpha     sql.NullFloat64
		beta      sql.NullFloat64
		updatedAt sql.NullString
	)
	if err := row.Scan(&rec.Arm, &alpha, &beta, &updatedAt); err != nil {
		return bandit.Record{}, err
	}
	// NULLs surface as zero; the engine clamps them before sampling.
	rec.Alpha = alpha.Float64
	rec.Beta = beta.Float64
	if updatedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, updatedAt.String); err == nil {
			rec.UpdatedAt = t
		}
	}
	return rec, nil
}
