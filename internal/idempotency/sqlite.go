package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extraction_log (
	fingerprint  TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	reserved_at  TIMESTAMP NOT NULL,
	committed_at TIMESTAMP,
	result_json  BLOB
);`

// SQLiteStore is the single-node store. The PRIMARY KEY on fingerprint is the
// arbiter: INSERT OR IGNORE either claims the row or tells us someone did.
type SQLiteStore struct {
	db *sqlx.DB
	// StaleAfter reclaims reservations abandoned by a crashed process;
	// zero disables reclaiming.
	StaleAfter time.Duration
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create extraction_log: %w", err)
	}
	return &SQLiteStore{db: db, StaleAfter: 10 * time.Minute}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Reserve(ctx context.Context, fp string) (ReserveState, *Record, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO extraction_log (fingerprint, status, reserved_at) VALUES (?, 'RESERVED', ?)`,
		fp, now)
	if err != nil {
		return 0, nil, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return StateReserved, nil, nil
	}

	var row struct {
		Status      string       `db:"status"`
		ReservedAt  time.Time    `db:"reserved_at"`
		CommittedAt sql.NullTime `db:"committed_at"`
		ResultJSON  []byte       `db:"result_json"`
	}
	err = s.db.GetContext(ctx, &row,
		`SELECT status, reserved_at, committed_at, result_json FROM extraction_log WHERE fingerprint = ?`, fp)
	if errors.Is(err, sql.ErrNoRows) {
		// The competing reservation was released between our insert and read.
		return s.Reserve(ctx, fp)
	}
	if err != nil {
		return 0, nil, err
	}

	if row.Status == "COMMITTED" {
		rec := &Record{Fingerprint: fp, ResultJSON: row.ResultJSON}
		if row.CommittedAt.Valid {
			rec.CommittedAt = row.CommittedAt.Time
		}
		return StateCommitted, rec, nil
	}

	// Reclaim a reservation left behind by a crashed worker.
	if s.StaleAfter > 0 && now.Sub(row.ReservedAt) > s.StaleAfter {
		res, err := s.db.ExecContext(ctx,
			`UPDATE extraction_log SET reserved_at = ? WHERE fingerprint = ? AND status = 'RESERVED' AND reserved_at = ?`,
			now, fp, row.ReservedAt)
		if err != nil {
			return 0, nil, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return StateReserved, nil, nil
		}
	}
	return StateInFlight, nil, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, fp string, resultJSON []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE extraction_log SET status = 'COMMITTED', committed_at = ?, result_json = ? WHERE fingerprint = ?`,
		time.Now().UTC(), resultJSON, fp)
	return err
}

func (s *SQLiteStore) Release(ctx context.Context, fp string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM extraction_log WHERE fingerprint = ? AND status = 'RESERVED'`, fp)
	return err
}
