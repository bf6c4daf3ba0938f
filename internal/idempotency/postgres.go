package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS extraction_log (
	fingerprint  TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	reserved_at  TIMESTAMPTZ NOT NULL,
	committed_at TIMESTAMPTZ,
	result_json  JSONB
);`

// PostgresStore is the multi-process store. ON CONFLICT DO NOTHING on the
// primary key makes reservation atomic across processes and hosts.
type PostgresStore struct {
	pool       *pgxpool.Pool
	StaleAfter time.Duration
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create extraction_log: %w", err)
	}
	return &PostgresStore{pool: pool, StaleAfter: 10 * time.Minute}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Reserve(ctx context.Context, fp string) (ReserveState, *Record, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_log (fingerprint, status, reserved_at)
		 VALUES ($1, 'RESERVED', $2)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		fp, now)
	if err != nil {
		return 0, nil, err
	}
	if tag.RowsAffected() == 1 {
		return StateReserved, nil, nil
	}

	var (
		status      string
		reservedAt  time.Time
		committedAt *time.Time
		resultJSON  []byte
	)
	err = s.pool.QueryRow(ctx,
		`SELECT status, reserved_at, committed_at, result_json FROM extraction_log WHERE fingerprint = $1`,
		fp).Scan(&status, &reservedAt, &committedAt, &resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.Reserve(ctx, fp)
	}
	if err != nil {
		return 0, nil, err
	}

	if status == "COMMITTED" {
		rec := &Record{Fingerprint: fp, ResultJSON: resultJSON}
		if committedAt != nil {
			rec.CommittedAt = *committedAt
		}
		return StateCommitted, rec, nil
	}

	if s.StaleAfter > 0 && now.Sub(reservedAt) > s.StaleAfter {
		tag, err := s.pool.Exec(ctx,
			`UPDATE extraction_log SET reserved_at = $1
			 WHERE fingerprint = $2 AND status = 'RESERVED' AND reserved_at = $3`,
			now, fp, reservedAt)
		if err != nil {
			return 0, nil, err
		}
		if tag.RowsAffected() == 1 {
			return StateReserved, nil, nil
		}
	}
	return StateInFlight, nil, nil
}

func (s *PostgresStore) Commit(ctx context.Context, fp string, resultJSON []byte) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE extraction_log SET status = 'COMMITTED', committed_at = $1, result_json = $2 WHERE fingerprint = $3`,
		time.Now().UTC(), resultJSON, fp)
	return err
}

func (s *PostgresStore) Release(ctx context.Context, fp string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM extraction_log WHERE fingerprint = $1 AND status = 'RESERVED'`, fp)
	return err
}
