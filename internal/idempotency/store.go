package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Reservation states returned by a Store. The storage layer's uniqueness
// invariant is the real arbiter; no in-process lock is trusted across
// processes.
type ReserveState int

const (
	// StateReserved: this caller owns the fingerprint and must Commit or Release.
	StateReserved ReserveState = iota
	// StateCommitted: a prior run already committed a result.
	StateCommitted
	// StateInFlight: another submission holds an uncommitted reservation.
	StateInFlight
)

// Record is the committed row for one fingerprint.
type Record struct {
	Fingerprint string
	CommittedAt time.Time
	ResultJSON  []byte
}

// ErrStorage wraps any store-level failure; callers must fail closed rather
// than skip the dedup guarantee.
var ErrStorage = errors.New("idempotency storage error")

// Store is the persistence seam. Reserve must be atomic at the storage layer
// (unique insert / compare-and-swap), never an in-process lock alone.
type Store interface {
	// Reserve atomically claims the fingerprint. When the fingerprint is
	// already committed the prior record is returned.
	Reserve(ctx context.Context, fingerprint string) (ReserveState, *Record, error)
	// Commit finalizes an owned reservation with the result payload.
	Commit(ctx context.Context, fingerprint string, resultJSON []byte) error
	// Release abandons an owned reservation after a failed or cancelled run.
	Release(ctx context.Context, fingerprint string) error
}

// MemoryStore is the in-process implementation: the test double, and a
// fast-path hint in front of a SQL store for single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	reserved map[string]struct{}
	records  map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reserved: make(map[string]struct{}),
		records:  make(map[string]Record),
	}
}

func (s *MemoryStore) Reserve(_ context.Context, fp string) (ReserveState, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[fp]; ok {
		return StateCommitted, &rec, nil
	}
	if _, ok := s.reserved[fp]; ok {
		return StateInFlight, nil, nil
	}
	s.reserved[fp] = struct{}{}
	return StateReserved, nil, nil
}

func (s *MemoryStore) Commit(_ context.Context, fp string, resultJSON []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, fp)
	s.records[fp] = Record{Fingerprint: fp, CommittedAt: time.Now().UTC(), ResultJSON: resultJSON}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, fp)
	return nil
}
