package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// InFlightPolicy controls what CheckAndReserve does when another submission
// holds the reservation.
type InFlightPolicy int

const (
	// PolicyReturnProcessing surfaces a "processing" outcome immediately.
	PolicyReturnProcessing InFlightPolicy = iota
	// PolicyWait polls briefly for the other run to commit or release.
	PolicyWait
)

// Config for the log wrapper.
type Config struct {
	Policy       InFlightPolicy
	WaitTimeout  time.Duration // PolicyWait: give up after this long, default 30s
	WaitInterval time.Duration // PolicyWait: poll interval, default 500ms
}

// Outcome of CheckAndReserve.
type Outcome struct {
	AlreadyProcessed bool
	Processing       bool    // another submission is mid-flight (PolicyReturnProcessing)
	PriorResult      *Record // set when AlreadyProcessed
	Reserved         bool    // this caller owns the pipeline run
}

// Log wraps a Store with the at-most-once protocol: at most one full pipeline
// execution commits per fingerprint, even under concurrent submission from
// multiple processes.
type Log struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

func NewLog(store Store, cfg Config, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = 500 * time.Millisecond
	}
	return &Log{store: store, cfg: cfg, logger: logger}
}

// CheckAndReserve claims the fingerprint or reports why it cannot. Store
// failures propagate as wrapped ErrStorage: the pipeline fails closed instead
// of running without the dedup guarantee.
func (l *Log) CheckAndReserve(ctx context.Context, fingerprint string) (Outcome, error) {
	state, rec, err := l.store.Reserve(ctx, fingerprint)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: reserve %s: %v", ErrStorage, fingerprint, err)
	}

	switch state {
	case StateCommitted:
		l.logger.Info("idempotency.duplicate", "fingerprint", fingerprint)
		return Outcome{AlreadyProcessed: true, PriorResult: rec}, nil
	case StateReserved:
		return Outcome{Reserved: true}, nil
	}

	// In-flight elsewhere.
	if l.cfg.Policy == PolicyReturnProcessing {
		l.logger.Info("idempotency.in_flight", "fingerprint", fingerprint)
		return Outcome{Processing: true}, nil
	}
	return l.waitForPeer(ctx, fingerprint)
}

// waitForPeer polls until the competing run commits (duplicate), releases
// (we reserve), or the wait budget runs out (processing).
func (l *Log) waitForPeer(ctx context.Context, fingerprint string) (Outcome, error) {
	deadline := time.Now().Add(l.cfg.WaitTimeout)
	ticker := time.NewTicker(l.cfg.WaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-ticker.C:
		}

		state, rec, err := l.store.Reserve(ctx, fingerprint)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: reserve %s: %v", ErrStorage, fingerprint, err)
		}
		switch state {
		case StateCommitted:
			return Outcome{AlreadyProcessed: true, PriorResult: rec}, nil
		case StateReserved:
			return Outcome{Reserved: true}, nil
		}

		if time.Now().After(deadline) {
			l.logger.Warn("idempotency.wait_timeout", "fingerprint", fingerprint)
			return Outcome{Processing: true}, nil
		}
	}
}

// Commit records the completed result for an owned reservation.
func (l *Log) Commit(ctx context.Context, fingerprint string, resultJSON []byte) error {
	if err := l.store.Commit(ctx, fingerprint, resultJSON); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrStorage, fingerprint, err)
	}
	return nil
}

// Release abandons an owned reservation so a later submission can run.
func (l *Log) Release(ctx context.Context, fingerprint string) error {
	if err := l.store.Release(ctx, fingerprint); err != nil {
		return fmt.Errorf("%w: release %s: %v", ErrStorage, fingerprint, err)
	}
	return nil
}
