package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan string, n int, timeout time.Duration) []string {
	t.Helper()
	var got []string
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case p, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, p)
		case <-deadline:
			return got
		}
	}
	return got
}

func TestWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	if err == nil {
		t.Fatal("StartWatcher() error = nil, want error for missing roots")
	}
}

func TestWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sheet.pdf"), []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true})
	if err != nil {
		t.Fatalf("StartWatcher() error = %v", err)
	}

	got := collect(t, paths, 1, 2*time.Second)
	if len(got) != 1 {
		t.Fatalf("initial scan emitted %d paths, want 1", len(got))
	}
	if filepath.Base(got[0]) != "sheet.pdf" {
		t.Errorf("emitted %q, want sheet.pdf (txt filtered)", got[0])
	}
}

// With nobody draining the channel, a scan burst beyond the buffer drops the
// overflow instead of blocking the walk.
func TestWatcherInitialScanOverflowDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The scan runs before StartWatcher returns, so only the buffered path
	// survives.
	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true, Buffer: 1})
	if err != nil {
		t.Fatalf("StartWatcher() error = %v", err)
	}

	got := collect(t, paths, 3, 500*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("emitted %d paths with buffer 1, want exactly 1", len(got))
	}
}

func TestWatcherSeesNewFile(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, Debounce: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("StartWatcher() error = %v", err)
	}

	// Give the watch goroutine a moment before writing.
	time.Sleep(50 * time.Millisecond)
	target := filepath.Join(dir, "incoming.pdf")
	if err := os.WriteFile(target, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := collect(t, paths, 1, 3*time.Second)
	if len(got) != 1 || filepath.Base(got[0]) != "incoming.pdf" {
		t.Fatalf("got %v, want incoming.pdf event", got)
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-paths:
		if ok {
			t.Fatal("received event after cancel, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}
