// Package retention removes staged files that have outlived the retention
// window.
package retention

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mdconvert/backend/internal/staging"
)

// Sweeper periodically scans staged files and deletes any whose age
// exceeds the retention window, along with their conversion results.
// Deletion goes through the store and is idempotent, so a file the user
// already removed is a no-op for the sweep.
type Sweeper struct {
	store     staging.Store
	uploadDir string
	window    time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewSweeper creates a sweeper with the given retention window and tick
// interval.
func NewSweeper(store staging.Store, uploadDir string, window, interval time.Duration) *Sweeper {
	return NewSweeperWithClock(store, uploadDir, window, interval, time.Now)
}

// NewSweeperWithClock creates a sweeper with an injected clock for tests.
func NewSweeperWithClock(store staging.Store, uploadDir string, window, interval time.Duration, now func() time.Time) *Sweeper {
	return &Sweeper{
		store:     store,
		uploadDir: uploadDir,
		window:    window,
		interval:  interval,
		now:       now,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. It runs
// independently of request handling and never blocks it.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce removes every staged file older than the retention window and
// returns how many were removed. It also clears untracked leftovers in the
// uploads directory, such as files orphaned by a previous run.
func (s *Sweeper) SweepOnce() int {
	cutoff := s.now().Add(-s.window)

	removed := 0
	tracked := make(map[string]bool)
	for _, f := range s.store.List() {
		tracked[f.ID] = true
		if !f.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(f.ID); err != nil {
			log.Printf("[Sweeper] failed to delete expired file %s: %v", f.ID, err)
			continue
		}
		log.Printf("[Sweeper] deleted expired file %s (staged %s ago)", f.ID, s.now().Sub(f.CreatedAt).Round(time.Second))
		removed++
	}

	removed += s.sweepUntracked(cutoff, tracked)
	return removed
}

// sweepUntracked removes stale files in the uploads directory that no
// staged record points at.
func (s *Sweeper) sweepUntracked(cutoff time.Time, tracked map[string]bool) int {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		log.Printf("[Sweeper] failed to scan upload directory: %v", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || tracked[entry.Name()] {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.uploadDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[Sweeper] failed to delete untracked file %s: %v", path, err)
			continue
		}
		log.Printf("[Sweeper] deleted untracked expired file %s", path)
		removed++
	}
	return removed
}
