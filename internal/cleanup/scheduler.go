package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Scheduler periodically removes stale compression temp files. A crash
// between compressing and renaming leaves an orphaned temp MP3 behind; this
// keeps the temp directory from accumulating them.
type Scheduler struct {
	tempDir  string
	prefix   string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
}

func NewScheduler(tempDir, prefix string, interval, maxAge time.Duration) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		prefix:   prefix,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
	}
}

// Start runs one cleanup pass immediately, then repeats on the interval.
func (s *Scheduler) Start() {
	s.pruneStale()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.pruneStale()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %s, max age: %s)", s.interval, s.maxAge)
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}

// pruneStale removes matching temp files older than maxAge.
func (s *Scheduler) pruneStale() {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		log.Printf("Cleanup: failed to read temp dir: %v", err)
		return
	}

	now := time.Now()
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("Cleanup: failed to delete %s: %v", path, err)
			continue
		}
		deleted++
		log.Printf("Cleanup: deleted stale temp file %s", entry.Name())
	}

	if deleted > 0 {
		log.Printf("Cleanup complete: %d stale files deleted", deleted)
	}
}
