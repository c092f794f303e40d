package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/transcriber/internal/metrics"
)

// serviceDirName is the subdirectory of TEMP_DIR that holds upload files.
const serviceDirName = "transcriber"

// ServiceTempDir creates (if needed) and returns the directory this service
// owns under base (os.TempDir() when empty). Only the owner may use it.
func ServiceTempDir(base string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, serviceDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return dir, nil
}

// TempSweeper removes upload files orphaned in the temp directory, e.g. by a
// process killed mid-request. Request-scoped cleanup handles every other case;
// the sweeper only touches files older than maxAge that match its patterns.
type TempSweeper struct {
	dir      string
	patterns []string
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewTempSweeper creates a sweeper for dir (os.TempDir() when empty).
// maxAge must exceed the longest possible request.
func NewTempSweeper(dir string, patterns []string, maxAge, interval time.Duration, log zerolog.Logger) *TempSweeper {
	if dir == "" {
		dir = os.TempDir()
	}
	return &TempSweeper{
		dir:      dir,
		patterns: patterns,
		maxAge:   maxAge,
		interval: interval,
		log:      log.With().Str("component", "temp-sweeper").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *TempSweeper) Start() {
	go s.loop()
}

// Stop ends the sweep loop and waits for a running sweep to finish.
func (s *TempSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *TempSweeper) loop() {
	defer close(s.done)

	// Run once on startup to clear leftovers from a previous crash
	s.Sweep(time.Now())

	if s.interval <= 0 {
		<-s.stop
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.Sweep(now)
		case <-s.stop:
			return
		}
	}
}

// Sweep removes matching files last modified before now-maxAge and returns
// how many were removed.
func (s *TempSweeper) Sweep(now time.Time) int {
	cutoff := now.Add(-s.maxAge)
	var removed int
	var freed int64

	for _, pattern := range s.patterns {
		matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
		if err != nil {
			s.log.Warn().Err(err).Str("pattern", pattern).Msg("bad sweep pattern")
			continue
		}
		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				s.log.Debug().Err(err).Str("path", path).Msg("remove stale temp file")
				continue
			}
			removed++
			freed += info.Size()
		}
	}

	if removed > 0 {
		metrics.TempFilesSwept.Add(float64(removed))
		s.log.Info().
			Int("removed", removed).
			Str("freed", humanizeBytes(freed)).
			Msg("stale temp files removed")
	}
	return removed
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
