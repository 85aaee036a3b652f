package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DailyWriter implements io.Writer with date-based rotation. Each calendar
// day gets its own file, <prefix>-YYYY-MM-DD.log; on rollover the oldest
// files beyond maxFiles are removed.
type DailyWriter struct {
	dir      string
	prefix   string
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	curDate string

	// now is swappable for tests.
	now func() time.Time
}

// NewDailyWriter creates a daily-rotating log writer in dir.
func NewDailyWriter(dir, prefix string, maxFiles int) (*DailyWriter, error) {
	if maxFiles <= 0 {
		maxFiles = 14
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	w := &DailyWriter{
		dir:      dir,
		prefix:   prefix,
		maxFiles: maxFiles,
		now:      time.Now,
	}
	if err := w.openCurrent(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer, rotating when the date changes.
func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if date := w.now().Format("2006-01-02"); date != w.curDate {
		if err := w.openLocked(date); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		} else {
			w.pruneLocked()
		}
	}
	return w.file.Write(p)
}

// Sync flushes the current file to disk.
func (w *DailyWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

// Close closes the current file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

func (w *DailyWriter) openCurrent() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openLocked(w.now().Format("2006-01-02"))
}

func (w *DailyWriter) openLocked(date string) error {
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = f
	w.curDate = date
	return nil
}

// pruneLocked removes dated files beyond maxFiles, oldest first.
func (w *DailyWriter) pruneLocked() {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.prefix+"-*.log"))
	if err != nil || len(matches) <= w.maxFiles {
		return
	}
	// Date-stamped names sort chronologically.
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-w.maxFiles] {
		if strings.HasPrefix(filepath.Base(path), w.prefix+"-") {
			_ = os.Remove(path)
		}
	}
}
