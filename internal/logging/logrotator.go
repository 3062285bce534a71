package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogRotator writes to a single date-stamped file at a time, rotating to a
// new file at local (or UTC) midnight and gzip-compressing the file it
// rotates away from. It backs the BaseStation export stream.
type LogRotator struct {
	logDir  string
	prefix  string
	useUTC  bool
	logger  *logrus.Logger
	file    *os.File
	date    string
	mu      sync.RWMutex
	cancel  func()
}

// NewLogRotator creates a log rotator writing "<prefix>_YYYY-MM-DD.log"
// files under logDir, creating logDir if necessary.
func NewLogRotator(logDir string, useUTC bool, logger *logrus.Logger) (*LogRotator, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	r := &LogRotator{
		logDir: logDir,
		prefix: "adsb",
		useUTC: useUTC,
		logger: logger,
		cancel: func() {},
	}

	if err := r.rotateLogFile(); err != nil {
		return nil, fmt.Errorf("open initial log file: %w", err)
	}

	return r, nil
}

func (r *LogRotator) now() time.Time {
	if r.useUTC {
		return time.Now().UTC()
	}
	return time.Now()
}

// Start runs the rotation scheduler until ctx is done. Intended to run in
// its own goroutine.
func (r *LogRotator) Start(ctx interface{ Done() <-chan struct{} }) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkRotation()
		}
	}
}

func (r *LogRotator) checkRotation() {
	today := r.now().Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.date != today {
		if err := r.rotateLogFile(); err != nil {
			r.logger.WithError(err).Error("log rotation failed")
		}
	}
}

// rotateLogFile opens today's file and, if a previous file is open,
// compresses it asynchronously.
func (r *LogRotator) rotateLogFile() error {
	newDate := r.now().Format("2006-01-02")

	if r.file != nil {
		old := r.file
		oldDate := r.date
		if err := old.Close(); err != nil {
			r.logger.WithError(err).Warn("closing rotated log file")
		}
		if oldDate != newDate {
			go r.compressLogFile(oldDate)
		}
	}

	path := filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log", r.prefix, newDate))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	r.file = f
	r.date = newDate
	r.logger.WithField("file", path).Info("log file opened")
	return nil
}

func (r *LogRotator) compressLogFile(date string) {
	src := filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log", r.prefix, date))
	dst := filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log.gz", r.prefix, date))

	if _, err := os.Stat(src); os.IsNotExist(err) {
		return
	}

	in, err := os.Open(src)
	if err != nil {
		r.logger.WithError(err).WithField("file", src).Error("open for compression")
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		r.logger.WithError(err).WithField("file", dst).Error("create compressed file")
		return
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(src)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, in); err != nil {
		r.logger.WithError(err).Error("compress log file")
		return
	}
	if err := gz.Close(); err != nil {
		r.logger.WithError(err).Error("close gzip writer")
		return
	}
	if err := os.Remove(src); err != nil {
		r.logger.WithError(err).WithField("file", src).Error("remove uncompressed log file")
		return
	}

	r.logger.WithField("file", dst).Info("log file compressed")
}

// GetWriter returns the currently open log file for writing.
func (r *LogRotator) GetWriter() (io.Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.file == nil {
		return nil, fmt.Errorf("log rotator is closed")
	}
	return r.file, nil
}

// GetCurrentLogFile returns the path of the file currently being written.
func (r *LogRotator) GetCurrentLogFile() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.date == "" {
		return ""
	}
	return filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log", r.prefix, r.date))
}

// GetLogFiles lists all log files, compressed or not, for this rotator.
func (r *LogRotator) GetLogFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.logDir, r.prefix+"_*.log*"))
	if err != nil {
		return nil, fmt.Errorf("list log files: %w", err)
	}
	return files, nil
}

// CleanupOldLogs removes log files (other than the one currently open)
// whose modification time is older than maxDays.
func (r *LogRotator) CleanupOldLogs(maxDays int) error {
	if maxDays <= 0 {
		return fmt.Errorf("maxDays must be positive")
	}

	files, err := r.GetLogFiles()
	if err != nil {
		return err
	}

	cutoff := r.now().AddDate(0, 0, -maxDays)
	current := r.GetCurrentLogFile()

	removed := 0
	for _, f := range files {
		if f == current {
			continue
		}
		info, err := os.Stat(f)
		if err != nil {
			r.logger.WithError(err).WithField("file", f).Warn("stat log file")
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(f); err != nil {
				r.logger.WithError(err).WithField("file", f).Error("remove old log file")
				continue
			}
			removed++
		}
	}

	r.logger.WithField("count", removed).Info("cleaned up old log files")
	return nil
}

// Close closes the currently open file. It does not stop a running Start
// loop; that loop returns when its own context is done.
func (r *LogRotator) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
