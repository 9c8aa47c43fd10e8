package statistics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Statistics contains the live counters of an optimization run.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesOptimized      int64
	FilesSkipped        int64
	FilesWithErrors     int64

	TotalOriginalBytes  int64
	TotalOptimizedBytes int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex

	FormatStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// SetFilesFound records how many candidate files the run was started with.
func (s *Statistics) SetFilesFound(n int) {
	atomic.StoreInt64(&s.TotalFilesFound, int64(n))
}

// IncrementFilesProcessed increases the count of concluded files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesWithErrors increases the count of failed files by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// IncrementFormat increases the count for a specific image format by 1.
func (s *Statistics) IncrementFormat(format string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FormatStats[format]++
}

// AddOptimized records one file whose re-encoded size beat the original.
func (s *Statistics) AddOptimized(originalSize, optimizedSize int64) {
	atomic.AddInt64(&s.FilesOptimized, 1)
	atomic.AddInt64(&s.TotalOriginalBytes, originalSize)
	atomic.AddInt64(&s.TotalOptimizedBytes, optimizedSize)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// Summary returns the BatchSummary view of the optimized files.
func (s *Statistics) Summary() BatchSummary {
	return BatchSummary{
		ProcessedCount:      int(atomic.LoadInt64(&s.FilesOptimized)),
		TotalOriginalBytes:  atomic.LoadInt64(&s.TotalOriginalBytes),
		TotalOptimizedBytes: atomic.LoadInt64(&s.TotalOptimizedBytes),
	}
}

// GetSummary returns a formatted summary of the run counters.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	rate := s.FilesPerSecond
	s.mutex.RUnlock()

	sum := s.Summary()
	return fmt.Sprintf(`Image Optimization Statistics:

Files:
		Found: %s
		Concluded: %s
		Optimized: %s
		Skipped: %s
		Errors: %s

Sizes:
		Original: %s
		Optimized: %s
		Saved: %s (%.1f%%)

Performance:
		Duration: %v
		Files/Second: %.2f`,
		humanize.Comma(atomic.LoadInt64(&s.TotalFilesFound)),
		humanize.Comma(atomic.LoadInt64(&s.TotalFilesProcessed)),
		humanize.Comma(atomic.LoadInt64(&s.FilesOptimized)),
		humanize.Comma(atomic.LoadInt64(&s.FilesSkipped)),
		humanize.Comma(atomic.LoadInt64(&s.FilesWithErrors)),
		FormatSize(sum.TotalOriginalBytes),
		FormatSize(sum.TotalOptimizedBytes),
		FormatSize(sum.SavedBytes()),
		sum.SavingsPercent(),
		duration,
		rate)
}

// GetFormatBreakdown returns a formatted breakdown of formats seen.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	var b strings.Builder
	b.WriteString("Format Breakdown:\n")
	for format, count := range s.FormatStats {
		fmt.Fprintf(&b, "  %s: %d\n", format, count)
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// GetFilesWithErrors returns the total number of files with errors.
func (s *Statistics) GetFilesWithErrors() int64 {
	return atomic.LoadInt64(&s.FilesWithErrors)
}

// GetFilesSkipped returns the total number of skipped files.
func (s *Statistics) GetFilesSkipped() int64 {
	return atomic.LoadInt64(&s.FilesSkipped)
}

// GetDuration returns the total duration of the run.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
