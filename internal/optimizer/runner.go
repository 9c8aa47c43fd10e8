package optimizer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"img-optimize/internal/compressor"
	"img-optimize/internal/statistics"
)

// Progress describes one concluded file. Completed counts concluded files
// so far, in completion order.
type Progress struct {
	Outcome   compressor.Outcome
	Completed int
	Total     int
}

// ProgressFunc is called once per concluded file, never concurrently.
type ProgressFunc func(Progress)

// RunOptions locates a batch on disk.
type RunOptions struct {
	InputRoot  string
	OutputRoot string
	Params     compressor.Params
}

// Runner drives a Transcoder over a set of files.
type Runner struct {
	logger     *logrus.Logger
	transcoder compressor.Transcoder
	stats      *statistics.Statistics
	workers    int
	progress   ProgressFunc
}

// NewRunner returns a new Runner. workers below 1 is treated as 1.
func NewRunner(
	logger *logrus.Logger,
	transcoder compressor.Transcoder,
	stats *statistics.Statistics,
	workers int,
) *Runner {
	if workers < 1 {
		workers = 1
	}
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	return &Runner{
		logger:     logger,
		transcoder: transcoder,
		stats:      stats,
		workers:    workers,
	}
}

// OnProgress registers fn to be called after each file concludes.
func (r *Runner) OnProgress(fn ProgressFunc) {
	r.progress = fn
}

// Stats returns the statistics the runner records into.
func (r *Runner) Stats() *statistics.Statistics {
	return r.stats
}

// Run processes every file and returns the results of those that got
// smaller. With one worker files are handled in the given order; otherwise
// results arrive in completion order. A failing file never stops the run.
func (r *Runner) Run(ctx context.Context, files []compressor.ImageFile, opts RunOptions) []compressor.Result {
	r.stats.SetFilesFound(len(files))
	defer r.stats.Finalize()

	tasks := make([]compressor.Task, len(files))
	for i, f := range files {
		tasks[i] = r.newTask(f, opts)
	}

	var results []compressor.Result
	completed := 0
	collect := func(out compressor.Outcome) {
		completed++
		r.record(out)
		if out.Result != nil {
			results = append(results, *out.Result)
		}
		if r.progress != nil {
			r.progress(Progress{Outcome: out, Completed: completed, Total: len(tasks)})
		}
	}

	if r.workers == 1 || len(tasks) <= 1 {
		for _, task := range tasks {
			collect(r.runOne(ctx, task))
		}
		return results
	}

	r.runPool(ctx, tasks, collect)
	return results
}

// runPool feeds tasks to a fixed set of workers and hands each outcome to
// collect on the calling goroutine.
func (r *Runner) runPool(ctx context.Context, tasks []compressor.Task, collect func(compressor.Outcome)) {
	jobs := make(chan compressor.Task, len(tasks))
	outcomes := make(chan compressor.Outcome, r.workers)

	workers := r.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for task := range jobs {
				outcomes <- r.runOne(ctx, task)
			}
		}()
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		collect(out)
	}
}

// runOne transcodes a single task, turning a panic into a failed outcome.
func (r *Runner) runOne(ctx context.Context, task compressor.Task) compressor.Outcome {
	var out compressor.Outcome
	var pc panics.Catcher
	pc.Try(func() {
		out = r.transcoder.Transcode(ctx, task)
	})
	if rec := pc.Recovered(); rec != nil {
		r.logger.WithField("file", task.File.Path).Debugf("recovered panic: %s", rec.Stack)
		return compressor.Failed(task, fmt.Errorf("panic: %v", rec.Value))
	}
	return out
}

// newTask mirrors the file's position under InputRoot into OutputRoot.
func (r *Runner) newTask(file compressor.ImageFile, opts RunOptions) compressor.Task {
	rel, err := filepath.Rel(opts.InputRoot, file.Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(file.Path)
	}
	return compressor.Task{
		File:        file,
		Destination: filepath.Join(opts.OutputRoot, rel),
		RelPath:     rel,
		Params:      opts.Params,
	}
}

// record updates statistics and reports the outcome on the log.
func (r *Runner) record(out compressor.Outcome) {
	r.stats.IncrementFilesProcessed()
	name := out.Task.RelPath
	entry := r.logger.WithFields(logrus.Fields{
		"file":      out.Task.File.Path,
		"operation": "optimize",
		"status":    out.Status.String(),
	})

	switch out.Status {
	case compressor.StatusOptimized:
		res := out.Result
		r.stats.AddOptimized(res.OriginalSize, res.OptimizedSize)
		r.stats.IncrementFormat(out.Format.String())
		entry.WithFields(logrus.Fields{
			"original_size":  res.OriginalSize,
			"optimized_size": res.OptimizedSize,
		}).Infof("✓ %s: %s → %s (%.1f%% saved)",
			name,
			statistics.FormatSize(res.OriginalSize),
			statistics.FormatSize(res.OptimizedSize),
			statistics.CalculateSavings(res.OriginalSize, res.OptimizedSize))

	case compressor.StatusSkipped:
		r.stats.IncrementFilesSkipped()
		switch out.Reason {
		case compressor.ReasonWouldIncreaseSize:
			entry.Infof("Skipped %s (would increase size)", name)
		case compressor.ReasonUnsupportedFormat:
			entry.Warnf("Skipped %s (unsupported format)", name)
		default:
			entry.Infof("Skipped %s (%s)", name, out.Reason)
		}

	case compressor.StatusFailed:
		r.stats.IncrementFilesWithErrors()
		r.stats.AddError(out.Task.File.Path, "optimize", out.Reason)
		entry.Errorf("✗ %s: %s", name, out.Reason)
	}
}
