package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"img-optimize/internal/compressor"
	"img-optimize/internal/config"
	"img-optimize/internal/filter"
	"img-optimize/internal/logger"
	"img-optimize/internal/optimizer"
	"img-optimize/internal/statistics"
	"img-optimize/internal/storage"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// rootOptions holds the raw flag values. Whether a flag was given is read
// from cobra, not from these values.
type rootOptions struct {
	cfgFile   string
	output    string
	quality   int
	recursive bool
	dryRun    bool
	inPlace   bool
	maxWidth  int
	maxHeight int
	workers   int
	logFile   string
	skip      []string
	verbose   bool
	quiet     bool
	s3Bucket  string
	s3Prefix  string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "img-optimize <input-dir>",
		Short: "Batch optimize PNG, JPEG and WebP images",
		Long: `img-optimize re-encodes every image in a directory into a smaller
equivalent, optionally resizing it, and reports how much space was saved.

Features:
- PNG (lossless), JPEG/MPO and WebP (lossy) re-encoding
- Bounded resize with a Lanczos filter
- Files that would grow are left untouched
- EXIF block of JPEG files kept verbatim
- Parallel workers, dry-run and in-place modes
- YAML config file and skip globs`,
		Args:          cobra.ExactArgs(1),
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, opts, args[0])
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./.img-optimize.yaml, then $HOME)")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&opts.s3Bucket, "s3-bucket", "", "also upload optimized files to this S3 bucket")
	rootCmd.PersistentFlags().StringVar(&opts.s3Prefix, "s3-prefix", "", "key prefix for S3 uploads")

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output directory (default: <input-dir>/optimized)")
	flags.IntVarP(&opts.quality, "quality", "q", config.DefaultQuality, "JPEG/WebP quality (1-100)")
	flags.BoolVarP(&opts.recursive, "recursive", "r", false, "process subdirectories")
	flags.BoolVarP(&opts.dryRun, "dry-run", "d", false, "report savings without writing files")
	flags.BoolVar(&opts.inPlace, "in-place", false, "overwrite the original files")
	flags.IntVar(&opts.maxWidth, "max-width", 0, "maximum output width in pixels")
	flags.IntVar(&opts.maxHeight, "max-height", 0, "maximum output height in pixels")
	flags.IntVarP(&opts.workers, "workers", "w", config.DefaultWorkers, "number of parallel workers")
	flags.StringVar(&opts.logFile, "log-file", "", "also write a JSON log to this file")
	flags.StringArrayVar(&opts.skip, "skip", nil, "glob of files to skip (repeatable)")

	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	return rootCmd
}

// runOptimize executes a full batch for inputDir.
func runOptimize(cmd *cobra.Command, opts *rootOptions, inputDir string) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if info, err := os.Stat(inputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", optimizer.ErrInputNotFound, inputDir)
	}

	layout, err := optimizer.ResolveLayout(inputDir, opts.output, opts.inPlace)
	if errors.Is(err, optimizer.ErrOutputConflict) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}

	fileCfg, err := config.LoadFile(opts.cfgFile)
	if err != nil {
		return err
	}

	effective, err := config.Merge(config.Defaults(), fileCfg, overridesFromFlags(cmd, opts))
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	recursive := opts.recursive
	if !cmd.Flags().Changed("recursive") && fileCfg.Recursive != nil {
		recursive = *fileCfg.Recursive
	}

	log, err := setupLogger(opts, fileCfg, stdout, cmd.Flags().Changed("log-file"))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logger.CloseHooks(log)

	sink, err := buildSink(cmd.Context(), cmd, opts, fileCfg)
	if err != nil {
		return err
	}

	if layout.InPlace {
		log.Info("IN-PLACE MODE - original files will be overwritten")
	}
	if opts.dryRun {
		log.Info("DRY RUN MODE - No files will be saved")
	}

	skip := filter.New(effective.Skip)
	if patterns := skip.Patterns(); len(patterns) > 0 {
		log.Debugf("Skip patterns: %v", patterns)
	}

	files, err := optimizer.Discover(layout.InputRoot, optimizer.DiscoverOptions{
		Recursive: recursive,
		Skip:      skip,
		Exclude:   layout.Exclude,
	})
	if err != nil {
		return err
	}

	if len(files) == 0 {
		log.Info("No image files found.")
		return nil
	}

	log.Infof("Found %d images to process", len(files))
	if effective.Workers > 1 {
		log.Infof("Using %d parallel workers", effective.Workers)
	}

	stats := statistics.NewStatistics()
	runner := optimizer.NewRunner(log, compressor.NewDefaultCompressor(log, sink), stats, effective.Workers)

	if !opts.quiet {
		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("Optimizing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "#",
				SaucerPadding: "-",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		runner.OnProgress(func(p optimizer.Progress) {
			_ = bar.Add(1)
		})
	}

	runner.Run(contextOrBackground(cmd.Context()), files, optimizer.RunOptions{
		InputRoot:  layout.InputRoot,
		OutputRoot: layout.OutputRoot,
		Params: compressor.Params{
			Quality:   effective.Quality,
			MaxWidth:  effective.MaxWidth,
			MaxHeight: effective.MaxHeight,
			DryRun:    opts.dryRun,
		},
	})

	if !opts.quiet {
		printSummary(stdout, stats)
	}
	log.WithFields(logrus.Fields{
		"processed": stats.Summary().ProcessedCount,
		"skipped":   stats.GetFilesSkipped(),
		"failed":    stats.GetFilesWithErrors(),
	}).Debug(stats.GetSummary())
	return nil
}

// overridesFromFlags collects the flags the user actually passed.
func overridesFromFlags(cmd *cobra.Command, opts *rootOptions) config.Overrides {
	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("quality") {
		o.Quality = &opts.quality
	}
	if flags.Changed("max-width") {
		o.MaxWidth = &opts.maxWidth
	}
	if flags.Changed("max-height") {
		o.MaxHeight = &opts.maxHeight
	}
	if flags.Changed("workers") {
		o.Workers = &opts.workers
	}
	if flags.Changed("skip") {
		o.Skip = append([]string{}, opts.skip...)
	}
	return o
}

// setupLogger configures and returns a logger writing plain lines to console.
func setupLogger(opts *rootOptions, fileCfg *config.FileConfig, console io.Writer, logFileChanged bool) (*logrus.Logger, error) {
	loggerCfg := logger.DefaultConfig()
	loggerCfg.Console = console

	if fileCfg != nil {
		if fileCfg.LogLevel != "" {
			loggerCfg.Level = fileCfg.LogLevel
		}
		loggerCfg.FilePath = fileCfg.LogFile
	}
	if logFileChanged {
		loggerCfg.FilePath = opts.logFile
	}

	if opts.verbose {
		loggerCfg.Level = "debug"
	}
	if opts.quiet {
		loggerCfg.Level = "error"
	}

	return logger.NewLogger(loggerCfg)
}

// buildSink returns the local sink, mirrored to S3 when a bucket is set.
func buildSink(ctx context.Context, cmd *cobra.Command, opts *rootOptions, fileCfg *config.FileConfig) (storage.Sink, error) {
	bucket, prefix, region := "", "", ""
	if fileCfg != nil {
		bucket, prefix, region = fileCfg.S3.Bucket, fileCfg.S3.Prefix, fileCfg.S3.Region
	}
	if cmd.Flags().Changed("s3-bucket") {
		bucket = opts.s3Bucket
	}
	if cmd.Flags().Changed("s3-prefix") {
		prefix = opts.s3Prefix
	}

	local := storage.NewLocalSink()
	if bucket == "" {
		return local, nil
	}

	s3Sink, err := storage.NewS3Sink(contextOrBackground(ctx), bucket, prefix, region)
	if err != nil {
		return nil, fmt.Errorf("failed to configure S3 upload: %w", err)
	}
	return storage.MultiSink{local, s3Sink}, nil
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, stats *statistics.Statistics) {
	sum := stats.Summary()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Processed: %d images\n", sum.ProcessedCount)
	fmt.Fprintf(w, "  Total original size: %s\n", statistics.FormatSize(sum.TotalOriginalBytes))
	fmt.Fprintf(w, "  Total optimized size: %s\n", statistics.FormatSize(sum.TotalOptimizedBytes))
	fmt.Fprintf(w, "  Total saved: %s (%.1f%%)\n", statistics.FormatSize(sum.SavedBytes()), sum.SavingsPercent())
	if skipped := stats.GetFilesSkipped(); skipped > 0 {
		fmt.Fprintf(w, "  Skipped: %d images\n", skipped)
	}
	if failed := stats.GetFilesWithErrors(); failed > 0 {
		fmt.Fprintf(w, "  Failed: %d images\n", failed)
		fmt.Fprint(w, stats.GetErrorSummary())
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
