package main

import (
	"fmt"
	"os"

	"img-optimize/internal/logger"
	"img-optimize/internal/metadata"
	"img-optimize/internal/statistics"

	"github.com/spf13/cobra"
)

// newInspectCmd shows what the optimizer sees in a single file.
func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show format, dimensions and metadata of an image",
		Long: `Decodes the header of a single image and prints its format, dimensions,
size and EXIF orientation. When the exiftool binary is installed every tag
it knows about is listed as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, opts *rootOptions, filePath string) error {
	if info, err := os.Stat(filePath); err != nil || info.IsDir() {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	loggerCfg := logger.DefaultConfig()
	loggerCfg.Console = cmd.ErrOrStderr()
	loggerCfg.Level = "warn"
	if opts.verbose {
		loggerCfg.Level = "debug"
	}
	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		return err
	}

	d, err := metadata.NewInspector(log).Describe(filePath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File: %s\n", d.Path)
	fmt.Fprintf(out, "Format: %s\n", d.Format)
	fmt.Fprintf(out, "Dimensions: %dx%d\n", d.Width, d.Height)
	fmt.Fprintf(out, "Size: %s\n", statistics.FormatSize(d.Size))
	if d.HasExif {
		if d.Orientation > 0 {
			fmt.Fprintf(out, "EXIF: present (orientation %d)\n", d.Orientation)
		} else {
			fmt.Fprintln(out, "EXIF: present")
		}
		if !d.TakenAt.IsZero() {
			fmt.Fprintf(out, "Taken: %s\n", d.TakenAt.Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Fprintln(out, "EXIF: none")
	}

	if len(d.Tags) > 0 {
		fmt.Fprintln(out, "Tags:")
		for _, name := range d.SortedTagNames() {
			fmt.Fprintf(out, "  %s: %v\n", name, d.Tags[name])
		}
	}
	return nil
}
