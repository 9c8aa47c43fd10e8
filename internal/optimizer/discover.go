// Package optimizer finds candidate images and drives the transcoder over
// them.
package optimizer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"img-optimize/internal/compressor"
	"img-optimize/internal/filter"
	"img-optimize/internal/metadata"
)

// ErrInputNotFound is returned when the input directory does not exist.
var ErrInputNotFound = errors.New("input directory does not exist")

// DiscoverOptions controls which files Discover returns.
type DiscoverOptions struct {
	Recursive bool
	Skip      *filter.SkipFilter
	// Exclude is a directory never descended into, typically the output
	// directory when it lives inside the input tree.
	Exclude string
}

// Discover lists the images under root whose extension is supported, in
// lexical path order. Without Recursive only the direct children of root
// are considered. An empty result is not an error.
func Discover(root string, opts DiscoverOptions) ([]compressor.ImageFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, root)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInputNotFound, root)
	}

	root = filepath.Clean(root)
	exclude := ""
	if opts.Exclude != "" {
		exclude = filepath.Clean(opts.Exclude)
	}

	seen := make(map[string]struct{})
	var files []compressor.ImageFile

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive || path == exclude {
				return filepath.SkipDir
			}
			return nil
		}

		if !metadata.IsSupportedExtension(path) || opts.Skip.ShouldSkip(path) {
			return nil
		}
		if _, ok := seen[path]; ok {
			return nil
		}

		// Symlinks count when they resolve to a regular file.
		var fi fs.FileInfo
		if d.Type()&fs.ModeSymlink != 0 {
			fi, err = os.Stat(path)
		} else {
			fi, err = d.Info()
		}
		if err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		seen[path] = struct{}{}
		files = append(files, compressor.ImageFile{
			Path:   path,
			Format: metadata.FormatFromExtension(path),
			Size:   fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
