package optimizer

import (
	"errors"
	"path/filepath"
	"strings"
)

// DefaultOutputDir is created under the input directory when no output is
// given.
const DefaultOutputDir = "optimized"

// ErrOutputConflict is returned when in-place mode is combined with an
// explicit output directory.
var ErrOutputConflict = errors.New("--in-place and --output cannot be used together")

// Layout is where a batch reads from and writes to.
type Layout struct {
	InputRoot  string
	OutputRoot string
	InPlace    bool
	// Exclude is set when OutputRoot is nested in InputRoot and must not
	// be rediscovered.
	Exclude string
}

// ResolveLayout picks the output root for input. In-place mode writes over
// the sources; otherwise output defaults to <input>/optimized.
func ResolveLayout(input, output string, inPlace bool) (Layout, error) {
	if inPlace && output != "" {
		return Layout{}, ErrOutputConflict
	}

	l := Layout{InputRoot: filepath.Clean(input), InPlace: inPlace}
	switch {
	case inPlace:
		l.OutputRoot = l.InputRoot
		return l, nil
	case output != "":
		l.OutputRoot = filepath.Clean(output)
	default:
		l.OutputRoot = filepath.Join(l.InputRoot, DefaultOutputDir)
	}

	// Expressed under InputRoot so it compares equal to walked paths.
	if rel, ok := relWithin(l.InputRoot, l.OutputRoot); ok {
		l.Exclude = filepath.Join(l.InputRoot, rel)
	}
	return l, nil
}

// relWithin returns path relative to root when it lies strictly below it.
func relWithin(root, path string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
