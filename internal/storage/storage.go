// Package storage writes optimized image bytes to their destinations.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/djherbis/times"
)

// Object is one encoded image ready to be stored.
type Object struct {
	// Path is the local destination path.
	Path string
	// Key is the destination path relative to the output root, using the
	// host separator.
	Key string
	// Source is the original file; its mode and timestamps are carried over.
	Source string
	Data   []byte
}

// Sink stores encoded images.
type Sink interface {
	Put(ctx context.Context, obj Object) error
}

// MultiSink stores an object in every sink in order and stops at the first
// failure.
type MultiSink []Sink

// Put implements Sink.
func (m MultiSink) Put(ctx context.Context, obj Object) error {
	for _, s := range m {
		if err := s.Put(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// LocalSink writes objects to the local filesystem.
type LocalSink struct{}

// NewLocalSink returns a new LocalSink.
func NewLocalSink() *LocalSink {
	return &LocalSink{}
}

// Put writes obj.Data to obj.Path through a temporary file, creating parent
// directories, then copies the source's access and modification times onto
// the result. Source attributes are read before writing so an in-place
// destination still receives the original times.
func (s *LocalSink) Put(ctx context.Context, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mode := os.FileMode(0644)
	var atime, mtime time.Time
	if obj.Source != "" {
		info, err := os.Stat(obj.Source)
		if err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
		mode = info.Mode().Perm()
		ts, err := times.Stat(obj.Source)
		if err != nil {
			return fmt.Errorf("read source times: %w", err)
		}
		atime, mtime = ts.AccessTime(), ts.ModTime()
	}

	if err := os.MkdirAll(filepath.Dir(obj.Path), 0755); err != nil {
		return fmt.Errorf("mkdir error: %w", err)
	}

	tmpPath := obj.Path + ".tmp"
	if err := os.WriteFile(tmpPath, obj.Data, mode); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write tmp file error: %w", err)
	}
	if err := os.Rename(tmpPath, obj.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename error: %w", err)
	}

	if !mtime.IsZero() {
		if err := os.Chtimes(obj.Path, atime, mtime); err != nil {
			return fmt.Errorf("copy timestamps: %w", err)
		}
	}
	return nil
}
