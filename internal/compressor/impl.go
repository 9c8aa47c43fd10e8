package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"img-optimize/internal/logger"
	"img-optimize/internal/metadata"
	"img-optimize/internal/storage"
)

// DefaultCompressor is the default implementation of the Transcoder
// interface.
type DefaultCompressor struct {
	log  *logrus.Logger
	sink storage.Sink
}

// NewDefaultCompressor creates a new DefaultCompressor that hands encoded
// results to sink. A nil sink defaults to the local filesystem.
func NewDefaultCompressor(log *logrus.Logger, sink storage.Sink) *DefaultCompressor {
	if sink == nil {
		sink = storage.NewLocalSink()
	}
	return &DefaultCompressor{log: log, sink: sink}
}

// Transcode re-encodes a single file and decides whether to keep the result.
func (c *DefaultCompressor) Transcode(ctx context.Context, task Task) Outcome {
	out := Outcome{
		Task:      task,
		StartedAt: time.Now(),
	}
	entry := logger.WithFileOperation(c.log, task.File.Path, "transcode")

	finish := func(status Status, reason string, err error) Outcome {
		out.Status = status
		out.Reason = reason
		out.Err = err
		out.FinishedAt = time.Now()
		return out
	}
	fail := func(err error) Outcome {
		entry.WithError(err).Debug("transcode failed")
		return finish(StatusFailed, err.Error(), err)
	}

	data, err := os.ReadFile(task.File.Path)
	if err != nil {
		return fail(fmt.Errorf("read error: %w", err))
	}
	originalSize := int64(len(data))

	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) && !task.File.Format.IsSupported() {
			return finish(StatusSkipped, ReasonUnsupportedFormat, nil)
		}
		return fail(fmt.Errorf("decode error: %w", err))
	}

	format := metadata.FormatFromName(name)
	if name == "" {
		format = metadata.FormatFromExtension(task.File.Path)
	}
	if format == metadata.FormatJPEG && metadata.IsMPO(data) {
		format = metadata.FormatMPO
	}
	out.Format = format
	if !format.IsSupported() {
		entry.WithField("decoder", name).Debug("unsupported format")
		return finish(StatusSkipped, ReasonUnsupportedFormat, nil)
	}

	img, resized := resizeToFit(img, task.Params.MaxWidth, task.Params.MaxHeight)
	b := img.Bounds()
	out.Width, out.Height = b.Dx(), b.Dy()
	if resized {
		entry.WithFields(logrus.Fields{
			"width":  out.Width,
			"height": out.Height,
		}).Debug("resized")
	}

	encoded, err := c.encode(img, format, task.Params.Quality, data)
	if err != nil {
		return fail(fmt.Errorf("encode error: %w", err))
	}

	optimizedSize := int64(len(encoded))
	if optimizedSize >= originalSize {
		entry.WithFields(logrus.Fields{
			"original_size":  originalSize,
			"optimized_size": optimizedSize,
		}).Debug("result not smaller, discarded")
		return finish(StatusSkipped, ReasonWouldIncreaseSize, nil)
	}

	if !task.Params.DryRun {
		obj := storage.Object{
			Path:   task.Destination,
			Key:    task.RelPath,
			Source: task.File.Path,
			Data:   encoded,
		}
		if err := c.sink.Put(ctx, obj); err != nil {
			return fail(fmt.Errorf("write error: %w", err))
		}
	}

	out.Result = &Result{
		SourcePath:    task.File.Path,
		OriginalSize:  originalSize,
		OptimizedSize: optimizedSize,
	}
	return finish(StatusOptimized, "", nil)
}

// encode re-encodes img in memory. original is the source file, used to
// carry the EXIF block over to JPEG output.
func (c *DefaultCompressor) encode(img image.Image, format metadata.Format, quality int, original []byte) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case metadata.FormatPNG:
		err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case metadata.FormatWEBP:
		// chai2010/webp exposes no encoding effort setting; only quality applies.
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case metadata.FormatJPEG, metadata.FormatMPO:
		// image/jpeg has no optimized Huffman tables; only quality applies.
		err := imaging.Encode(&buf, flattenOpaque(img), imaging.JPEG, imaging.JPEGQuality(quality))
		if err != nil {
			return nil, err
		}
		encoded := buf.Bytes()
		block := metadata.ExifBlock(original)
		if block == nil {
			return encoded, nil
		}
		withExif, err := metadata.InsertExif(encoded, block)
		if err != nil {
			c.log.WithError(err).Warn("exif not preserved")
			return encoded, nil
		}
		return withExif, nil

	default:
		return nil, fmt.Errorf("no encoder for %s", format)
	}
}
