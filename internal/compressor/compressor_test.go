package compressor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/sirupsen/logrus"

	"img-optimize/internal/metadata"
	"img-optimize/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func noisyImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	return img
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image, level png.CompressionLevel) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func newTask(src, dst string, params Params) Task {
	return Task{
		File:        ImageFile{Path: src, Format: metadata.FormatFromExtension(src)},
		Destination: dst,
		RelPath:     filepath.Base(dst),
		Params:      params,
	}
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name                 string
		w, h, maxW, maxH     int
		expectedW, expectedH int
		expectedChanged      bool
	}{
		{name: "no bounds", w: 10, h: 10, expectedW: 10, expectedH: 10},
		{name: "within bounds", w: 100, h: 50, maxW: 200, maxH: 200, expectedW: 100, expectedH: 50},
		{name: "width binds", w: 200, h: 100, maxW: 50, expectedW: 50, expectedH: 25, expectedChanged: true},
		{name: "height binds", w: 100, h: 400, maxW: 200, maxH: 100, expectedW: 25, expectedH: 100, expectedChanged: true},
		{name: "width then height", w: 400, h: 300, maxW: 200, maxH: 50, expectedW: 67, expectedH: 50, expectedChanged: true},
		{name: "width resize satisfies height", w: 1000, h: 500, maxW: 800, maxH: 600, expectedW: 800, expectedH: 400, expectedChanged: true},
		{name: "rounding", w: 333, h: 100, maxW: 100, expectedW: 100, expectedH: 30, expectedChanged: true},
		{name: "never below one pixel", w: 1000, h: 1, maxW: 10, expectedW: 10, expectedH: 1, expectedChanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, changed := fitDimensions(tt.w, tt.h, tt.maxW, tt.maxH)
			if w != tt.expectedW || h != tt.expectedH || changed != tt.expectedChanged {
				t.Errorf("fitDimensions(%d, %d, %d, %d) = (%d, %d, %v), want (%d, %d, %v)",
					tt.w, tt.h, tt.maxW, tt.maxH, w, h, changed, tt.expectedW, tt.expectedH, tt.expectedChanged)
			}
		})
	}
}

func TestFlattenOpaque(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 200, B: 10, A: 128})

	flat := flattenOpaque(img)
	for x := 0; x < 2; x++ {
		_, _, _, a := flat.At(x, 0).RGBA()
		if a != 0xFFFF {
			t.Errorf("Pixel %d not opaque: alpha %d", x, a)
		}
	}
	if img.NRGBAAt(0, 0).A != 0 {
		t.Error("flattenOpaque modified its input")
	}
}

func TestTranscode_JPEG(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "photo.jpg", encodeJPEG(t, noisyImage(64, 64, 1), 100))
	dst := filepath.Join(dir, "out", "photo.jpg")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 85}))

	if out.Status != StatusOptimized {
		t.Fatalf("Expected optimized, got %s (%s)", out.Status, out.Reason)
	}
	if out.Format != metadata.FormatJPEG {
		t.Errorf("Expected JPEG, got %s", out.Format)
	}
	if out.Result.OptimizedSize >= out.Result.OriginalSize {
		t.Errorf("Expected smaller result, got %d >= %d", out.Result.OptimizedSize, out.Result.OriginalSize)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("Destination not written: %v", err)
	}
	if info.Size() != out.Result.OptimizedSize {
		t.Errorf("Destination size %d, reported %d", info.Size(), out.Result.OptimizedSize)
	}
}

func TestTranscode_JPEGKeepsExif(t *testing.T) {
	dir := t.TempDir()
	block := []byte("Exif\x00\x00")
	block = append(block,
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	)
	data, err := metadata.InsertExif(encodeJPEG(t, noisyImage(64, 64, 2), 100), block)
	if err != nil {
		t.Fatalf("InsertExif failed: %v", err)
	}
	src := writeFile(t, dir, "rotated.jpg", data)
	dst := filepath.Join(dir, "out", "rotated.jpg")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 80}))
	if out.Status != StatusOptimized {
		t.Fatalf("Expected optimized, got %s (%s)", out.Status, out.Reason)
	}

	written, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Failed to read result: %v", err)
	}
	if !bytes.Equal(metadata.ExifBlock(written), block) {
		t.Fatal("EXIF block not preserved verbatim")
	}
	if o, err := metadata.Orientation(metadata.ExifBlock(written)); err != nil || o != 6 {
		t.Errorf("Expected orientation 6, got %d (%v)", o, err)
	}
}

func TestTranscode_MPO(t *testing.T) {
	dir := t.TempDir()
	block := []byte("Exif\x00\x00")
	block = append(block,
		'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08,
		0x00, 0x01,
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x03, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	)
	withExif, err := metadata.InsertExif(encodeJPEG(t, noisyImage(64, 64, 5), 100), block)
	if err != nil {
		t.Fatalf("InsertExif failed: %v", err)
	}

	// APP2 "MPF" segment right after SOI marks the file as a multi-picture
	// object.
	mpf := []byte{'M', 'P', 'F', 0x00, 'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08}
	length := len(mpf) + 2
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE2, byte(length >> 8), byte(length)}, mpf...)
	data = append(data, withExif[2:]...)
	if !metadata.IsMPO(data) {
		t.Fatal("Fixture not recognised as MPO")
	}

	src := writeFile(t, dir, "stereo.jpg", data)
	dst := filepath.Join(dir, "out", "stereo.jpg")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 80}))
	if out.Status != StatusOptimized {
		t.Fatalf("Expected optimized, got %s (%s)", out.Status, out.Reason)
	}
	if out.Format != metadata.FormatMPO {
		t.Errorf("Expected MPO, got %s", out.Format)
	}

	written, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Failed to read result: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(written)); err != nil {
		t.Errorf("Output is not a JPEG: %v", err)
	}
	if !bytes.Equal(metadata.ExifBlock(written), block) {
		t.Error("EXIF block not preserved verbatim")
	}
}

func TestTranscode_PNG(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "art.png", encodePNG(t, gradientImage(128, 128), png.NoCompression))
	dst := filepath.Join(dir, "out", "art.png")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 85}))
	if out.Status != StatusOptimized {
		t.Fatalf("Expected optimized, got %s (%s)", out.Status, out.Reason)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("Destination not written: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Result is not a PNG: %v", err)
	}
	// Lossless: every pixel survives.
	want := gradientImage(128, 128)
	for _, p := range []image.Point{{0, 0}, {127, 0}, {64, 100}, {127, 127}} {
		r1, g1, b1, _ := decoded.At(p.X, p.Y).RGBA()
		r2, g2, b2, _ := want.At(p.X, p.Y).RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 {
			t.Errorf("Pixel %v changed", p)
		}
	}
}

func TestTranscode_WebP(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, noisyImage(64, 64, 3), &webp.Options{Lossless: true}); err != nil {
		t.Fatalf("Failed to encode WebP: %v", err)
	}
	src := writeFile(t, dir, "pic.webp", buf.Bytes())
	dst := filepath.Join(dir, "out", "pic.webp")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 75}))
	if out.Status != StatusOptimized {
		t.Fatalf("Expected optimized, got %s (%s)", out.Status, out.Reason)
	}
	if out.Format != metadata.FormatWEBP {
		t.Errorf("Expected WEBP, got %s", out.Format)
	}
}

func TestTranscode_ResizeByWidth(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "wide.png", encodePNG(t, gradientImage(200, 100), png.NoCompression))
	dst := filepath.Join(dir, "out", "wide.png")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 85, MaxWidth: 50}))
	if out.Status != StatusOptimized {
		t.Fatalf("Expected optimized, got %s (%s)", out.Status, out.Reason)
	}
	if out.Width != 50 || out.Height != 25 {
		t.Errorf("Expected 50x25, got %dx%d", out.Width, out.Height)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("Destination not written: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("Written image is %dx%d, want 50x25", cfg.Width, cfg.Height)
	}
}

func TestTranscode_WouldIncreaseSize(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "tight.png", encodePNG(t, gradientImage(64, 64), png.BestCompression))
	dst := filepath.Join(dir, "out", "tight.png")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 85}))

	if out.Status != StatusSkipped || out.Reason != ReasonWouldIncreaseSize {
		t.Fatalf("Expected skipped (%s), got %s (%s)", ReasonWouldIncreaseSize, out.Status, out.Reason)
	}
	if out.Result != nil {
		t.Error("Skipped outcome carries a result")
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("Output directory created for skipped file")
	}
}

func TestTranscode_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, gradientImage(8, 8), nil); err != nil {
		t.Fatalf("Failed to encode GIF: %v", err)
	}

	for _, name := range []string{"anim.gif", "disguised.png"} {
		t.Run(name, func(t *testing.T) {
			src := writeFile(t, dir, name, buf.Bytes())
			c := NewDefaultCompressor(testLogger(), nil)
			out := c.Transcode(context.Background(), newTask(src, filepath.Join(dir, "out", name), Params{Quality: 85}))
			if out.Status != StatusSkipped || out.Reason != ReasonUnsupportedFormat {
				t.Errorf("Expected skipped (%s), got %s (%s)", ReasonUnsupportedFormat, out.Status, out.Reason)
			}
		})
	}
}

func TestTranscode_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "broken.jpg", []byte("definitely not a jpeg"))

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, filepath.Join(dir, "out", "broken.jpg"), Params{Quality: 85}))
	if out.Status != StatusFailed {
		t.Fatalf("Expected failed, got %s", out.Status)
	}
	if out.Err == nil || out.Reason == "" {
		t.Error("Failed outcome without error details")
	}
}

func TestTranscode_MissingFile(t *testing.T) {
	dir := t.TempDir()
	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(filepath.Join(dir, "gone.png"), filepath.Join(dir, "out.png"), Params{Quality: 85}))
	if out.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", out.Status)
	}
}

func TestTranscode_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "photo.jpg", encodeJPEG(t, noisyImage(64, 64, 4), 100))
	dst := filepath.Join(dir, "out", "photo.jpg")

	c := NewDefaultCompressor(testLogger(), nil)
	out := c.Transcode(context.Background(), newTask(src, dst, Params{Quality: 85, DryRun: true}))
	if out.Status != StatusOptimized || out.Result == nil {
		t.Fatalf("Expected optimized result in dry run, got %s (%s)", out.Status, out.Reason)
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("Dry run created output")
	}
}

type failingSink struct{}

func (failingSink) Put(ctx context.Context, obj storage.Object) error {
	return errors.New("disk full")
}

func TestTranscode_SinkFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "photo.jpg", encodeJPEG(t, noisyImage(64, 64, 5), 100))

	c := NewDefaultCompressor(testLogger(), failingSink{})
	out := c.Transcode(context.Background(), newTask(src, filepath.Join(dir, "out", "photo.jpg"), Params{Quality: 85}))
	if out.Status != StatusFailed {
		t.Fatalf("Expected failed, got %s", out.Status)
	}
	if out.Result != nil {
		t.Error("Failed outcome carries a result")
	}
}

func TestStatus_String(t *testing.T) {
	if StatusOptimized.String() != "optimized" || StatusSkipped.String() != "skipped" || StatusFailed.String() != "failed" {
		t.Error("Unexpected status names")
	}
	if Status(42).String() != "unknown" {
		t.Error("Expected unknown for out-of-range status")
	}
}
