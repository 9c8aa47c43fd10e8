package metadata

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// orientationExif builds a minimal little-endian EXIF block holding only
// an Orientation tag.
func orientationExif(orientation byte) []byte {
	block := append([]byte(nil), exifHeader...)
	block = append(block,
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00, // TIFF header, IFD0 at 8
		0x01, 0x00, // one entry
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, orientation, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no next IFD
	)
	return block
}

func encodeTestJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestFormatFromExtension(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
	}{
		{"a.png", FormatPNG},
		{"a.PNG", FormatPNG},
		{"a.jpg", FormatJPEG},
		{"a.JPEG", FormatJPEG},
		{"a.webp", FormatWEBP},
		{"a.WebP", FormatWEBP},
		{"a.gif", FormatUnknown},
		{"noext", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FormatFromExtension(tt.path); got != tt.expected {
				t.Errorf("FormatFromExtension(%q) = %v, want %v", tt.path, got, tt.expected)
			}
			if IsSupportedExtension(tt.path) != (tt.expected != FormatUnknown) {
				t.Errorf("IsSupportedExtension(%q) disagrees with FormatFromExtension", tt.path)
			}
		})
	}
}

func TestFormatFromName(t *testing.T) {
	tests := map[string]Format{
		"png":  FormatPNG,
		"jpeg": FormatJPEG,
		"webp": FormatWEBP,
		"MPO":  FormatMPO,
		"gif":  FormatUnknown,
		"":     FormatUnknown,
	}
	for name, expected := range tests {
		if got := FormatFromName(name); got != expected {
			t.Errorf("FormatFromName(%q) = %v, want %v", name, got, expected)
		}
	}
}

func TestFormat_Properties(t *testing.T) {
	if FormatUnknown.IsSupported() {
		t.Error("Unknown format must not be supported")
	}
	if FormatWEBP.String() != "WEBP" || FormatUnknown.String() != "Unknown" {
		t.Error("Unexpected String results")
	}
}

func TestScanSegments_NotJPEG(t *testing.T) {
	if _, err := ScanSegments([]byte("not a real image")); err != ErrNotJPEG {
		t.Errorf("Expected ErrNotJPEG, got %v", err)
	}
}

func TestInsertExif_RoundTrip(t *testing.T) {
	data := encodeTestJPEG(t)
	if ExifBlock(data) != nil {
		t.Fatal("Fresh encoder output should carry no EXIF")
	}

	block := orientationExif(6)
	withExif, err := InsertExif(data, block)
	if err != nil {
		t.Fatalf("InsertExif failed: %v", err)
	}

	got := ExifBlock(withExif)
	if !bytes.Equal(got, block) {
		t.Fatalf("EXIF block not preserved verbatim:\n got %x\nwant %x", got, block)
	}

	if _, err := jpeg.Decode(bytes.NewReader(withExif)); err != nil {
		t.Errorf("JPEG with inserted EXIF no longer decodes: %v", err)
	}

	o, err := Orientation(got)
	if err != nil {
		t.Fatalf("Orientation failed: %v", err)
	}
	if o != 6 {
		t.Errorf("Expected orientation 6, got %d", o)
	}
}

func TestInsertExif_ReplacesExisting(t *testing.T) {
	data := encodeTestJPEG(t)
	first, err := InsertExif(data, orientationExif(3))
	if err != nil {
		t.Fatalf("InsertExif failed: %v", err)
	}
	second, err := InsertExif(first, orientationExif(8))
	if err != nil {
		t.Fatalf("InsertExif failed: %v", err)
	}

	count := 0
	segments, err := ScanSegments(second)
	if err != nil {
		t.Fatalf("ScanSegments failed: %v", err)
	}
	for _, s := range segments {
		if s.Marker == markerAPP1 && bytes.HasPrefix(s.Payload, exifHeader) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one EXIF segment, got %d", count)
	}
	if o, _ := Orientation(ExifBlock(second)); o != 8 {
		t.Errorf("Expected orientation 8, got %d", o)
	}
}

func TestInsertExif_TooLarge(t *testing.T) {
	data := encodeTestJPEG(t)
	if _, err := InsertExif(data, make([]byte, maxSegmentPayload+1)); err == nil {
		t.Error("Expected error for oversized EXIF block")
	}
}

func TestIsMPO(t *testing.T) {
	data := encodeTestJPEG(t)
	if IsMPO(data) {
		t.Fatal("Plain JPEG reported as MPO")
	}

	payload := append([]byte(nil), mpfHeader...)
	payload = append(payload, 'M', 'M', 0x00, 0x2A)
	length := len(payload) + 2
	mpo := append([]byte{0xFF, markerSOI, 0xFF, markerAPP2, byte(length >> 8), byte(length)}, payload...)
	mpo = append(mpo, data[2:]...)

	if !IsMPO(mpo) {
		t.Error("Expected APP2 MPF segment to be detected as MPO")
	}
}

func TestInspector_Describe(t *testing.T) {
	dir := t.TempDir()
	data, err := InsertExif(encodeTestJPEG(t), orientationExif(6))
	if err != nil {
		t.Fatalf("InsertExif failed: %v", err)
	}
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	d, err := NewInspector(log).Describe(path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	if d.Format != FormatJPEG {
		t.Errorf("Expected JPEG, got %v", d.Format)
	}
	if d.Width != 16 || d.Height != 16 {
		t.Errorf("Expected 16x16, got %dx%d", d.Width, d.Height)
	}
	if !d.HasExif || d.Orientation != 6 {
		t.Errorf("Expected EXIF orientation 6, got has=%v orientation=%d", d.HasExif, d.Orientation)
	}
	if d.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), d.Size)
	}
}

func TestInspector_DescribeRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(path, []byte("not a real image"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	if _, err := NewInspector(log).Describe(path); err == nil {
		t.Error("Expected error for non-image file")
	}
}

func TestTakenAt(t *testing.T) {
	block := append([]byte(nil), exifHeader...)
	block = append(block,
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x32, 0x01, 0x02, 0x00, 0x14, 0x00, 0x00, 0x00, 0x1A, 0x00, 0x00, 0x00, // DateTime, ASCII[20] at 26
		0x00, 0x00, 0x00, 0x00,
	)
	block = append(block, []byte("2023:05:17 14:30:00\x00")...)

	taken, err := TakenAt(block)
	if err != nil {
		t.Fatalf("TakenAt failed: %v", err)
	}
	if got := taken.Format("2006:01:02 15:04:05"); got != "2023:05:17 14:30:00" {
		t.Errorf("Expected 2023:05:17 14:30:00, got %s", got)
	}

	if _, err := TakenAt(orientationExif(1)); err == nil {
		t.Error("Expected error for EXIF without a date")
	}
}
