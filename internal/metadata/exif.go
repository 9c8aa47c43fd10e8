package metadata

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sort"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

// Orientation returns the EXIF orientation tag (1-8) stored in an APP1
// payload as returned by ExifBlock.
func Orientation(block []byte) (int, error) {
	if !bytes.HasPrefix(block, exifHeader) {
		return 0, fmt.Errorf("missing exif header")
	}
	x, err := exif.Decode(bytes.NewReader(block[len(exifHeader):]))
	if err != nil {
		return 0, fmt.Errorf("failed to decode EXIF: %w", err)
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, err
	}
	return tag.Int(0)
}

// TakenAt returns the capture time recorded in an APP1 payload.
func TakenAt(block []byte) (time.Time, error) {
	if !bytes.HasPrefix(block, exifHeader) {
		return time.Time{}, fmt.Errorf("missing exif header")
	}
	x, err := exif.Decode(bytes.NewReader(block[len(exifHeader):]))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode EXIF: %w", err)
	}
	return x.DateTime()
}

// Description summarises what is known about an image file.
type Description struct {
	Path        string
	Format      Format
	Width       int
	Height      int
	Size        int64
	HasExif     bool
	Orientation int
	TakenAt     time.Time
	Tags        map[string]interface{}
}

// SortedTagNames returns the exiftool tag names in lexical order.
func (d Description) SortedTagNames() []string {
	names := make([]string, 0, len(d.Tags))
	for k := range d.Tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Inspector reports format, dimensions and metadata of an image file.
type Inspector struct {
	logger *logrus.Logger
}

// NewInspector returns a new Inspector.
func NewInspector(logger *logrus.Logger) *Inspector {
	return &Inspector{logger: logger}
}

// Describe decodes the header of filePath. EXIF orientation comes from
// goexif; the full tag dump comes from the exiftool binary when available.
func (i *Inspector) Describe(filePath string) (*Description, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	d := &Description{
		Path:   filePath,
		Format: FormatFromName(name),
		Width:  cfg.Width,
		Height: cfg.Height,
		Size:   int64(len(data)),
	}
	if d.Format == FormatJPEG && IsMPO(data) {
		d.Format = FormatMPO
	}

	if block := ExifBlock(data); block != nil {
		d.HasExif = true
		if o, err := Orientation(block); err == nil {
			d.Orientation = o
		} else {
			i.logger.Debugf("No orientation in EXIF of %s: %v", filePath, err)
		}
		if t, err := TakenAt(block); err == nil {
			d.TakenAt = t
		}
	}

	tags, err := i.exiftoolTags(filePath)
	if err != nil {
		i.logger.Debugf("exiftool unavailable for %s: %v", filePath, err)
	} else {
		d.Tags = tags
	}

	return d, nil
}

// exiftoolTags extracts every tag exiftool knows for filePath.
func (i *Inspector) exiftoolTags(filePath string) (map[string]interface{}, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, err
	}
	defer et.Close()

	files := et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, fmt.Errorf("no metadata returned")
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}
	return files[0].Fields, nil
}
