package metadata

import (
	"path/filepath"
	"strings"
)

// Format represents the encoding of an image file.
type Format int

const (
	FormatUnknown Format = iota
	FormatPNG
	FormatJPEG
	FormatWEBP
	FormatMPO
)

var extensionFormats = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".webp": FormatWEBP,
}

// String returns the conventional upper-case name of the format.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "PNG"
	case FormatJPEG:
		return "JPEG"
	case FormatWEBP:
		return "WEBP"
	case FormatMPO:
		return "MPO"
	default:
		return "Unknown"
	}
}

// IsSupported reports whether the format can be re-encoded.
func (f Format) IsSupported() bool {
	return f != FormatUnknown
}

// FormatFromName maps a decoder name as registered with the image package
// ("png", "jpeg", "webp") to a Format.
func FormatFromName(name string) Format {
	switch strings.ToLower(name) {
	case "png":
		return FormatPNG
	case "jpeg", "jpg":
		return FormatJPEG
	case "webp":
		return FormatWEBP
	case "mpo":
		return FormatMPO
	default:
		return FormatUnknown
	}
}

// FormatFromExtension maps a file extension, case-insensitively, to a Format.
func FormatFromExtension(path string) Format {
	return extensionFormats[strings.ToLower(filepath.Ext(path))]
}

// IsSupportedExtension reports whether the path carries an image extension
// that discovery should collect.
func IsSupportedExtension(path string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}
