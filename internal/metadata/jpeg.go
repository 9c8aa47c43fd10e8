package metadata

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
	markerAPP2 = 0xE2

	maxSegmentPayload = 0xFFFF - 2
)

var (
	exifHeader = []byte("Exif\x00\x00")
	mpfHeader  = []byte("MPF\x00")

	// ErrNotJPEG is returned when data does not start with a JPEG SOI marker.
	ErrNotJPEG = errors.New("not a JPEG stream")
)

// Segment is one marker segment from the JPEG header area.
type Segment struct {
	Marker  byte
	Payload []byte
}

// ScanSegments returns the marker segments that precede the first scan.
func ScanSegments(data []byte) ([]Segment, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrNotJPEG
	}

	var segments []Segment
	i := 2
	for i+1 < len(data) {
		if data[i] != 0xFF {
			return segments, fmt.Errorf("invalid marker at offset %d", i)
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF:
			i++
			continue
		case marker == markerSOI || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			i += 2
			continue
		case marker == markerEOI || marker == markerSOS:
			return segments, nil
		}

		if i+4 > len(data) {
			return segments, fmt.Errorf("truncated segment header at offset %d", i)
		}
		length := int(data[i+2])<<8 | int(data[i+3])
		if length < 2 || i+2+length > len(data) {
			return segments, fmt.Errorf("truncated segment 0x%02X at offset %d", marker, i)
		}
		segments = append(segments, Segment{Marker: marker, Payload: data[i+4 : i+2+length]})
		i += 2 + length
	}
	return segments, nil
}

// ExifBlock returns the raw APP1 EXIF payload, including the "Exif\0\0"
// header, or nil when the stream carries none.
func ExifBlock(data []byte) []byte {
	segments, _ := ScanSegments(data)
	for _, s := range segments {
		if s.Marker == markerAPP1 && bytes.HasPrefix(s.Payload, exifHeader) {
			return append([]byte(nil), s.Payload...)
		}
	}
	return nil
}

// IsMPO reports whether a JPEG stream carries a Multi-Picture Format index.
func IsMPO(data []byte) bool {
	segments, _ := ScanSegments(data)
	for _, s := range segments {
		if s.Marker == markerAPP2 && bytes.HasPrefix(s.Payload, mpfHeader) {
			return true
		}
	}
	return false
}

// InsertExif returns a copy of a JPEG stream with block written as an APP1
// segment directly after SOI. Any EXIF segment already present is dropped.
func InsertExif(data, block []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrNotJPEG
	}
	if len(block) > maxSegmentPayload {
		return nil, fmt.Errorf("exif block of %d bytes exceeds segment limit", len(block))
	}

	rest := data[2:]
	if old := ExifBlock(data); old != nil {
		rest = stripExif(data)[2:]
	}

	length := len(block) + 2
	out := make([]byte, 0, len(data)+length+2)
	out = append(out, 0xFF, markerSOI, 0xFF, markerAPP1, byte(length>>8), byte(length))
	out = append(out, block...)
	out = append(out, rest...)
	return out, nil
}

// stripExif removes every APP1 EXIF segment from the header area.
func stripExif(data []byte) []byte {
	out := make([]byte, 0, len(data))
	out = append(out, data[:2]...)
	i := 2
	for i+3 < len(data) && data[i] == 0xFF {
		marker := data[i+1]
		if marker == markerSOS || marker == markerEOI {
			break
		}
		length := int(data[i+2])<<8 | int(data[i+3])
		end := i + 2 + length
		if length < 2 || end > len(data) {
			break
		}
		if !(marker == markerAPP1 && bytes.HasPrefix(data[i+4:end], exifHeader)) {
			out = append(out, data[i:end]...)
		}
		i = end
	}
	return append(out, data[i:]...)
}
