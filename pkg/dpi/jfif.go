// Package dpi declares the physical resolution of encoded JPEG images.
//
// The primary strategy edits the JFIF APP0 density fields in place, or
// splices a fresh APP0 segment right after the start-of-image marker. When
// the data has no start-of-image marker the image is decoded, re-encoded and
// tagged with an EXIF resolution record instead.
package dpi

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// JPEG markers
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerAPP0   = 0xE0
	markerAPP1   = 0xE1
	markerTEM    = 0x01
	markerRST0   = 0xD0
	markerRST7   = 0xD7
)

// Unit is the JFIF density unit field
type Unit byte

const (
	UnitsNone   Unit = 0
	UnitsInches Unit = 1
	UnitsCm     Unit = 2
)

var jfifIdent = []byte("JFIF\x00")

// jfifMinLength is the APP0 length needed to reach the thumbnail size bytes
const jfifMinLength = 16

// offsets inside an APP0 segment, counted from the marker's 0xFF byte
const (
	offUnits    = 11
	offXDensity = 12
	offYDensity = 14
)

var (
	ErrNoSOI         = errors.New("dpi: no start-of-image marker")
	ErrNoJFIF        = errors.New("dpi: no JFIF APP0 segment")
	ErrMalformedJFIF = errors.New("dpi: malformed JFIF APP0 segment")
	ErrTruncated     = errors.New("dpi: truncated JPEG segment")
)

// Density is the resolution declared by a JFIF header
type Density struct {
	Units Unit
	X     uint16
	Y     uint16
}

// segment is one marker segment found before the scan data
type segment struct {
	marker byte
	offset int // index of the 0xFF byte
	length int // value of the length field, excludes the marker
}

// hasSOI reports whether data starts with a start-of-image marker
func hasSOI(data []byte) bool {
	return len(data) >= 2 && data[0] == markerPrefix && data[1] == markerSOI
}

// segments walks the header segments from SOI up to the first SOS.
func segments(data []byte) ([]segment, error) {
	if !hasSOI(data) {
		return nil, ErrNoSOI
	}
	var segs []segment
	i := 2
	for i+1 < len(data) {
		if data[i] != markerPrefix {
			return segs, ErrTruncated
		}
		marker := data[i+1]
		if marker == markerPrefix {
			// fill byte
			i++
			continue
		}
		if marker == markerSOS || marker == markerEOI {
			return segs, nil
		}
		if marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7) {
			i += 2
			continue
		}
		if i+4 > len(data) {
			return segs, ErrTruncated
		}
		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if length < 2 || i+2+length > len(data) {
			return segs, ErrTruncated
		}
		segs = append(segs, segment{marker: marker, offset: i, length: length})
		i += 2 + length
	}
	return segs, nil
}

// findJFIF returns the APP0 JFIF segment, if any
func findJFIF(data []byte) (segment, error) {
	segs, err := segments(data)
	if errors.Is(err, ErrNoSOI) {
		return segment{}, err
	}
	for _, s := range segs {
		if s.marker != markerAPP0 {
			continue
		}
		body := data[s.offset+4 : s.offset+2+s.length]
		if !bytes.HasPrefix(body, jfifIdent) {
			continue
		}
		if s.length < jfifMinLength {
			return s, ErrMalformedJFIF
		}
		return s, nil
	}
	return segment{}, ErrNoJFIF
}

// ReadDensityHeader returns the density declared by the JFIF APP0 segment
func ReadDensityHeader(data []byte) (Density, error) {
	s, err := findJFIF(data)
	if err != nil {
		return Density{}, err
	}
	return Density{
		Units: Unit(data[s.offset+offUnits]),
		X:     binary.BigEndian.Uint16(data[s.offset+offXDensity:]),
		Y:     binary.BigEndian.Uint16(data[s.offset+offYDensity:]),
	}, nil
}

// WriteDensityHeader returns a copy of data declaring d. An existing JFIF
// segment is edited in place; otherwise a minimal one is inserted after SOI.
// The input slice is never modified.
func WriteDensityHeader(data []byte, d Density) ([]byte, error) {
	s, err := findJFIF(data)
	switch {
	case err == nil:
		out := bytes.Clone(data)
		out[s.offset+offUnits] = byte(d.Units)
		binary.BigEndian.PutUint16(out[s.offset+offXDensity:], d.X)
		binary.BigEndian.PutUint16(out[s.offset+offYDensity:], d.Y)
		return out, nil
	case errors.Is(err, ErrNoJFIF):
		app0 := jfifSegment(d)
		out := make([]byte, 0, len(data)+len(app0))
		out = append(out, data[:2]...)
		out = append(out, app0...)
		out = append(out, data[2:]...)
		return out, nil
	default:
		return nil, err
	}
}

// jfifSegment builds an 18-byte JFIF 1.01 APP0 segment without thumbnail
func jfifSegment(d Density) []byte {
	seg := []byte{
		markerPrefix, markerAPP0,
		0x00, 0x10, // length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version 1.01
		byte(d.Units),
		0, 0, // X density
		0, 0, // Y density
		0x00, 0x00, // no thumbnail
	}
	binary.BigEndian.PutUint16(seg[offXDensity:], d.X)
	binary.BigEndian.PutUint16(seg[offYDensity:], d.Y)
	return seg
}
