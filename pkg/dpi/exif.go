package dpi

import (
	"bytes"
	"fmt"

	exifw "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/rwcarlsen/goexif/exif"
)

// resolutionUnitInches is the EXIF ResolutionUnit value for inches
const resolutionUnitInches = 2

// Resolution is the EXIF resolution record of an image
type Resolution struct {
	X        float64
	Y        float64
	Unit     int
	Software string
}

// resolutionIfd builds an IFD0 holding the resolution tags
func resolutionIfd(dpi int, software string) (*exifw.IfdBuilder, error) {
	if dpi <= 0 || dpi > 0xFFFF {
		return nil, fmt.Errorf("dpi: resolution %d out of range", dpi)
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("loading IFD mapping: %w", err)
	}
	ib := exifw.NewIfdBuilder(im, exifw.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	rational := []exifcommon.Rational{{Numerator: uint32(dpi), Denominator: 1}}
	tags := []struct {
		name  string
		value any
	}{
		{"XResolution", rational},
		{"YResolution", rational},
		{"ResolutionUnit", []uint16{resolutionUnitInches}},
		{"Software", software},
	}
	for _, tag := range tags {
		if err := ib.AddStandardWithName(tag.name, tag.value); err != nil {
			return nil, fmt.Errorf("adding %s: %w", tag.name, err)
		}
	}
	return ib, nil
}

// insertEXIF attaches an EXIF resolution record to a JPEG, replacing any
// existing EXIF segment
func insertEXIF(data []byte, dpi int, software string) (out []byte, err error) {
	// the structure parser reports some malformed input by panicking
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("writing EXIF: %v", r)
		}
	}()

	ib, err := resolutionIfd(dpi, software)
	if err != nil {
		return nil, err
	}

	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("reading JPEG segments: %w", err)
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("reading JPEG segments: unexpected %T", mc)
	}
	if err := sl.SetExif(ib); err != nil {
		return nil, fmt.Errorf("setting EXIF: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadEXIFResolution reads the EXIF resolution record of a JPEG
func ReadEXIFResolution(data []byte) (Resolution, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return Resolution{}, fmt.Errorf("decoding EXIF: %w", err)
	}

	var res Resolution
	if res.X, err = rationalTag(x, exif.XResolution); err != nil {
		return Resolution{}, err
	}
	if res.Y, err = rationalTag(x, exif.YResolution); err != nil {
		return Resolution{}, err
	}
	if tag, err := x.Get(exif.ResolutionUnit); err == nil {
		res.Unit, _ = tag.Int(0)
	}
	if tag, err := x.Get(exif.Software); err == nil {
		res.Software, _ = tag.StringVal()
	}
	return res, nil
}

func rationalTag(x *exif.Exif, name exif.FieldName) (float64, error) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", name, err)
	}
	num, den, err := tag.Rat2(0)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", name, err)
	}
	if den == 0 {
		return 0, fmt.Errorf("reading %s: zero denominator", name)
	}
	return float64(num) / float64(den), nil
}
