package dpi

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// Software is written into the EXIF fallback record
const Software = "print-sizer"

// fallbackQuality is used when the fallback strategy has to re-encode
const fallbackQuality = 92

// MetadataEmbedError is returned when neither strategy could declare the
// resolution. The bytes returned alongside it are the unmodified input.
type MetadataEmbedError struct {
	Primary  error
	Fallback error
}

func (e *MetadataEmbedError) Error() string {
	return fmt.Sprintf("embedding resolution failed: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *MetadataEmbedError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// EmbedResolution declares dpi in both axes, in inches.
//
// It always returns usable bytes: on failure the original data is returned
// together with a *MetadataEmbedError.
func EmbedResolution(data []byte, dpi int) ([]byte, error) {
	if dpi <= 0 || dpi > 0xFFFF {
		err := fmt.Errorf("dpi: resolution %d out of range", dpi)
		return data, &MetadataEmbedError{Primary: err, Fallback: err}
	}

	d := Density{Units: UnitsInches, X: uint16(dpi), Y: uint16(dpi)}
	out, primaryErr := WriteDensityHeader(data, d)
	if primaryErr == nil {
		return out, nil
	}
	if !errors.Is(primaryErr, ErrNoSOI) && !errors.Is(primaryErr, ErrMalformedJFIF) {
		return data, &MetadataEmbedError{Primary: primaryErr, Fallback: errors.New("fallback not attempted")}
	}

	out, fallbackErr := embedEXIF(data, dpi)
	if fallbackErr != nil {
		return data, &MetadataEmbedError{Primary: primaryErr, Fallback: fallbackErr}
	}
	return out, nil
}

// embedEXIF decodes data, re-encodes it as JPEG and attaches an EXIF
// resolution record.
func embedEXIF(data []byte, dpi int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(fallbackQuality)); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return insertEXIF(buf.Bytes(), dpi, Software)
}
