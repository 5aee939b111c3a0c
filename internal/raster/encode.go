package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/local/pdfeditor/internal/failure"
)

const dataURLPrefix = "data:image/png;base64,"

// Encoder turns a rendered surface into image bytes.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(img image.Image) ([]byte, error)

func (f EncoderFunc) Encode(img image.Image) ([]byte, error) { return f(img) }

// PNGEncoder writes PNG straight into a byte buffer.
type PNGEncoder struct {
	Level png.CompressionLevel
}

func (e PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: e.Level}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURLEncoder goes through a base64 data URL and decodes it back to
// bytes. It is the fallback when the direct path fails.
type DataURLEncoder struct{}

func (DataURLEncoder) Encode(img image.Image) ([]byte, error) {
	url, err := EncodeDataURL(img)
	if err != nil {
		return nil, err
	}
	return DecodeDataURL(url)
}

// EncodeDataURL renders img as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	var sb strings.Builder
	sb.WriteString(dataURLPrefix)
	w := base64.NewEncoder(base64.StdEncoding, &sb)
	if err := png.Encode(w, img); err != nil {
		return "", fmt.Errorf("failed to encode data URL: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to flush data URL: %w", err)
	}
	return sb.String(), nil
}

// DecodeDataURL converts a PNG data URL back to binary data.
func DecodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, dataURLPrefix) {
		return nil, fmt.Errorf("not a PNG data URL")
	}
	return base64.StdEncoding.DecodeString(url[len(dataURLPrefix):])
}

// encodeWithFallback tries primary, then fallback.
func encodeWithFallback(img image.Image, primary, fallback Encoder) ([]byte, error) {
	out, perr := primary.Encode(img)
	if perr == nil {
		return out, nil
	}
	out, ferr := fallback.Encode(img)
	if ferr != nil {
		return nil, &failure.EncodingError{Primary: perr, Fallback: ferr}
	}
	return out, nil
}

// DecodeDimensions reports the pixel size of encoded PNG bytes.
func DecodeDimensions(data []byte) (width, height int, err error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
