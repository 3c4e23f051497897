package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	// Registered raster formats. JPEG and PNG are the primary upload
	// formats; the rest match what an OpenCV imread would accept.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImageData reports bytes that cannot be turned into a usable image.
var ErrInvalidImageData = errors.New("invalid image data")

// DefaultMaxPixels bounds decoded image size (roughly 40 megapixels).
const DefaultMaxPixels = 40_000_000

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidImageData, fmt.Sprintf(format, args...))
}

// Decoder decodes uploads into DecodedImage values.
type Decoder struct {
	maxPixels int
}

// NewDecoder returns a decoder that refuses images above maxPixels.
// A non-positive value selects DefaultMaxPixels.
func NewDecoder(maxPixels int) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Decoder{maxPixels: maxPixels}
}

// Decode parses raw upload bytes.
func (d *Decoder) Decode(data []byte) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, invalid("empty payload")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("%v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, invalid("zero dimension %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		return nil, invalid("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, d.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("%v", err)
	}
	return FromImage(img, format)
}

// DecodeBase64 decodes a base64 payload, optionally carrying a
// "data:image/<fmt>;base64," prefix. The raw bytes are returned alongside the
// image so callers can persist the original upload.
func (d *Decoder) DecodeBase64(payload string) (*DecodedImage, []byte, error) {
	raw, err := DecodeBase64Payload(payload)
	if err != nil {
		return nil, nil, err
	}
	img, err := d.Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return img, raw, nil
}

// DecodeBase64Payload strips an optional data URL header and decodes the
// remaining base64 text. Both padded and unpadded encodings are accepted.
func DecodeBase64Payload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, invalid("data url without payload")
		}
		header := payload[len("data:"):comma]
		if !strings.HasPrefix(header, "image/") || !strings.HasSuffix(header, ";base64") {
			return nil, invalid("unsupported data url header %q", header)
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return nil, invalid("empty base64 payload")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, invalid("base64: %v", err)
	}
	return raw, nil
}
