// File: internal/imaging/decoder.go
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the source format of an accepted image.
type Format string

const (
	FormatJPEG  Format = "JPEG"
	FormatPNG   Format = "PNG"
	FormatDICOM Format = "DICOM"
)

const mimeDICOM = "application/dicom"

// Logger is the subset of the service logger used by the decoder.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Payload is a validated image ready to be attached to a prompt.
type Payload struct {
	// Image is the normalized square RGB raster.
	Image image.Image
	// Encoded is Image as JPEG, the form sent to the model.
	Encoded  []byte
	MIMEType string

	Width        int
	Height       int
	ByteSize     int
	SourceFormat Format
}

// DataURL renders the encoded image as a data URL.
func (p *Payload) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Encoded)
}

// Decoder validates raw uploads and turns them into Payloads.
type Decoder struct {
	config Config
	logger Logger
}

func NewDecoder(config Config, logger Logger) (*Decoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{config: config, logger: logger}, nil
}

// Decode checks format, byte size and dimensions in that order and stops at
// the first failure. declared is an optional MIME type or format name sent by
// the caller; the sniffed content wins when they disagree, except that a
// declared DICOM upload is parsed as DICOM even without a recognizable
// preamble.
func (d *Decoder) Decode(data []byte, declared string) (*Payload, error) {
	format, err := d.detectFormat(data, declared)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > d.config.MaxBytes {
		return nil, newValidationError(InvariantByteSize, "%d bytes exceeds the limit of %d", len(data), d.config.MaxBytes)
	}

	var img image.Image
	switch format {
	case FormatDICOM:
		img, err = renderDICOM(data, d.checkDimensions)
		if err != nil {
			return nil, err
		}
		if err := d.checkDimensions(img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
			return nil, err
		}
	default:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, &DecodeError{Format: format, Message: "read header", Cause: err}
		}
		if err := d.checkDimensions(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &DecodeError{Format: format, Message: "decode pixels", Cause: err}
		}
	}

	canvas := Letterbox(img, d.config.TargetSize)
	encoded, err := EncodeJPEG(canvas, d.config.JPEGQuality)
	if err != nil {
		return nil, &DecodeError{Format: format, Message: "re-encode for transport", Cause: err}
	}

	p := &Payload{
		Image:        canvas,
		Encoded:      encoded,
		MIMEType:     "image/jpeg",
		Width:        img.Bounds().Dx(),
		Height:       img.Bounds().Dy(),
		ByteSize:     len(data),
		SourceFormat: format,
	}
	if d.logger != nil {
		d.logger.Debug("image decoded", "format", format, "width", p.Width, "height", p.Height, "bytes", p.ByteSize)
	}
	return p, nil
}

// DecodeBase64 decodes a base64 or data-URL string and then the image.
func (d *Decoder) DecodeBase64(encoded string) (*Payload, error) {
	data, declared, err := DecodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	return d.Decode(data, declared)
}

func (d *Decoder) detectFormat(data []byte, declared string) (Format, error) {
	if len(data) == 0 {
		return "", newValidationError(InvariantFormat, "image is empty")
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/jpeg"):
		return FormatJPEG, nil
	case mt.Is("image/png"):
		return FormatPNG, nil
	case mt.Is(mimeDICOM):
		return FormatDICOM, nil
	case mt.Is("application/octet-stream") && declaredFormat(declared) == FormatDICOM:
		return FormatDICOM, nil
	case strings.HasPrefix(mt.String(), "image/"):
		return "", newValidationError(InvariantFormat, "%s is not supported, send JPEG, PNG or DICOM", mt.String())
	}

	if d.logger != nil {
		d.logger.Warn("rejected non-image upload", "detected", mt.String(), "declared", declared)
	}
	return "", &UnsupportedContainerError{Detected: mt.String()}
}

func (d *Decoder) checkDimensions(w, h int) error {
	lo, hi := d.config.MinDimension, d.config.MaxDimension
	if w < lo || h < lo {
		return newValidationError(InvariantDimensions, "%dx%d is below the minimum of %dx%d", w, h, lo, lo)
	}
	if w > hi || h > hi {
		return newValidationError(InvariantDimensions, "%dx%d exceeds the maximum of %dx%d", w, h, hi, hi)
	}
	return nil
}

// declaredFormat maps a caller-supplied MIME type, extension or format name.
func declaredFormat(declared string) Format {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "image/jpeg", "image/jpg", "jpeg", "jpg":
		return FormatJPEG
	case "image/png", "png":
		return FormatPNG
	case mimeDICOM, "dicom", "dcm", ".dcm":
		return FormatDICOM
	}
	return ""
}

// DecodeBase64 strips an optional data-URL prefix, returning its MIME type as
// the declared format, and decodes with the standard then the URL-safe
// alphabet.
func DecodeBase64(encoded string) ([]byte, string, error) {
	s := strings.TrimSpace(encoded)
	declared := ""
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", &DecodeError{Message: "malformed data URL"}
		}
		meta := s[len("data:"):comma]
		declared = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, declared, newValidationError(InvariantFormat, "image is empty")
	}

	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, declared, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, declared, &DecodeError{Message: fmt.Sprintf("invalid base64 (%d chars)", len(s)), Cause: firstErr}
}
