package qrcode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const DefaultSize = 320

var (
	ErrEmptyContent   = errors.New("qr content is empty")
	ErrInvalidDataURL = errors.New("invalid image data url")
	ErrImageTooLarge  = errors.New("image exceeds size limit")
)

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// DataURL renders content as a PNG QR code encoded as a data URL.
func DataURL(content string, size int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return "", fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Image is a decoded data URL.
type Image struct {
	MIMEType string
	Data     []byte
}

// ParseDataURL validates an uploaded image data URL of the form
// data:image/<type>;base64,<payload>.
func ParseDataURL(raw string, maxBytes int) (*Image, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, ErrInvalidDataURL
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return nil, ErrInvalidDataURL
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if _, ok := allowedImageTypes[mimeType]; !ok {
		return nil, ErrInvalidDataURL
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return nil, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return nil, ErrInvalidDataURL
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, ErrImageTooLarge
	}
	return &Image{MIMEType: mimeType, Data: data}, nil
}

// EncodeDataURL builds a data URL for raw image bytes, e.g. a multipart upload.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + strings.ToLower(strings.TrimSpace(mimeType)) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
