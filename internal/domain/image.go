package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Image is an optional attachment sent to providers with the prompt.
type Image struct {
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Data     []byte `json:"data" yaml:"data"`
}

// DataURL encodes the image as a base64 data URL.
func (img *Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Base64 returns the raw base64 payload without the data URL prefix.
func (img *Image) Base64() string { return base64.StdEncoding.EncodeToString(img.Data) }

// ParseDataURL decodes a "data:<mime>;base64,<payload>" string. A bare base64
// payload is accepted and assumed to be PNG.
func ParseDataURL(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidImage)
	}

	mime := "image/png"
	payload := s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidImage)
		}
		mt, enc, _ := strings.Cut(header, ";")
		if enc != "base64" {
			return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidImage, enc)
		}
		if !strings.HasPrefix(mt, "image/") {
			return nil, fmt.Errorf("%w: unsupported media type %q", ErrInvalidImage, mt)
		}
		mime, payload = mt, data
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return &Image{MIMEType: mime, Data: data}, nil
}
