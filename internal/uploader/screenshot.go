// Package uploader holds helpers shared by the Uploader implementations.
package uploader

import (
	"encoding/base64"
	"strings"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

// Content types of the uploaded artifacts.
const (
	ContentTypeHTML       = "text/html"
	ContentTypeScreenshot = "image/webp"
)

// DecodeScreenshot decodes a base64 screenshot, accepting a data URL prefix.
// An empty input yields nil.
func DecodeScreenshot(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, archive.NewValidationError("screenshot", "screenshot is not valid base64")
	}
	return data, nil
}
