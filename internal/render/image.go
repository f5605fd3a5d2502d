package render

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Image is a decoded data-URI image.
type Image struct {
	MediaType string
	Data      []byte
}

// Extension returns a file extension for the media type.
func (img Image) Extension() string {
	switch img.MediaType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/svg+xml":
		return ".svg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

var errNotDataURI = errors.New("not an image data URI")

// ParseDataURI decodes text of the form data:image/<type>[;base64],<payload>.
func ParseDataURI(text string) (*Image, error) {
	if !strings.HasPrefix(text, "data:image") {
		return nil, errNotDataURI
	}
	header, payload, found := strings.Cut(strings.TrimPrefix(text, "data:"), ",")
	if !found {
		return nil, fmt.Errorf("%w: missing payload separator", errNotDataURI)
	}

	params := strings.Split(header, ";")
	img := &Image{MediaType: strings.ToLower(params[0])}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}

	if !isBase64 {
		img.Data = []byte(payload)
		return img, nil
	}

	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}
	}
	img.Data = data
	return img, nil
}

// Save writes the image to dir as name plus the media type's extension.
func (img Image) Save(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	path := filepath.Join(dir, name+img.Extension())
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
