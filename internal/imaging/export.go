package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// EncodePNGBase64 encodes img as a standard base64 PNG.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SavePNG writes img to path as PNG, creating parent directories as needed.
func SavePNG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := imaging.Save(img, path, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
