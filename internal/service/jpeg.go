package service

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	jpegMIME    = "image/jpeg"
	jpegQuality = 90
)

// toJPEG re-encodes a PNG, GIF or WebP capture as JPEG. JPEG input is
// returned unchanged. Transparent pixels are flattened onto white.
func toJPEG(data []byte, mimeType string) ([]byte, error) {
	if mimeType == jpegMIME {
		return data, nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", mimeType, err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode %s image as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}
