package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// AllowedImageTypes lists the upload content types accepted for diagnosis.
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ProcessedImage is an upload re-encoded for storage and inference.
type ProcessedImage struct {
	Data []byte
	// Dimensions of the original upload.
	Width  int
	Height int
	Format string
}

// ProcessImage decodes an upload, shrinks it to fit inside maxDim x maxDim
// keeping the aspect ratio, and re-encodes it as JPEG. Smaller images are
// never enlarged.
func ProcessImage(data []byte, maxDim, quality int) (*ProcessedImage, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var out image.Image = src
	if w, h := fitInside(width, height, maxDim); w != width || h != height {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &ProcessedImage{
		Data:   buf.Bytes(),
		Width:  width,
		Height: height,
		Format: format,
	}, nil
}

func fitInside(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}
	if width >= height {
		h := height * maxDim / width
		return maxDim, max(h, 1)
	}
	w := width * maxDim / height
	return max(w, 1), maxDim
}
