package services

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 120, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestFitInside(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"small stays", 100, 80, 100, 80},
		{"exact stays", 512, 512, 512, 512},
		{"landscape", 1024, 768, 512, 384},
		{"portrait", 600, 1200, 256, 512},
		{"thin", 5000, 2, 512, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitInside(tt.width, tt.height, 512)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("fitInside(%d, %d) = %dx%d, expected %dx%d", tt.width, tt.height, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestProcessImage_Resizes(t *testing.T) {
	out, err := ProcessImage(encodePNG(t, 1024, 768), 512, 90)
	if err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
	if out.Width != 1024 || out.Height != 768 {
		t.Errorf("original size = %dx%d, expected 1024x768", out.Width, out.Height)
	}
	if out.Format != "png" {
		t.Errorf("Format = %q, expected %q", out.Format, "png")
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 512 || cfg.Height != 384 {
		t.Errorf("output size = %dx%d, expected 512x384", cfg.Width, cfg.Height)
	}
}

func TestProcessImage_NoEnlargement(t *testing.T) {
	out, err := ProcessImage(encodePNG(t, 64, 32), 512, 90)
	if err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 32 {
		t.Errorf("output size = %dx%d, expected 64x32", cfg.Width, cfg.Height)
	}
}

func TestProcessImage_InvalidData(t *testing.T) {
	if _, err := ProcessImage([]byte("not an image"), 512, 90); err == nil {
		t.Error("expected error for invalid image data")
	}
}
