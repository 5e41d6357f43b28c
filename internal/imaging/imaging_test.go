package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h, color.RGBA{255, 0, 0, 255}), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestProcessJPEG(t *testing.T) {
	photo, err := Process(bytes.NewReader(encodeJPEG(t, 100, 80)))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if photo.MIME != OutputMIME || photo.SourceMIME != "image/jpeg" {
		t.Fatalf("unexpected mime %s/%s", photo.MIME, photo.SourceMIME)
	}
	if photo.Width != 100 || photo.Height != 80 || len(photo.Data) == 0 {
		t.Fatalf("unexpected photo %dx%d", photo.Width, photo.Height)
	}
}

func TestProcessDownscalesPreservingAspect(t *testing.T) {
	photo, err := Process(bytes.NewReader(encodeJPEG(t, 2048, 1024)))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if photo.Width != MaxDimension || photo.Height != MaxDimension/2 {
		t.Fatalf("expected %dx%d, got %dx%d", MaxDimension, MaxDimension/2, photo.Width, photo.Height)
	}
	img, err := jpeg.Decode(bytes.NewReader(photo.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != photo.Width {
		t.Fatalf("reported width does not match output")
	}
}

func TestProcessorOverrides(t *testing.T) {
	p := Processor{MaxDimension: 64, Quality: 50}
	photo, err := p.Process(bytes.NewReader(encodeJPEG(t, 100, 400)))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if photo.Height != 64 || photo.Width != 16 {
		t.Fatalf("unexpected size %dx%d", photo.Width, photo.Height)
	}
}

func TestProcessFlattensTransparentPNG(t *testing.T) {
	photo, err := Process(bytes.NewReader(encodePNG(t, solid(20, 20, color.RGBA{}))))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(photo.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := img.At(10, 10).RGBA()
	if r < 0xf000 || g < 0xf000 || b < 0xf000 {
		t.Fatalf("expected white background, got %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestProcessRejectsUnsupported(t *testing.T) {
	for _, input := range [][]byte{[]byte("not an image"), []byte("GIF89a......")} {
		if _, err := Process(bytes.NewReader(input)); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat for %q, got %v", input, err)
		}
	}
	truncated := encodePNG(t, solid(10, 10, color.Black))[:40]
	if _, err := Process(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected decode error for truncated png")
	}
}
