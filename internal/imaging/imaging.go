// Package imaging normalises item photos before they reach the blob store.
// Inputs are sniffed (JPEG, PNG or WebP), downscaled to fit a bounding box and
// re-encoded as JPEG on a white background.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxDimension bounds the width and height of stored photos.
	MaxDimension = 1024
	// JPEGQuality is the default output quality.
	JPEGQuality = 85
	// MaxInputBytes caps how much of an upload is read.
	MaxInputBytes = 20 << 20

	OutputMIME = "image/jpeg"
)

// ErrUnsupportedFormat is returned for inputs that are not JPEG, PNG or WebP.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var decoders = map[string]func(io.Reader) (image.Image, error){
	"image/jpeg": jpeg.Decode,
	"image/png":  png.Decode,
	"image/webp": webp.Decode,
}

// Photo is a processed image ready for storage.
type Photo struct {
	Data       []byte
	MIME       string
	SourceMIME string
	Width      int
	Height     int
}

// Processor holds the output parameters. The zero value uses the package defaults.
type Processor struct {
	MaxDimension int
	Quality      int
}

// Process uses the default Processor.
func Process(r io.Reader) (*Photo, error) {
	return Processor{}.Process(r)
}

// Process validates r by content sniffing, bounds its size and re-encodes it.
func (p Processor) Process(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxInputBytes)
	}
	detected := http.DetectContentType(data)
	decode, ok := decoders[detected]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected)
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", detected, err)
	}

	out := flatten(downscale(img, p.maxDimension()))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.quality()}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	b := out.Bounds()
	return &Photo{Data: buf.Bytes(), MIME: OutputMIME, SourceMIME: detected, Width: b.Dx(), Height: b.Dy()}, nil
}

func (p Processor) maxDimension() int {
	if p.MaxDimension <= 0 {
		return MaxDimension
	}
	return p.MaxDimension
}

func (p Processor) quality() int {
	if p.Quality <= 0 || p.Quality > 100 {
		return JPEGQuality
	}
	return p.Quality
}

// downscale fits img inside maxDim x maxDim preserving aspect ratio.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(1, h*maxDim/w)
	} else {
		newW = max(1, w*maxDim/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// flatten composites img over white so transparent PNG areas do not turn black.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
