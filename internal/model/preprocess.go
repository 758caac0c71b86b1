package model

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage means the uploaded bytes could not be decoded. It is a
// client error and never degrades into a fallback prediction.
var ErrInvalidImage = errors.New("invalid image")

// DefaultMaxPixels caps the decoded image area, matching Pillow's
// decompression-bomb threshold.
const DefaultMaxPixels int64 = 89_478_485

// Preprocess decodes raw image bytes and converts them to the tensor the
// classifier expects: RGB, 224x224, values in [0,1], NHWC with batch 1.
func Preprocess(data []byte) (*Tensor, error) {
	return preprocess(data, DefaultMaxPixels)
}

func preprocess(data []byte, maxPixels int64) (*Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}

	// The header is checked before decoding so that oversized images are
	// rejected without allocating their pixel buffers.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if err := checkDimensions(b.Dx(), b.Dy(), maxPixels); err != nil {
		return nil, err
	}

	return toTensor(img), nil
}

func checkDimensions(w, h int, maxPixels int64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: empty image %dx%d", ErrInvalidImage, w, h)
	}
	if maxPixels > 0 && int64(w)*int64(h) > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, w, h, maxPixels)
	}
	return nil
}

func toTensor(img image.Image) *Tensor {
	// Alpha is dropped before resampling; transparent pixels keep their
	// straight colour.
	resized := resize.Resize(ImageSize, ImageSize, toRGB(img), resize.Bilinear)

	data := make([]float32, ImageSize*ImageSize*Channels)
	bounds := resized.Bounds()
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := (y*ImageSize + x) * Channels
			data[i] = float32(c.R) / 255.0
			data[i+1] = float32(c.G) / 255.0
			data[i+2] = float32(c.B) / 255.0
		}
	}

	return &Tensor{
		Shape: []int64{1, ImageSize, ImageSize, Channels},
		Data:  data,
	}
}

// toRGB copies img into an opaque RGBA image. Grayscale and paletted
// sources are expanded to three equal or looked-up channels.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}
