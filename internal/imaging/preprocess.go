// Package imaging turns uploaded images into the tensor shape the
// classification model was trained on.
package imaging

import (
	"image"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"io"
	"os"

	"golang.org/x/image/draw"
)

// DefaultTargetSize is the model's trained input edge length in pixels.
const DefaultTargetSize = 224

// Tensor is a single-image input batch in NHWC layout: shape
// (1, Height, Width, Channels) flattened into Data.
type Tensor struct {
	Data     []float32
	Height   int
	Width    int
	Channels int
}

// Decode reads and decodes a PNG or JPEG image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// DecodeFile decodes the image stored at path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Preprocess converts an image to a 3-channel tensor of the given square
// size. The resize is a direct stretch with no aspect-ratio preservation,
// and pixel values stay in the source 0..255 range: the training pipeline
// did not rescale to 0..1, and changing that here would silently degrade
// predictions.
func Preprocess(src image.Image, size int) Tensor {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	data := make([]float32, size*size*3)
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			offset := dst.PixOffset(x, y)
			data[i] = float32(dst.Pix[offset])     // R
			data[i+1] = float32(dst.Pix[offset+1]) // G
			data[i+2] = float32(dst.Pix[offset+2]) // B
			i += 3
		}
	}

	return Tensor{Data: data, Height: size, Width: size, Channels: 3}
}
