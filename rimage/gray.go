package rimage

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// ToGray converts any buffer into an 8-bit single channel image. Colour inputs use
// Rec. 601 luma weights, 16-bit inputs are scaled down.
func ToGray(b Buffer) *image.Gray {
	if ib, ok := b.(*imageBuffer); ok {
		if g, ok := ib.img.(*image.Gray); ok && ib.min == (image.Point{}) {
			return g
		}
		if ib.channels > 1 {
			return grayFromNRGBA(imaging.Grayscale(ib.img))
		}
	}

	gray := image.NewGray(image.Rect(0, 0, b.Width(), b.Height()))
	scale := 255 / b.Depth().MaxValue()
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			var v float64
			switch b.Channels() {
			case 1, 2:
				v = b.Sample(x, y, 0)
			default:
				v = 0.299*b.Sample(x, y, 0) + 0.587*b.Sample(x, y, 1) + 0.114*b.Sample(x, y, 2)
			}
			v = v*scale + 0.5
			if v > 255 {
				v = 255
			} else if v < 0 {
				v = 0
			}
			gray.SetGray(x, y, color.Gray{uint8(v)})
		}
	}
	return gray
}

func grayFromNRGBA(img *image.NRGBA) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			// imaging.Grayscale writes the same value to R, G and B.
			gray.Pix[y*gray.Stride+x] = img.Pix[y*img.Stride+x*4]
		}
	}
	return gray
}

// GrayToDense converts a gray image into a rows x cols matrix of luminance values in [0, 255].
func GrayToDense(img *image.Gray) *mat.Dense {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[(y)*img.Stride : (y)*img.Stride+w]
		for x, v := range row {
			data[y*w+x] = float64(v)
		}
	}
	return mat.NewDense(h, w, data)
}
