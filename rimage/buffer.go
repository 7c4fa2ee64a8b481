// Package rimage holds the image abstractions and pixel-level operations used by calibration.
package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// BitDepth is the number of bits stored per sample.
type BitDepth int

// The supported sample depths.
const (
	Depth8  BitDepth = 8
	Depth16 BitDepth = 16
)

// MaxValue is the largest sample value representable at this depth.
func (d BitDepth) MaxValue() float64 {
	if d == Depth16 {
		return 65535
	}
	return 255
}

// Buffer is a read-only 2-D grid of samples with one or more channels.
type Buffer interface {
	Width() int
	Height() int
	Channels() int
	Depth() BitDepth
	// Sample returns channel c of the pixel at column x, row y.
	Sample(x, y, c int) float64
}

// MutableBuffer is a Buffer whose samples can be written.
type MutableBuffer interface {
	Buffer
	SetSample(x, y, c int, v float64)
}

// Size returns the buffer dimensions as a point.
func Size(b Buffer) image.Point {
	return image.Point{b.Width(), b.Height()}
}

// Samples is a dense, channel-interleaved MutableBuffer.
type Samples struct {
	width, height, channels int
	depth                   BitDepth
	data                    []float32
}

// NewSamples returns a zeroed buffer.
func NewSamples(width, height, channels int, depth BitDepth) *Samples {
	return &Samples{
		width:    width,
		height:   height,
		channels: channels,
		depth:    depth,
		data:     make([]float32, width*height*channels),
	}
}

// NewSamplesLike returns a zeroed buffer with the same shape as b.
func NewSamplesLike(b Buffer) *Samples {
	return NewSamples(b.Width(), b.Height(), b.Channels(), b.Depth())
}

// Width returns the number of columns.
func (s *Samples) Width() int { return s.width }

// Height returns the number of rows.
func (s *Samples) Height() int { return s.height }

// Channels returns the number of channels per pixel.
func (s *Samples) Channels() int { return s.channels }

// Depth returns the sample depth.
func (s *Samples) Depth() BitDepth { return s.depth }

// Sample returns one sample.
func (s *Samples) Sample(x, y, c int) float64 {
	return float64(s.data[(y*s.width+x)*s.channels+c])
}

// SetSample stores one sample.
func (s *Samples) SetSample(x, y, c int, v float64) {
	s.data[(y*s.width+x)*s.channels+c] = float32(v)
}

// ToImage converts the buffer into a standard library image. One channel becomes
// Gray/Gray16, two or more become NRGBA/NRGBA64 with grey replication for two channels.
func (s *Samples) ToImage() image.Image {
	rect := image.Rect(0, 0, s.width, s.height)
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if max := s.depth.MaxValue(); v > max {
			return max
		}
		return v + 0.5
	}
	switch {
	case s.channels == 1 && s.depth == Depth16:
		img := image.NewGray16(rect)
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				img.SetGray16(x, y, color.Gray16{uint16(clamp(s.Sample(x, y, 0)))})
			}
		}
		return img
	case s.channels == 1:
		img := image.NewGray(rect)
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				img.SetGray(x, y, color.Gray{uint8(clamp(s.Sample(x, y, 0)))})
			}
		}
		return img
	case s.depth == Depth16:
		img := image.NewNRGBA64(rect)
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				r, g, b, a := s.rgba(x, y, clamp)
				img.SetNRGBA64(x, y, color.NRGBA64{uint16(r), uint16(g), uint16(b), uint16(a)})
			}
		}
		return img
	default:
		img := image.NewNRGBA(rect)
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				r, g, b, a := s.rgba(x, y, clamp)
				img.SetNRGBA(x, y, color.NRGBA{uint8(r), uint8(g), uint8(b), uint8(a)})
			}
		}
		return img
	}
}

func (s *Samples) rgba(x, y int, clamp func(float64) float64) (r, g, b, a float64) {
	a = clamp(s.depth.MaxValue())
	switch s.channels {
	case 2:
		r = clamp(s.Sample(x, y, 0))
		return r, r, r, clamp(s.Sample(x, y, 1))
	case 3:
		return clamp(s.Sample(x, y, 0)), clamp(s.Sample(x, y, 1)), clamp(s.Sample(x, y, 2)), a
	default:
		return clamp(s.Sample(x, y, 0)), clamp(s.Sample(x, y, 1)), clamp(s.Sample(x, y, 2)), clamp(s.Sample(x, y, 3))
	}
}

// imageBuffer adapts an image.Image to a Buffer without copying.
type imageBuffer struct {
	img      image.Image
	min      image.Point
	width    int
	height   int
	channels int
	depth    BitDepth
}

// FromImage wraps a standard library image as a Buffer. Gray images have one channel,
// everything else is exposed as four channel RGBA.
func FromImage(img image.Image) Buffer {
	bounds := img.Bounds()
	ib := &imageBuffer{
		img:      img,
		min:      bounds.Min,
		width:    bounds.Dx(),
		height:   bounds.Dy(),
		channels: 4,
		depth:    Depth8,
	}
	switch img.(type) {
	case *image.Gray:
		ib.channels = 1
	case *image.Gray16:
		ib.channels = 1
		ib.depth = Depth16
	case *image.RGBA64, *image.NRGBA64:
		ib.depth = Depth16
	}
	return ib
}

func (ib *imageBuffer) Width() int      { return ib.width }
func (ib *imageBuffer) Height() int     { return ib.height }
func (ib *imageBuffer) Channels() int   { return ib.channels }
func (ib *imageBuffer) Depth() BitDepth { return ib.depth }

func (ib *imageBuffer) Sample(x, y, c int) float64 {
	px, py := x+ib.min.X, y+ib.min.Y
	switch img := ib.img.(type) {
	case *image.Gray:
		return float64(img.GrayAt(px, py).Y)
	case *image.Gray16:
		return float64(img.Gray16At(px, py).Y)
	case *image.NRGBA:
		col := img.NRGBAAt(px, py)
		return float64([4]uint8{col.R, col.G, col.B, col.A}[c])
	case *image.RGBA:
		col := img.RGBAAt(px, py)
		return float64([4]uint8{col.R, col.G, col.B, col.A}[c])
	}
	col := color.NRGBA64Model.Convert(ib.img.At(px, py)).(color.NRGBA64)
	v := [4]uint16{col.R, col.G, col.B, col.A}[c]
	if ib.depth == Depth16 {
		return float64(v)
	}
	return float64(v >> 8)
}

// SameSize errors when a and b do not share width and height.
func SameSize(a, b Buffer) error {
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return errors.Errorf("image size mismatch: %dx%d != %dx%d", a.Width(), a.Height(), b.Width(), b.Height())
	}
	return nil
}

// CopyBuffer returns a dense copy of b.
func CopyBuffer(b Buffer) *Samples {
	out := NewSamplesLike(b)
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			for c := 0; c < b.Channels(); c++ {
				out.SetSample(x, y, c, b.Sample(x, y, c))
			}
		}
	}
	return out
}
