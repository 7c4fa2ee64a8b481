package rimage

import (
	"math"

	"github.com/pkg/errors"
)

// Interpolation selects how samples between pixel centers are reconstructed.
type Interpolation int

// Supported interpolation methods.
const (
	Nearest Interpolation = iota
	Linear
	Cubic
)

// String returns the flag name of the method.
func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	}
	return "unknown"
}

// InterpolationFromString parses an interpolation name.
func InterpolationFromString(name string) (Interpolation, error) {
	switch name {
	case "nearest":
		return Nearest, nil
	case "linear", "bilinear", "":
		return Linear, nil
	case "cubic", "bicubic":
		return Cubic, nil
	}
	return Linear, errors.Errorf("unknown interpolation %q", name)
}

// sampleOrZero returns the sample or zero outside the buffer.
func sampleOrZero(b Buffer, x, y, c int) float64 {
	if x < 0 || y < 0 || x >= b.Width() || y >= b.Height() {
		return 0
	}
	return b.Sample(x, y, c)
}

// NearestNeighbor returns the sample nearest to (x, y), or zero outside the buffer.
func NearestNeighbor(b Buffer, x, y float64, c int) float64 {
	return sampleOrZero(b, int(math.Round(x)), int(math.Round(y)), c)
}

// Bilinear interpolates channel c at (x, y); samples outside the buffer count as zero.
func Bilinear(b Buffer, x, y float64, c int) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	top := sampleOrZero(b, ix, iy, c)*(1-fx) + sampleOrZero(b, ix+1, iy, c)*fx
	bottom := sampleOrZero(b, ix, iy+1, c)*(1-fx) + sampleOrZero(b, ix+1, iy+1, c)*fx
	return top*(1-fy) + bottom*fy
}

func cubicWeights(t float64) [4]float64 {
	const a = -0.75
	w0 := ((a*(t+1)-5*a)*(t+1)+8*a)*(t+1) - 4*a
	w1 := ((a+2)*t-(a+3))*t*t + 1
	w2 := ((a+2)*(1-t)-(a+3))*(1-t)*(1-t) + 1
	return [4]float64{w0, w1, w2, 1 - w0 - w1 - w2}
}

// Bicubic interpolates channel c at (x, y) with a 4x4 cubic convolution kernel.
func Bicubic(b Buffer, x, y float64, c int) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	wx, wy := cubicWeights(x-x0), cubicWeights(y-y0)
	ix, iy := int(x0)-1, int(y0)-1
	sum := 0.
	for j := 0; j < 4; j++ {
		row := 0.
		for i := 0; i < 4; i++ {
			row += wx[i] * sampleOrZero(b, ix+i, iy+j, c)
		}
		sum += wy[j] * row
	}
	return sum
}

// Interpolate dispatches to the chosen method.
func Interpolate(b Buffer, x, y float64, c int, method Interpolation) float64 {
	switch method {
	case Nearest:
		return NearestNeighbor(b, x, y, c)
	case Cubic:
		return Bicubic(b, x, y, c)
	default:
		return Bilinear(b, x, y, c)
	}
}
