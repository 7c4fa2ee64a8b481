package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/camcalib/rimage"
)

// rect is an axis aligned rectangle in normalized image coordinates.
type rect struct {
	x, y, width, height float64
}

// undistortedRectangles samples a 9x9 grid over the image, undistorts every sample and returns
// the largest rectangle fully inside the valid region and the smallest rectangle containing it.
func undistortedRectangles(k CameraMatrix, d DistortionCoefficients, size image.Point) (inner, outer rect) {
	const n = 9
	w, h := float64(size.X-1), float64(size.Y-1)

	iX0, iX1 := -math.MaxFloat64, math.MaxFloat64
	iY0, iY1 := -math.MaxFloat64, math.MaxFloat64
	oX0, oX1 := math.MaxFloat64, -math.MaxFloat64
	oY0, oY1 := math.MaxFloat64, -math.MaxFloat64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			p := d.Undistort(k.Normalize(r2.Point{X: float64(j) * w / (n - 1), Y: float64(i) * h / (n - 1)}))
			oX0 = math.Min(oX0, p.X)
			oX1 = math.Max(oX1, p.X)
			oY0 = math.Min(oY0, p.Y)
			oY1 = math.Max(oY1, p.Y)
			if j == 0 {
				iX0 = math.Max(iX0, p.X)
			}
			if j == n-1 {
				iX1 = math.Min(iX1, p.X)
			}
			if i == 0 {
				iY0 = math.Max(iY0, p.Y)
			}
			if i == n-1 {
				iY1 = math.Min(iY1, p.Y)
			}
		}
	}
	inner = rect{iX0, iY0, iX1 - iX0, iY1 - iY0}
	outer = rect{oX0, oY0, oX1 - oX0, oY1 - oY0}
	return inner, outer
}

// OptimalNewCameraMatrix returns the camera matrix of the undistorted view. With alpha 0 every
// output pixel maps to a valid source pixel (the frame is filled and edges are cropped); with
// alpha 1 every source pixel stays visible and invalid regions appear as black borders. Values
// in between blend the two.
func OptimalNewCameraMatrix(k CameraMatrix, d DistortionCoefficients, size image.Point, alpha float64) CameraMatrix {
	if d.IsZero() || size.X < 2 || size.Y < 2 {
		return k
	}
	inner, outer := undistortedRectangles(k, d, size)
	w, h := float64(size.X-1), float64(size.Y-1)

	fx0, fy0 := w/inner.width, h/inner.height
	cx0, cy0 := -fx0*inner.x, -fy0*inner.y
	fx1, fy1 := w/outer.width, h/outer.height
	cx1, cy1 := -fx1*outer.x, -fy1*outer.y

	return CameraMatrix{
		Fx: fx0*(1-alpha) + fx1*alpha,
		Fy: fy0*(1-alpha) + fy1*alpha,
		Cx: cx0*(1-alpha) + cx1*alpha,
		Cy: cy0*(1-alpha) + cy1*alpha,
	}
}

// NewUndistortMap builds the lookup table that, for each pixel of the undistorted image seen by
// newK, stores the pixel of the distorted source image to sample.
func NewUndistortMap(k CameraMatrix, d DistortionCoefficients, newK CameraMatrix, size image.Point) *rimage.RemapTable {
	table := rimage.NewRemapTable(size.X, size.Y)
	for v := 0; v < size.Y; v++ {
		for u := 0; u < size.X; u++ {
			ideal := newK.Normalize(r2.Point{X: float64(u), Y: float64(v)})
			src := k.Denormalize(d.Distort(ideal))
			table.Set(u, v, src.X, src.Y)
		}
	}
	return table
}
