package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
)

// MinRefineWindow is the smallest accepted refinement half window.
const MinRefineWindow = 2

// RefineCorners moves each corner to the point where the image gradients inside the
// (2*halfWindow+1)² neighbourhood are most orthogonal to the vectors joining them to the
// corner. Each corner stops after crit.MaxIterations or once it moves less than crit.Epsilon.
// A corner that would leave its search window keeps its original position.
func RefineCorners(gray *image.Gray, corners []r2.Point, halfWindow int, crit detection.TermCriteria) []r2.Point {
	if halfWindow < MinRefineWindow {
		halfWindow = MinRefineWindow
	}
	buf := rimage.FromImage(gray)
	weights := windowWeights(halfWindow)
	eps2 := crit.Epsilon * crit.Epsilon

	out := make([]r2.Point, len(corners))
	for n, start := range corners {
		q := start
		for iter := 0; iter < crit.MaxIterations; iter++ {
			var a11, a12, a22, b1, b2 float64
			for j := -halfWindow; j <= halfWindow; j++ {
				for i := -halfWindow; i <= halfWindow; i++ {
					px := q.X + float64(i)
					py := q.Y + float64(j)
					gx := (rimage.Bilinear(buf, px+1, py, 0) - rimage.Bilinear(buf, px-1, py, 0)) / 2
					gy := (rimage.Bilinear(buf, px, py+1, 0) - rimage.Bilinear(buf, px, py-1, 0)) / 2
					w := weights[(j+halfWindow)*(2*halfWindow+1)+i+halfWindow]
					gxx := gx * gx * w
					gxy := gx * gy * w
					gyy := gy * gy * w
					a11 += gxx
					a12 += gxy
					a22 += gyy
					b1 += gxx*px + gxy*py
					b2 += gxy*px + gyy*py
				}
			}
			det := a11*a22 - a12*a12
			if math.Abs(det) <= 1e-12 {
				break
			}
			next := r2.Point{
				X: (a22*b1 - a12*b2) / det,
				Y: (a11*b2 - a12*b1) / det,
			}
			shift := next.Sub(q)
			q = next
			if shift.Dot(shift) <= eps2 {
				break
			}
		}
		if math.Abs(q.X-start.X) > float64(halfWindow) || math.Abs(q.Y-start.Y) > float64(halfWindow) {
			q = start
		}
		out[n] = q
	}
	return out
}

func windowWeights(half int) []float64 {
	size := 2*half + 1
	w := make([]float64, size*size)
	for j := -half; j <= half; j++ {
		for i := -half; i <= half; i++ {
			y := float64(j) / float64(half)
			x := float64(i) / float64(half)
			w[(j+half)*size+i+half] = math.Exp(-x*x) * math.Exp(-y*y)
		}
	}
	return w
}
