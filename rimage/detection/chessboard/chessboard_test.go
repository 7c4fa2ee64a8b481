package chessboard

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
	"go.viam.com/camcalib/rimage/transform"
)

var (
	boardSize = detection.GridSize{Cols: 7, Rows: 5}
	tight     = detection.TermCriteria{MaxIterations: 40, Epsilon: 0.01}
)

// renderBoard draws a 30 px chessboard rotated by angleDeg about its center, centered in a
// 420x360 image, and returns the true inner corner locations.
func renderBoard(t *testing.T, angleDeg, perspective float64) (*image.Gray, []r2.Point) {
	t.Helper()
	target := detection.ChessboardTarget{Size: boardSize, Square: 30}
	ext := target.Extent()
	s, c := math.Sincos(angleDeg * math.Pi / 180)
	cx, cy := ext.X/2, ext.Y/2
	h, err := transform.NewHomography(transform.Matrix3{
		{c, -s, 210 - (c*cx - s*cy)},
		{s, c, 180 - (s*cx + c*cy)},
		{perspective, 0, 1},
	})
	test.That(t, err, test.ShouldBeNil)
	img := detection.Render(target, 420, 360, h)
	features := target.Features()
	truth := make([]r2.Point, len(features))
	for i, f := range features {
		truth[i] = h.Apply(f)
	}
	return img, truth
}

func TestNonMaxSuppression(t *testing.T) {
	m := mat.NewDense(7, 7, nil)
	m.Set(1, 1, 5)
	m.Set(1, 2, 4)
	m.Set(5, 5, 3)
	m.Set(3, 3, 0.5)
	// equal neighbours keep the first one in raster order
	m.Set(5, 1, 2)
	m.Set(5, 2, 2)

	got := NonMaxSuppression(m, 1, 1)
	test.That(t, len(got), test.ShouldEqual, 3)
	test.That(t, got[0].Point, test.ShouldResemble, image.Point{1, 1})
	test.That(t, got[1].Point, test.ShouldResemble, image.Point{5, 5})
	test.That(t, got[2].Point, test.ShouldResemble, image.Point{1, 5})
	test.That(t, got[2].Score, test.ShouldEqual, 2.)
}

func TestSaddleMapPeaksOnJunction(t *testing.T) {
	img, truth := renderBoard(t, 0, 0)
	saddles, err := GetSaddlePoints(rimage.GrayToDense(img), &DefaultSaddleConf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(saddles), test.ShouldBeGreaterThanOrEqualTo, boardSize.Count())

	best := r2.Point{X: float64(saddles[0].Point.X), Y: float64(saddles[0].Point.Y)}
	nearest := math.Inf(1)
	for _, p := range truth {
		nearest = math.Min(nearest, p.Sub(best).Norm())
	}
	test.That(t, nearest, test.ShouldBeLessThan, 1.5)
}

func TestFindCorners(t *testing.T) {
	for _, tc := range []struct {
		name        string
		angle       float64
		perspective float64
	}{
		{"fronto", 0, 0},
		{"rotated", 8, 0},
		{"tilted", -5, 4e-4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img, truth := renderBoard(t, tc.angle, tc.perspective)
			corners, found, err := FindCorners(img, boardSize)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, found, test.ShouldBeTrue)
			test.That(t, len(corners), test.ShouldEqual, boardSize.Count())
			for i := range truth {
				test.That(t, corners[i].Sub(truth[i]).Norm(), test.ShouldBeLessThan, 1.5)
			}

			refined := RefineCorners(img, corners, 5, tight)
			test.That(t, len(refined), test.ShouldEqual, len(corners))
			for i := range truth {
				test.That(t, refined[i].Sub(truth[i]).Norm(), test.ShouldBeLessThan, 0.2)
			}
		})
	}
}

func TestFindCornersMissing(t *testing.T) {
	img, _ := renderBoard(t, 0, 0)
	_, found, err := FindCorners(img, detection.GridSize{Cols: 9, Rows: 6})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)

	blank := image.NewGray(image.Rect(0, 0, 100, 100))
	_, found, err = FindCorners(blank, boardSize)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)

	_, _, err = FindCorners(blank, detection.GridSize{Cols: 1, Rows: 5})
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = FindCorners(image.NewGray(image.Rect(0, 0, 4, 4)), boardSize)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRefineCornersStaysInWindow(t *testing.T) {
	img, truth := renderBoard(t, 0, 0)
	start := []r2.Point{truth[0].Add(r2.Point{X: 1.7, Y: -1.2})}
	refined := RefineCorners(img, start, 5, tight)
	test.That(t, refined[0].Sub(truth[0]).Norm(), test.ShouldBeLessThan, 0.2)

	// a flat region has no gradient, so the corner does not move
	flat := []r2.Point{{X: 5, Y: 5}}
	test.That(t, RefineCorners(img, flat, 3, detection.DefaultSubpixCriteria), test.ShouldResemble, flat)
}
