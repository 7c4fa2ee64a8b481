package circlegrid

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/camcalib/rimage/detection"
	"go.viam.com/camcalib/rimage/transform"
)

func renderDots(t *testing.T, target detection.CircleGridTarget, angleDeg float64, w, h int) (*image.Gray, []r2.Point) {
	t.Helper()
	ext := target.Extent()
	s, c := math.Sincos(angleDeg * math.Pi / 180)
	cx, cy := ext.X/2, ext.Y/2
	hom, err := transform.NewHomography(transform.Matrix3{
		{c, -s, float64(w)/2 - (c*cx - s*cy)},
		{s, c, float64(h)/2 - (s*cx + c*cy)},
		{0, 0, 1},
	})
	test.That(t, err, test.ShouldBeNil)
	img := detection.Render(target, w, h, hom)
	features := target.Features()
	truth := make([]r2.Point, len(features))
	for i, f := range features {
		truth[i] = hom.Apply(f)
	}
	return img, truth
}

func TestBlackPoint(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(230)
			if x < 5 {
				v = 20
			}
			img.SetGray(x, y, color.Gray{v})
		}
	}
	bp, ok := BlackPoint(img)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, bp, test.ShouldBeGreaterThan, uint8(20))
	test.That(t, bp, test.ShouldBeLessThan, uint8(230))

	flat := image.NewGray(image.Rect(0, 0, 10, 10))
	_, ok = BlackPoint(flat)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFindDarkBlobs(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 30, 20))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	fill := func(r image.Rectangle) {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetGray(x, y, color.Gray{0})
			}
		}
	}
	fill(image.Rect(4, 4, 8, 10))
	fill(image.Rect(0, 12, 3, 15)) // touches the border

	blobs := FindDarkBlobs(img, 128)
	test.That(t, len(blobs), test.ShouldEqual, 1)
	test.That(t, blobs[0].Area, test.ShouldEqual, 24)
	test.That(t, blobs[0].Center, test.ShouldResemble, r2.Point{X: 5.5, Y: 6.5})
	test.That(t, blobs[0].Fill(), test.ShouldEqual, 1.)
	test.That(t, blobs[0].Aspect(), test.ShouldEqual, 1.5)
}

func TestFindGridSymmetric(t *testing.T) {
	target := detection.CircleGridTarget{Size: detection.GridSize{Cols: 5, Rows: 4}, Spacing: 30, Radius: 9}
	img, truth := renderDots(t, target, 5, 260, 220)

	centers, found, err := FindGrid(img, target.Size, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)
	for i := range truth {
		test.That(t, centers[i].Sub(truth[i]).Norm(), test.ShouldBeLessThan, 0.3)
	}
}

func TestFindGridAsymmetric(t *testing.T) {
	target := detection.CircleGridTarget{
		Size:       detection.GridSize{Cols: 4, Rows: 5},
		Spacing:    20,
		Radius:     6,
		Asymmetric: true,
	}
	img, truth := renderDots(t, target, -4, 240, 180)

	centers, found, err := FindGrid(img, target.Size, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)
	for i := range truth {
		test.That(t, centers[i].Sub(truth[i]).Norm(), test.ShouldBeLessThan, 0.3)
	}

	// the same dots do not form a symmetric grid
	_, found, err = FindGrid(img, target.Size, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)
}

func TestFindGridNotFound(t *testing.T) {
	target := detection.CircleGridTarget{Size: detection.GridSize{Cols: 3, Rows: 3}, Spacing: 30, Radius: 9}
	img, _ := renderDots(t, target, 0, 160, 160)
	_, found, err := FindGrid(img, detection.GridSize{Cols: 4, Rows: 4}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)

	_, _, err = FindGrid(img, detection.GridSize{Cols: 0, Rows: 4}, false)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFilterBlobs(t *testing.T) {
	mk := func(area int, w, h int) Blob {
		return Blob{Area: area, Bounds: image.Rect(0, 0, w, h)}
	}
	blobs := []Blob{
		mk(80, 10, 10),
		mk(78, 10, 10),
		mk(82, 10, 10),
		mk(4, 2, 2),     // too small
		mk(100, 10, 10), // square, too full
		mk(60, 20, 5),   // elongated
		mk(900, 34, 34), // far above the median
	}
	kept := filterBlobs(blobs, &DefaultBlobConf)
	test.That(t, len(kept), test.ShouldEqual, 3)

	closest := closestToMedianArea([]Blob{mk(10, 4, 4), mk(50, 8, 8), mk(52, 8, 8), mk(49, 8, 8)}, 3)
	test.That(t, len(closest), test.ShouldEqual, 3)
	test.That(t, closest[0].Area, test.ShouldEqual, 50)
}
