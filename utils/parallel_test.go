package utils

import (
	"image"
	"math"
	"testing"

	"go.viam.com/test"
)

func TestParallelForEachPixel(t *testing.T) {
	for _, size := range []image.Point{{1, 1}, {7, 3}, {64, 48}, {3, 101}} {
		visits := make([]int, size.X*size.Y)
		ParallelForEachPixel(size, func(x, y int) {
			visits[y*size.X+x]++
		})
		for _, v := range visits {
			test.That(t, v, test.ShouldEqual, 1)
		}
	}
	ParallelForEachPixel(image.Point{}, func(x, y int) {
		t.Fatal("no pixels expected")
	})
}

func TestMathHelpers(t *testing.T) {
	test.That(t, RadToDeg(DegToRad(37.5)), test.ShouldAlmostEqual, 37.5)
	test.That(t, ClampF64(-1, 0, 2), test.ShouldEqual, 0.)
	test.That(t, ClampInt(5, 0, 2), test.ShouldEqual, 2)
	test.That(t, IsFinite(1, 2, 3), test.ShouldBeTrue)
	test.That(t, IsFinite(1, math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
	test.That(t, MapRange(30, 20, 40, 0, 1), test.ShouldAlmostEqual, 0.5)
	test.That(t, MapRange(30, 20, 20, 0, 1), test.ShouldEqual, 0.)
	test.That(t, Lerp(2, 4, 0.25), test.ShouldAlmostEqual, 2.5)
	test.That(t, Float64AlmostEqual(1, 1.0001, 1e-3), test.ShouldBeTrue)
}
