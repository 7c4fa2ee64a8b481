package calibration

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/camcalib/rimage/transform"
)

var testProfile = LensProfileTable{
	{FocalLength: 55, ImageWidth: 6000, ImageHeight: 4000, CropFactor: 1.5, K1: 0.02, K2: -0.01, K3: 0.004},
	{FocalLength: 18, ImageWidth: 6000, ImageHeight: 4000, CropFactor: 1.5, K1: -0.1, K2: 0.02},
}

func TestLoadLensProfileInterpolates(t *testing.T) {
	s := calibratedSession(t, transform.DistortionCoefficients{}, 0)
	test.That(t, s.LoadLensProfile(testProfile, 36.5, 0, 0), test.ShouldBeNil)
	test.That(t, s.Ready(), test.ShouldBeTrue)
	test.That(t, s.Size(), test.ShouldEqual, 0)

	d := s.DistortionCoefficients()
	test.That(t, d.K1(), test.ShouldAlmostEqual, -0.04, 1e-12)
	test.That(t, d.K2(), test.ShouldAlmostEqual, 0.005, 1e-12)
	test.That(t, d.P1(), test.ShouldEqual, 0.)
	test.That(t, d.P2(), test.ShouldEqual, 0.)
	test.That(t, d.K3(), test.ShouldAlmostEqual, 0.002, 1e-12)

	in := s.DistortedIntrinsics()
	test.That(t, in.ImageSize(), test.ShouldResemble, image.Point{X: 6000, Y: 4000})
	k := in.CameraMatrix()
	test.That(t, k.Fx, test.ShouldAlmostEqual, 36.5*6000/(35/1.5), 1e-9)
	test.That(t, k.Fy, test.ShouldEqual, k.Fx)
	test.That(t, k.Cx, test.ShouldEqual, 3000.)
	test.That(t, k.Cy, test.ShouldEqual, 2000.)
	test.That(t, in.FocalLength(), test.ShouldAlmostEqual, 36.5, 1e-9)
	test.That(t, s.UndistortedIntrinsics(), test.ShouldNotBeNil)
}

func TestLoadLensProfileEdges(t *testing.T) {
	s := newTestSession(t)
	test.That(t, s.LoadLensProfile(testProfile, 80, 1920, 1280), test.ShouldBeNil)
	test.That(t, s.DistortionCoefficients().K3(), test.ShouldEqual, 0.004)
	test.That(t, s.ImageSize(), test.ShouldResemble, image.Point{X: 1920, Y: 1280})

	for _, tc := range []struct {
		name    string
		profile LensProfileSource
		focal   float64
	}{
		{"below profile", testProfile, 12},
		{"empty", LensProfileTable{}, 35},
		{"missing", nil, 35},
		{"incomplete", LensProfileTable{{FocalLength: 20}}, 35},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fresh := newTestSession(t)
			err := fresh.LoadLensProfile(tc.profile, tc.focal, 0, 0)
			test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
			test.That(t, fresh.Ready(), test.ShouldBeFalse)
		})
	}
}
