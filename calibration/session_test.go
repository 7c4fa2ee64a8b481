package calibration

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
	"go.viam.com/camcalib/rimage/transform"
)

func TestObjectPoints(t *testing.T) {
	test.That(t, ObjectPoints(detection.GridSize{Cols: 3, Rows: 2}, 1, Chessboard), test.ShouldResemble, []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 2, Y: 1, Z: 0},
	})

	pts := ObjectPoints(detection.GridSize{Cols: 3, Rows: 2}, 2, Chessboard)
	test.That(t, len(pts), test.ShouldEqual, 6)
	test.That(t, pts[0].X, test.ShouldEqual, 0.)
	test.That(t, pts[2].X, test.ShouldEqual, 4.)
	test.That(t, pts[3].Y, test.ShouldEqual, 2.)
	test.That(t, pts[5].X, test.ShouldEqual, 4.)
	for _, p := range pts {
		test.That(t, p.Z, test.ShouldEqual, 0.)
	}
	test.That(t, ObjectPoints(detection.GridSize{Cols: 3, Rows: 2}, 2, Chessboard), test.ShouldResemble, pts)

	asym := ObjectPoints(detection.GridSize{Cols: 3, Rows: 2}, 1, AsymmetricCirclesGrid)
	test.That(t, asym[2].X, test.ShouldEqual, 4.)
	test.That(t, asym[3].X, test.ShouldEqual, 1.)
	test.That(t, asym[5].X, test.ShouldEqual, 5.)
}

func TestPatternTypeText(t *testing.T) {
	for _, p := range []PatternType{Chessboard, CirclesGrid, AsymmetricCirclesGrid} {
		text, err := p.MarshalText()
		test.That(t, err, test.ShouldBeNil)
		var back PatternType
		test.That(t, back.UnmarshalText(text), test.ShouldBeNil)
		test.That(t, back, test.ShouldEqual, p)
	}
	_, err := PatternTypeFromString("hexagons")
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
	_, err = PatternType(7).MarshalText()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCalibrateRecoversCamera(t *testing.T) {
	truth := transform.DistortionCoefficients{-0.2, 0.05, 0.001, -0.0005}
	s := calibratedSession(t, truth, 0)
	test.That(t, s.Ready(), test.ShouldBeTrue)
	test.That(t, s.ReprojectionError(), test.ShouldBeLessThan, 0.01)

	k := s.DistortedIntrinsics().CameraMatrix()
	test.That(t, k.Fx, test.ShouldAlmostEqual, testK.Fx, 0.1)
	test.That(t, k.Fy, test.ShouldAlmostEqual, testK.Fy, 0.1)
	test.That(t, k.Cx, test.ShouldAlmostEqual, testK.Cx, 0.1)
	test.That(t, k.Cy, test.ShouldAlmostEqual, testK.Cy, 0.1)

	d := s.DistortionCoefficients()
	test.That(t, d.K1(), test.ShouldAlmostEqual, truth.K1(), 1e-3)
	test.That(t, d.K2(), test.ShouldAlmostEqual, truth.K2(), 1e-2)
	test.That(t, d.P1(), test.ShouldAlmostEqual, truth.P1(), 1e-3)
	test.That(t, d.P2(), test.ShouldAlmostEqual, truth.P2(), 1e-3)
	test.That(t, d.K3(), test.ShouldAlmostEqual, 0, 5e-2)

	test.That(t, s.Size(), test.ShouldEqual, len(testRotations))
	test.That(t, s.PerViewErrors(), test.ShouldHaveLength, len(testRotations))
	test.That(t, s.Poses(), test.ShouldHaveLength, len(testRotations))
	test.That(t, s.UndistortedIntrinsics(), test.ShouldNotBeNil)
}

func TestCalibrateWithNoise(t *testing.T) {
	truth := transform.DistortionCoefficients{-0.15}
	s := calibratedSession(t, truth, 0.1, WithSolverFlags(FixK2|FixK3|ZeroTangentDist))

	test.That(t, s.ReprojectionError(), test.ShouldBeLessThan, 0.5)
	k := s.DistortedIntrinsics().CameraMatrix()
	test.That(t, math.Abs(k.Fx-testK.Fx)/testK.Fx, test.ShouldBeLessThan, 0.01)
	test.That(t, math.Abs(k.Fy-testK.Fy)/testK.Fy, test.ShouldBeLessThan, 0.01)

	d := s.DistortionCoefficients()
	test.That(t, d.K1(), test.ShouldAlmostEqual, truth.K1(), 0.01)
	test.That(t, d.K2(), test.ShouldEqual, 0.)
	test.That(t, d.P1(), test.ShouldEqual, 0.)
	test.That(t, d.P2(), test.ShouldEqual, 0.)
	test.That(t, d.K3(), test.ShouldEqual, 0.)

	stats, err := s.ReprojectionStats()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Median, test.ShouldBeLessThanOrEqualTo, stats.P90)
	test.That(t, stats.P90, test.ShouldBeLessThanOrEqualTo, stats.Max)
	for i := range testRotations {
		e, err := s.ReprojectionErrorAt(i)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, e, test.ShouldBeLessThanOrEqualTo, stats.Max)
	}
	_, err = s.ReprojectionErrorAt(len(testRotations))
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
}

func TestCalibrateUndistortedCamera(t *testing.T) {
	// eight noisy views of a distortion free camera solved with the default model
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	poses := posesAt(object, frameRotations, frameOffsets)
	clean := projectViews(testK, transform.DistortionCoefficients{}, poses, object, 0, 1)
	for _, view := range clean {
		for _, p := range view {
			test.That(t, p.X, test.ShouldBeBetween, 0., float64(testImage.X-1))
			test.That(t, p.Y, test.ShouldBeBetween, 0., float64(testImage.Y-1))
		}
	}

	s := newTestSession(t)
	addViews(t, s, projectViews(testK, transform.DistortionCoefficients{}, poses, object, 0.1, 1))
	test.That(t, s.Calibrate(), test.ShouldBeNil)
	test.That(t, s.Ready(), test.ShouldBeTrue)
	test.That(t, s.ReprojectionError(), test.ShouldBeLessThan, 0.5)

	k := s.DistortedIntrinsics().CameraMatrix()
	test.That(t, math.Abs(k.Fx-testK.Fx)/testK.Fx, test.ShouldBeLessThan, 0.01)
	test.That(t, math.Abs(k.Fy-testK.Fy)/testK.Fy, test.ShouldBeLessThan, 0.01)

	// the radial terms trade off against each other under noise; their combined effect on
	// every observed point stays below a pixel
	d := s.DistortionCoefficients()
	test.That(t, d.P1(), test.ShouldAlmostEqual, 0, 2e-3)
	test.That(t, d.P2(), test.ShouldAlmostEqual, 0, 2e-3)
	test.That(t, d.K1(), test.ShouldAlmostEqual, 0, 0.03)
	test.That(t, d.K2(), test.ShouldAlmostEqual, 0, 0.5)
	test.That(t, d.K3(), test.ShouldAlmostEqual, 0, 1.5)
	for i, pose := range s.Poses() {
		distorted := transform.ProjectPoints(k, d, pose, object)
		ideal := transform.ProjectPoints(k, transform.DistortionCoefficients{}, pose, object)
		for j := range ideal {
			test.That(t, distorted[j].Sub(ideal[j]).Norm(), test.ShouldBeLessThan, 1)
		}
		test.That(t, s.PerViewErrors()[i], test.ShouldBeLessThan, 0.5)
	}
}

func TestCalibrateFixedModel(t *testing.T) {
	s := calibratedSession(t, transform.DistortionCoefficients{}, 0.05,
		WithSolverFlags(FixPrincipalPoint|FixAspectRatio|ZeroTangentDist|FixK3))
	k := s.DistortedIntrinsics().CameraMatrix()
	test.That(t, k.Cx, test.ShouldEqual, float64(testImage.X-1)/2)
	test.That(t, k.Cy, test.ShouldEqual, float64(testImage.Y-1)/2)
	test.That(t, k.Fy, test.ShouldEqual, k.Fx)
	test.That(t, k.Fx, test.ShouldAlmostEqual, testK.Fx, 8)
}

func TestCalibrateIsIdempotent(t *testing.T) {
	s := calibratedSession(t, transform.DistortionCoefficients{-0.1}, 0.1)
	k := s.DistortedIntrinsics().CameraMatrix()
	d := s.DistortionCoefficients()
	rms := s.ReprojectionError()

	test.That(t, s.Calibrate(), test.ShouldBeNil)
	again := s.DistortedIntrinsics().CameraMatrix()
	test.That(t, again.Fx, test.ShouldAlmostEqual, k.Fx, 1e-9)
	test.That(t, again.Cy, test.ShouldAlmostEqual, k.Cy, 1e-9)
	test.That(t, s.DistortionCoefficients().K1(), test.ShouldAlmostEqual, d.K1(), 1e-12)
	test.That(t, s.ReprojectionError(), test.ShouldAlmostEqual, rms, 1e-12)
}

func TestCalibrateDivergedKeepsModel(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s := NewSession(logger, WithPatternSize(testPattern), WithSquareSize(testSquare))
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	addViews(t, s, projectViews(testK, transform.DistortionCoefficients{-0.1}, boardPoses(object), object, 0, 1))
	test.That(t, s.Calibrate(), test.ShouldBeNil)
	k := s.DistortedIntrinsics().CameraMatrix()
	d := s.DistortionCoefficients()
	src := rimage.NewSamples(testImage.X, testImage.Y, 1, rimage.Depth8)
	_, err := s.Undistort(src, rimage.Linear)
	test.That(t, err, test.ShouldBeNil)

	// every corner of the extra view lands on one pixel
	collapsed := make([]r2.Point, testPattern.Count())
	for i := range collapsed {
		collapsed[i] = r2.Point{X: 10, Y: 10}
	}
	test.That(t, s.AddImagePoints(collapsed, testImage), test.ShouldBeNil)

	err = s.Calibrate()
	test.That(t, errors.Is(err, ErrCalibrationDiverged), test.ShouldBeTrue)
	test.That(t, s.Ready(), test.ShouldBeFalse)
	test.That(t, s.DistortedIntrinsics().CameraMatrix(), test.ShouldResemble, k)
	test.That(t, s.DistortionCoefficients(), test.ShouldResemble, d)
	test.That(t, s.Size(), test.ShouldEqual, len(testRotations)+1)
	test.That(t, logging.FilterMessages(logs, logging.ERROR, "failed to calibrate"), test.ShouldHaveLength, 1)

	_, err = s.Undistort(src, rimage.Linear)
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	// points still go through the kept model
	p, err := s.UndistortPoint(r2.Point{X: 100, Y: 100})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldResemble, d.Undistort(k.Normalize(r2.Point{X: 100, Y: 100})))
}

func TestCleanDropsOutliers(t *testing.T) {
	s := newTestSession(t)
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	poses := boardPoses(object)
	good := projectViews(testK, transform.DistortionCoefficients{}, poses[:7], object, 0.1, 2)
	bad := projectViews(testK, transform.DistortionCoefficients{}, poses[7:], object, 3, 3)
	addViews(t, s, append(good, bad...))
	test.That(t, s.Calibrate(), test.ShouldBeNil)
	before := s.ReprojectionError()
	worst, err := s.ReprojectionErrorAt(7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, worst, test.ShouldBeGreaterThan, DefaultMaxReprojectionError)

	test.That(t, s.Clean(DefaultMaxReprojectionError), test.ShouldBeNil)
	test.That(t, s.Size(), test.ShouldEqual, 7)
	test.That(t, s.Ready(), test.ShouldBeTrue)
	test.That(t, s.ReprojectionError(), test.ShouldBeLessThan, before)
	for _, e := range s.PerViewErrors() {
		test.That(t, e, test.ShouldBeLessThanOrEqualTo, DefaultMaxReprojectionError)
	}

	// nothing above the threshold leaves the views alone
	test.That(t, s.Clean(DefaultMaxReprojectionError), test.ShouldBeNil)
	test.That(t, s.Size(), test.ShouldEqual, 7)
}

func TestCleanKeepsLastView(t *testing.T) {
	s := newTestSession(t)
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	addViews(t, s, projectViews(testK, transform.DistortionCoefficients{}, boardPoses(object)[:1], object, 5, 4))
	test.That(t, s.Calibrate(), test.ShouldBeNil)
	k := s.DistortedIntrinsics().CameraMatrix()
	rms := s.ReprojectionError()
	test.That(t, rms, test.ShouldBeGreaterThan, 0.01)

	err := s.Clean(0.01)
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "would remove all 1 views")
	test.That(t, s.Size(), test.ShouldEqual, 1)
	test.That(t, s.Ready(), test.ShouldBeTrue)
	test.That(t, s.DistortedIntrinsics().CameraMatrix(), test.ShouldResemble, k)
	test.That(t, s.ReprojectionError(), test.ShouldEqual, rms)
}

func TestCleanRequiresCalibration(t *testing.T) {
	s := newTestSession(t)
	err := s.Clean(1)
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
}

func TestEmptySession(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s := NewSession(logger)
	test.That(t, s.Ready(), test.ShouldBeFalse)
	test.That(t, s.PatternSize(), test.ShouldResemble, DefaultPatternSize)
	test.That(t, s.SquareSize(), test.ShouldEqual, DefaultSquareSize)
	test.That(t, s.PatternType(), test.ShouldEqual, Chessboard)
	test.That(t, s.FillFrame(), test.ShouldBeTrue)

	err := s.Calibrate()
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)
	test.That(t, s.Ready(), test.ShouldBeFalse)
	test.That(t, logging.FilterMessages(logs, logging.ERROR, "no views"), test.ShouldHaveLength, 1)

	img := rimage.NewSamples(8, 8, 1, rimage.Depth8)
	_, err = s.Undistort(img, rimage.Linear)
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	_, err = s.UndistortPoint(r2.Point{X: 1, Y: 1})
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	_, err = s.ReprojectionStats()
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	test.That(t, errors.Is(s.Save(t.TempDir()+"/cam.json"), ErrPrecondition), test.ShouldBeTrue)
}

func TestCalibrateRejectsMismatchedViews(t *testing.T) {
	s := newTestSession(t)
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	addViews(t, s, projectViews(testK, transform.DistortionCoefficients{}, boardPoses(object), object, 0, 1))
	s.SetPatternSize(8, 6)
	err := s.Calibrate()
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	test.That(t, s.Ready(), test.ShouldBeFalse)

	err = s.AddImagePoints(make([]r2.Point, 3), testImage)
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
	err = s.AddImagePoints(make([]r2.Point, 48), image.Point{})
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
}

func TestUndistortZeroDistortion(t *testing.T) {
	s := newTestSession(t)
	intrinsics, err := transform.NewIntrinsics(testK, testImage, r2.Point{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.SetDistortionCoefficients(), test.ShouldBeNil)
	test.That(t, s.SetIntrinsics(intrinsics), test.ShouldBeNil)
	test.That(t, s.Ready(), test.ShouldBeTrue)

	for _, p := range []r2.Point{{0, 0}, {320, 240}, {17.5, 400.25}, {639, 479}} {
		got, err := s.UndistortPoint(p)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldResemble, testK.Normalize(p))
	}
	pixels, err := s.UndistortPixels([]r2.Point{{100, 100}, {320, 240}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pixels[0].X, test.ShouldAlmostEqual, 100, 1e-9)
	test.That(t, pixels[1].Y, test.ShouldAlmostEqual, 240, 1e-9)

	src := rimage.NewSamples(testImage.X, testImage.Y, 1, rimage.Depth8)
	for y := 0; y < testImage.Y; y++ {
		for x := 0; x < testImage.X; x++ {
			src.SetSample(x, y, 0, float64((x+y)%256))
		}
	}
	out, err := s.Undistort(src, rimage.Nearest)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Sample(200, 100, 0), test.ShouldEqual, src.Sample(200, 100, 0))
	test.That(t, out.Sample(639, 479, 0), test.ShouldEqual, src.Sample(639, 479, 0))
}

func TestUndistortChecksSize(t *testing.T) {
	s := calibratedSession(t, transform.DistortionCoefficients{-0.2}, 0)
	small := rimage.NewSamples(32, 32, 3, rimage.Depth8)
	_, err := s.Undistort(small, rimage.Linear)
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)

	src := rimage.NewSamples(testImage.X, testImage.Y, 3, rimage.Depth8)
	test.That(t, s.UndistortInto(src, small, rimage.Linear), test.ShouldNotBeNil)
	dst := rimage.NewSamplesLike(src)
	test.That(t, s.UndistortInto(src, dst, rimage.Cubic), test.ShouldBeNil)

	// changing the geometry makes the remap stale; the crop policy rebuilds it
	s.SetSquareSize(30)
	_, err = s.Undistort(src, rimage.Linear)
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
	s.SetFillFrame(false)
	_, err = s.Undistort(src, rimage.Linear)
	test.That(t, err, test.ShouldBeNil)
}

func TestUndistortPointInvertsDistortion(t *testing.T) {
	truth := transform.DistortionCoefficients{-0.2, 0.05, 0.001, -0.0005}
	s := newTestSession(t)
	intrinsics, err := transform.NewIntrinsics(testK, testImage, r2.Point{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.SetDistortionCoefficients(truth.Parameters()...), test.ShouldBeNil)
	test.That(t, s.SetIntrinsics(intrinsics), test.ShouldBeNil)

	ideal := r2.Point{X: 0.2, Y: -0.15}
	distorted := testK.Denormalize(truth.Distort(ideal))
	got, err := s.UndistortPoint(distorted)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Sub(ideal).Norm(), test.ShouldBeLessThan, 1e-6)

	test.That(t, s.SetDistortionCoefficients(math.NaN()), test.ShouldNotBeNil)
	test.That(t, s.DistortionCoefficients(), test.ShouldResemble, truth)
}

func TestAddPatternNotFound(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	s := NewSession(logger, WithBackend(&queuedBackend{}))
	err := s.Add(rimage.NewSamples(64, 48, 1, rimage.Depth8))
	test.That(t, errors.Is(err, ErrPatternNotFound), test.ShouldBeTrue)
	test.That(t, s.Size(), test.ShouldEqual, 0)
	test.That(t, s.ImageSize(), test.ShouldResemble, image.Point{X: 64, Y: 48})
	test.That(t, logging.FilterMessages(logs, logging.ERROR, "check the pattern size"), test.ShouldHaveLength, 1)

	_, _, err = s.FindBoard(nil)
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
}

func TestAddWithBackend(t *testing.T) {
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	views := projectViews(testK, transform.DistortionCoefficients{}, boardPoses(object), object, 0, 1)
	backend := &queuedBackend{found: views}
	s := newTestSession(t, WithBackend(backend))
	img := rimage.NewSamples(testImage.X, testImage.Y, 3, rimage.Depth8)
	for range views {
		test.That(t, s.Add(img), test.ShouldBeNil)
	}
	test.That(t, backend.calls, test.ShouldEqual, len(views))
	test.That(t, s.ImagePoints()[3], test.ShouldResemble, views[3])
	test.That(t, s.Calibrate(), test.ShouldBeNil)
	test.That(t, s.ReprojectionError(), test.ShouldBeLessThan, 0.01)

	s.Reset()
	test.That(t, s.Ready(), test.ShouldBeFalse)
	test.That(t, s.Size(), test.ShouldEqual, 0)
}

func TestAddImagesRendered(t *testing.T) {
	size := detection.GridSize{Cols: 7, Rows: 5}
	target := detection.ChessboardTarget{Size: size, Square: 30}
	h, err := transform.NewHomography(transform.Matrix3{{1, 0, 60}, {0, 1, 60}, {0, 0, 1}})
	test.That(t, err, test.ShouldBeNil)
	board := rimage.FromImage(detection.Render(target, 420, 360, h))
	blank := rimage.FromImage(image.NewGray(image.Rect(0, 0, 420, 360)))

	s := NewSession(logging.NewTestLogger(t), WithPatternSize(size), WithSquareSize(30))
	found, err := s.AddImages(context.Background(), []rimage.Buffer{board, blank, board})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldResemble, []bool{true, false, true})
	test.That(t, s.Size(), test.ShouldEqual, 2)
	test.That(t, s.ImageSize(), test.ShouldResemble, image.Point{X: 420, Y: 360})

	want := target.Features()
	got := s.ImagePoints()[0]
	for i := range want {
		test.That(t, got[i].Sub(h.Apply(want[i])).Norm(), test.ShouldBeLessThan, 0.5)
	}

	// a miss still updates the remembered size, as Add does
	small := rimage.FromImage(image.NewGray(image.Rect(0, 0, 200, 100)))
	found, err = s.AddImages(context.Background(), []rimage.Buffer{small})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldResemble, []bool{false})
	test.That(t, s.Size(), test.ShouldEqual, 2)
	test.That(t, s.ImageSize(), test.ShouldResemble, image.Point{X: 200, Y: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.AddImages(ctx, []rimage.Buffer{board})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, s.Size(), test.ShouldEqual, 2)
}

func TestEstimatePose(t *testing.T) {
	d := transform.DistortionCoefficients{-0.2, 0.05}
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	for i, truth := range boardPoses(object) {
		observed := transform.ProjectPoints(testK, d, truth, object)
		pose, err := EstimatePose(testK, d, object, observed)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose.Rotation.Sub(truth.Rotation).Norm(), test.ShouldBeLessThan, 1e-6)
		test.That(t, pose.Translation.Sub(truth.Translation).Norm(), test.ShouldBeLessThan, 1e-4)
		if i == 0 {
			_, err = EstimatePose(testK, d, object[:3], observed[:3])
			test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)
			_, err = EstimatePose(testK, d, object, observed[:4])
			test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
		}
	}
}
