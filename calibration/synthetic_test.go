package calibration

import (
	"image"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/camcalib/rimage/detection"
	"go.viam.com/camcalib/rimage/transform"
)

var (
	testPattern = detection.GridSize{Cols: 9, Rows: 6}
	testSquare  = 25.
	testImage   = image.Point{X: 640, Y: 480}
	testK       = transform.CameraMatrix{Fx: 800, Fy: 800, Cx: 320, Cy: 240}

	// board tilts and offsets, in radians and millimeters, of the synthetic views
	testRotations = []r3.Vector{
		{0.3, 0, 0},
		{-0.3, 0.1, 0},
		{0, 0.35, 0.1},
		{0, -0.3, -0.1},
		{0.25, 0.25, 0.2},
		{-0.2, -0.25, 0},
		{0.15, -0.35, 0.3},
		{-0.35, 0.2, -0.2},
	}
	testOffsets = []r3.Vector{
		{0, 0, 520},
		{20, -10, 560},
		{-30, 15, 540},
		{25, 20, 600},
		{-15, -20, 500},
		{10, 30, 580},
		{-25, -5, 550},
		{30, -25, 590},
	}

	// views that keep the whole board in the image while reaching its edges and corners
	frameRotations = []r3.Vector{
		{-0.2, 0.01, 0.1},
		{-0.39, -0.1, -0.16},
		{0.14, 0.26, -0.06},
		{0.48, -0.05, -0.07},
		{-0.45, -0.45, 0.16},
		{-0.22, -0.2, 0.26},
		{0.38, -0.28, -0.11},
		{-0.01, -0.05, -0.02},
	}
	frameOffsets = []r3.Vector{
		{-14, -10, 393},
		{-34, 26, 376},
		{27, 26, 388},
		{50, -46, 406},
		{69, 35, 400},
		{51, -6, 411},
		{16, -3, 305},
		{7, -26, 346},
	}
)

// boardPoses places the board so that its center sits at each test offset in the camera frame.
func boardPoses(object []r3.Vector) []transform.Pose {
	return posesAt(object, testRotations, testOffsets)
}

func posesAt(object, rotations, offsets []r3.Vector) []transform.Pose {
	center := object[len(object)-1].Mul(0.5)
	poses := make([]transform.Pose, len(rotations))
	for i, rvec := range rotations {
		rot := transform.RotationFromVector(rvec)
		poses[i] = transform.Pose{Rotation: rvec, Translation: offsets[i].Sub(rot.MulVec(center))}
	}
	return poses
}

// projectViews images the object in every pose and adds seeded Gaussian noise of sigma pixels.
func projectViews(
	k transform.CameraMatrix,
	d transform.DistortionCoefficients,
	poses []transform.Pose,
	object []r3.Vector,
	sigma float64,
	seed int64,
) [][]r2.Point {
	rng := rand.New(rand.NewSource(seed))
	views := make([][]r2.Point, len(poses))
	for i, pose := range poses {
		pts := transform.ProjectPoints(k, d, pose, object)
		for j := range pts {
			pts[j].X += rng.NormFloat64() * sigma
			pts[j].Y += rng.NormFloat64() * sigma
		}
		views[i] = pts
	}
	return views
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	base := []Option{WithPatternSize(testPattern), WithSquareSize(testSquare)}
	return NewSession(nil, append(base, opts...)...)
}

// addViews records views directly, bypassing detection.
func addViews(t *testing.T, s *Session, views [][]r2.Point) {
	t.Helper()
	for _, v := range views {
		test.That(t, s.AddImagePoints(v, testImage), test.ShouldBeNil)
	}
}

// calibratedSession returns a session calibrated from the eight synthetic views.
func calibratedSession(t *testing.T, d transform.DistortionCoefficients, sigma float64, opts ...Option) *Session {
	t.Helper()
	s := newTestSession(t, opts...)
	object := ObjectPoints(testPattern, testSquare, Chessboard)
	addViews(t, s, projectViews(testK, d, boardPoses(object), object, sigma, 1))
	test.That(t, s.Calibrate(), test.ShouldBeNil)
	return s
}

// queuedBackend returns prepared detections in order, reporting a miss once they run out.
type queuedBackend struct {
	found [][]r2.Point
	calls int
}

func (b *queuedBackend) next() ([]r2.Point, bool, error) {
	if b.calls >= len(b.found) {
		return nil, false, nil
	}
	pts := b.found[b.calls]
	b.calls++
	return pts, pts != nil, nil
}

func (b *queuedBackend) FindChessboardCorners(*image.Gray, detection.GridSize) ([]r2.Point, bool, error) {
	return b.next()
}

func (b *queuedBackend) FindCirclesGrid(*image.Gray, detection.GridSize, bool) ([]r2.Point, bool, error) {
	return b.next()
}

func (b *queuedBackend) RefineCorners(_ *image.Gray, corners []r2.Point, _ int, _ detection.TermCriteria) []r2.Point {
	return corners
}
