package calibration

import (
	"context"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/utils"
)

// DefaultMaxReprojectionError is the per-view error, in pixels, above which Clean drops a view.
const DefaultMaxReprojectionError = 2.0

// Defaults of a new session.
var (
	DefaultPatternSize = detection.GridSize{Cols: 10, Rows: 7}
	DefaultSquareSize  = 2.5
)

// Session accumulates pattern observations of one camera, solves its intrinsic model and
// undistorts images and points with it. A Session is not safe for concurrent use.
type Session struct {
	logger  logging.Logger
	backend DetectorBackend

	patternSize    detection.GridSize
	squareSize     float64
	patternType    PatternType
	subpixelWindow int
	fillFrame      bool
	flags          SolverFlags
	solverOptions  SolverOptions
	sensorSize     r2.Point

	imageSize    image.Point
	imagePoints  [][]r2.Point
	objectPoints [][]r3.Vector
	poses        []transform.Pose

	distortion        transform.DistortionCoefficients
	distorted         *transform.Intrinsics
	undistorted       *transform.Intrinsics
	reprojectionError float64
	perViewErrors     []float64
	ready             bool
	remap             *rimage.RemapTable
}

// Option configures a Session at construction.
type Option func(*Session)

// WithPatternSize sets the number of pattern features per row and column.
func WithPatternSize(size detection.GridSize) Option {
	return func(s *Session) { s.patternSize = size }
}

// WithSquareSize sets the physical distance between neighbouring features.
func WithSquareSize(size float64) Option {
	return func(s *Session) { s.squareSize = size }
}

// WithPatternType sets the pattern family.
func WithPatternType(t PatternType) Option {
	return func(s *Session) { s.patternType = t }
}

// WithSubpixelWindow sets the corner refinement half-window.
func WithSubpixelWindow(window int) Option {
	return func(s *Session) { s.subpixelWindow = window }
}

// WithFillFrame selects whether undistortion crops to valid pixels.
func WithFillFrame(fill bool) Option {
	return func(s *Session) { s.fillFrame = fill }
}

// WithSolverFlags selects the parts of the camera model held fixed.
func WithSolverFlags(flags SolverFlags) Option {
	return func(s *Session) { s.flags = flags }
}

// WithSolverOptions bounds the solver iterations.
func WithSolverOptions(opts SolverOptions) Option {
	return func(s *Session) { s.solverOptions = opts }
}

// WithSensorSize sets the physical sensor size reported through the solved intrinsics.
func WithSensorSize(size r2.Point) Option {
	return func(s *Session) { s.sensorSize = size }
}

// WithBackend replaces the pattern detector.
func WithBackend(backend DetectorBackend) Option {
	return func(s *Session) { s.backend = backend }
}

// NewSession returns an empty session observing a 10x7 chessboard of 2.5 unit squares.
func NewSession(logger logging.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	s := &Session{
		logger:         logger,
		backend:        DefaultBackend(),
		patternSize:    DefaultPatternSize,
		squareSize:     DefaultSquareSize,
		patternType:    Chessboard,
		subpixelWindow: DefaultSubpixelWindow,
		fillFrame:      true,
		solverOptions:  DefaultSolverOptions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) invalidateRemap() {
	s.remap = nil
	s.undistorted = nil
}

// SetPatternSize changes the pattern geometry. The undistortion remap must be rebuilt by a
// new Calibrate or Load.
func (s *Session) SetPatternSize(cols, rows int) {
	s.patternSize = detection.GridSize{Cols: cols, Rows: rows}
	s.invalidateRemap()
}

// SetSquareSize changes the physical feature spacing.
func (s *Session) SetSquareSize(size float64) {
	s.squareSize = size
	s.invalidateRemap()
}

// SetPatternType changes the pattern family.
func (s *Session) SetPatternType(t PatternType) {
	s.patternType = t
	s.invalidateRemap()
}

// SetSubpixelWindow changes the corner refinement half-window; values below 2 are raised to 2.
func (s *Session) SetSubpixelWindow(window int) {
	s.subpixelWindow = utils.ClampInt(window, 2, math.MaxInt32)
	s.invalidateRemap()
}

// SetSolverFlags changes which parts of the model the next Calibrate estimates.
func (s *Session) SetSolverFlags(flags SolverFlags) {
	s.flags = flags
	s.invalidateRemap()
}

// SetBackend replaces the pattern detector.
func (s *Session) SetBackend(backend DetectorBackend) {
	s.backend = backend
	s.invalidateRemap()
}

// SetFillFrame selects whether undistortion crops to valid pixels, rebuilding the remap if the
// session is ready.
func (s *Session) SetFillFrame(fill bool) {
	s.fillFrame = fill
	s.invalidateRemap()
	if s.ready {
		s.updateUndistortion()
	}
}

// FindBoard detects the pattern in img with the session's geometry without recording it.
func (s *Session) FindBoard(img rimage.Buffer) ([]r2.Point, bool, error) {
	return FindPattern(s.backend, img, s.patternSize, s.patternType, true, s.subpixelWindow)
}

// Add detects the pattern in img and records the points. The session remembers img's size
// either way. A missing pattern returns an error wrapping ErrPatternNotFound.
func (s *Session) Add(img rimage.Buffer) error {
	if img != nil {
		s.imageSize = rimage.Size(img)
	}
	points, found, err := s.FindBoard(img)
	if err != nil {
		s.logger.Errorw("pattern detection failed", "error", err)
		return err
	}
	if !found {
		s.logger.Errorw("pattern not found, check the pattern size and the lighting",
			"pattern", s.patternType.String(),
			"cols", s.patternSize.Cols,
			"rows", s.patternSize.Rows)
		return errors.Wrapf(ErrPatternNotFound, "%s %dx%d", s.patternType, s.patternSize.Cols, s.patternSize.Rows)
	}
	s.imagePoints = append(s.imagePoints, points)
	return nil
}

// AddImagePoints records points detected elsewhere for an image of the given size.
func (s *Session) AddImagePoints(points []r2.Point, imageSize image.Point) error {
	if len(points) != s.patternSize.Count() {
		return newInvalidArgumentError("expected %d points, got %d", s.patternSize.Count(), len(points))
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return newInvalidArgumentError("image size must be positive, got %v", imageSize)
	}
	s.imageSize = imageSize
	s.imagePoints = append(s.imagePoints, append([]r2.Point(nil), points...))
	return nil
}

// AddImages detects the pattern in every image concurrently and records the found ones in
// input order. Like Add, every image updates the remembered size. It returns, per image,
// whether the pattern was found.
func (s *Session) AddImages(ctx context.Context, imgs []rimage.Buffer) ([]bool, error) {
	results := make([][]r2.Point, len(imgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(utils.ParallelFactor)
	for i, img := range imgs {
		i, img := i, img
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			points, found, err := s.FindBoard(img)
			if err != nil {
				return errors.Wrapf(err, "image %d", i)
			}
			if found {
				results[i] = points
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	found := make([]bool, len(imgs))
	for i, points := range results {
		if imgs[i] != nil {
			s.imageSize = rimage.Size(imgs[i])
		}
		if points == nil {
			s.logger.Warnw("pattern not found", "image", i)
			continue
		}
		found[i] = true
		s.imagePoints = append(s.imagePoints, points)
	}
	return found, nil
}

// Calibrate solves the camera model from the recorded views. On failure the session is not
// ready but keeps any previously solved model.
func (s *Session) Calibrate() error {
	if len(s.imagePoints) == 0 {
		if s.ready {
			s.logger.Error("no views to calibrate from; a loaded calibration does not need Calibrate")
		} else {
			s.logger.Error("no views to calibrate from")
		}
		return errors.Wrap(ErrInsufficientData, "no views to calibrate from")
	}
	n := s.patternSize.Count()
	for i, pts := range s.imagePoints {
		if len(pts) != n {
			return newPreconditionError("view %d has %d points, pattern has %d", i, len(pts), n)
		}
	}

	object := ObjectPoints(s.patternSize, s.squareSize, s.patternType)
	objectPoints := lo.Times(len(s.imagePoints), func(int) []r3.Vector { return object })

	sol, err := calibrateCamera(objectPoints, s.imagePoints, s.imageSize, s.flags, s.solverOptions)
	if errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrPrecondition) {
		s.logger.Errorw("cannot calibrate", "error", err)
		return err
	}
	if err == nil {
		var intrinsics *transform.Intrinsics
		intrinsics, err = transform.NewIntrinsics(sol.cameraMatrix, s.imageSize, s.sensorSize)
		if err == nil {
			s.logger.Debugw("camera solved", "rms", sol.rms, "iterations", sol.iterations)
			s.objectPoints = objectPoints
			s.poses = sol.poses
			s.distortion = sol.distortion
			s.distorted = intrinsics
			s.ready = true
			s.updateReprojectionError()
			s.updateUndistortion()
			s.logger.Infow("calibrated", "views", len(s.imagePoints), "reprojection_error", s.reprojectionError)
			return nil
		}
		err = errors.Wrap(ErrCalibrationDiverged, err.Error())
	}
	s.ready = false
	s.invalidateRemap()
	s.logger.Errorw("failed to calibrate the camera", "error", err)
	return err
}

// Clean drops every view whose reprojection error exceeds maxError and recalibrates if any
// were dropped. It refuses, leaving the session untouched, when every view would go.
func (s *Session) Clean(maxError float64) error {
	if len(s.perViewErrors) != len(s.imagePoints) || len(s.imagePoints) == 0 {
		return newPreconditionError("clean requires a calibrated session")
	}
	keep := lo.Filter(lo.Range(len(s.imagePoints)), func(i, _ int) bool {
		return s.perViewErrors[i] <= maxError
	})
	if len(keep) == 0 {
		s.logger.Errorw("clean would remove every view", "views", len(s.imagePoints), "max_error", maxError)
		return newPreconditionError("clean would remove all %d views", len(s.imagePoints))
	}
	removed := len(s.imagePoints) - len(keep)
	if removed == 0 {
		return nil
	}
	s.logger.Infow("removing views above the reprojection threshold", "removed", removed, "max_error", maxError)
	s.imagePoints = lo.Map(keep, func(i, _ int) []r2.Point { return s.imagePoints[i] })
	s.objectPoints = nil
	s.poses = nil
	s.perViewErrors = nil
	return s.Calibrate()
}

func (s *Session) updateReprojectionError() {
	s.perViewErrors, s.reprojectionError = viewErrors(
		s.distorted.CameraMatrix(), s.distortion, s.poses, s.objectPoints, s.imagePoints)
	for i, e := range s.perViewErrors {
		s.logger.Debugw("view reprojection error", "view", i, "error", e)
	}
}

func (s *Session) updateUndistortion() {
	if s.distorted == nil {
		return
	}
	alpha := 1.
	if s.fillFrame {
		alpha = 0
	}
	k := s.distorted.CameraMatrix()
	size := s.distorted.ImageSize()
	newK := transform.OptimalNewCameraMatrix(k, s.distortion, size, alpha)
	undistorted, err := transform.NewIntrinsics(newK, size, s.distorted.SensorSize())
	if err != nil {
		s.logger.Errorw("cannot build the undistorted camera", "error", err)
		s.invalidateRemap()
		return
	}
	s.undistorted = undistorted
	s.remap = transform.NewUndistortMap(k, s.distortion, newK, size)
}

// Reset drops every observation and the solved state; the pattern configuration is kept.
func (s *Session) Reset() {
	s.ready = false
	s.reprojectionError = 0
	s.imagePoints = nil
	s.objectPoints = nil
	s.poses = nil
	s.perViewErrors = nil
	s.invalidateRemap()
}

// SetDistortionCoefficients replaces the lens model, k1, k2, p1, p2, k3, k4, k5, k6.
// Missing trailing coefficients are zero. A ready session rebuilds its remap.
func (s *Session) SetDistortionCoefficients(coefficients ...float64) error {
	d, err := transform.NewDistortionCoefficients(coefficients)
	if err != nil {
		return errors.Wrap(ErrInvalidArgument, err.Error())
	}
	if err := d.CheckValid(); err != nil {
		return err
	}
	s.distortion = d
	s.invalidateRemap()
	if s.ready {
		s.updateUndistortion()
	}
	return nil
}

// SetIntrinsics adopts a camera model obtained elsewhere and makes the session ready.
func (s *Session) SetIntrinsics(intrinsics *transform.Intrinsics) error {
	if intrinsics == nil {
		return newInvalidArgumentError("no intrinsics")
	}
	if err := intrinsics.CameraMatrix().CheckValid(); err != nil {
		return err
	}
	if err := s.distortion.CheckValid(); err != nil {
		return err
	}
	s.distorted = intrinsics
	s.imageSize = intrinsics.ImageSize()
	s.poses = nil
	s.perViewErrors = nil
	s.ready = true
	s.updateUndistortion()
	return nil
}

// Ready reports whether the session holds a usable camera model.
func (s *Session) Ready() bool { return s.ready }

// Size returns the number of recorded views.
func (s *Session) Size() int { return len(s.imagePoints) }

// ImageSize returns the size of the last image added, or of the loaded model.
func (s *Session) ImageSize() image.Point { return s.imageSize }

// PatternSize returns the pattern geometry.
func (s *Session) PatternSize() detection.GridSize { return s.patternSize }

// SquareSize returns the physical feature spacing.
func (s *Session) SquareSize() float64 { return s.squareSize }

// PatternType returns the pattern family.
func (s *Session) PatternType() PatternType { return s.patternType }

// FillFrame reports the undistortion crop policy.
func (s *Session) FillFrame() bool { return s.fillFrame }

// DistortedIntrinsics returns the solved camera, nil before the first solve or load.
func (s *Session) DistortedIntrinsics() *transform.Intrinsics { return s.distorted }

// UndistortedIntrinsics returns the camera of undistorted images, nil without a remap.
func (s *Session) UndistortedIntrinsics() *transform.Intrinsics { return s.undistorted }

// DistortionCoefficients returns the lens model.
func (s *Session) DistortionCoefficients() transform.DistortionCoefficients { return s.distortion }

// ReprojectionError returns the RMS reprojection error over every point of every view.
func (s *Session) ReprojectionError() float64 { return s.reprojectionError }

// ReprojectionErrorAt returns the RMS reprojection error of view i.
func (s *Session) ReprojectionErrorAt(i int) (float64, error) {
	if i < 0 || i >= len(s.perViewErrors) {
		return 0, newInvalidArgumentError("no reprojection error for view %d of %d", i, len(s.perViewErrors))
	}
	return s.perViewErrors[i], nil
}

// PerViewErrors returns a copy of the per-view RMS errors of the last solve.
func (s *Session) PerViewErrors() []float64 {
	return append([]float64(nil), s.perViewErrors...)
}

// ErrorStats summarizes the per-view reprojection errors.
type ErrorStats struct {
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// ReprojectionStats summarizes the per-view errors of the last solve.
func (s *Session) ReprojectionStats() (ErrorStats, error) {
	if len(s.perViewErrors) == 0 {
		return ErrorStats{}, newPreconditionError("no per-view errors, calibrate first")
	}
	data := stats.Float64Data(s.perViewErrors)
	median, err := data.Median()
	if err != nil {
		return ErrorStats{}, err
	}
	p90, err := data.Percentile(90)
	if err != nil {
		return ErrorStats{}, err
	}
	max, err := data.Max()
	if err != nil {
		return ErrorStats{}, err
	}
	return ErrorStats{Median: median, P90: p90, Max: max}, nil
}

// Poses returns the per-view pattern poses of the last solve.
func (s *Session) Poses() []transform.Pose {
	return append([]transform.Pose(nil), s.poses...)
}

// ImagePoints returns the recorded views.
func (s *Session) ImagePoints() [][]r2.Point {
	return lo.Map(s.imagePoints, func(pts []r2.Point, _ int) []r2.Point {
		return append([]r2.Point(nil), pts...)
	})
}

func (s *Session) checkUndistort(size image.Point) error {
	if !s.ready {
		return newPreconditionError("session is not calibrated")
	}
	if s.remap == nil {
		return newPreconditionError("undistortion map is stale, calibrate or load again")
	}
	if size.X != s.remap.Width || size.Y != s.remap.Height {
		return newInvalidArgumentError("image is %v, undistortion map is %dx%d", size, s.remap.Width, s.remap.Height)
	}
	return nil
}

// Undistort returns a new undistorted copy of img.
func (s *Session) Undistort(img rimage.Buffer, method rimage.Interpolation) (*rimage.Samples, error) {
	if img == nil {
		return nil, newInvalidArgumentError("no image")
	}
	if err := s.checkUndistort(rimage.Size(img)); err != nil {
		return nil, err
	}
	dst := rimage.NewSamplesLike(img)
	if err := rimage.Remap(img, dst, s.remap, method); err != nil {
		return nil, err
	}
	return dst, nil
}

// UndistortInto writes the undistorted src into dst, which must have the same size.
func (s *Session) UndistortInto(src rimage.Buffer, dst rimage.MutableBuffer, method rimage.Interpolation) error {
	if src == nil || dst == nil {
		return newInvalidArgumentError("no image")
	}
	if err := s.checkUndistort(rimage.Size(src)); err != nil {
		return err
	}
	if err := rimage.SameSize(src, dst); err != nil {
		return errors.Wrap(ErrInvalidArgument, err.Error())
	}
	return rimage.Remap(src, dst, s.remap, method)
}

func (s *Session) cameraMatrix() (transform.CameraMatrix, error) {
	if s.distorted == nil {
		return transform.CameraMatrix{}, newPreconditionError("session has no camera model")
	}
	return s.distorted.CameraMatrix(), nil
}

// UndistortPoint maps a distorted pixel to ideal normalized image coordinates.
func (s *Session) UndistortPoint(p r2.Point) (r2.Point, error) {
	k, err := s.cameraMatrix()
	if err != nil {
		return r2.Point{}, err
	}
	return s.distortion.Undistort(k.Normalize(p)), nil
}

// UndistortPoints maps distorted pixels to ideal normalized image coordinates.
func (s *Session) UndistortPoints(ps []r2.Point) ([]r2.Point, error) {
	k, err := s.cameraMatrix()
	if err != nil {
		return nil, err
	}
	return lo.Map(ps, func(p r2.Point, _ int) r2.Point {
		return s.distortion.Undistort(k.Normalize(p))
	}), nil
}

// UndistortPixel maps a distorted pixel to its location in the undistorted image.
func (s *Session) UndistortPixel(p r2.Point) (r2.Point, error) {
	k, err := s.cameraMatrix()
	if err != nil {
		return r2.Point{}, err
	}
	if s.undistorted == nil {
		return r2.Point{}, newPreconditionError("undistortion map is stale, calibrate or load again")
	}
	return transform.UndistortPixel(k, s.distortion, s.undistorted.CameraMatrix(), p), nil
}

// UndistortPixels maps distorted pixels to their locations in the undistorted image.
func (s *Session) UndistortPixels(ps []r2.Point) ([]r2.Point, error) {
	out := make([]r2.Point, len(ps))
	for i, p := range ps {
		q, err := s.UndistortPixel(p)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}
