// Package transform contains the pinhole camera model, lens distortion and the planar
// geometry used to calibrate and undistort cameras.
package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/utils"
)

var (
	// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
	ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")
	// ErrInvalidArgument is returned for inputs that can never produce a valid model.
	ErrInvalidArgument = errors.New("invalid argument")
)

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, "%s", msg)
}

// NewInvalidArgumentError wraps ErrInvalidArgument with a formatted message.
func NewInvalidArgumentError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// CameraMatrix is the 3x3 pinhole projection matrix
//
//	| Fx  0 Cx |
//	|  0 Fy Cy |
//	|  0  0  1 |
type CameraMatrix struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

// Rows returns the matrix as nested rows.
func (k CameraMatrix) Rows() Matrix3 {
	return Matrix3{
		{k.Fx, 0, k.Cx},
		{0, k.Fy, k.Cy},
		{0, 0, 1},
	}
}

// Dense returns the matrix as a gonum matrix.
func (k CameraMatrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.Fx, 0, k.Cx,
		0, k.Fy, k.Cy,
		0, 0, 1,
	})
}

// CameraMatrixFromRows builds a camera matrix, ignoring skew and requiring a canonical last row.
func CameraMatrixFromRows(rows Matrix3) (CameraMatrix, error) {
	if rows[2][0] != 0 || rows[2][1] != 0 || rows[2][2] != 1 || rows[1][0] != 0 {
		return CameraMatrix{}, NewInvalidArgumentError("camera matrix must have the form [[fx 0 cx] [0 fy cy] [0 0 1]]")
	}
	return CameraMatrix{Fx: rows[0][0], Fy: rows[1][1], Cx: rows[0][2], Cy: rows[1][2]}, nil
}

// CheckValid errors unless every element is finite and the matrix is invertible.
func (k CameraMatrix) CheckValid() error {
	if !utils.IsFinite(k.Fx, k.Fy, k.Cx, k.Cy) {
		return NewInvalidArgumentError("camera matrix has non-finite elements")
	}
	if k.Fx == 0 || k.Fy == 0 {
		return NewInvalidArgumentError("camera matrix is singular (fx=%v, fy=%v)", k.Fx, k.Fy)
	}
	return nil
}

// Normalize maps a pixel to normalized image coordinates.
func (k CameraMatrix) Normalize(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - k.Cx) / k.Fx, Y: (p.Y - k.Cy) / k.Fy}
}

// Denormalize maps normalized image coordinates to a pixel.
func (k CameraMatrix) Denormalize(p r2.Point) r2.Point {
	return r2.Point{X: p.X*k.Fx + k.Cx, Y: p.Y*k.Fy + k.Cy}
}

// Intrinsics couples a camera matrix with the image size it was computed for, the
// optional physical sensor size and the values derived from them.
type Intrinsics struct {
	cameraMatrix   CameraMatrix
	imageSize      image.Point
	sensorSize     r2.Point
	fov            r2.Point
	focalLength    float64
	aspectRatio    float64
	principalPoint r2.Point
}

// NewIntrinsicsFromFocalLength builds intrinsics for a lens of the given focal length (in the same
// unit as sensorSize) with the principal point at imageSize scaled by principalPointRatio.
func NewIntrinsicsFromFocalLength(
	focalLength float64,
	imageSize image.Point,
	sensorSize, principalPointRatio r2.Point,
) (*Intrinsics, error) {
	if sensorSize.X <= 0 {
		return nil, NewInvalidArgumentError("sensor width must be positive, got %v", sensorSize.X)
	}
	if focalLength <= 0 {
		return nil, NewInvalidArgumentError("focal length must be positive, got %v", focalLength)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, NewInvalidArgumentError("image size must be positive, got %v", imageSize)
	}
	f := focalLength * float64(imageSize.X) / sensorSize.X
	k := CameraMatrix{
		Fx: f,
		Fy: f,
		Cx: float64(imageSize.X) * principalPointRatio.X,
		Cy: float64(imageSize.Y) * principalPointRatio.Y,
	}
	return NewIntrinsics(k, imageSize, sensorSize)
}

// NewIntrinsics stores the camera matrix and derives field of view, focal length, aspect ratio
// and principal point. The physical values are in sensor units when sensorSize is known
// and in pixels otherwise.
func NewIntrinsics(k CameraMatrix, imageSize image.Point, sensorSize r2.Point) (*Intrinsics, error) {
	if err := k.CheckValid(); err != nil {
		return nil, err
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, NewInvalidArgumentError("image size must be positive, got %v", imageSize)
	}
	w, h := float64(imageSize.X), float64(imageSize.Y)
	in := &Intrinsics{
		cameraMatrix: k,
		imageSize:    imageSize,
		sensorSize:   sensorSize,
		aspectRatio:  k.Fy / k.Fx,
	}

	mx, my := 1., in.aspectRatio
	if sensorSize.X != 0 && sensorSize.Y != 0 {
		mx = w / sensorSize.X
		my = h / sensorSize.Y
	}
	in.fov = r2.Point{
		X: utils.RadToDeg(math.Atan2(k.Cx, k.Fx) + math.Atan2(w-k.Cx, k.Fx)),
		Y: utils.RadToDeg(math.Atan2(k.Cy, k.Fy) + math.Atan2(h-k.Cy, k.Fy)),
	}
	in.focalLength = k.Fx / mx
	in.principalPoint = r2.Point{X: k.Cx / mx, Y: k.Cy / my}
	return in, nil
}

// CameraMatrix returns the projection matrix.
func (in *Intrinsics) CameraMatrix() CameraMatrix { return in.cameraMatrix }

// ImageSize returns the image size in pixels the camera matrix applies to.
func (in *Intrinsics) ImageSize() image.Point { return in.imageSize }

// SensorSize returns the physical sensor size, zero when unknown.
func (in *Intrinsics) SensorSize() r2.Point { return in.sensorSize }

// FOV returns the horizontal and vertical field of view in degrees.
func (in *Intrinsics) FOV() r2.Point { return in.fov }

// FocalLength returns the focal length in sensor units.
func (in *Intrinsics) FocalLength() float64 { return in.focalLength }

// AspectRatio returns fy / fx.
func (in *Intrinsics) AspectRatio() float64 { return in.aspectRatio }

// PrincipalPoint returns the principal point in sensor units.
func (in *Intrinsics) PrincipalPoint() r2.Point { return in.principalPoint }

// Dense returns the camera matrix as a gonum matrix.
func (in *Intrinsics) Dense() *mat.Dense { return in.cameraMatrix.Dense() }

// Frustum holds the near-plane bounds of a perspective projection.
type Frustum struct {
	Left, Right, Bottom, Top, Near, Far float64
}

// ProjectionFrustum returns the frustum of an OpenGL style perspective projection that matches
// the camera, with the image origin at the top-left.
func (in *Intrinsics) ProjectionFrustum(near, far float64) Frustum {
	k := in.cameraMatrix
	w, h := float64(in.imageSize.X), float64(in.imageSize.Y)
	return Frustum{
		Left:   near * -k.Cx / k.Fx,
		Right:  near * (w - k.Cx) / k.Fx,
		Bottom: near * (k.Cy - h) / k.Fy,
		Top:    near * k.Cy / k.Fy,
		Near:   near,
		Far:    far,
	}
}
