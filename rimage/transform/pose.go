package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RotationFromVector converts an axis-angle (Rodrigues) vector into a rotation matrix.
func RotationFromVector(v r3.Vector) Matrix3 {
	theta := v.Norm()
	if theta < 1e-12 {
		return Matrix3{
			{1, -v.Z, v.Y},
			{v.Z, 1, -v.X},
			{-v.Y, v.X, 1},
		}
	}
	k := v.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	cc := 1 - c
	return Matrix3{
		{c + k.X*k.X*cc, k.X*k.Y*cc - k.Z*s, k.X*k.Z*cc + k.Y*s},
		{k.Y*k.X*cc + k.Z*s, c + k.Y*k.Y*cc, k.Y*k.Z*cc - k.X*s},
		{k.Z*k.X*cc - k.Y*s, k.Z*k.Y*cc + k.X*s, c + k.Z*k.Z*cc},
	}
}

// VectorFromRotation converts a rotation matrix into its axis-angle (Rodrigues) vector. The
// matrix is projected onto SO(3) first.
func VectorFromRotation(m Matrix3) r3.Vector {
	r := NearestRotation(m)
	axis := r3.Vector{X: r[2][1] - r[1][2], Y: r[0][2] - r[2][0], Z: r[1][0] - r[0][1]}
	s := axis.Norm() / 2
	c := (r[0][0] + r[1][1] + r[2][2] - 1) / 2
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	theta := math.Acos(c)

	if s >= 1e-5 {
		return axis.Mul(theta / (2 * s))
	}
	if c > 0 {
		return r3.Vector{}
	}
	// theta is close to pi; recover the axis from R + I.
	rx := math.Sqrt(math.Max((r[0][0]+1)*0.5, 0))
	ry := math.Sqrt(math.Max((r[1][1]+1)*0.5, 0))
	rz := math.Sqrt(math.Max((r[2][2]+1)*0.5, 0))
	if r[0][1] < 0 {
		ry = -ry
	}
	if r[0][2] < 0 {
		rz = -rz
	}
	if math.Abs(rx) < math.Abs(ry) && math.Abs(rx) < math.Abs(rz) && (r[1][2] > 0) != (ry*rz > 0) {
		rz = -rz
	}
	v := r3.Vector{X: rx, Y: ry, Z: rz}
	return v.Mul(theta / v.Norm())
}

// Pose is a rigid transform from an object frame into the camera frame, X_c = R * X + T,
// with R stored as a Rodrigues vector.
type Pose struct {
	Rotation    r3.Vector `json:"rotation"`
	Translation r3.Vector `json:"translation"`
}

// RotationMatrix returns R.
func (p Pose) RotationMatrix() Matrix3 {
	return RotationFromVector(p.Rotation)
}

// Apply maps an object point into the camera frame.
func (p Pose) Apply(pt r3.Vector) r3.Vector {
	return p.RotationMatrix().MulVec(pt).Add(p.Translation)
}

// Dense returns the 3x4 [R|T] matrix.
func (p Pose) Dense() *mat.Dense {
	r := p.RotationMatrix()
	return mat.NewDense(3, 4, []float64{
		r[0][0], r[0][1], r[0][2], p.Translation.X,
		r[1][0], r[1][1], r[1][2], p.Translation.Y,
		r[2][0], r[2][1], r[2][2], p.Translation.Z,
	})
}

// PoseFromHomography recovers the pose of the z = 0 object plane from the homography that
// maps plane coordinates to pixels, given the camera matrix.
func PoseFromHomography(k CameraMatrix, h *Homography) (Pose, error) {
	kinv, ok := k.Rows().Inverse()
	if !ok {
		return Pose{}, NewInvalidArgumentError("camera matrix is singular")
	}
	hm := h.Matrix()
	h1 := kinv.MulVec(hm.Col(0))
	h2 := kinv.MulVec(hm.Col(1))
	h3 := kinv.MulVec(hm.Col(2))
	n := h1.Norm() + h2.Norm()
	if n == 0 {
		return Pose{}, errors.New("degenerate homography")
	}
	lambda := 2 / n
	if h3.Z < 0 {
		// the plane must lie in front of the camera
		lambda = -lambda
	}
	c1 := h1.Mul(lambda)
	c2 := h2.Mul(lambda)
	c3 := c1.Cross(c2)
	rot := NearestRotation(Matrix3{
		{c1.X, c2.X, c3.X},
		{c1.Y, c2.Y, c3.Y},
		{c1.Z, c2.Z, c3.Z},
	})
	return Pose{
		Rotation:    VectorFromRotation(rot),
		Translation: h3.Mul(lambda),
	}, nil
}

// ProjectPoint projects an object point through pose, distortion and camera matrix.
func ProjectPoint(k CameraMatrix, d DistortionCoefficients, pose Pose, pt r3.Vector) r2.Point {
	return projectWithRotation(k, d, pose.RotationMatrix(), pose.Translation, pt)
}

// ProjectPoints projects every object point with one pose.
func ProjectPoints(k CameraMatrix, d DistortionCoefficients, pose Pose, pts []r3.Vector) []r2.Point {
	rot := pose.RotationMatrix()
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = projectWithRotation(k, d, rot, pose.Translation, pt)
	}
	return out
}

func projectWithRotation(k CameraMatrix, d DistortionCoefficients, rot Matrix3, t, pt r3.Vector) r2.Point {
	c := rot.MulVec(pt).Add(t)
	z := c.Z
	if z == 0 {
		z = 1
	}
	return k.Denormalize(d.Distort(r2.Point{X: c.X / z, Y: c.Y / z}))
}
