package calibration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/camcalib/rimage/transform"
)

// quatFromRotation converts a rotation matrix into a unit quaternion.
func quatFromRotation(m transform.Matrix3) quat.Number {
	tr := m[0][0] + m[1][1] + m[2][2]
	var q quat.Number
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (m[2][1] - m[1][2]) / s, Jmag: (m[0][2] - m[2][0]) / s, Kmag: (m[1][0] - m[0][1]) / s}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		q = quat.Number{Real: (m[2][1] - m[1][2]) / s, Imag: s / 4, Jmag: (m[0][1] + m[1][0]) / s, Kmag: (m[0][2] + m[2][0]) / s}
	case m[1][1] > m[2][2]:
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		q = quat.Number{Real: (m[0][2] - m[2][0]) / s, Imag: (m[0][1] + m[1][0]) / s, Jmag: s / 4, Kmag: (m[1][2] + m[2][1]) / s}
	default:
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		q = quat.Number{Real: (m[1][0] - m[0][1]) / s, Imag: (m[0][2] + m[2][0]) / s, Jmag: (m[1][2] + m[2][1]) / s, Kmag: s / 4}
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// rotationFromQuat converts a quaternion of any norm into a rotation matrix.
func rotationFromQuat(q quat.Number) transform.Matrix3 {
	q = quat.Scale(1/quat.Abs(q), q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return transform.Matrix3{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// meanRotation averages rotations through their quaternions, flipping each onto the
// hemisphere of the first.
func meanRotation(rots []transform.Matrix3) transform.Matrix3 {
	var sum quat.Number
	var ref quat.Number
	for i, r := range rots {
		q := quatFromRotation(r)
		if i == 0 {
			ref = q
		}
		if ref.Real*q.Real+ref.Imag*q.Imag+ref.Jmag*q.Jmag+ref.Kmag*q.Kmag < 0 {
			q = quat.Scale(-1, q)
		}
		sum = quat.Add(sum, q)
	}
	if quat.Abs(sum) == 0 {
		return transform.Identity3()
	}
	return rotationFromQuat(sum)
}

// composePose returns the pose of an object in the second camera given its pose in the first and
// the transform (rotation, translation) from the first camera to the second.
func composePose(first transform.Pose, rot transform.Matrix3, t r3.Vector) transform.Pose {
	r1 := first.RotationMatrix()
	return transform.Pose{
		Rotation:    transform.VectorFromRotation(rot.Mul(r1)),
		Translation: rot.MulVec(first.Translation).Add(t),
	}
}

// Transformation returns the rigid transform from this camera's frame to other's, so that a
// point X seen by this camera is R*X + t in other's frame. Both sessions must be ready and must
// have observed the same pattern in the same number of synchronized views. Each camera's
// intrinsics are held fixed.
func (s *Session) Transformation(other *Session) (transform.Matrix3, r3.Vector, error) {
	if other == nil {
		return transform.Matrix3{}, r3.Vector{}, newInvalidArgumentError("no second session")
	}
	if !s.ready || !other.ready {
		return transform.Matrix3{}, r3.Vector{}, newPreconditionError("both sessions must be calibrated")
	}
	if len(s.imagePoints) != len(other.imagePoints) || len(s.imagePoints) == 0 {
		return transform.Matrix3{}, r3.Vector{}, newPreconditionError(
			"sessions must hold the same number of views, got %d and %d", len(s.imagePoints), len(other.imagePoints))
	}
	if s.patternSize != other.patternSize || s.patternType != other.patternType || s.squareSize != other.squareSize {
		return transform.Matrix3{}, r3.Vector{}, newPreconditionError("sessions must observe the same pattern")
	}

	object := ObjectPoints(s.patternSize, s.squareSize, s.patternType)
	poses1, err := s.viewPoses(object)
	if err != nil {
		return transform.Matrix3{}, r3.Vector{}, err
	}
	poses2, err := other.viewPoses(object)
	if err != nil {
		return transform.Matrix3{}, r3.Vector{}, err
	}

	rels := make([]transform.Matrix3, len(poses1))
	for i := range poses1 {
		rels[i] = poses2[i].RotationMatrix().Mul(poses1[i].RotationMatrix().T())
	}
	rot := meanRotation(rels)
	var t r3.Vector
	for i := range poses1 {
		t = t.Add(poses2[i].Translation.Sub(rot.MulVec(poses1[i].Translation)))
	}
	t = t.Mul(1 / float64(len(poses1)))

	k1, d1 := s.distorted.CameraMatrix(), s.distortion
	k2, d2 := other.distorted.CameraMatrix(), other.distortion
	n := len(object)
	prob := &blockProblem{
		shared:     poseToBlock(transform.Pose{Rotation: transform.VectorFromRotation(rot), Translation: t}),
		sharedFree: []bool{true, true, true, true, true, true},
		blocks:     make([][]float64, len(poses1)),
		blockFree:  []bool{true, true, true, true, true, true},
		counts:     make([]int, len(poses1)),
	}
	for i, p := range poses1 {
		prob.blocks[i] = poseToBlock(p)
		prob.counts[i] = 4 * n
	}
	prob.residuals = func(shared, block []float64, v int, out []float64) {
		rel := blockToPose(shared)
		first := blockToPose(block)
		second := composePose(first, rel.RotationMatrix(), rel.Translation)
		projectionResiduals(k1, d1, first, object, s.imagePoints[v], out[:2*n])
		projectionResiduals(k2, d2, second, object, other.imagePoints[v], out[2*n:])
	}
	res, err := prob.solve(s.solverOptions)
	if err != nil {
		return transform.Matrix3{}, r3.Vector{}, err
	}
	rel := blockToPose(prob.shared)
	s.logger.Debugw("stereo transform solved",
		"rms", math.Sqrt(res.cost/float64(4*n*len(poses1))),
		"iterations", res.iterations)
	return rel.RotationMatrix(), rel.Translation, nil
}

// viewPoses returns the solved per-view poses, estimating them from the camera model when the
// session was loaded rather than solved.
func (s *Session) viewPoses(object []r3.Vector) ([]transform.Pose, error) {
	if len(s.poses) == len(s.imagePoints) {
		return s.poses, nil
	}
	k := s.distorted.CameraMatrix()
	poses := make([]transform.Pose, len(s.imagePoints))
	for i, pts := range s.imagePoints {
		if len(pts) != len(object) {
			return nil, newPreconditionError("view %d has %d points, pattern has %d", i, len(pts), len(object))
		}
		p, err := EstimatePose(k, s.distortion, object, pts)
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		poses[i] = p
	}
	return poses, nil
}
