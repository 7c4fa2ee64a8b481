package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [3][3]float64

// Identity3 returns the 3x3 identity.
func Identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Matrix3FromDense copies the top-left 3x3 block of m.
func Matrix3FromDense(m mat.Matrix) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// Dense returns the matrix as a gonum matrix.
func (m Matrix3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Mul returns m * o.
func (m Matrix3) Mul(o Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j]
		}
	}
	return out
}

// MulVec returns m * v.
func (m Matrix3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// T returns the transpose.
func (m Matrix3) T() Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Col returns column j.
func (m Matrix3) Col(j int) r3.Vector {
	return r3.Vector{X: m[0][j], Y: m[1][j], Z: m[2][j]}
}

// Det returns the determinant.
func (m Matrix3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns the inverse and false when the matrix is singular.
func (m Matrix3) Inverse() (Matrix3, bool) {
	det := m.Det()
	if det == 0 || math.IsNaN(det) {
		return Matrix3{}, false
	}
	inv := Matrix3{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	for i := range inv {
		for j := range inv[i] {
			inv[i][j] /= det
		}
	}
	return inv, true
}

// NearestRotation projects m onto SO(3) using U * V^T from its SVD.
func NearestRotation(m Matrix3) Matrix3 {
	mats := performSVD(m.Dense())
	if mats == nil {
		return Identity3()
	}
	var r mat.Dense
	r.Mul(mats.U, mats.VT)
	if mat.Det(&r) < 0 {
		// flip the axis of the smallest singular value
		d := mat.NewDiagDense(3, []float64{1, 1, -1})
		var tmp mat.Dense
		tmp.Mul(mats.U, d)
		r.Mul(&tmp, mats.VT)
	}
	return Matrix3FromDense(&r)
}

type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	return &matsSVD{u, v, vt, svd.Values(nil)}
}

// normalizePoints centers the points and scales them to a mean distance of sqrt(2) from the
// origin, returning the transformed points and the 3x3 transform that was applied.
func normalizePoints(pts []r2.Point) ([]r2.Point, Matrix3) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	scale := 1.
	if d > 0 {
		scale = math.Sqrt(2) / d
	}
	transform := Matrix3{
		{scale, 0, -scale * mu.X},
		{0, scale, -scale * mu.Y},
		{0, 0, 1},
	}
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, transform
}
