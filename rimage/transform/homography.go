package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a planar projective transform normalized so that H[2][2] == 1.
type Homography struct {
	m Matrix3
}

// NewHomography builds a homography from a 3x3 matrix.
func NewHomography(m Matrix3) (*Homography, error) {
	if m[2][2] == 0 {
		return nil, errors.New("homography must have a non-zero bottom-right element")
	}
	for i := range m {
		for j := range m[i] {
			m[i][j] /= m[2][2]
		}
	}
	if _, ok := m.Inverse(); !ok {
		return nil, errors.New("homography is singular")
	}
	return &Homography{m}, nil
}

// Matrix returns the underlying matrix.
func (h *Homography) Matrix() Matrix3 { return h.m }

// Dense returns the matrix as a gonum matrix.
func (h *Homography) Dense() *mat.Dense { return h.m.Dense() }

// Apply maps a point through the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	m := h.m
	w := m[2][0]*pt.X + m[2][1]*pt.Y + m[2][2]
	return r2.Point{
		X: (m[0][0]*pt.X + m[0][1]*pt.Y + m[0][2]) / w,
		Y: (m[1][0]*pt.X + m[1][1]*pt.Y + m[1][2]) / w,
	}
}

// Inverse returns the inverse homography.
func (h *Homography) Inverse() *Homography {
	inv, _ := h.m.Inverse()
	out, err := NewHomography(inv)
	if err != nil {
		return h
	}
	return out
}

// EstimateHomography finds H with dst ~ H * src from at least four correspondences using the
// normalized direct linear transform.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("point sets must have the same length, got %d and %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 correspondences, got %d", len(src))
	}
	srcN, t1 := normalizePoints(src)
	dstN, t2 := normalizePoints(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	mats := performSVD(a)
	if mats == nil {
		return nil, errors.New("SVD of the homography system did not converge")
	}
	h := mats.V.ColView(8)
	var hn Matrix3
	for i := 0; i < 9; i++ {
		hn[i/3][i%3] = h.AtVec(i)
	}

	t2inv, ok := t2.Inverse()
	if !ok {
		return nil, errors.New("degenerate destination points")
	}
	full := t2inv.Mul(hn).Mul(t1)
	if math.Abs(full[2][2]) < 1e-15 {
		return nil, errors.New("degenerate homography")
	}
	return NewHomography(full)
}

// ReprojectionRMS returns the root mean square distance between H * src and dst.
func (h *Homography) ReprojectionRMS(src, dst []r2.Point) float64 {
	if len(src) == 0 {
		return 0
	}
	sum := 0.
	for i := range src {
		d := h.Apply(src[i]).Sub(dst[i])
		sum += d.Dot(d)
	}
	return math.Sqrt(sum / float64(len(src)))
}
