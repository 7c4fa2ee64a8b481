package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/utils"
)

// NumDistortionCoefficients is the length of a DistortionCoefficients vector.
const NumDistortionCoefficients = 8

// DistortionCoefficients is the rational Brown-Conrady lens model, ordered
// k1, k2, p1, p2, k3, k4, k5, k6. The zero value is a distortion-free lens.
type DistortionCoefficients [NumDistortionCoefficients]float64

// NewDistortionCoefficients fills coefficients in order; missing values are zero.
func NewDistortionCoefficients(inp []float64) (DistortionCoefficients, error) {
	var d DistortionCoefficients
	if len(inp) > NumDistortionCoefficients {
		return d, errors.Errorf("list of parameters too long, expected max %d, got %d", NumDistortionCoefficients, len(inp))
	}
	copy(d[:], inp)
	return d, nil
}

// K1 returns the first radial coefficient.
func (d DistortionCoefficients) K1() float64 { return d[0] }

// K2 returns the second radial coefficient.
func (d DistortionCoefficients) K2() float64 { return d[1] }

// P1 returns the first tangential coefficient.
func (d DistortionCoefficients) P1() float64 { return d[2] }

// P2 returns the second tangential coefficient.
func (d DistortionCoefficients) P2() float64 { return d[3] }

// K3 returns the third radial coefficient.
func (d DistortionCoefficients) K3() float64 { return d[4] }

// IsZero reports whether the model is distortion free.
func (d DistortionCoefficients) IsZero() bool {
	return d == DistortionCoefficients{}
}

// CheckValid errors when a coefficient is not finite.
func (d DistortionCoefficients) CheckValid() error {
	if !utils.IsFinite(d[:]...) {
		return NewInvalidArgumentError("distortion coefficients are not finite: %v", d[:])
	}
	return nil
}

// Parameters returns the coefficients as a slice.
func (d DistortionCoefficients) Parameters() []float64 {
	return append([]float64(nil), d[:]...)
}

// Distort applies the forward model to normalized, undistorted coordinates:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶) + p1*(r² + 2*y²) + 2*p2*x*y
func (d DistortionCoefficients) Distort(p r2.Point) r2.Point {
	x, y := p.X, p.Y
	rsq := x*x + y*y
	r4 := rsq * rsq
	r6 := r4 * rsq
	radial := (1 + d[0]*rsq + d[1]*r4 + d[4]*r6) / (1 + d[5]*rsq + d[6]*r4 + d[7]*r6)
	return r2.Point{
		X: x*radial + 2*d[2]*x*y + d[3]*(rsq+2*x*x),
		Y: y*radial + d[2]*(rsq+2*y*y) + 2*d[3]*x*y,
	}
}

// Undistort inverts Distort with Newton-Raphson on the 2x2 Jacobian, starting from the
// distorted point.
func (d DistortionCoefficients) Undistort(p r2.Point) r2.Point {
	if d.IsZero() {
		return p
	}
	xd, yd := p.X, p.Y
	xu, yu := xd, yd

	const maxIterations = 20
	const tolerance = 1e-10

	k1, k2, p1, p2, k3, k4, k5, k6 := d[0], d[1], d[2], d[3], d[4], d[5], d[6], d[7]
	for i := 0; i < maxIterations; i++ {
		rsq := xu*xu + yu*yu
		r4 := rsq * rsq
		r6 := r4 * rsq

		num := 1 + k1*rsq + k2*r4 + k3*r6
		den := 1 + k4*rsq + k5*r4 + k6*r6
		radial := num / den

		errX := xu*radial + 2*p1*xu*yu + p2*(rsq+2*xu*xu) - xd
		errY := yu*radial + p1*(rsq+2*yu*yu) + 2*p2*xu*yu - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// d(radial)/d(r²), then chain through r² = x² + y².
		dNum := k1 + 2*k2*rsq + 3*k3*r4
		dDen := k4 + 2*k5*rsq + 3*k6*r4
		dRadial := (dNum*den - num*dDen) / (den * den)
		dRadialDx := 2 * xu * dRadial
		dRadialDy := 2 * yu * dRadial

		dxdDxu := radial + xu*dRadialDx + 2*p1*yu + 6*p2*xu
		dxdDyu := xu*dRadialDy + 2*p1*xu + 2*p2*yu
		dydDxu := yu*dRadialDx + 2*p1*xu + 2*p2*yu
		dydDyu := radial + yu*dRadialDy + 6*p1*yu + 2*p2*xu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}
	return r2.Point{X: xu, Y: yu}
}

// UndistortPixel takes a distorted pixel through k and d and returns the ideal pixel as
// seen by a distortion free camera with matrix newK.
func UndistortPixel(k CameraMatrix, d DistortionCoefficients, newK CameraMatrix, p r2.Point) r2.Point {
	return newK.Denormalize(d.Undistort(k.Normalize(p)))
}
