package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
)

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	Saddle SaddleConfiguration `json:"saddle"`
}

// DefaultDetectionConf is the configuration used by FindCorners.
var DefaultDetectionConf = DetectionConfiguration{
	Saddle: DefaultSaddleConf,
}

// FindCorners locates the size.Cols x size.Rows inner corners of a chessboard and returns them
// in row-major lattice order, at pixel precision. The boolean is false when no complete board
// was found.
func FindCorners(gray *image.Gray, size detection.GridSize) ([]r2.Point, bool, error) {
	return FindCornersWithConfig(gray, size, &DefaultDetectionConf)
}

// FindCornersWithConfig is FindCorners with explicit tuning.
func FindCornersWithConfig(gray *image.Gray, size detection.GridSize, cfg *DetectionConfiguration) ([]r2.Point, bool, error) {
	if err := size.CheckValid(); err != nil {
		return nil, false, err
	}
	bounds := gray.Bounds()
	if bounds.Dx() < 8 || bounds.Dy() < 8 {
		return nil, false, errors.Errorf("image too small for chessboard detection: %v", bounds.Size())
	}
	saddles, err := GetSaddlePoints(rimage.GrayToDense(gray), &cfg.Saddle)
	if err != nil {
		return nil, false, err
	}
	n := size.Count()
	if len(saddles) < n {
		return nil, false, nil
	}

	// X-junctions respond far stronger than the L-corners along the board border, so the
	// inner corners are the n strongest saddles.
	pts := make([]r2.Point, n)
	for i := range pts {
		pts[i] = r2.Point{X: float64(saddles[i].Point.X), Y: float64(saddles[i].Point.Y)}
	}
	ordered, ok := detection.OrderGrid(pts, detection.RectangularLattice(size))
	if !ok {
		return nil, false, nil
	}
	return ordered, true, nil
}
