package calibration

import (
	"image"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
	"go.viam.com/camcalib/rimage/detection/chessboard"
	"go.viam.com/camcalib/rimage/detection/circlegrid"
)

// PatternType is the family of a calibration target.
type PatternType int

// The supported calibration targets.
const (
	Chessboard PatternType = iota
	CirclesGrid
	AsymmetricCirclesGrid
)

func (p PatternType) String() string {
	switch p {
	case Chessboard:
		return "chessboard"
	case CirclesGrid:
		return "circles_grid"
	case AsymmetricCirclesGrid:
		return "asymmetric_circles_grid"
	default:
		return "unknown"
	}
}

// PatternTypeFromString parses the names produced by String.
func PatternTypeFromString(name string) (PatternType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chessboard":
		return Chessboard, nil
	case "circles_grid", "circles":
		return CirclesGrid, nil
	case "asymmetric_circles_grid", "asymmetric_circles":
		return AsymmetricCirclesGrid, nil
	default:
		return Chessboard, newInvalidArgumentError("unknown pattern type %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PatternType) MarshalText() ([]byte, error) {
	if p < Chessboard || p > AsymmetricCirclesGrid {
		return nil, newInvalidArgumentError("unknown pattern type %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PatternType) UnmarshalText(text []byte) error {
	parsed, err := PatternTypeFromString(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DetectorBackend provides the low level pattern detection primitives. Points are returned in
// row-major pattern order; a missing pattern is reported with false and a nil error.
type DetectorBackend interface {
	FindChessboardCorners(gray *image.Gray, size detection.GridSize) ([]r2.Point, bool, error)
	FindCirclesGrid(gray *image.Gray, size detection.GridSize, asymmetric bool) ([]r2.Point, bool, error)
	RefineCorners(gray *image.Gray, corners []r2.Point, halfWindow int, crit detection.TermCriteria) []r2.Point
}

type defaultBackend struct{}

// DefaultBackend returns the saddle point chessboard and dark blob circle grid detectors.
func DefaultBackend() DetectorBackend {
	return defaultBackend{}
}

func (defaultBackend) FindChessboardCorners(gray *image.Gray, size detection.GridSize) ([]r2.Point, bool, error) {
	return chessboard.FindCorners(gray, size)
}

func (defaultBackend) FindCirclesGrid(gray *image.Gray, size detection.GridSize, asymmetric bool) ([]r2.Point, bool, error) {
	return circlegrid.FindGrid(gray, size, asymmetric)
}

func (defaultBackend) RefineCorners(
	gray *image.Gray,
	corners []r2.Point,
	halfWindow int,
	crit detection.TermCriteria,
) []r2.Point {
	return chessboard.RefineCorners(gray, corners, halfWindow, crit)
}

// DefaultSubpixelWindow is the default corner refinement half-window; the search covers
// (2*11+1)x(2*11+1) pixels around each corner.
const DefaultSubpixelWindow = 11

// FindPattern locates the pattern in img. When refine is set, chessboard corners are refined
// in a (2*window+1)x(2*window+1) neighborhood. A missing pattern is not an error.
func FindPattern(
	backend DetectorBackend,
	img rimage.Buffer,
	size detection.GridSize,
	patternType PatternType,
	refine bool,
	window int,
) ([]r2.Point, bool, error) {
	if backend == nil {
		return nil, false, newInvalidArgumentError("no detector backend")
	}
	if err := size.CheckValid(); err != nil {
		return nil, false, errors.Wrap(ErrInvalidArgument, err.Error())
	}
	if img == nil || img.Width() == 0 || img.Height() == 0 {
		return nil, false, newInvalidArgumentError("empty image")
	}
	gray := rimage.ToGray(img)

	var (
		points []r2.Point
		found  bool
		err    error
	)
	switch patternType {
	case Chessboard:
		points, found, err = backend.FindChessboardCorners(gray, size)
		if err == nil && found && refine {
			if window < chessboard.MinRefineWindow {
				window = chessboard.MinRefineWindow
			}
			points = backend.RefineCorners(gray, points, window, detection.DefaultSubpixCriteria)
		}
	case CirclesGrid, AsymmetricCirclesGrid:
		points, found, err = backend.FindCirclesGrid(gray, size, patternType == AsymmetricCirclesGrid)
	default:
		return nil, false, newInvalidArgumentError("unknown pattern type %d", int(patternType))
	}
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if len(points) != size.Count() {
		return nil, false, errors.Errorf("detector returned %d points for a %dx%d pattern", len(points), size.Cols, size.Rows)
	}
	return points, true, nil
}

// ObjectPoints returns the pattern's feature positions on the z = 0 plane in row-major order.
// Asymmetric circle grids shift odd rows by one spacing and space columns two apart.
func ObjectPoints(size detection.GridSize, squareSize float64, patternType PatternType) []r3.Vector {
	out := make([]r3.Vector, 0, size.Count())
	for i := 0; i < size.Rows; i++ {
		for j := 0; j < size.Cols; j++ {
			x := float64(j)
			if patternType == AsymmetricCirclesGrid {
				x = float64(2*j + i%2)
			}
			out = append(out, r3.Vector{X: x * squareSize, Y: float64(i) * squareSize})
		}
	}
	return out
}
