// Package calibration estimates a camera's intrinsic model from views of a planar pattern,
// removes lens distortion from images and points, and links two calibrated cameras into a
// stereo pair.
package calibration

import (
	"github.com/pkg/errors"

	"go.viam.com/camcalib/rimage/transform"
)

var (
	// ErrPatternNotFound is returned when an image does not show the whole calibration pattern.
	ErrPatternNotFound = errors.New("calibration pattern not found")
	// ErrInsufficientData is returned when a solve has nothing to work with.
	ErrInsufficientData = errors.New("insufficient calibration data")
	// ErrCalibrationDiverged is returned when a solve produces a non-finite or singular model.
	ErrCalibrationDiverged = errors.New("calibration diverged")
	// ErrPrecondition is returned when an operation is called in a state that does not allow it.
	ErrPrecondition = errors.New("precondition violated")
	// ErrInvalidArgument is returned for arguments that can never be satisfied.
	ErrInvalidArgument = transform.ErrInvalidArgument
)

func newPreconditionError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPrecondition, format, args...)
}

func newInvalidArgumentError(format string, args ...interface{}) error {
	return transform.NewInvalidArgumentError(format, args...)
}
