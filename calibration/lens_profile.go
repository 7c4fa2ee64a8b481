package calibration

import (
	"image"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/utils"
)

// fullFrameWidth is the width, in millimeters, of a 35 mm film frame.
const fullFrameWidth = 35.0

// LensProfileEntry is one focal length of a vendor lens profile.
type LensProfileEntry struct {
	FocalLength     float64 `json:"focal_length" yaml:"focal_length"`
	ImageWidth      int     `json:"image_width" yaml:"image_width"`
	ImageHeight     int     `json:"image_height" yaml:"image_height"`
	CropFactor      float64 `json:"crop_factor" yaml:"crop_factor"`
	PrincipalPointX float64 `json:"principal_point_x" yaml:"principal_point_x"`
	PrincipalPointY float64 `json:"principal_point_y" yaml:"principal_point_y"`
	K1              float64 `json:"k1" yaml:"k1"`
	K2              float64 `json:"k2" yaml:"k2"`
	K3              float64 `json:"k3" yaml:"k3"`
}

// LensProfileSource supplies the entries of a lens profile.
type LensProfileSource interface {
	Entries() ([]LensProfileEntry, error)
}

// LensProfileTable is a lens profile held in memory.
type LensProfileTable []LensProfileEntry

// Entries implements LensProfileSource.
func (t LensProfileTable) Entries() ([]LensProfileEntry, error) {
	return t, nil
}

// bracket returns the entry with the greatest focal length not above focalLength and the one
// with the smallest focal length above it. Either may be nil.
func bracket(entries []LensProfileEntry, focalLength float64) (below, above *LensProfileEntry) {
	sorted := append([]LensProfileEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FocalLength < sorted[j].FocalLength })
	for i := range sorted {
		e := &sorted[i]
		if e.FocalLength <= focalLength {
			below = e
		} else if above == nil {
			above = e
		}
	}
	return below, above
}

// LoadLensProfile adopts the distortion of a vendor lens profile at the given focal length
// (in millimeters) instead of calibrating. Coefficients of the two bracketing profile entries
// are interpolated linearly by focal length. A zero image size uses the profile's size. The
// recorded views are dropped.
func (s *Session) LoadLensProfile(src LensProfileSource, focalLength float64, imageWidth, imageHeight int) error {
	if src == nil {
		return newInvalidArgumentError("no lens profile")
	}
	entries, err := src.Entries()
	if err != nil {
		return errors.Wrap(err, "cannot read lens profile")
	}
	below, above := bracket(entries, focalLength)
	if below == nil {
		if above == nil {
			return newInvalidArgumentError("lens profile has no entries")
		}
		return newInvalidArgumentError("focal length %v is below every profile entry", focalLength)
	}
	if below.CropFactor <= 0 || below.ImageWidth <= 0 || below.ImageHeight <= 0 {
		return newInvalidArgumentError("lens profile entry at %vmm is incomplete", below.FocalLength)
	}

	k1, k2, k3 := below.K1, below.K2, below.K3
	if above != nil {
		t := utils.MapRange(focalLength, below.FocalLength, above.FocalLength, 0, 1)
		k1 = utils.Lerp(below.K1, above.K1, t)
		k2 = utils.Lerp(below.K2, above.K2, t)
		k3 = utils.Lerp(below.K3, above.K3, t)
	}

	sensorWidth := fullFrameWidth / below.CropFactor
	sensor := r2.Point{X: sensorWidth, Y: sensorWidth * float64(below.ImageHeight) / float64(below.ImageWidth)}
	if imageWidth == 0 {
		imageWidth = below.ImageWidth
	}
	if imageHeight == 0 {
		imageHeight = below.ImageHeight
	}
	ratio := r2.Point{X: 0.5, Y: 0.5}
	if below.PrincipalPointX > 0 && below.PrincipalPointY > 0 {
		ratio = r2.Point{X: below.PrincipalPointX, Y: below.PrincipalPointY}
	}
	intrinsics, err := transform.NewIntrinsicsFromFocalLength(focalLength, image.Point{imageWidth, imageHeight}, sensor, ratio)
	if err != nil {
		return err
	}

	prev := s.distortion
	if err := s.SetDistortionCoefficients(k1, k2, 0, 0, k3); err != nil {
		return err
	}
	if err := s.SetIntrinsics(intrinsics); err != nil {
		s.distortion = prev
		return err
	}
	s.imagePoints = nil
	s.objectPoints = nil
	s.logger.Infow("lens profile loaded", "focal_length", focalLength, "k1", k1, "k2", k2, "k3", k3)
	return nil
}
