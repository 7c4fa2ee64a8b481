package calibration

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/camcalib/rimage/transform"
)

// document is the persisted form of a calibrated session.
type document struct {
	CameraMatrix           [3][3]float64  `json:"camera_matrix" yaml:"camera_matrix"`
	ImageWidth             int            `json:"image_width" yaml:"image_width"`
	ImageHeight            int            `json:"image_height" yaml:"image_height"`
	SensorWidth            float64        `json:"sensor_width" yaml:"sensor_width"`
	SensorHeight           float64        `json:"sensor_height" yaml:"sensor_height"`
	DistortionCoefficients []float64      `json:"distortion_coefficients" yaml:"distortion_coefficients"`
	ReprojectionError      float64        `json:"reprojection_error" yaml:"reprojection_error"`
	Features               [][][2]float64 `json:"features" yaml:"features"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	default:
		return false
	}
}

func toFeatures(views [][]r2.Point) [][][2]float64 {
	return lo.Map(views, func(pts []r2.Point, _ int) [][2]float64 {
		return lo.Map(pts, func(p r2.Point, _ int) [2]float64 { return [2]float64{p.X, p.Y} })
	})
}

func fromFeatures(features [][][2]float64) [][]r2.Point {
	return lo.Map(features, func(pts [][2]float64, _ int) []r2.Point {
		return lo.Map(pts, func(p [2]float64, _ int) r2.Point { return r2.Point{X: p[0], Y: p[1]} })
	})
}

func encodeDocument(path string, doc *document) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeDocument(path string, data []byte) (*document, error) {
	var doc document
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse calibration file %q", path)
	}
	return &doc, nil
}

// Save writes the camera model and the recorded views to path, as YAML for .yml and .yaml
// files and JSON otherwise. The file is replaced atomically.
func (s *Session) Save(path string) (err error) {
	if !s.ready || s.distorted == nil {
		return newPreconditionError("cannot save an uncalibrated session")
	}
	sensor := s.distorted.SensorSize()
	size := s.distorted.ImageSize()
	doc := &document{
		CameraMatrix:           s.distorted.CameraMatrix().Rows(),
		ImageWidth:             size.X,
		ImageHeight:            size.Y,
		SensorWidth:            sensor.X,
		SensorHeight:           sensor.Y,
		DistortionCoefficients: s.distortion.Parameters(),
		ReprojectionError:      s.reprojectionError,
		Features:               toFeatures(s.imagePoints),
	}
	data, err := encodeDocument(path, doc)
	if err != nil {
		return errors.Wrap(err, "cannot encode calibration")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "cannot save calibration to %q", path)
	}
	defer func() {
		if err != nil {
			goutils.UncheckedErrorFunc(func() error { return os.Remove(tmp.Name()) })
		}
	}()
	_, err = tmp.Write(data)
	err = multierr.Combine(err, tmp.Sync(), tmp.Close())
	if err != nil {
		return errors.Wrapf(err, "cannot save calibration to %q", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "cannot save calibration to %q", path)
	}
	s.logger.Debugw("calibration saved", "path", path)
	return nil
}

// Load replaces the camera model and the recorded views with the contents of path. The file
// is checked before anything changes; on error the session is left as it was.
func (s *Session) Load(path string) error {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "cannot load calibration from %q", path)
	}
	doc, err := decodeDocument(path, data)
	if err != nil {
		return err
	}
	k, err := transform.CameraMatrixFromRows(doc.CameraMatrix)
	if err != nil {
		return errors.Wrapf(err, "calibration file %q", path)
	}
	dist, err := transform.NewDistortionCoefficients(doc.DistortionCoefficients)
	if err != nil {
		return errors.Wrapf(ErrInvalidArgument, "calibration file %q: %v", path, err)
	}
	if err := dist.CheckValid(); err != nil {
		return errors.Wrapf(err, "calibration file %q", path)
	}
	size := image.Point{X: doc.ImageWidth, Y: doc.ImageHeight}
	intrinsics, err := transform.NewIntrinsics(k, size, r2.Point{X: doc.SensorWidth, Y: doc.SensorHeight})
	if err != nil {
		return errors.Wrapf(err, "calibration file %q", path)
	}
	n := s.patternSize.Count()
	for i, view := range doc.Features {
		if len(view) != n {
			return errors.Wrapf(ErrInvalidArgument, "calibration file %q: view %d has %d points, pattern %dx%d has %d",
				path, i, len(view), s.patternSize.Cols, s.patternSize.Rows, n)
		}
	}

	s.imagePoints = fromFeatures(doc.Features)
	object := ObjectPoints(s.patternSize, s.squareSize, s.patternType)
	s.objectPoints = lo.Times(len(s.imagePoints), func(int) []r3.Vector { return object })
	s.poses = nil
	s.perViewErrors = nil
	s.imageSize = size
	s.distortion = dist
	s.distorted = intrinsics
	s.reprojectionError = doc.ReprojectionError
	s.ready = true
	s.updateUndistortion()
	s.logger.Debugw("calibration loaded", "path", path, "views", len(s.imagePoints))
	return nil
}
