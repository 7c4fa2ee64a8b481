package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/transform"
)

// CalibrateAction detects the pattern in every image, solves the camera and saves it.
func CalibrateAction(c *cli.Context) error {
	logger := newLogger(c)
	s, cfg, err := newSession(c, logger)
	if err != nil {
		return err
	}
	paths, err := collectImages(c.Args().Slice())
	if err != nil {
		return err
	}
	imgs, err := readImages(paths)
	if err != nil {
		return err
	}
	found, err := s.AddImages(c.Context, imgs)
	if err != nil {
		return err
	}
	for i, ok := range found {
		if !ok {
			warningf(c.App.ErrWriter, "pattern not found in %s", paths[i])
		}
	}
	if err := s.Calibrate(); err != nil {
		return err
	}
	if c.Bool(cleanFlag) {
		if err := s.Clean(cfg.MaxReprojectionError); err != nil {
			return err
		}
	}
	if err := s.Save(c.String(outputFlag)); err != nil {
		return err
	}
	printf(c.App.Writer, "calibrated from %d of %d images, reprojection error %.4f px",
		s.Size(), len(paths), s.ReprojectionError())
	printf(c.App.Writer, "saved to %s", c.String(outputFlag))
	return nil
}

// UndistortAction writes an undistorted copy of every image into the output directory.
func UndistortAction(c *cli.Context) error {
	logger := newLogger(c)
	s, cfg, err := newSession(c, logger)
	if err != nil {
		return err
	}
	if err := s.Load(c.String(calibrationFlag)); err != nil {
		return err
	}
	paths, err := collectImages(c.Args().Slice())
	if err != nil {
		return err
	}
	dir := c.String(outputFlag)
	for _, p := range paths {
		imgs, err := readImages([]string{p})
		if err != nil {
			return err
		}
		out, err := s.Undistort(imgs[0], cfg.InterpolationMethod())
		if err != nil {
			return errors.Wrap(err, p)
		}
		dst := filepath.Join(dir, undistortedName(p))
		if err := rimage.WriteImageToFile(dst, out.ToImage()); err != nil {
			return err
		}
		printf(c.App.Writer, "%s -> %s", p, dst)
	}
	return nil
}

func undistortedName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
	default:
		ext = ".png"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_undistorted" + ext
}

// stereoResult is the printed form of a stereo transform.
type stereoResult struct {
	Rotation    transform.Matrix3 `json:"rotation"`
	Translation [3]float64        `json:"translation"`
}

// StereoAction prints the transform from the left camera's frame to the right's.
func StereoAction(c *cli.Context) error {
	logger := newLogger(c)
	left, _, err := newSession(c, logger.Sublogger("left"))
	if err != nil {
		return err
	}
	right, _, err := newSession(c, logger.Sublogger("right"))
	if err != nil {
		return err
	}
	if err := left.Load(c.String(leftFlag)); err != nil {
		return err
	}
	if err := right.Load(c.String(rightFlag)); err != nil {
		return err
	}
	rot, t, err := left.Transformation(right)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stereoResult{Rotation: rot, Translation: [3]float64{t.X, t.Y, t.Z}}, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// calibrationInfo is the printed summary of a calibration.
type calibrationInfo struct {
	ImageWidth        int                     `yaml:"image_width"`
	ImageHeight       int                     `yaml:"image_height"`
	CameraMatrix      transform.CameraMatrix  `yaml:"camera_matrix"`
	FieldOfView       [2]float64              `yaml:"field_of_view_degrees"`
	Distortion        []float64               `yaml:"distortion_coefficients"`
	Undistorted       *transform.CameraMatrix `yaml:"undistorted_camera_matrix,omitempty"`
	Views             int                     `yaml:"views"`
	ReprojectionError float64                 `yaml:"reprojection_error"`
	ViewErrors        *calibration.ErrorStats `yaml:"view_errors,omitempty"`
}

// InfoAction prints a saved calibration as YAML, with per-view statistics when it holds views.
func InfoAction(c *cli.Context) error {
	s, _, err := newSession(c, newLogger(c))
	if err != nil {
		return err
	}
	if err := s.Load(c.String(calibrationFlag)); err != nil {
		return err
	}
	in := s.DistortedIntrinsics()
	fov := in.FOV()
	info := calibrationInfo{
		ImageWidth:        in.ImageSize().X,
		ImageHeight:       in.ImageSize().Y,
		CameraMatrix:      in.CameraMatrix(),
		FieldOfView:       [2]float64{fov.X, fov.Y},
		Distortion:        s.DistortionCoefficients().Parameters(),
		Views:             s.Size(),
		ReprojectionError: s.ReprojectionError(),
	}
	if u := s.UndistortedIntrinsics(); u != nil {
		k := u.CameraMatrix()
		info.Undistorted = &k
	}
	if s.Size() > 0 {
		if err := s.Calibrate(); err == nil {
			if st, err := s.ReprojectionStats(); err == nil {
				info.ViewErrors = &st
			}
		}
	}
	out, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", strings.TrimSpace(string(out)))
	return nil
}

// LensProfileAction writes a calibration taken from a vendor lens profile.
func LensProfileAction(c *cli.Context) error {
	s, _, err := newSession(c, newLogger(c))
	if err != nil {
		return err
	}
	path := c.String(lensProfileFlag)
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "cannot read lens profile %q", path)
	}
	var table calibration.LensProfileTable
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yml" || ext == ".yaml" {
		err = yaml.Unmarshal(data, &table)
	} else {
		err = json.Unmarshal(data, &table)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot parse lens profile %q", path)
	}
	if err := s.LoadLensProfile(table, c.Float64(focalLengthFlag), c.Int("width"), c.Int("height")); err != nil {
		return err
	}
	if err := s.Save(c.String(outputFlag)); err != nil {
		return err
	}
	printf(c.App.Writer, "saved to %s", c.String(outputFlag))
	return nil
}
