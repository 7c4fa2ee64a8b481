package rimage

import (
	"image"
	// register decoders so calibration images can come from any common capture format.
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".ppm":  true,
	".qoi":  true,
}

// IsImageFile reports whether the path has an extension ReadImageFromFile can decode.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ReadImageFromFile decodes an image file. EXIF orientation is ignored since rotating a
// calibration image would change its geometry.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// ReadBufferFromFile decodes an image file straight into a Buffer.
func ReadBufferFromFile(path string) (Buffer, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// WriteImageToFile encodes the image using the format implied by the file extension.
func WriteImageToFile(path string, img image.Image) error {
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "cannot write image %q", path)
	}
	return nil
}
