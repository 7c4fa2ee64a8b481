package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "Warning: "+format+"\n", a...)
}

func newLogger(c *cli.Context) logging.Logger {
	if c.Bool(debugFlag) {
		return logging.NewDebugLogger("camcalib")
	}
	return logging.NewLogger("camcalib")
}

// loadConfig reads the --config file, or the defaults, and applies the pattern flags.
func loadConfig(c *cli.Context) (*calibration.Config, error) {
	cfg := calibration.DefaultConfig()
	if path := c.String(configFlag); path != "" {
		var err error
		if cfg, err = calibration.ReadConfig(path); err != nil {
			return nil, err
		}
	}
	if name := c.String(patternFlag); name != "" {
		t, err := calibration.PatternTypeFromString(name)
		if err != nil {
			return nil, err
		}
		cfg.Pattern.Type = t
	}
	if c.IsSet(colsFlag) {
		cfg.Pattern.Cols = c.Int(colsFlag)
	}
	if c.IsSet(rowsFlag) {
		cfg.Pattern.Rows = c.Int(rowsFlag)
	}
	if c.IsSet(squareFlag) {
		cfg.Pattern.SquareSize = c.Float64(squareFlag)
	}
	if c.IsSet(maxErrorFlag) {
		cfg.MaxReprojectionError = c.Float64(maxErrorFlag)
	}
	if c.IsSet(interpolationFlag) {
		cfg.Interpolation = c.String(interpolationFlag)
	}
	if err := cfg.Validate("flags"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newSession(c *cli.Context, logger logging.Logger) (*calibration.Session, *calibration.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	s, err := calibration.NewSessionFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// collectImages expands directories into the image files they hold, in name order.
func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read %q", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot list %q", arg)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && rimage.IsImageFile(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, errors.New("no images given")
	}
	return paths, nil
}

func readImages(paths []string) ([]rimage.Buffer, error) {
	imgs := make([]rimage.Buffer, len(paths))
	for i, p := range paths {
		img, err := rimage.ReadBufferFromFile(p)
		if err != nil {
			return nil, err
		}
		imgs[i] = img
	}
	return imgs, nil
}
