package cli

import (
	"math"

	"github.com/urfave/cli/v2"

	"go.viam.com/camcalib/calibration"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
)

// renderTarget draws the configured pattern with pixels between neighbouring features.
func renderTarget(cfg *calibration.Config, pixels int) detection.Target {
	size := detection.GridSize{Cols: cfg.Pattern.Cols, Rows: cfg.Pattern.Rows}
	spacing := float64(pixels)
	switch cfg.Pattern.Type {
	case calibration.CirclesGrid:
		return detection.CircleGridTarget{Size: size, Spacing: spacing, Radius: spacing * 0.3}
	case calibration.AsymmetricCirclesGrid:
		// features of one row are two spacings apart
		return detection.CircleGridTarget{Size: size, Spacing: spacing, Radius: spacing * 0.35, Asymmetric: true}
	default:
		return detection.ChessboardTarget{Size: size, Square: spacing}
	}
}

// TargetAction renders a printable pattern matching the configuration.
func TargetAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	pixels := c.Int(pixelsFlag)
	if pixels < 4 {
		pixels = 4
	}
	target := renderTarget(cfg, pixels)
	ext := target.Extent()
	w, h := int(math.Ceil(ext.X)), int(math.Ceil(ext.Y))
	img := detection.Render(target, w, h, nil)
	if err := rimage.WriteImageToFile(c.String(outputFlag), img); err != nil {
		return err
	}
	printf(c.App.Writer, "%s %dx%d pattern written to %s (%dx%d px)",
		cfg.Pattern.Type, cfg.Pattern.Cols, cfg.Pattern.Rows, c.String(outputFlag), w, h)
	return nil
}
