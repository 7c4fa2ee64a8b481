// Package cli is the camcalib command line interface.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	debugFlag         = "debug"
	configFlag        = "config"
	outputFlag        = "output"
	calibrationFlag   = "calibration"
	leftFlag          = "left"
	rightFlag         = "right"
	patternFlag       = "pattern"
	colsFlag          = "cols"
	rowsFlag          = "rows"
	squareFlag        = "square-size"
	cleanFlag         = "clean"
	maxErrorFlag      = "max-error"
	interpolationFlag = "interpolation"
	dirFlag           = "dir"
	pixelsFlag        = "pixels-per-square"
	lensProfileFlag   = "lens-profile"
	focalLengthFlag   = "focal-length"
)

// patternFlags override the pattern of the configuration file.
var patternFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  patternFlag,
		Usage: "pattern type: chessboard, circles_grid or asymmetric_circles_grid",
	},
	&cli.IntFlag{
		Name:  colsFlag,
		Usage: "pattern features per row",
	},
	&cli.IntFlag{
		Name:  rowsFlag,
		Usage: "pattern features per column",
	},
	&cli.Float64Flag{
		Name:  squareFlag,
		Usage: "distance between neighbouring features in world units",
	},
}

var app = &cli.App{
	Name:            "camcalib",
	Usage:           "calibrate cameras from pictures of a planar pattern",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load calibration settings from `FILE`",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "calibrate",
			Usage:     "solve the camera model from pattern images",
			ArgsUsage: "<image or directory>...",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    outputFlag,
					Aliases: []string{"o"},
					Value:   "camera.json",
					Usage:   "write the calibration to `FILE` (.json or .yaml)",
				},
				&cli.BoolFlag{
					Name:  cleanFlag,
					Usage: "drop views above the reprojection threshold and recalibrate",
				},
				&cli.Float64Flag{
					Name:  maxErrorFlag,
					Usage: "reprojection threshold in pixels used by --clean",
				},
			}, patternFlags...),
			Action: CalibrateAction,
		},
		{
			Name:      "undistort",
			Usage:     "remove lens distortion from images",
			ArgsUsage: "<image>...",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     calibrationFlag,
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "calibration `FILE` to apply",
				},
				&cli.StringFlag{
					Name:    outputFlag,
					Aliases: []string{"o"},
					Value:   ".",
					Usage:   "write undistorted images into `DIR`",
				},
				&cli.StringFlag{
					Name:  interpolationFlag,
					Usage: "nearest, linear or cubic",
				},
			},
			Action: UndistortAction,
		},
		{
			Name:  "stereo",
			Usage: "solve the rigid transform between two calibrated cameras",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     leftFlag,
					Required: true,
					Usage:    "calibration `FILE` of the reference camera",
				},
				&cli.StringFlag{
					Name:     rightFlag,
					Required: true,
					Usage:    "calibration `FILE` of the second camera",
				},
			}, patternFlags...),
			Action: StereoAction,
		},
		{
			Name:  "watch",
			Usage: "calibrate continuously from images dropped into a directory",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     dirFlag,
					Required: true,
					Usage:    "watch `DIR` for new images",
				},
				&cli.StringFlag{
					Name:    outputFlag,
					Aliases: []string{"o"},
					Value:   "camera.json",
					Usage:   "write the calibration to `FILE` after each solve",
				},
			}, patternFlags...),
			Action: WatchAction,
		},
		{
			Name:  "info",
			Usage: "print a saved calibration",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     calibrationFlag,
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "calibration `FILE` to print",
				},
			},
			Action: InfoAction,
		},
		{
			Name:  "lens-profile",
			Usage: "build a calibration from a vendor lens profile",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     lensProfileFlag,
					Required: true,
					Usage:    "lens profile `FILE` (.json or .yaml list of entries)",
				},
				&cli.Float64Flag{
					Name:     focalLengthFlag,
					Required: true,
					Usage:    "focal length in millimeters",
				},
				&cli.IntFlag{
					Name:  "width",
					Usage: "image width in pixels, defaults to the profile's",
				},
				&cli.IntFlag{
					Name:  "height",
					Usage: "image height in pixels, defaults to the profile's",
				},
				&cli.StringFlag{
					Name:    outputFlag,
					Aliases: []string{"o"},
					Value:   "camera.json",
					Usage:   "write the calibration to `FILE`",
				},
			},
			Action: LensProfileAction,
		},
		{
			Name:  "target",
			Usage: "render a printable calibration pattern",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    outputFlag,
					Aliases: []string{"o"},
					Value:   "target.png",
					Usage:   "write the pattern image to `FILE`",
				},
				&cli.IntFlag{
					Name:  pixelsFlag,
					Value: 100,
					Usage: "pixels between neighbouring features",
				},
			}, patternFlags...),
			Action: TargetAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
