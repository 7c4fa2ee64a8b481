package calibration

import (
	"encoding/json"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage"
	"go.viam.com/camcalib/rimage/detection"
)

var solverFlagNames = map[string]SolverFlags{
	"fix_principal_point": FixPrincipalPoint,
	"fix_aspect_ratio":    FixAspectRatio,
	"zero_tangent_dist":   ZeroTangentDist,
	"fix_k1":              FixK1,
	"fix_k2":              FixK2,
	"fix_k3":              FixK3,
	"rational_model":      RationalModel,
}

// ParseSolverFlags combines solver flags given by name, such as "fix_principal_point".
func ParseSolverFlags(names []string) (SolverFlags, error) {
	var flags SolverFlags
	for _, name := range names {
		f, ok := solverFlagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, newInvalidArgumentError("unknown solver flag %q", name)
		}
		flags |= f
	}
	return flags, nil
}

// PatternConfig describes the calibration target.
type PatternConfig struct {
	Type       PatternType `json:"type" yaml:"type"`
	Cols       int         `json:"cols" yaml:"cols"`
	Rows       int         `json:"rows" yaml:"rows"`
	SquareSize float64     `json:"square_size" yaml:"square_size"`
}

// Config configures a calibration session and the capture loop around it.
type Config struct {
	Pattern              PatternConfig `json:"pattern" yaml:"pattern"`
	SubpixelWindow       int           `json:"subpixel_window,omitempty" yaml:"subpixel_window,omitempty"`
	FillFrame            *bool         `json:"fill_frame,omitempty" yaml:"fill_frame,omitempty"`
	SolverFlags          []string      `json:"solver_flags,omitempty" yaml:"solver_flags,omitempty"`
	Solver               SolverOptions `json:"solver,omitempty" yaml:"solver,omitempty"`
	SensorWidth          float64       `json:"sensor_width,omitempty" yaml:"sensor_width,omitempty"`
	SensorHeight         float64       `json:"sensor_height,omitempty" yaml:"sensor_height,omitempty"`
	MaxReprojectionError float64       `json:"max_reprojection_error,omitempty" yaml:"max_reprojection_error,omitempty"`
	CleanAfter           int           `json:"clean_after,omitempty" yaml:"clean_after,omitempty"`
	Interpolation        string        `json:"interpolation,omitempty" yaml:"interpolation,omitempty"`
}

// DefaultConfig returns the configuration of a session built by NewSession.
func DefaultConfig() *Config {
	fill := true
	return &Config{
		Pattern: PatternConfig{
			Type:       Chessboard,
			Cols:       DefaultPatternSize.Cols,
			Rows:       DefaultPatternSize.Rows,
			SquareSize: DefaultSquareSize,
		},
		SubpixelWindow:       DefaultSubpixelWindow,
		FillFrame:            &fill,
		Solver:               DefaultSolverOptions,
		MaxReprojectionError: DefaultMaxReprojectionError,
		CleanAfter:           10,
		Interpolation:        rimage.Linear.String(),
	}
}

// Validate checks the configuration and fills in defaults. path names the configuration in
// error messages.
func (c *Config) Validate(path string) error {
	if c.Pattern.Cols == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "pattern.cols")
	}
	if c.Pattern.Rows == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "pattern.rows")
	}
	if err := (detection.GridSize{Cols: c.Pattern.Cols, Rows: c.Pattern.Rows}).CheckValid(); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if c.Pattern.SquareSize == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "pattern.square_size")
	}
	if c.Pattern.SquareSize < 0 {
		return goutils.NewConfigValidationError(path, errors.New("pattern.square_size must be positive"))
	}
	if c.SubpixelWindow == 0 {
		c.SubpixelWindow = DefaultSubpixelWindow
	}
	if c.SubpixelWindow < 2 {
		return goutils.NewConfigValidationError(path, errors.Errorf("subpixel_window must be at least 2, got %d", c.SubpixelWindow))
	}
	if c.FillFrame == nil {
		fill := true
		c.FillFrame = &fill
	}
	if _, err := ParseSolverFlags(c.SolverFlags); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if c.Solver.MaxIterations == 0 {
		c.Solver.MaxIterations = DefaultSolverOptions.MaxIterations
	}
	if c.Solver.Tolerance == 0 {
		c.Solver.Tolerance = DefaultSolverOptions.Tolerance
	}
	if c.Solver.MaxIterations < 0 || c.Solver.Tolerance < 0 {
		return goutils.NewConfigValidationError(path, errors.New("solver limits must be positive"))
	}
	if c.SensorWidth < 0 || c.SensorHeight < 0 {
		return goutils.NewConfigValidationError(path, errors.New("sensor size cannot be negative"))
	}
	if c.MaxReprojectionError == 0 {
		c.MaxReprojectionError = DefaultMaxReprojectionError
	}
	if c.MaxReprojectionError < 0 {
		return goutils.NewConfigValidationError(path, errors.New("max_reprojection_error must be positive"))
	}
	if c.CleanAfter < 0 {
		return goutils.NewConfigValidationError(path, errors.New("clean_after cannot be negative"))
	}
	if _, err := rimage.InterpolationFromString(c.Interpolation); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

// InterpolationMethod returns the configured resampling method.
func (c *Config) InterpolationMethod() rimage.Interpolation {
	method, err := rimage.InterpolationFromString(c.Interpolation)
	if err != nil {
		return rimage.Linear
	}
	return method
}

// ReadConfig reads a JSON or YAML configuration, expanding environment variables, and
// validates it.
func ReadConfig(path string) (*Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	cfg := &Config{}
	if isYAML(path) {
		err = yaml.Unmarshal(buf, cfg)
	} else {
		err = json.Unmarshal(buf, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewSessionFromConfig builds a session from a validated configuration.
func NewSessionFromConfig(cfg *Config, logger logging.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("calibration"); err != nil {
		return nil, err
	}
	flags, err := ParseSolverFlags(cfg.SolverFlags)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithPatternSize(detection.GridSize{Cols: cfg.Pattern.Cols, Rows: cfg.Pattern.Rows}),
		WithSquareSize(cfg.Pattern.SquareSize),
		WithPatternType(cfg.Pattern.Type),
		WithSubpixelWindow(cfg.SubpixelWindow),
		WithFillFrame(*cfg.FillFrame),
		WithSolverFlags(flags),
		WithSolverOptions(cfg.Solver),
		WithSensorSize(r2.Point{X: cfg.SensorWidth, Y: cfg.SensorHeight}),
	}
	return NewSession(logger, append(base, opts...)...), nil
}
