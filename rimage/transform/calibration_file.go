package transform

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/stereodic/logging"
)

// UndistortionConfig holds the stop rule of the undistortion iteration.
type UndistortionConfig struct {
	Convergence float64 `json:"convergence"`
	Iteration   int     `json:"iteration"`
}

// CalibrationConfig is the on-disk form of one camera calibration.
type CalibrationConfig struct {
	Intrinsics   CameraIntrinsics    `json:"intrinsics"`
	Extrinsics   CameraExtrinsics    `json:"extrinsics"`
	Undistortion *UndistortionConfig `json:"undistortion,omitempty"`
}

// Validate reports every problem with the configuration at once.
func (cfg *CalibrationConfig) Validate(path string) error {
	errs := multierr.Combine(cfg.Intrinsics.CheckValid(), cfg.Extrinsics.CheckValid())
	if u := cfg.Undistortion; u != nil {
		if !(u.Convergence > 0) {
			errs = multierr.Append(errs, errors.Errorf("undistortion convergence must be positive, got %v", u.Convergence))
		}
		if u.Iteration < 1 {
			errs = multierr.Append(errs, errors.Errorf("undistortion iteration must be at least 1, got %d", u.Iteration))
		}
	}
	if errs != nil {
		return errors.Wrapf(errs, "invalid calibration %q", path)
	}
	return nil
}

// Config returns the current parameters of the calibration in file form.
func (c *Calibration) Config() *CalibrationConfig {
	return &CalibrationConfig{
		Intrinsics: c.Intrinsics,
		Extrinsics: c.Extrinsics,
		Undistortion: &UndistortionConfig{
			Convergence: c.convergence,
			Iteration:   c.iteration,
		},
	}
}

// NewCalibrationFromConfig validates cfg and builds a calibration from it.
func NewCalibrationFromConfig(cfg *CalibrationConfig, logger logging.Logger) (*Calibration, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	c, err := NewCalibration(cfg.Intrinsics, cfg.Extrinsics, logger)
	if err != nil {
		return nil, err
	}
	if u := cfg.Undistortion; u != nil {
		if err := c.SetUndistortion(u.Convergence, u.Iteration); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ReadCalibrationConfig parses a JSON calibration.
func ReadCalibrationConfig(r io.Reader) (*CalibrationConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := &CalibrationConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing calibration JSON")
	}
	return cfg, nil
}

// ReadCalibrationFile loads a calibration from a JSON file.
func ReadCalibrationFile(path string, logger logging.Logger) (*Calibration, error) {
	//nolint:gosec
	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening calibration file %q", path)
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)

	cfg, err := ReadCalibrationConfig(jsonFile)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return NewCalibrationFromConfig(cfg, logger)
}

// WriteCalibrationFile stores the calibration parameters as indented JSON.
func (c *Calibration) WriteCalibrationFile(path string) (err error) {
	data, err := json.MarshalIndent(c.Config(), "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "error creating calibration file %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = f.Write(append(data, '\n'))
	return err
}
