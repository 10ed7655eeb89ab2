// Package config holds the retiming engine's configuration: the §6
// option table, defaults, YAML-file loading, and validation, in the
// teacher's DefaultConfig/Validate shape.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is spec §7's ConfigInvalid error kind.
var ErrConfigInvalid = errors.New("invalid configuration")

// Config holds all configuration parameters for retime, per spec §6.
type Config struct {
	// Input/output
	InputFile   string `yaml:"-"`
	OutputFile  string `yaml:"-"`
	DecoderPath string `yaml:"decoder_path"` // external video decoder binary (e.g. ffmpeg)
	EncoderPath string `yaml:"encoder_path"` // external video encoder binary

	// Silence detection
	ThresholdLevel    float64 `yaml:"threshold_level"`    // dB
	ThresholdDuration float64 `yaml:"threshold_duration"` // seconds
	BlendDuration     float64 `yaml:"blend_duration"`     // seconds

	// Duration transform
	Constant  float64 `yaml:"constant"`
	Sublinear float64 `yaml:"sublinear"`
	Linear    float64 `yaml:"linear"`

	// Optional features
	SaveSilence                  string `yaml:"save_silence"`                    // path, empty = off
	RecalculateTimeInDescription string `yaml:"recalculate_time_in_description"` // path, empty = off

	// Concurrency (spec §5)
	DetectorWorkers int `yaml:"detector_workers"`
}

// DefaultConfig returns a configuration with spec §6's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		DecoderPath:       "ffmpeg",
		EncoderPath:       "ffmpeg",
		ThresholdLevel:    -40.0,
		ThresholdDuration: 0.2,
		BlendDuration:     0.005,
		Constant:          0,
		Sublinear:         0,
		Linear:            0.1,
		DetectorWorkers:   1,
	}
}

// LoadFile merges a YAML configuration file on top of the receiver;
// flags applied after calling LoadFile win, matching "flags win" from
// SPEC_FULL.md §1.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	return nil
}

// Validate checks the statically-checkable parts of the configuration.
// The ConfigInvalid condition that depends on a realized silence
// duration (new_dur > dur) can only be checked once silences are known;
// see internal/retime.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return errors.Wrap(ErrConfigInvalid, "no input file specified")
	}
	if c.ThresholdLevel < -120.0 || c.ThresholdLevel > 0.0 {
		return errors.Wrap(ErrConfigInvalid, "threshold level must be between -120.0 and 0.0 dB")
	}
	if c.ThresholdDuration <= 0 {
		return errors.Wrap(ErrConfigInvalid, "threshold duration must be positive")
	}
	if c.BlendDuration <= 0 {
		return errors.Wrap(ErrConfigInvalid, "blend duration must be positive")
	}
	if c.DetectorWorkers <= 0 {
		return errors.Wrap(ErrConfigInvalid, "detector workers must be positive")
	}
	return nil
}
