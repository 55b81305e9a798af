package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/menta2k/panostitch/pkg/cropper"
	"github.com/menta2k/panostitch/pkg/processing"
)

// Config holds the application configuration
type Config struct {
	Stitch  StitchConfig  `json:"stitch" toml:"stitch"`
	Cropper CropperConfig `json:"cropper" toml:"cropper"`
	Output  OutputConfig  `json:"output" toml:"output"`
	Log     LogConfig     `json:"log" toml:"log"`
}

// StitchConfig holds configuration for input normalization and stitching
type StitchConfig struct {
	MaxWidth int  `json:"max_width" toml:"max_width"`
	Crop     bool `json:"crop" toml:"crop"`
	// Mode is "panorama" or "scans"
	Mode string `json:"mode" toml:"mode"`
}

// CropperConfig holds configuration for border cropping
type CropperConfig struct {
	BlackThreshold float64 `json:"black_threshold" toml:"black_threshold"`
}

// OutputConfig holds configuration for output encoding
type OutputConfig struct {
	// Format overrides the format derived from the output extension
	Format   string `json:"format" toml:"format"`
	Quality  int    `json:"quality" toml:"quality"`
	Lossless bool   `json:"lossless" toml:"lossless"`
	// CreateDirs creates missing output directories once the panorama is
	// ready to be written
	CreateDirs bool `json:"create_dirs" toml:"create_dirs"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" toml:"level"`
	JSON  bool   `json:"json" toml:"json"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Stitch: StitchConfig{
			MaxWidth: 1080,
			Crop:     true,
			Mode:     "panorama",
		},
		Cropper: CropperConfig{
			BlackThreshold: cropper.DefaultBlackThreshold,
		},
		Output: OutputConfig{
			Quality:    processing.DefaultQuality,
			CreateDirs: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON or TOML file, chosen by
// extension. Keys missing from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if isTOML(filename) {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or TOML file, chosen by extension
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	var data []byte
	if isTOML(filename) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return errors.Wrap(err, "failed to marshal config")
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config")
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Stitch.MaxWidth < 1 {
		return errors.New("stitch.max_width must be positive")
	}

	if c.Stitch.Mode != "panorama" && c.Stitch.Mode != "scans" {
		return errors.Newf("stitch.mode must be panorama or scans, got %q", c.Stitch.Mode)
	}

	if c.Cropper.BlackThreshold <= 0 || c.Cropper.BlackThreshold >= 1 {
		return errors.New("cropper.black_threshold must be between 0 and 1")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return errors.New("output.quality must be between 1 and 100")
	}

	if c.Output.Format != "" {
		if err := processing.CheckFormat(c.Output.Format); err != nil {
			return errors.Wrap(err, "output.format")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return errors.Newf("log.level %q is not a known level", c.Log.Level)
	}

	return nil
}

// ProcessingConfig returns the codec settings
func (c *Config) ProcessingConfig() processing.Config {
	return processing.Config{
		Quality:    c.Output.Quality,
		Lossless:   c.Output.Lossless,
		Format:     c.Output.Format,
		CreateDirs: c.Output.CreateDirs,
	}
}

// CropConfig returns the border cropper settings
func (c *Config) CropConfig() cropper.CropConfig {
	return cropper.CropConfig{BlackThreshold: c.Cropper.BlackThreshold}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "panostitch", "config.json")
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}
