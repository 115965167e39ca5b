package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"tbr/common"
)

//go:embed config.yaml
var configDefaults []byte

type (
	ViewportConfig struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	}

	ReadingConfig struct {
		Orientation  string `yaml:"orientation"`
		LeadingSpace int    `yaml:"leading_space"`
		LinkWrap     bool   `yaml:"link_wrap"`
		HistorySize  int    `yaml:"history_size"`
		Theme        string `yaml:"theme"`
	}

	SearchConfig struct {
		SnippetLanguage string `yaml:"snippet_language"`
	}

	StorageConfig struct {
		Path string `yaml:"path"`
	}

	LoggerConfig struct {
		Level       string `yaml:"level"`
		Destination string `yaml:"destination,omitempty"`
		Mode        string `yaml:"mode,omitempty"`
	}

	LoggingConfig struct {
		FileLogger    LoggerConfig `yaml:"file"`
		ConsoleLogger LoggerConfig `yaml:"console"`
	}

	Config struct {
		Version  int            `yaml:"version"`
		Reading  ReadingConfig  `yaml:"reading"`
		Viewport ViewportConfig `yaml:"viewport"`
		Search   SearchConfig   `yaml:"search"`
		Storage  StorageConfig  `yaml:"storage"`
		Logging  LoggingConfig  `yaml:"logging"`
	}
)

// Orientation parses the configured reading orientation, falling back to
// horizontal for anything unrecognized - the reader must always render.
func (c *Config) Orientation() common.Orientation {
	o, err := common.ParseOrientation(c.Reading.Orientation)
	if err != nil {
		return common.OrientationHorizontal
	}
	return o
}

func unmarshalConfig(data []byte, cfg *Config) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported configuration version: %d", cfg.Version)
	}
	if _, err := common.ParseOrientation(cfg.Reading.Orientation); err != nil {
		return fmt.Errorf("bad reading.orientation: %w", err)
	}
	if cfg.Reading.LeadingSpace < 0 || cfg.Reading.LeadingSpace > 8 {
		return fmt.Errorf("reading.leading_space out of range: %d", cfg.Reading.LeadingSpace)
	}
	if cfg.Reading.HistorySize <= 0 {
		return fmt.Errorf("reading.history_size must be positive: %d", cfg.Reading.HistorySize)
	}
	if cfg.Viewport.Width < 0 || cfg.Viewport.Height < 0 {
		return fmt.Errorf("viewport extents cannot be negative: %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	switch cfg.Logging.FileLogger.Level {
	case "", "none", "normal", "debug":
	default:
		return fmt.Errorf("bad logging.file.level: %q", cfg.Logging.FileLogger.Level)
	}
	switch cfg.Logging.ConsoleLogger.Level {
	case "", "none", "normal", "debug":
	default:
		return fmt.Errorf("bad logging.console.level: %q", cfg.Logging.ConsoleLogger.Level)
	}
	return nil
}

// Prepare returns the embedded default configuration in canonical form.
func Prepare() ([]byte, error) {
	cfg, err := unmarshalConfig(configDefaults, &Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration defaults: %w", err)
	}
	return Dump(cfg)
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of embedded defaults and performs validation.
// Empty path means defaults only.
func LoadConfiguration(path string) (*Config, error) {
	cfg, err := unmarshalConfig(configDefaults, &Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration defaults: %w", err)
	}
	if len(path) > 0 {
		// overwrite cfg values with values from the file
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = unmarshalConfig(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to process configuration file: %w", err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
