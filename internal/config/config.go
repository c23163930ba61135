// Package config loads the YAML configuration surface for the event
// streaming core.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/writer"
)

// Duration wraps time.Duration so YAML values can be written as "72h" or
// "30m" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full configuration surface. Zero values are filled with
// defaults by Load.
type Config struct {
	// OutputRoot holds one subdirectory per simulation.
	OutputRoot string `yaml:"output_root"`
	// Verbosity is the persistence threshold for the writer.
	Verbosity string `yaml:"verbosity"`
	// Mode is "concurrent" or "direct".
	Mode string `yaml:"mode"`
	// MaxFileSize is the rotation threshold in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
	// MaxQueueSize bounds the concurrent-mode queue.
	MaxQueueSize int `yaml:"max_queue_size"`

	Retention RetentionConfig `yaml:"retention"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// RetentionConfig controls pruning of rotated segments.
type RetentionConfig struct {
	// Schedule is a cron expression; the default sweeps hourly.
	Schedule string `yaml:"schedule"`
	// MaxAge drops rotated segments older than this. Zero disables.
	MaxAge Duration `yaml:"max_age"`
	// MaxSegments caps rotated segments per simulation. Zero disables.
	MaxSegments int `yaml:"max_segments"`
}

// ArchiveConfig controls S3 upload of rotated segments.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		OutputRoot:   "output",
		Verbosity:    event.LevelMilestone.String(),
		Mode:         string(writer.ModeConcurrent),
		MaxFileSize:  writer.DefaultMaxFileSize,
		MaxQueueSize: writer.DefaultMaxQueueSize,
		Retention: RetentionConfig{
			Schedule: "@hourly",
		},
	}
}

// Load reads a YAML config file, rejecting unknown keys, and fills unset
// fields with defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.OutputRoot == "" {
		c.OutputRoot = def.OutputRoot
	}
	if c.Verbosity == "" {
		c.Verbosity = def.Verbosity
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = def.Retention.Schedule
	}
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	if _, err := event.ParseLevel(c.Verbosity); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch writer.Mode(c.Mode) {
	case writer.ModeConcurrent, writer.ModeDirect:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("config: archive enabled without a bucket")
	}
	return nil
}

// VerbosityLevel returns the parsed verbosity. Call Validate first.
func (c *Config) VerbosityLevel() event.Level {
	lvl, err := event.ParseLevel(c.Verbosity)
	if err != nil {
		return event.LevelMilestone
	}
	return lvl
}

// WriterOptions maps the config onto writer options for one simulation.
func (c *Config) WriterOptions(simulationID string) writer.Options {
	return writer.Options{
		OutputRoot:   c.OutputRoot,
		SimulationID: simulationID,
		Verbosity:    c.VerbosityLevel(),
		Mode:         writer.Mode(c.Mode),
		MaxFileSize:  c.MaxFileSize,
		MaxQueueSize: c.MaxQueueSize,
	}
}
