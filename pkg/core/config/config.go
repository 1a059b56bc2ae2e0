// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     config
// Description: File configuration for speechrec (TOML or YAML)
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "SPEECHREC_CONFIG"

// Config holds the complete application configuration
type Config struct {
	General  GeneralConfig   `toml:"general" yaml:"general"`
	Recorder RecorderConfig  `toml:"recorder" yaml:"recorder"`
	Triggers []TriggerConfig `toml:"triggers" yaml:"triggers"`
	Output   OutputConfig    `toml:"output" yaml:"output"`
	Server   ServerConfig    `toml:"server" yaml:"server"`
}

// GeneralConfig holds general application settings
type GeneralConfig struct {
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"` // json or text
	DataDir   string `toml:"data_dir" yaml:"data_dir"`
}

// RecorderConfig holds the capture and segmentation settings
type RecorderConfig struct {
	Device            string  `toml:"device" yaml:"device"`
	SampleRate        int     `toml:"sample_rate" yaml:"sample_rate"`
	FramesPerBuffer   int     `toml:"frames_per_buffer" yaml:"frames_per_buffer"`
	ChannelNumber     int     `toml:"channel_number" yaml:"channel_number"`
	ChannelID         int     `toml:"channel_id" yaml:"channel_id"`
	SpeakingThreshold int     `toml:"speaking_threshold" yaml:"speaking_threshold"`
	SilenceThreshold  int     `toml:"silence_threshold" yaml:"silence_threshold"`
	LeadingPadding    int     `toml:"leading_padding" yaml:"leading_padding"`
	HighWaterMark     int     `toml:"high_water_mark" yaml:"high_water_mark"`
	Level             int     `toml:"level" yaml:"level"`
	Classifier        string  `toml:"classifier" yaml:"classifier"` // webrtc or energy
	EnergyThreshold   float64 `toml:"energy_threshold" yaml:"energy_threshold"`
}

// TriggerConfig defines a silence trigger
type TriggerConfig struct {
	ID        string `toml:"id" yaml:"id"`
	Threshold int    `toml:"threshold" yaml:"threshold"`
}

// OutputConfig holds where segments go
type OutputConfig struct {
	WAVDir    string   `toml:"wav_dir" yaml:"wav_dir"`     // empty disables WAV output
	Database  string   `toml:"database" yaml:"database"`   // empty disables the journal
	Retention Duration `toml:"retention" yaml:"retention"` // zero keeps everything
}

// ServerConfig holds the event server settings
type ServerConfig struct {
	Listen     string `toml:"listen" yaml:"listen"` // empty disables the server
	SendBuffer int    `toml:"send_buffer" yaml:"send_buffer"`
}

// Duration is a wrapper around time.Duration for text unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
			DataDir:   "./data",
		},
		Recorder: RecorderConfig{
			Device:            "any",
			SampleRate:        16000,
			FramesPerBuffer:   320,
			ChannelNumber:     1,
			ChannelID:         0,
			SpeakingThreshold: 5,
			SilenceThreshold:  30,
			LeadingPadding:    30,
			HighWaterMark:     64000,
			Level:             3,
			Classifier:        "webrtc",
			EnergyThreshold:   0.02,
		},
		Server: ServerConfig{
			SendBuffer: 256,
		},
	}
}

// Load loads configuration from a TOML or YAML file. Values missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from SPEECHREC_CONFIG or the default
// locations. Without any config file the defaults are returned.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}

	for _, p := range DefaultPaths() {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}

// DefaultPaths returns the locations searched by LoadFromEnv
func DefaultPaths() []string {
	return []string{
		"./configs/speechrec.toml",
		"./speechrec.toml",
		"./speechrec.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/speechrec/config.toml"),
	}
}

// expandEnvVars expands environment variables in path values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.Output.WAVDir = os.ExpandEnv(c.Output.WAVDir)
	c.Output.Database = os.ExpandEnv(c.Output.Database)
}

// Validate checks values that are not covered by the recorder itself
func (c *Config) Validate() error {
	switch strings.ToLower(c.General.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.General.LogLevel)
	}

	switch c.General.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q, must be json or text", c.General.LogFormat)
	}

	switch c.Recorder.Classifier {
	case "webrtc":
	case "energy":
		if c.Recorder.EnergyThreshold <= 0 || c.Recorder.EnergyThreshold > 1 {
			return fmt.Errorf("energy threshold must be in (0, 1], got %v", c.Recorder.EnergyThreshold)
		}
	default:
		return fmt.Errorf("invalid classifier %q, must be webrtc or energy", c.Recorder.Classifier)
	}

	for i, t := range c.Triggers {
		if t.ID == "" {
			return fmt.Errorf("trigger %d has no id", i)
		}
		if t.Threshold <= 0 {
			return fmt.Errorf("trigger %q threshold must be positive", t.ID)
		}
	}

	if c.Output.Retention.Duration < 0 {
		return fmt.Errorf("retention must not be negative")
	}
	if c.Server.SendBuffer < 0 {
		return fmt.Errorf("server send buffer must not be negative")
	}
	return nil
}
