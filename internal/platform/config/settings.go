package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TrackSetting configures one track registered with the muxer at startup.
type TrackSetting struct {
	Kind  string `yaml:"kind"`
	Codec string `yaml:"codec"`
}

// Settings is the full configuration surface of the segmenter service.
// Values come from defaults, then an optional YAML file, then environment
// variables, each layer overriding the previous one.
type Settings struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OutputDir               string         `yaml:"output_dir"`
	FragmentPrefix          string         `yaml:"fragment_prefix"`
	InitFragmentName        string         `yaml:"init_fragment_name"`
	FragmentIntervalSeconds float64        `yaml:"fragment_interval_seconds"`
	Tracks                  []TrackSetting `yaml:"tracks"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Port:                    "8080",
		LogLevel:                "info",
		LogFormat:               "json",
		OutputDir:               "out",
		FragmentPrefix:          "media",
		InitFragmentName:        "init.webm",
		FragmentIntervalSeconds: 2,
		Tracks:                  []TrackSetting{{Kind: "video", Codec: "vp8"}},
	}
}

// LoadSettings builds Settings from defaults, the YAML file at path (skipped
// when path is empty or the file does not exist), and environment overrides.
func LoadSettings(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; fall through to env.
		case err != nil:
			return s, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	s.applyEnv()
	return s, nil
}

// applyEnv overrides settings from environment variables.
func (s *Settings) applyEnv() {
	s.Port = GetEnv("PORT", s.Port)
	s.LogLevel = GetEnv("LOG_LEVEL", s.LogLevel)
	s.LogFormat = GetEnv("LOG_FORMAT", s.LogFormat)
	s.OutputDir = GetEnv("OUTPUT_DIR", s.OutputDir)
	s.FragmentPrefix = GetEnv("FRAGMENT_PREFIX", s.FragmentPrefix)
	s.InitFragmentName = GetEnv("INIT_FRAGMENT_NAME", s.InitFragmentName)
	s.FragmentIntervalSeconds = GetEnvFloat("FRAGMENT_INTERVAL_SECONDS", s.FragmentIntervalSeconds)
}

// FragmentInterval returns the configured interval as a duration, never
// below 100ms.
func (s Settings) FragmentInterval() time.Duration {
	d := time.Duration(s.FragmentIntervalSeconds * float64(time.Second))
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}
