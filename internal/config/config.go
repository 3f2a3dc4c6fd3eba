// Package config loads the receiver's YAML configuration file and layers
// CLI flag overrides on top of it, the same two-stage shape
// cmd/direwolf/main.go uses (a config file read first, then pflag values
// overriding whatever the file set) but with a typed YAML document in
// place of the original's line-oriented keyword config format.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Region selects the de-emphasis time constant and, eventually, any
// region-specific RDS text conventions.
type Region string

const (
	RegionEurope Region = "eu" // 50us de-emphasis
	RegionUS     Region = "us" // 75us de-emphasis
)

// DeemphasisTau returns the de-emphasis time constant in seconds for r,
// defaulting to Europe/World (50us) for an unrecognised value.
func (r Region) DeemphasisTau() float64 {
	if r == RegionUS {
		return 75e-6
	}
	return 50e-6
}

// Device describes how to reach the tuner and, optionally, a rig-control
// backend and GPIO mute line.
type Device struct {
	Path         string `yaml:"path"`          // e.g. /dev/swradio0
	SampleRate   int    `yaml:"sample_rate"`    // Hz, matches fmreceiver.InputSamplingRate
	RigModel     string `yaml:"rig_model,omitempty"`
	RigDevice    string `yaml:"rig_device,omitempty"`
	MuteGpioChip string `yaml:"mute_gpio_chip,omitempty"`
	MuteGpioLine int    `yaml:"mute_gpio_line,omitempty"`
}

// Audio describes the PCM sink. The CLI does not pass these fields to
// device.OpenAudioSink, which always opens the portaudio default stream.
type Audio struct {
	Device       string `yaml:"device,omitempty"`
	LatencyMs    int    `yaml:"latency_ms"`
}

// Config is the top-level receiver configuration, unmarshalled from the
// YAML file named by -c/--config-file and then overridden field-by-field
// by any CLI flag the caller explicitly set.
type Config struct {
	Device   Device  `yaml:"device"`
	Audio    Audio   `yaml:"audio"`
	Region   Region  `yaml:"region"`
	Workers  int     `yaml:"workers"` // 0 means runtime.NumCPU()
	LogLevel string  `yaml:"log_level"`
}

// Default returns the configuration used when no file is present, with a
// built-in fallback for every setting.
func Default() *Config {
	return &Config{
		Device: Device{
			Path:       "/dev/swradio0",
			SampleRate: 1000000,
		},
		Audio: Audio{
			LatencyMs: 100,
		},
		Region:   RegionEurope,
		LogLevel: "info",
	}
}

// Load reads and parses the YAML file at path, returning Default() merged
// with whatever fields the file sets. A missing file is not an error: it
// behaves as an empty override layer, just as a missing direwolf.conf
// falls back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
