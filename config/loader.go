package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYNAPSE"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones field by field.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load loads a single file, or only defaults and environment when path is
// empty.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.AddLayer(path)
	}
	return l.Load()
}

// Load merges defaults, every layer and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.decodeLayer(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// decodeLayer decodes a YAML or JSON file over cfg. Fields absent from the
// file keep their current values; unknown fields are rejected.
func (l *Loader) decodeLayer(path string, cfg *Config) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return invalid("parse: %v", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"DEVICE_NAME", &cfg.Device.Name},
		{"DEVICE_SERIAL", &cfg.Device.Serial},
		{"CONTROL_LISTEN", &cfg.Control.Listen},
		{"METRICS_PATH", &cfg.Metrics.Path},
		{"DATA_HOST", &cfg.DataPlane.Host},
		{"DATA_INTERFACE", &cfg.DataPlane.Interface},
		{"DRIVER_KIND", &cfg.Driver.Kind},
		{"NATS_URL", &cfg.NATS.URL},
	}
	for _, s := range strs {
		val, err := l.lookup(s.key)
		if err != nil {
			return err
		}
		if val != "" {
			*s.dst = val
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"METRICS_PORT", &cfg.Metrics.Port},
		{"DATA_BASE_PORT", &cfg.DataPlane.BasePort},
		{"SIM_CHANNELS", &cfg.Driver.Sim.Channels},
	}
	for _, i := range ints {
		val, err := l.lookup(i.key)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return invalid("%s_%s=%q: not an integer", l.envPrefix, i.key, val)
		}
		*i.dst = n
	}

	if val, err := l.lookup("METRICS_ENABLED"); err != nil {
		return err
	} else if val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return invalid("%s_METRICS_ENABLED=%q: not a boolean", l.envPrefix, val)
		}
		cfg.Metrics.Enabled = enabled
	}

	if val, err := l.lookup("SHUTDOWN_TIMEOUT"); err != nil {
		return err
	} else if val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return invalid("%s_SHUTDOWN_TIMEOUT=%q: %v", l.envPrefix, val, err)
		}
		cfg.Control.ShutdownTimeout = d
	}
	return nil
}

func (l *Loader) lookup(key string) (string, error) {
	name := l.envPrefix + "_" + key
	val := l.getenv(name)
	if err := validateEnvVar(name, val); err != nil {
		return "", invalid("%v", err)
	}
	return val, nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}
