package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/driver/sim"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

// Driver kinds.
const (
	DriverSim = "sim"
)

// Config is the daemon configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device" json:"device"`
	Control   ControlConfig   `yaml:"control" json:"control"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	DataPlane DataPlaneConfig `yaml:"data_plane" json:"data_plane"`
	Driver    DriverConfig    `yaml:"driver" json:"driver"`
	NATS      NATSConfig      `yaml:"nats" json:"nats"`
}

// DeviceConfig identifies the device. An empty serial gets a generated one.
type DeviceConfig struct {
	Name            string `yaml:"name" json:"name"`
	Serial          string `yaml:"serial" json:"serial"`
	FirmwareVersion string `yaml:"firmware_version" json:"firmware_version"`
}

// ControlConfig configures the HTTP control plane.
type ControlConfig struct {
	Listen          string        `yaml:"listen" json:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// DataPlaneConfig holds provisioner settings.
type DataPlaneConfig struct {
	// Host is where unicast stream outs send and unicast stream ins bind.
	Host string `yaml:"host" json:"host"`
	// Interface is the default multicast interface; empty uses all.
	Interface string `yaml:"interface" json:"interface"`
	BasePort  int    `yaml:"base_port" json:"base_port"`
}

// DriverConfig selects the acquisition driver.
type DriverConfig struct {
	Kind string    `yaml:"kind" json:"kind"`
	Sim  SimConfig `yaml:"sim" json:"sim"`
}

// SimConfig describes the simulated hub.
type SimConfig struct {
	Channels         int           `yaml:"channels" json:"channels"`
	ChannelIndexBase int           `yaml:"channel_index_base" json:"channel_index_base"`
	Gains            []float64     `yaml:"gains" json:"gains"`
	GainPolicy       string        `yaml:"gain_policy" json:"gain_policy"`
	TrialInterval    time.Duration `yaml:"trial_interval" json:"trial_interval"`
}

// NATSConfig configures the optional tap. An empty URL disables it.
type NATSConfig struct {
	URL            string        `yaml:"url" json:"url"`
	MaxReconnects  int           `yaml:"max_reconnects" json:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait" json:"reconnect_wait"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	RelayWorkers   int           `yaml:"relay_workers" json:"relay_workers"`
	RelayQueueSize int           `yaml:"relay_queue_size" json:"relay_queue_size"`
}

// Enabled reports whether a NATS URL is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:            "blackrock-cereplex",
			FirmwareVersion: "1.0.0",
		},
		Control: ControlConfig{
			Listen:          ":647",
			ShutdownTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		DataPlane: DataPlaneConfig{
			Host:     "127.0.0.1",
			BasePort: transport.DefaultBasePort,
		},
		Driver: DriverConfig{
			Kind: DriverSim,
			Sim: SimConfig{
				Channels:         192,
				ChannelIndexBase: 1,
				GainPolicy:       driver.GainStrict.String(),
				TrialInterval:    10 * time.Millisecond,
			},
		},
		NATS: NATSConfig{
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			ConnectTimeout: 10 * time.Second,
			RelayWorkers:   2,
			RelayQueueSize: 4096,
		},
	}
}

// Validate checks the configuration and fills the generated serial.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Device.Name) == "" {
		return invalid("device.name is required")
	}
	if c.Device.Serial == "" {
		c.Device.Serial = GenerateSerial()
	}

	if _, _, err := net.SplitHostPort(c.Control.Listen); err != nil {
		return invalid("control.listen %q: %v", c.Control.Listen, err)
	}
	if c.Control.ShutdownTimeout <= 0 {
		return invalid("control.shutdown_timeout must be positive")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d out of range (1, 65535]", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if net.ParseIP(c.DataPlane.Host) == nil {
		return invalid("data_plane.host %q is not an IP address", c.DataPlane.Host)
	}
	if c.DataPlane.BasePort <= 0 || c.DataPlane.BasePort > 65535 {
		return invalid("data_plane.base_port %d out of range (1, 65535]", c.DataPlane.BasePort)
	}

	switch c.Driver.Kind {
	case DriverSim:
	default:
		return invalid("driver.kind %q must be one of [%s]", c.Driver.Kind, DriverSim)
	}
	if c.Driver.Sim.Channels <= 0 {
		return invalid("driver.sim.channels must be positive")
	}
	if c.Driver.Sim.ChannelIndexBase < 0 {
		return invalid("driver.sim.channel_index_base must be >= 0")
	}
	if _, err := parseGainPolicy(c.Driver.Sim.GainPolicy); err != nil {
		return err
	}

	if c.NATS.Enabled() && !strings.Contains(c.NATS.URL, "://") {
		return invalid("nats.url %q must include a scheme", c.NATS.URL)
	}
	return nil
}

// SimDriver returns the simulated driver settings.
func (c *Config) SimDriver() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.ChCount = c.Driver.Sim.Channels
	cfg.ChannelIndexBase = c.Driver.Sim.ChannelIndexBase
	cfg.Gains = c.Driver.Sim.Gains
	cfg.GainPolicy, _ = parseGainPolicy(c.Driver.Sim.GainPolicy)
	if c.Driver.Sim.TrialInterval > 0 {
		cfg.TrialInterval = c.Driver.Sim.TrialInterval
	}
	return cfg
}

// Transport returns the provisioner settings.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		DataHost:  c.DataPlane.Host,
		BasePort:  c.DataPlane.BasePort,
		Interface: c.DataPlane.Interface,
	}
}

// String renders the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// GenerateSerial returns a random device serial.
func GenerateSerial() string {
	return "CPLX-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func parseGainPolicy(s string) (driver.GainPolicy, error) {
	for _, p := range []driver.GainPolicy{driver.GainStrict, driver.GainAnyWhenEmpty} {
		if p.String() == s {
			return p, nil
		}
	}
	return driver.GainStrict, invalid("driver.sim.gain_policy %q must be one of [%s %s]",
		s, driver.GainStrict, driver.GainAnyWhenEmpty)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errors.ErrInvalidConfig)
}
