// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/arq"
)

// EnvironmentVariable names the config file consulted by Load.
const EnvironmentVariable = "POLARIS_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// TransportKind selects the SpiceAPI transport.
type TransportKind string

const (
	// TransportStream is a plain TCP byte stream.
	TransportStream TransportKind = "tcp"
	// TransportDatagram is UDP with KCP retransmission and optional
	// RC4 obfuscation.
	TransportDatagram TransportKind = "udp"
)

// Duration is a time.Duration written as a Go duration string ("1s",
// "16ms") in both YAML and JSON.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration snapshot.
type Config struct {
	SpiceAPI   SpiceAPIConfig   `yaml:"spice_api" json:"spice_api"`
	Controller ControllerConfig `yaml:"controller" json:"controller"`
	Stream     StreamConfig     `yaml:"stream" json:"stream"`
	Datagram   DatagramConfig   `yaml:"datagram" json:"datagram"`
	Input      InputConfig      `yaml:"input" json:"input"`
}

// SpiceAPIConfig identifies the remote control endpoint.
type SpiceAPIConfig struct {
	Host      string        `yaml:"host" json:"host"`
	Port      uint16        `yaml:"port" json:"port"`
	Transport TransportKind `yaml:"transport" json:"transport"`

	// Password is the pre-shared RC4 key. Empty disables obfuscation.
	// Only the datagram transport obfuscates.
	Password string `yaml:"password" json:"password"`
}

// Address returns host:port.
func (c SpiceAPIConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// ControllerConfig holds the touch surface geometry and gesture tuning.
type ControllerConfig struct {
	// Lanes is the number of button lanes across the lower area.
	Lanes int `yaml:"lanes" json:"lanes"`

	// FaderAreaSize is the fraction of the surface height, measured
	// from the top, reserved for the two faders.
	FaderAreaSize float64 `yaml:"fader_area_size" json:"fader_area_size"`

	// FaderDeadZone is the per-tick horizontal movement in pixels below
	// which a fader finger's direction is left unchanged.
	FaderDeadZone float64 `yaml:"fader_dead_zone" json:"fader_dead_zone"`

	// FaderReturnGain scales the per-tick step back to center when a
	// fader is released.
	FaderReturnGain float64 `yaml:"fader_return_gain" json:"fader_return_gain"`

	// FaderEaseDivisor divides the per-tick step toward an extreme
	// while a fader is moving.
	FaderEaseDivisor float64 `yaml:"fader_ease_divisor" json:"fader_ease_divisor"`

	// OppositeFaderDelay is the window in which a second fader touch
	// must also fall on its own half of the surface.
	OppositeFaderDelay Duration `yaml:"opposite_fader_delay" json:"opposite_fader_delay"`

	// TickRate is the number of state snapshots sent per second.
	TickRate int `yaml:"tick_rate" json:"tick_rate"`

	// GuardInterval is how often GuardConnection runs.
	GuardInterval Duration `yaml:"guard_interval" json:"guard_interval"`

	// SurfaceWidth and SurfaceHeight are the touch surface size in
	// pixels until an input source reports its own.
	SurfaceWidth  float64 `yaml:"surface_width" json:"surface_width"`
	SurfaceHeight float64 `yaml:"surface_height" json:"surface_height"`

	// DebugTouch logs every valid finger on every tick.
	DebugTouch bool `yaml:"debug_touch" json:"debug_touch"`
}

// TickInterval returns the period between ticks.
func (c ControllerConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// StreamConfig tunes the TCP transport.
type StreamConfig struct {
	SendTimeout    Duration `yaml:"send_timeout" json:"send_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// DatagramConfig tunes the UDP transport and its session watchdog.
type DatagramConfig struct {
	PollInterval     Duration `yaml:"poll_interval" json:"poll_interval"`
	SessionTimeout   Duration `yaml:"session_timeout" json:"session_timeout"`
	BacklogLimit     int      `yaml:"backlog_limit" json:"backlog_limit"`
	RebuildDelay     Duration `yaml:"rebuild_delay" json:"rebuild_delay"`
	SendTimeout      Duration `yaml:"send_timeout" json:"send_timeout"`
	ResponseAttempts int      `yaml:"response_attempts" json:"response_attempts"`
	Conversation     uint32   `yaml:"conversation" json:"conversation"`
}

// InputConfig selects touch sources and recording.
type InputConfig struct {
	// Listen is the HTTP address serving /touch, /status, and
	// /metrics. Empty disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// EvdevDevice is an optional Linux multitouch device path such as
	// /dev/input/event3.
	EvdevDevice string `yaml:"evdev_device" json:"evdev_device"`

	// GrabDevice requests exclusive access to EvdevDevice.
	GrabDevice bool `yaml:"grab_device" json:"grab_device"`

	// Record writes every touch event to this trace file.
	Record string `yaml:"record" json:"record"`

	// Replay feeds a recorded trace instead of live input.
	Replay string `yaml:"replay" json:"replay"`
}

// Default returns the configuration used for any field a file omits.
func Default() *Config {
	return &Config{
		SpiceAPI: SpiceAPIConfig{
			Host:      "192.168.1.100",
			Port:      1337,
			Transport: TransportStream,
		},
		Controller: ControllerConfig{
			Lanes:              12,
			FaderAreaSize:      0.5,
			FaderDeadZone:      2,
			FaderReturnGain:    1.92,
			FaderEaseDivisor:   6,
			OppositeFaderDelay: Duration(500 * time.Millisecond),
			TickRate:           60,
			GuardInterval:      Duration(time.Second),
			SurfaceWidth:       1920,
			SurfaceHeight:      1080,
		},
		Stream: StreamConfig{
			SendTimeout:    Duration(100 * time.Millisecond),
			ConnectTimeout: Duration(3 * time.Second),
		},
		Datagram: DatagramConfig{
			PollInterval:     Duration(time.Millisecond),
			SessionTimeout:   Duration(2 * time.Second),
			BacklogLimit:     100,
			RebuildDelay:     Duration(time.Second),
			SendTimeout:      Duration(50 * time.Millisecond),
			ResponseAttempts: 10,
			Conversation:     573,
		},
		Input: InputConfig{
			Listen: "127.0.0.1:8642",
		},
	}
}

// Load reads the file named by POLARIS_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile reads and validates a YAML or JSONC config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.SpiceAPI.Host) == "" {
		return invalid("spice_api.host is required")
	}
	if c.SpiceAPI.Port == 0 {
		return invalid("spice_api.port must be between 1 and 65535")
	}
	switch c.SpiceAPI.Transport {
	case TransportStream, TransportDatagram:
	default:
		return invalid("spice_api.transport must be %q or %q, got %q", TransportStream, TransportDatagram, c.SpiceAPI.Transport)
	}
	controller := c.Controller
	if controller.Lanes < 1 || controller.Lanes > 32 {
		return invalid("controller.lanes must be between 1 and 32, got %d", controller.Lanes)
	}
	if controller.FaderAreaSize <= 0 || controller.FaderAreaSize >= 1 {
		return invalid("controller.fader_area_size must be between 0 and 1 exclusive, got %g", controller.FaderAreaSize)
	}
	if controller.FaderDeadZone < 0 {
		return invalid("controller.fader_dead_zone must not be negative")
	}
	if controller.FaderReturnGain <= 0 {
		return invalid("controller.fader_return_gain must be positive")
	}
	if controller.FaderEaseDivisor < 1 {
		return invalid("controller.fader_ease_divisor must be at least 1")
	}
	if controller.TickRate < 1 || controller.TickRate > 1000 {
		return invalid("controller.tick_rate must be between 1 and 1000, got %d", controller.TickRate)
	}
	if controller.GuardInterval <= 0 {
		return invalid("controller.guard_interval must be positive")
	}
	if controller.SurfaceWidth <= 0 || controller.SurfaceHeight <= 0 {
		return invalid("controller surface size must be positive")
	}

	if c.Stream.SendTimeout <= 0 || c.Stream.ConnectTimeout <= 0 {
		return invalid("stream timeouts must be positive")
	}

	datagram := c.Datagram
	if datagram.PollInterval <= 0 || datagram.SessionTimeout <= 0 || datagram.SendTimeout <= 0 {
		return invalid("datagram intervals must be positive")
	}
	if datagram.RebuildDelay <= 0 {
		return invalid("datagram.rebuild_delay must be positive")
	}
	if datagram.BacklogLimit < 1 || datagram.BacklogLimit >= arq.DefaultWindow {
		return invalid("datagram.backlog_limit must be between 1 and %d, got %d", arq.DefaultWindow-1, datagram.BacklogLimit)
	}
	if datagram.ResponseAttempts < 1 {
		return invalid("datagram.response_attempts must be positive")
	}

	if c.Input.Record != "" && c.Input.Record == c.Input.Replay {
		return invalid("input.record and input.replay must differ")
	}
	return nil
}
