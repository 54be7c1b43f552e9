// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/safeoff/safeoff/lib/poweroff"
)

// Environment variables read by Load and ApplyEnvironment.
const (
	EnvConfig  = "SAFEOFF_CONFIG"
	EnvMonitor = "SAFEOFF_MONITOR"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config is the agent configuration.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Poweroff PoweroffConfig `yaml:"poweroff" json:"poweroff"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// MonitorConfig configures the connection to the monitor.
type MonitorConfig struct {
	// Endpoint is unix:///path, a bare absolute path, or
	// tcp://<loopback>:port.
	// Default: unix:///run/safeoff/monitor.sock
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// ConnectTimeout bounds each dial. Default: 1s
	ConnectTimeout Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// QueryTimeout bounds each verdict request. Default: 2s
	QueryTimeout Duration `yaml:"query_timeout" json:"query_timeout"`
}

// SessionConfig configures the decision protocol.
type SessionConfig struct {
	// Deadline is fixed when the session starts. Default: 30s
	Deadline Duration `yaml:"deadline" json:"deadline"`

	// BackoffBase is the first retry delay, doubled per retry.
	// Default: 500ms
	BackoffBase Duration `yaml:"backoff_base" json:"backoff_base"`

	// BackoffCap bounds the retry delay. Default: 8s
	BackoffCap Duration `yaml:"backoff_cap" json:"backoff_cap"`
}

// PoweroffConfig configures the shutdown executor.
type PoweroffConfig struct {
	// Mechanisms is the ordered chain tried by the executor.
	// Default: [systemctl, poweroff, syscall]
	Mechanisms []string `yaml:"mechanisms" json:"mechanisms"`

	// ExecTimeout bounds one command attempt. Default: 20s
	ExecTimeout Duration `yaml:"exec_timeout" json:"exec_timeout"`

	// RetryDelay is the pause before the single retry. Default: 3s
	RetryDelay Duration `yaml:"retry_delay" json:"retry_delay"`

	// StateDir holds the host-wide poweroff lock and record shared by
	// concurrent agents. It should be on a tmpfs cleared at boot.
	// Default: /run/safeoff
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// MarkerTTL is how long a recorded poweroff blocks further
	// attempts. Default: 5m
	MarkerTTL Duration `yaml:"marker_ttl" json:"marker_ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Format is auto, json, or text. Auto picks text for a terminal
	// and json otherwise. Default: auto
	Format string `yaml:"format" json:"format"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Endpoint:       "unix:///run/safeoff/monitor.sock",
			ConnectTimeout: Duration(time.Second),
			QueryTimeout:   Duration(2 * time.Second),
		},
		Session: SessionConfig{
			Deadline:    Duration(30 * time.Second),
			BackoffBase: Duration(500 * time.Millisecond),
			BackoffCap:  Duration(8 * time.Second),
		},
		Poweroff: PoweroffConfig{
			Mechanisms:  []string{poweroff.Systemctl, poweroff.Poweroff, poweroff.Syscall},
			ExecTimeout: Duration(20 * time.Second),
			RetryDelay:  Duration(3 * time.Second),
			StateDir:    "/run/safeoff",
			MarkerTTL:   Duration(5 * time.Minute),
		},
		Log: LogConfig{
			Format: LogFormatAuto,
		},
	}
}

// Load returns the defaults overlaid with the file named by
// SAFEOFF_CONFIG, if set. A config file is optional: the defaults
// describe a standard installation.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile returns the defaults overlaid with the file at path. Keys
// absent from the file keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = cfg.decodeJSON(data)
	default:
		err = cfg.decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) decodeJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	return decoder.Decode(c)
}

// ApplyEnvironment applies SAFEOFF_MONITOR through getenv.
func (c *Config) ApplyEnvironment(getenv func(string) string) {
	if endpoint := getenv(EnvMonitor); endpoint != "" {
		c.Monitor.Endpoint = endpoint
	}
}

// Validate checks the configuration, reporting every problem found.
func (c *Config) Validate() error {
	var errs []error

	// Endpoint syntax is checked when the session dials, so a bad
	// endpoint is reported as a connect failure rather than a usage
	// error.
	if c.Monitor.Endpoint == "" {
		errs = append(errs, errors.New("monitor.endpoint is required"))
	}

	positive := []struct {
		name  string
		value Duration
	}{
		{"monitor.connect_timeout", c.Monitor.ConnectTimeout},
		{"monitor.query_timeout", c.Monitor.QueryTimeout},
		{"session.deadline", c.Session.Deadline},
		{"session.backoff_base", c.Session.BackoffBase},
		{"session.backoff_cap", c.Session.BackoffCap},
		{"poweroff.exec_timeout", c.Poweroff.ExecTimeout},
		{"poweroff.marker_ttl", c.Poweroff.MarkerTTL},
	}
	for _, field := range positive {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", field.name, field.value))
		}
	}
	if c.Poweroff.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("poweroff.retry_delay must not be negative, got %v", c.Poweroff.RetryDelay))
	}
	if c.Session.BackoffBase > c.Session.BackoffCap {
		errs = append(errs, fmt.Errorf("session.backoff_base (%v) exceeds session.backoff_cap (%v)",
			c.Session.BackoffBase, c.Session.BackoffCap))
	}

	if c.Poweroff.StateDir == "" {
		errs = append(errs, errors.New("poweroff.state_dir is required"))
	}
	if len(c.Poweroff.Mechanisms) == 0 {
		errs = append(errs, errors.New("poweroff.mechanisms must name at least one mechanism"))
	}
	for _, name := range c.Poweroff.Mechanisms {
		if !slices.Contains(poweroff.Names, name) {
			errs = append(errs, fmt.Errorf("poweroff.mechanisms: unknown mechanism %q (valid: %s)",
				name, strings.Join(poweroff.Names, ", ")))
		}
	}

	formats := []string{LogFormatAuto, LogFormatJSON, LogFormatText}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by
// encoding/json for string values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string like \"2s\"", node.Line)
	}
	if err := d.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}
