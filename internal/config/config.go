// Package config loads the bridge configuration file. Every field is optional;
// the Get* accessors supply defaults for anything left out, so a partial file
// is always safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/museosc/internal/gate"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/osc"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/pipeline"
	"github.com/banshee-data/museosc/internal/serialmux"
)

// DefaultConfigPath is the canonical defaults file shipped with the repo.
const DefaultConfigPath = "config/museosc.defaults.json"

// Defaults not covered by other packages.
const (
	DefaultDisplayBuffer = 128
	DefaultLogInterval   = 10 * time.Second
	DefaultPort          = 5000
)

// BridgeConfig is the root configuration. Durations are strings such as
// "200ms" or "1s".
type BridgeConfig struct {
	Namespace *string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Host      *string `json:"host,omitempty" yaml:"host,omitempty"`
	Port      *int    `json:"port,omitempty" yaml:"port,omitempty"`

	// Throttle windows
	WaveInterval      *string `json:"wave_interval,omitempty" yaml:"wave_interval,omitempty"`
	HorseshoeInterval *string `json:"horseshoe_interval,omitempty" yaml:"horseshoe_interval,omitempty"`
	ForeheadInterval  *string `json:"forehead_interval,omitempty" yaml:"forehead_interval,omitempty"`
	BatteryInterval   *string `json:"battery_interval,omitempty" yaml:"battery_interval,omitempty"`
	BatteryPolicy     *string `json:"battery_policy,omitempty" yaml:"battery_policy,omitempty"`

	// Transmitter
	QueueDepth  *int    `json:"queue_depth,omitempty" yaml:"queue_depth,omitempty"`
	Workers     *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	LogInterval *string `json:"log_interval,omitempty" yaml:"log_interval,omitempty"`

	DisplayBuffer *int `json:"display_buffer,omitempty" yaml:"display_buffer,omitempty"`

	// Device input
	SerialPort    *string                `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	Serial        *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`
	SerialStartup []string               `json:"serial_startup,omitempty" yaml:"serial_startup,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// Load reads a .json, .yaml or .yml file. The file must be under 1MB.
func Load(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &BridgeConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory or
// one of its parents. Intended for tests; panics when not found.
func MustLoadDefaultConfig() *BridgeConfig {
	for _, prefix := range []string{"", "../", "../../", "../../../"} {
		if cfg, err := Load(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *BridgeConfig) Validate() error {
	for name, v := range map[string]*string{
		"wave_interval":      c.WaveInterval,
		"horseshoe_interval": c.HorseshoeInterval,
		"forehead_interval":  c.ForeheadInterval,
		"battery_interval":   c.BatteryInterval,
		"log_interval":       c.LogInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.Port != nil && (*c.Port < 1 || *c.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got %d", *c.Port)
	}
	if c.BatteryPolicy != nil {
		if _, err := pipeline.ParseBatteryPolicy(*c.BatteryPolicy); err != nil {
			return err
		}
	}
	if c.QueueDepth != nil && *c.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be positive, got %d", *c.QueueDepth)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}
	if c.DisplayBuffer != nil && *c.DisplayBuffer < 1 {
		return fmt.Errorf("display_buffer must be positive, got %d", *c.DisplayBuffer)
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetNamespace returns the OSC address namespace.
func (c *BridgeConfig) GetNamespace() string {
	if c.Namespace == nil || strings.TrimSpace(*c.Namespace) == "" {
		return osc.DefaultNamespace
	}
	return strings.TrimSpace(*c.Namespace)
}

// GetEndpoint returns the configured send target. Host may be empty, in which
// case the caller falls back to stored preferences.
func (c *BridgeConfig) GetEndpoint() network.Endpoint {
	ep := network.Endpoint{Port: DefaultPort}
	if c.Host != nil {
		ep.Host = strings.TrimSpace(*c.Host)
	}
	if c.Port != nil {
		ep.Port = *c.Port
	}
	return ep
}

// GetWaveInterval returns the waveband throttle window.
func (c *BridgeConfig) GetWaveInterval() time.Duration {
	return durationOr(c.WaveInterval, gate.DefaultWaveInterval)
}

// GetHorseshoeInterval returns the signal-quality throttle window.
func (c *BridgeConfig) GetHorseshoeInterval() time.Duration {
	return durationOr(c.HorseshoeInterval, gate.DefaultHorseshoeInterval)
}

// GetForeheadInterval returns the contact-status throttle window.
func (c *BridgeConfig) GetForeheadInterval() time.Duration {
	return durationOr(c.ForeheadInterval, gate.DefaultForeheadInterval)
}

// GetBatteryInterval returns the battery window used by the gated policy.
func (c *BridgeConfig) GetBatteryInterval() time.Duration {
	return durationOr(c.BatteryInterval, gate.DefaultBatteryInterval)
}

// GetBatteryPolicy returns the battery policy, display by default.
func (c *BridgeConfig) GetBatteryPolicy() pipeline.BatteryPolicy {
	if c.BatteryPolicy == nil {
		return pipeline.BatteryDisplay
	}
	p, err := pipeline.ParseBatteryPolicy(*c.BatteryPolicy)
	if err != nil {
		return pipeline.BatteryDisplay
	}
	return p
}

// Intervals builds the gate window set. Battery only gets a window under the
// gated policy, falling back to the default when its interval is zero; any
// other zero interval disables throttling for that category.
func (c *BridgeConfig) Intervals() map[packet.Category]time.Duration {
	intervals := map[packet.Category]time.Duration{
		packet.Horseshoe:        c.GetHorseshoeInterval(),
		packet.TouchingForehead: c.GetForeheadInterval(),
	}
	for _, band := range packet.Wavebands {
		intervals[band] = c.GetWaveInterval()
	}
	return gate.WithBattery(intervals, c.GetBatteryPolicy() == pipeline.BatteryGated, c.GetBatteryInterval())
}

// GetQueueDepth returns the transmitter queue bound.
func (c *BridgeConfig) GetQueueDepth() int {
	if c.QueueDepth == nil {
		return network.DefaultQueueDepth
	}
	return *c.QueueDepth
}

// GetWorkers returns the number of sender goroutines.
func (c *BridgeConfig) GetWorkers() int {
	if c.Workers == nil {
		return network.DefaultWorkers
	}
	return *c.Workers
}

// GetLogInterval returns how often drop and error summaries are logged.
func (c *BridgeConfig) GetLogInterval() time.Duration {
	return durationOr(c.LogInterval, DefaultLogInterval)
}

// GetDisplayBuffer returns the display update queue length.
func (c *BridgeConfig) GetDisplayBuffer() int {
	if c.DisplayBuffer == nil {
		return DefaultDisplayBuffer
	}
	return *c.DisplayBuffer
}

// GetSerialPort returns the device path, empty when no device is configured.
func (c *BridgeConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialOptions returns the serial line settings.
func (c *BridgeConfig) GetSerialOptions() serialmux.PortOptions {
	if c.Serial == nil {
		return serialmux.PortOptions{}
	}
	return *c.Serial
}

// Overrides carries command-line values. Zero values leave the file's
// setting in place.
type Overrides struct {
	Namespace     string
	Host          string
	Port          int
	SerialPort    string
	BatteryPolicy string
}

// Apply copies every non-zero override onto c and revalidates.
func (c *BridgeConfig) Apply(o Overrides) error {
	if o.Namespace != "" {
		c.Namespace = ptrString(o.Namespace)
	}
	if o.Host != "" {
		c.Host = ptrString(o.Host)
	}
	if o.Port != 0 {
		c.Port = ptrInt(o.Port)
	}
	if o.SerialPort != "" {
		c.SerialPort = ptrString(o.SerialPort)
	}
	if o.BatteryPolicy != "" {
		c.BatteryPolicy = ptrString(o.BatteryPolicy)
	}
	return c.Validate()
}
