package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"gopkg.in/yaml.v3"
)

const (
	VendorGovee = "govee"
	VendorEsp   = "esp"
	VendorOther = "other"
)

// Govee control service and characteristic, used when a device sets none
const (
	DefaultGoveeService        = "00010203-0405-0607-0809-0a0b0c0d1910"
	DefaultGoveeCharacteristic = "00010203-0405-0607-0809-0a0b0c0d2b11"
)

// Config holds application configuration
type Config struct {
	LogLevel          string        `yaml:"log_level" default:"info"`
	Listen            string        `yaml:"listen" default:":8080"`
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"30s"`
	ConnectRetries    int           `yaml:"connect_retries" default:"2"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval" default:"2s"`
	CommandRate       float64       `yaml:"command_rate"` // frames per second per device, 0 = unlimited

	MQTT    MQTTConfig     `yaml:"mqtt"`
	Devices []DeviceConfig `yaml:"devices"`
}

// MQTTConfig configures the optional MQTT bridge; an empty Broker disables it
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id" default:"ledctl"`
	TopicPrefix string `yaml:"topic_prefix" default:"ledctl"`
	QoS         byte   `yaml:"qos" default:"1"`
}

// Enabled reports whether a broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// DeviceConfig describes one LED fixture
type DeviceConfig struct {
	Address        string `yaml:"address"`
	Name           string `yaml:"name"`
	Vendor         string `yaml:"vendor" default:"govee"`
	Service        string `yaml:"service" default:"00010203-0405-0607-0809-0a0b0c0d1910"`
	Characteristic string `yaml:"characteristic" default:"00010203-0405-0607-0809-0a0b0c0d2b11"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and validates the YAML configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// List entries are decoded from scratch, so they get their defaults here
	for i := range cfg.Devices {
		defaults.SetDefaults(&cfg.Devices[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and canonicalizes device addresses, vendors and UUIDs in place
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must not be negative, got %s", c.ConnectTimeout))
	}
	if c.ConnectRetries < 0 {
		errs = append(errs, fmt.Errorf("connect_retries must not be negative, got %d", c.ConnectRetries))
	}
	if c.KeepAliveInterval <= 0 {
		errs = append(errs, fmt.Errorf("keep_alive_interval must be positive, got %s", c.KeepAliveInterval))
	}
	if c.CommandRate < 0 {
		errs = append(errs, fmt.Errorf("command_rate must not be negative, got %v", c.CommandRate))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}

	seen := make(map[device.Address]int, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]

		addr, err := device.ParseAddress(d.Address)
		if err != nil {
			errs = append(errs, fmt.Errorf("devices[%d].address: %w", i, err))
			continue
		}
		if prev, dup := seen[addr]; dup {
			errs = append(errs, fmt.Errorf("devices[%d].address: %s duplicates devices[%d]", i, addr, prev))
			continue
		}
		seen[addr] = i
		d.Address = addr.String()

		d.Vendor = strings.ToLower(strings.TrimSpace(d.Vendor))
		switch d.Vendor {
		case VendorGovee, VendorEsp, VendorOther:
		default:
			errs = append(errs, fmt.Errorf("devices[%d].vendor: unknown vendor %q", i, d.Vendor))
		}

		uuids, err := device.ValidateUUID(d.Service, d.Characteristic)
		if err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w", i, err))
			continue
		}
		d.Service, d.Characteristic = uuids[0], uuids[1]
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
