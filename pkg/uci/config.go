package uci

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
	"github.com/markus-lassfolk/gpsselect/pkg/mqtt"
)

// DefaultConfigPath is where the daemon looks for its configuration
const DefaultConfigPath = "/etc/config/gpsselect"

// Defaults for the host-side settings
const (
	DefaultLogLevel      = "info"
	DefaultPIDFile       = "/var/run/gpsselectd.pid"
	DefaultHistorySize   = 30
	DefaultMetricsListen = ":9109"
)

// ErrInvalidConfig is wrapped by every parse and validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the gpsselect configuration
type Config struct {
	LogLevel    string        `yaml:"log_level"`
	PIDFile     string        `yaml:"pid_file"`
	HistorySize int           `yaml:"history_size"`
	StaleAfter  time.Duration `yaml:"stale_after"`

	GPS     gps.Config    `yaml:"thresholds"`
	MQTT    mqtt.Config   `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig controls the Prometheus listener
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	gpsCfg := gps.DefaultConfig()
	return &Config{
		LogLevel:    DefaultLogLevel,
		PIDFile:     DefaultPIDFile,
		HistorySize: DefaultHistorySize,
		StaleAfter:  2 * gpsCfg.DataCollectionInterval,
		GPS:         gpsCfg,
		MQTT:        mqtt.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  DefaultMetricsListen,
		},
	}
}

// LoadConfig reads the configuration at path. A missing file yields the
// defaults. Files ending in .yaml or .yml are decoded as YAML, anything else
// is parsed as a UCI config file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	default:
		if err := cfg.parseUCI(string(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseUCI parses the UCI text format:
//
//	config <type> '<name>'
//	        option <key> '<value>'
func (c *Config) parseUCI(data string) error {
	var sectionType string

	for n, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "config":
			if len(parts) < 2 {
				return fmt.Errorf("%w: line %d: section without type", ErrInvalidConfig, n+1)
			}
			sectionType = parts[1]
		case "option":
			if len(parts) < 3 {
				return fmt.Errorf("%w: line %d: option without value", ErrInvalidConfig, n+1)
			}
			value := strings.Trim(strings.Join(parts[2:], " "), "'\"")
			if err := c.parseOption(sectionType, parts[1], value); err != nil {
				return fmt.Errorf("%w: line %d: %v", ErrInvalidConfig, n+1, err)
			}
		case "list":
			// no list options are used
		default:
			return fmt.Errorf("%w: line %d: unexpected %q", ErrInvalidConfig, n+1, parts[0])
		}
	}
	return nil
}

// parseOption routes options to the parser of their section type. Unknown
// sections and options are ignored so other tools may share the file.
func (c *Config) parseOption(sectionType, option, value string) error {
	switch sectionType {
	case "gpsselect":
		return c.parseMainOption(option, value)
	case "thresholds":
		return c.parseThresholdsOption(option, value)
	case "mqtt":
		return c.parseMQTTOption(option, value)
	case "metrics":
		return c.parseMetricsOption(option, value)
	}
	return nil
}

func (c *Config) parseMainOption(option, value string) (err error) {
	switch option {
	case "log_level":
		c.LogLevel = value
	case "pid_file":
		c.PIDFile = value
	case "history_size":
		c.HistorySize, err = strconv.Atoi(value)
	case "stale_after_s":
		c.StaleAfter, err = parseSeconds(value)
	}
	return wrapOption(option, err)
}

func (c *Config) parseThresholdsOption(option, value string) (err error) {
	g := &c.GPS
	switch option {
	case "rutos_accuracy":
		g.RUTOSAccuracyM, err = parseFloat(value)
	case "starlink_accuracy":
		g.StarlinkAccuracyM, err = parseFloat(value)
	case "gps_position_accuracy":
		g.PositionAccuracyM, err = parseFloat(value)
	case "altitude_difference_threshold":
		g.AltitudeDifferenceThreshold, err = parseFloat(value)
	case "movement_speed_threshold":
		g.MovementSpeedThreshold, err = parseFloat(value)
	case "gps_stability_threshold":
		g.StabilityThresholdM, err = parseFloat(value)
	case "data_collection_interval":
		g.DataCollectionInterval, err = parseSeconds(value)
	case "accuracy_check_interval":
		g.AccuracyCheckInterval, err = parseSeconds(value)
	case "excellent_accuracy":
		g.ExcellentAccuracyM, err = parseFloat(value)
	case "good_accuracy":
		g.GoodAccuracyM, err = parseFloat(value)
	case "frequent_switch_window_s":
		g.FrequentSwitchWindow, err = parseSeconds(value)
	case "min_stability_readings":
		g.MinStabilityReadings, err = strconv.Atoi(value)
	}
	return wrapOption(option, err)
}

func (c *Config) parseMQTTOption(option, value string) (err error) {
	m := &c.MQTT
	switch option {
	case "enabled":
		m.Enabled = parseBool(value)
	case "broker":
		m.Broker = value
	case "port":
		m.Port, err = strconv.Atoi(value)
	case "client_id":
		m.ClientID = value
	case "username":
		m.Username = value
	case "password":
		m.Password = value
	case "topic_prefix":
		m.TopicPrefix = strings.TrimSuffix(value, "/")
	case "qos":
		m.QoS, err = strconv.Atoi(value)
	case "retain":
		m.Retain = parseBool(value)
	}
	return wrapOption(option, err)
}

func (c *Config) parseMetricsOption(option, value string) error {
	switch option {
	case "enabled":
		c.Metrics.Enabled = parseBool(value)
	case "listen":
		c.Metrics.Listen = value
	}
	return nil
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	if err := c.GPS.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.HistorySize < c.GPS.MinStabilityReadings || c.HistorySize > 1000 {
		return fmt.Errorf("%w: history_size must be between min_stability_readings (%d) and 1000",
			ErrInvalidConfig, c.GPS.MinStabilityReadings)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("%w: stale_after must not be negative", ErrInvalidConfig)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" || c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("%w: mqtt broker and topic_prefix are required", ErrInvalidConfig)
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("%w: mqtt port %d", ErrInvalidConfig, c.MQTT.Port)
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics listen address is required", ErrInvalidConfig)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return true
	}
	return false
}

func parseFloat(value string) (float64, error) {
	return strconv.ParseFloat(value, 64)
}

func parseSeconds(value string) (time.Duration, error) {
	s, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(s * float64(time.Second)), nil
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on", "enabled":
		return true
	}
	return false
}

func wrapOption(option string, err error) error {
	if err != nil {
		return fmt.Errorf("option %s: %w", option, err)
	}
	return nil
}
