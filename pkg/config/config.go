package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Control ControlConfig `yaml:"control"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Trace   TraceConfig   `yaml:"trace"`
	Log     LogConfig     `yaml:"log"`
	Mock    MockConfig    `yaml:"mock"`
}

// DeviceConfig identifies the roaster on the USB bus.
type DeviceConfig struct {
	VendorID        uint16        `yaml:"vendor_id"`
	ProductID       uint16        `yaml:"product_id"`
	Interface       int           `yaml:"interface"`
	InEndpoint      uint8         `yaml:"in_endpoint"`
	OutEndpoint     uint8         `yaml:"out_endpoint"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"` // Per transfer, 0 = wait forever
}

// ControlConfig contains the retry and pacing policy of the roaster session.
type ControlConfig struct {
	MaxRetries    int           `yaml:"max_retries"`     // Samples without change before giving up
	SettleDelay   time.Duration `yaml:"settle_delay"`    // Pause when a sample did not advance the stats index
	NotReadyDelay time.Duration `yaml:"not_ready_delay"` // Pause after the roaster signals it has no more data
	DrainTimeout  time.Duration `yaml:"drain_timeout"`   // Bound on finishing in-flight transfers at close
	PollInterval  time.Duration `yaml:"poll_interval"`   // Refresh period of the CLI watch and console
}

// BridgeConfig configures the TC4 serial bridge.
type BridgeConfig struct {
	Port     string `yaml:"port"` // Empty disables the bridge
	BaudRate int    `yaml:"baud_rate"`
	Units    string `yaml:"units"` // "C" or "F"
}

// TraceConfig configures transfer tracing.
type TraceConfig struct {
	File string `yaml:"file"` // Empty disables the file trace
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MockConfig configures the simulated roaster.
type MockConfig struct {
	StartMode       int     `yaml:"start_mode"`       // Initial mode code
	BeanTemperature float32 `yaml:"bean_temperature"` // Initial bean temperature (°C)
	DrumTemperature float32 `yaml:"drum_temperature"` // Initial drum temperature (°C)
	FanLevel        int     `yaml:"fan_level"`
	HeaterLevel     int     `yaml:"heater_level"`
	DrumLevel       int     `yaml:"drum_level"`
	BurstLength     int     `yaml:"burst_length"` // Valid stats frames before a not-ready frame, 0 = never
	Lag             int     `yaml:"lag"`          // Stats reads before a command takes effect
	Frozen          bool    `yaml:"frozen"`       // Ignore every command
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			VendorID:        0x0483,
			ProductID:       0x5741,
			Interface:       0x1,
			InEndpoint:      0x1,
			OutEndpoint:     0x3,
			TransferTimeout: 2 * time.Second,
		},
		Control: ControlConfig{
			MaxRetries:    8,
			SettleDelay:   500 * time.Millisecond,
			NotReadyDelay: 500 * time.Millisecond,
			DrainTimeout:  3 * time.Second,
			PollInterval:  time.Second,
		},
		Bridge: BridgeConfig{
			Port:     "",
			BaudRate: 115200,
			Units:    "C",
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			StartMode:       0,
			BeanTemperature: 22,
			DrumTemperature: 25,
			FanLevel:        1,
			HeaterLevel:     0,
			DrumLevel:       1,
			BurstLength:     1,
			Lag:             0,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SlogLevel parses Log.Level, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.VendorID == 0 {
		c.Device.VendorID = def.Device.VendorID
	}
	if c.Device.ProductID == 0 {
		c.Device.ProductID = def.Device.ProductID
	}
	if c.Device.InEndpoint == 0 {
		c.Device.InEndpoint = def.Device.InEndpoint
	}
	if c.Device.OutEndpoint == 0 {
		c.Device.OutEndpoint = def.Device.OutEndpoint
	}

	if c.Control.MaxRetries <= 0 {
		c.Control.MaxRetries = def.Control.MaxRetries
	}
	if c.Control.DrainTimeout == 0 {
		c.Control.DrainTimeout = def.Control.DrainTimeout
	}
	if c.Control.PollInterval == 0 {
		c.Control.PollInterval = def.Control.PollInterval
	}

	if c.Bridge.BaudRate == 0 {
		c.Bridge.BaudRate = def.Bridge.BaudRate
	}
	if c.Bridge.Units == "" {
		c.Bridge.Units = def.Bridge.Units
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Mock.DrumLevel == 0 {
		c.Mock.DrumLevel = def.Mock.DrumLevel
	}
}
