package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/balance-lab/forceplate/internal/persist"
	"github.com/balance-lab/forceplate/internal/serialmux"
)

// DefaultConfigPath is the canonical defaults file shipped with the firmware.
const DefaultConfigPath = "config/forceplate.defaults.json"

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// SensorPins names the GPIO lines wired to one HX711.
type SensorPins struct {
	Clock string `json:"clk"`
	Data  string `json:"data"`
}

// Config is the force plate configuration. Every field is optional; the Get*
// methods supply defaults for anything the file leaves out.
type Config struct {
	// Filtering and averaging
	SpikeThreshold     *float64 `json:"spike_threshold,omitempty"`
	TareSamples        *int     `json:"tare_samples,omitempty"`
	CalibrationSamples *int     `json:"calibration_samples,omitempty"`

	// Loop pacing
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "50ms"

	// Persistence
	StoreBackend *string `json:"store_backend,omitempty"`
	StorePath    *string `json:"store_path,omitempty"`
	StoreCopies  *int    `json:"store_copies,omitempty"`

	// Command channel
	SerialPort *string                `json:"serial_port,omitempty"`
	Serial     *serialmux.PortOptions `json:"serial,omitempty"`

	// Sensors
	SensorPins  []SensorPins `json:"sensor_pins,omitempty"`
	ReadTimeout *string      `json:"read_timeout,omitempty"`

	// Telemetry (disabled when mqtt_broker is empty)
	MQTTBroker   *string `json:"mqtt_broker,omitempty"`
	MQTTTopic    *string `json:"mqtt_topic,omitempty"`
	MQTTClientID *string `json:"mqtt_client_id,omitempty"`

	// Host-side recordings and calibration history
	DBPath *string `json:"db_path,omitempty"`
}

func ptrString(v string) *string { return &v }

// Load reads a Config from a JSON file. The path must end in .json and the
// file must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
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

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns an empty Config when path is empty or
// the default file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return &Config{}, nil
		}
	}
	return Load(path)
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.SpikeThreshold != nil && *c.SpikeThreshold <= 0 {
		return fmt.Errorf("spike_threshold must be positive, got %f", *c.SpikeThreshold)
	}
	if c.TareSamples != nil && *c.TareSamples < 1 {
		return fmt.Errorf("tare_samples must be at least 1, got %d", *c.TareSamples)
	}
	if c.CalibrationSamples != nil && *c.CalibrationSamples < 1 {
		return fmt.Errorf("calibration_samples must be at least 1, got %d", *c.CalibrationSamples)
	}
	if c.StoreCopies != nil && *c.StoreCopies < 1 {
		return fmt.Errorf("store_copies must be at least 1, got %d", *c.StoreCopies)
	}
	if limit := persist.MaxCopies(persist.DefaultSize); c.StoreCopies != nil && *c.StoreCopies > limit {
		return fmt.Errorf("store_copies must be at most %d, got %d", limit, *c.StoreCopies)
	}
	for name, d := range map[string]*string{"tick_interval": c.TickInterval, "read_timeout": c.ReadTimeout} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}
	if c.StoreBackend != nil {
		switch *c.StoreBackend {
		case "", BackendFile, BackendSQLite, BackendMemory:
		default:
			return fmt.Errorf("unknown store_backend %q", *c.StoreBackend)
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if len(c.SensorPins) != 0 && len(c.SensorPins) != 4 {
		return fmt.Errorf("sensor_pins must list 4 sensors, got %d", len(c.SensorPins))
	}
	return nil
}

// GetSpikeThreshold returns the spike_threshold value or the default.
func (c *Config) GetSpikeThreshold() float64 {
	if c.SpikeThreshold == nil {
		return 2.0
	}
	return *c.SpikeThreshold
}

// GetTareSamples returns the tare_samples value or the default.
func (c *Config) GetTareSamples() int {
	if c.TareSamples == nil {
		return 10
	}
	return *c.TareSamples
}

// GetCalibrationSamples returns the calibration_samples value or the default.
func (c *Config) GetCalibrationSamples() int {
	if c.CalibrationSamples == nil {
		return 10
	}
	return *c.CalibrationSamples
}

// GetTickInterval parses tick_interval, defaulting to 50ms.
func (c *Config) GetTickInterval() time.Duration {
	return parseDuration(c.TickInterval, 50*time.Millisecond)
}

// GetReadTimeout parses read_timeout, defaulting to 500ms.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 500*time.Millisecond)
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetStoreBackend returns the store_backend value or "file".
func (c *Config) GetStoreBackend() string {
	if c.StoreBackend == nil || *c.StoreBackend == "" {
		return BackendFile
	}
	return *c.StoreBackend
}

// GetStorePath returns the store_path value or the default for the backend.
func (c *Config) GetStorePath() string {
	if c.StorePath != nil && *c.StorePath != "" {
		return *c.StorePath
	}
	if c.GetStoreBackend() == BackendSQLite {
		return "forceplate-eeprom.db"
	}
	return "forceplate.eeprom"
}

// GetStoreCopies returns the store_copies value or 1.
func (c *Config) GetStoreCopies() int {
	if c.StoreCopies == nil {
		return 1
	}
	return *c.StoreCopies
}

// GetSerialPort returns the serial_port value or the default device.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyACM0"
	}
	return *c.SerialPort
}

// GetSerial returns the serial options, 9600 8N1 by default.
func (c *Config) GetSerial() serialmux.PortOptions {
	if c.Serial == nil {
		return serialmux.PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}
	}
	return *c.Serial
}

// GetSensorPins returns the four sensor pin pairs in corner order A-D.
func (c *Config) GetSensorPins() [4]SensorPins {
	pins := [4]SensorPins{
		{Clock: "GPIO5", Data: "GPIO6"},
		{Clock: "GPIO13", Data: "GPIO19"},
		{Clock: "GPIO20", Data: "GPIO21"},
		{Clock: "GPIO23", Data: "GPIO24"},
	}
	if len(c.SensorPins) == 4 {
		copy(pins[:], c.SensorPins)
	}
	return pins
}

// GetMQTTBroker returns the broker URL, empty when telemetry is disabled.
func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the topic prefix or "forceplate".
func (c *Config) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "forceplate"
	}
	return *c.MQTTTopic
}

// GetMQTTClientID returns the client id or "forceplate".
func (c *Config) GetMQTTClientID() string {
	if c.MQTTClientID == nil || *c.MQTTClientID == "" {
		return "forceplate"
	}
	return *c.MQTTClientID
}

// GetDBPath returns the db_path value or "forceplate.db".
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "forceplate.db"
	}
	return *c.DBPath
}

// WithOverrides returns a copy of c with non-empty command-line values
// applied on top.
func (c *Config) WithOverrides(port, storeBackend, storePath string) *Config {
	out := *c
	if port != "" {
		out.SerialPort = ptrString(port)
	}
	if storeBackend != "" {
		out.StoreBackend = ptrString(storeBackend)
	}
	if storePath != "" {
		out.StorePath = ptrString(storePath)
	}
	return &out
}
