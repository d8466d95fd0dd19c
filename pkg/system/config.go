package system

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/taskcore/pkg/broadcast"
	"github.com/robotalks/taskcore/pkg/console"
	"github.com/robotalks/taskcore/pkg/env"
	"github.com/robotalks/taskcore/pkg/handoff"
	"github.com/robotalks/taskcore/pkg/watchdog"
)

// Config sizes the fixed set of channels and tasks, and selects the I/O
// endpoints used by commands.
type Config struct {
	DeviceID string `yaml:"device_id"`

	HandoffSize    int `yaml:"handoff_size"`
	HandoffTrigger int `yaml:"handoff_trigger"`
	CommandDepth   int `yaml:"command_depth"`
	OutputDepth    int `yaml:"output_depth"`

	// Millisecond timeouts.
	EnqueueTimeoutMs int `yaml:"enqueue_timeout_ms"`
	ReceiveTimeoutMs int `yaml:"receive_timeout_ms"`
	ReadTimeoutMs    int `yaml:"read_timeout_ms"`
	WaitTimeoutMs    int `yaml:"wait_timeout_ms"`
	StartupDelayMs   int `yaml:"startup_delay_ms"`

	Watchdog WatchdogConfig `yaml:"watchdog"`
	Serial   SerialConfig   `yaml:"serial"`

	// MQTTBrokerURL mirrors output and alerts to MQTT when set.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt_url"`
	// WebsocketURL sends output to a websocket endpoint when set.
	WebsocketURL string `yaml:"websocket_url"`
}

// WatchdogConfig configures the registry and monitor.
type WatchdogConfig struct {
	Capacity  int `yaml:"capacity"`
	PeriodMs  int `yaml:"period_ms"`
	TimeoutMs int `yaml:"timeout_ms"`
}

// SerialConfig selects the UART. An empty Device uses stdio.
type SerialConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

var defaultConfig = Config{
	HandoffSize:      handoff.DefaultSize,
	HandoffTrigger:   handoff.DefaultTrigger,
	CommandDepth:     console.CommandQueueDepth,
	OutputDepth:      broadcast.DefaultDepth,
	EnqueueTimeoutMs: int(broadcast.DefaultEnqueueTimeout.Milliseconds()),
	ReceiveTimeoutMs: int(broadcast.DefaultReceiveTimeout.Milliseconds()),
	ReadTimeoutMs:    int(console.DefaultReadTimeout.Milliseconds()),
	WaitTimeoutMs:    int(console.DefaultWaitTimeout.Milliseconds()),
	StartupDelayMs:   int(console.DefaultStartupDelay.Milliseconds()),
	Watchdog: WatchdogConfig{
		Capacity:  watchdog.DefaultCapacity,
		PeriodMs:  int(watchdog.DefaultPeriod.Milliseconds()),
		TimeoutMs: 5000,
	},
	Serial: SerialConfig{BaudRate: 115200},
}

func init() {
	if val := os.Getenv("TASKCORE_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
	if val := os.Getenv("TASKCORE_SERIAL"); val != "" {
		defaultConfig.Serial.Device = val
	}
	if val := os.Getenv("TASKCORE_BAUD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.Serial.BaudRate = n
		}
	}
	if val := os.Getenv("TASKCORE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("TASKCORE_WS_URL"); val != "" {
		defaultConfig.WebsocketURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceID, "id", defaultConfig.DeviceID, "Device ID, defaults to machine ID")
	flag.StringVar(&defaultConfig.Serial.Device, "serial", defaultConfig.Serial.Device, "Serial device, stdio if empty")
	flag.IntVar(&defaultConfig.Serial.BaudRate, "baud", defaultConfig.Serial.BaudRate, "Serial baud rate")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.WebsocketURL, "ws", defaultConfig.WebsocketURL, "Websocket output URL")
	flag.IntVar(&defaultConfig.Watchdog.Capacity, "wd-capacity", defaultConfig.Watchdog.Capacity, "Watchdog registry capacity")
	flag.IntVar(&defaultConfig.Watchdog.PeriodMs, "wd-period", defaultConfig.Watchdog.PeriodMs, "Watchdog scan period in ms")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate checks configuration correctness. It does not mutate c.
func (c *Config) Validate() error {
	if c.HandoffSize < 2 || c.HandoffSize&(c.HandoffSize-1) != 0 {
		return fmt.Errorf("handoff_size %d must be a power of two >= 2", c.HandoffSize)
	}
	if c.HandoffTrigger < 1 || c.HandoffTrigger > c.HandoffSize {
		return fmt.Errorf("handoff_trigger %d out of range [1, %d]", c.HandoffTrigger, c.HandoffSize)
	}
	if c.CommandDepth <= 0 {
		return fmt.Errorf("command_depth must be positive")
	}
	if c.OutputDepth <= 0 {
		return fmt.Errorf("output_depth must be positive")
	}
	for name, val := range map[string]int{
		"receive_timeout_ms": c.ReceiveTimeoutMs,
		"read_timeout_ms":    c.ReadTimeoutMs,
		"wait_timeout_ms":    c.WaitTimeoutMs,
		"watchdog.period_ms": c.Watchdog.PeriodMs,
	} {
		if val <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.EnqueueTimeoutMs < 0 || c.StartupDelayMs < 0 {
		return fmt.Errorf("enqueue_timeout_ms and startup_delay_ms must not be negative")
	}
	if c.Watchdog.Capacity < len(watchdogTasks) {
		return fmt.Errorf("watchdog.capacity %d below the %d monitored tasks: %w",
			c.Watchdog.Capacity, len(watchdogTasks), watchdog.ErrRegistryFull)
	}
	// Loops must feed at least once per timeout.
	for name, loop := range map[string]int{
		"receive_timeout_ms": c.ReceiveTimeoutMs,
		"read_timeout_ms":    c.ReadTimeoutMs,
		"wait_timeout_ms":    c.WaitTimeoutMs,
	} {
		if loop >= c.Watchdog.TimeoutMs {
			return fmt.Errorf("%s %d must be below watchdog.timeout_ms %d", name, loop, c.Watchdog.TimeoutMs)
		}
	}
	return nil
}

// Device returns DeviceID, or the machine ID when empty.
func (c *Config) Device() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	return env.MachineID()
}
