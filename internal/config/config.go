package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// Serial link to the robot controller
	SerialPort         string
	SerialDriver       string // "bugst", "jacobsa" or "sim"
	SerialBaudRate     int
	SerialPollInterval time.Duration

	// Sonar ring. SonarAnglesDeg is indexed like the distances in a sensor
	// frame, counter-clockwise from straight ahead.
	NumSonar       int
	SonarAnglesDeg []float64

	// Timing
	CommPeriod     time.Duration
	ReceiveTimeout time.Duration
	ControlPeriod  time.Duration

	// Control law
	MaxTrans      float64 // cm/s
	MaxAng        float64 // rad/s
	SetPoint      float64 // cm
	KE            float64
	KS            float64
	DecayConstant float64 // cm², see linefit.Weight

	// Wire fixed-point scales
	AngularScale float64
	HeadingScale float64

	// Controller reset line. Empty ResetPin skips the reset.
	ResetPin    string
	ResetPulse  time.Duration
	ResetSettle time.Duration

	// MQTT. Empty MQTTBroker disables the bridge.
	MQTTBroker           string
	MQTTClientIDFollower string
	MQTTClientIDConsole  string
	TopicTelemetry       string
	TopicStatus          string
	TopicTargetSpeed     string

	// Web Server. Port 0 disables it.
	WebServerPort  int
	WSPushInterval time.Duration

	// Display
	DisplayEnabled        bool
	DisplayUpdateInterval time.Duration

	// Recorder. Empty path disables it.
	RecorderPath string

	// Simulated robot, used with SERIAL_DRIVER=sim
	SimWallY    float64
	SimMaxRange float64
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns the configuration used for keys the file does not set.
func Defaults() *Config {
	return &Config{
		SerialPort:         "/dev/serial0",
		SerialDriver:       "bugst",
		SerialBaudRate:     9600,
		SerialPollInterval: 100 * time.Millisecond,

		NumSonar:       8,
		SonarAnglesDeg: []float64{0, 315, 270, 225, 180, 135, 90, 45},

		CommPeriod:     250 * time.Millisecond,
		ReceiveTimeout: 100 * time.Millisecond,
		ControlPeriod:  500 * time.Millisecond,

		MaxTrans:      200,
		MaxAng:        2,
		SetPoint:      10,
		KE:            0.2,
		KS:            0.01,
		DecayConstant: 12500,

		AngularScale: 1000,
		HeadingScale: 1000,

		ResetPin:    "GPIO4",
		ResetPulse:  50 * time.Millisecond,
		ResetSettle: 5 * time.Second,

		MQTTClientIDFollower: "wall-follower",
		MQTTClientIDConsole:  "wall-follower-console",
		TopicTelemetry:       "wallfollower/telemetry",
		TopicStatus:          "wallfollower/status",
		TopicTargetSpeed:     "wallfollower/target_speed",

		WSPushInterval: 200 * time.Millisecond,

		DisplayUpdateInterval: 500 * time.Millisecond,

		SimWallY:    40,
		SimMaxRange: 300,
	}
}

// Load reads the configuration file on top of Defaults and validates it.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_DRIVER":
		c.SerialDriver = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)
	case "SERIAL_POLL_INTERVAL":
		c.SerialPollInterval, err = parseMillis(key, value)

	// Sonar ring
	case "NUM_SONAR":
		c.NumSonar, err = parseInt(key, value)
	case "SONAR_ANGLES_DEG":
		c.SonarAnglesDeg, err = parseFloatList(key, value)

	// Timing
	case "COMM_PERIOD":
		c.CommPeriod, err = parseMillis(key, value)
	case "RECEIVE_TIMEOUT":
		c.ReceiveTimeout, err = parseMillis(key, value)
	case "CONTROL_PERIOD":
		c.ControlPeriod, err = parseMillis(key, value)

	// Control law
	case "MAX_TRANS":
		c.MaxTrans, err = parseFloat(key, value)
	case "MAX_ANG":
		c.MaxAng, err = parseFloat(key, value)
	case "SET_POINT":
		c.SetPoint, err = parseFloat(key, value)
	case "K_E":
		c.KE, err = parseFloat(key, value)
	case "K_S":
		c.KS, err = parseFloat(key, value)
	case "DECAY_CONSTANT":
		c.DecayConstant, err = parseFloat(key, value)

	// Wire scales
	case "ANGULAR_SCALE":
		c.AngularScale, err = parseFloat(key, value)
	case "HEADING_SCALE":
		c.HeadingScale, err = parseFloat(key, value)

	// Reset line
	case "RESET_PIN":
		c.ResetPin = value
	case "RESET_PULSE":
		c.ResetPulse, err = parseMillis(key, value)
	case "RESET_SETTLE":
		c.ResetSettle, err = parseMillis(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FOLLOWER":
		c.MQTTClientIDFollower = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_TARGET_SPEED":
		c.TopicTargetSpeed = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "WS_PUSH_INTERVAL":
		c.WSPushInterval, err = parseMillis(key, value)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseMillis(key, value)

	// Recorder
	case "RECORDER_PATH":
		c.RecorderPath = value

	// Simulator
	case "SIM_WALL_Y":
		c.SimWallY, err = parseFloat(key, value)
	case "SIM_MAX_RANGE":
		c.SimMaxRange, err = parseFloat(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// parseMillis reads an integer number of milliseconds.
func parseMillis(key, value string) (time.Duration, error) {
	ms, err := parseInt(key, value)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseFloatList(key, value string) ([]float64, error) {
	fields := strings.Split(value, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseFloat(key, strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// validate checks that the combination of values is usable.
func (c *Config) validate() error {
	switch c.SerialDriver {
	case "bugst", "jacobsa":
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required")
		}
		if c.SerialBaudRate <= 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE must be positive")
		}
	case "sim":
	default:
		return fmt.Errorf("SERIAL_DRIVER must be bugst, jacobsa or sim, got %q", c.SerialDriver)
	}
	if c.NumSonar <= 0 {
		return fmt.Errorf("NUM_SONAR must be positive")
	}
	if len(c.SonarAnglesDeg) != c.NumSonar {
		return fmt.Errorf("SONAR_ANGLES_DEG has %d entries but NUM_SONAR is %d", len(c.SonarAnglesDeg), c.NumSonar)
	}
	if c.CommPeriod <= 0 || c.ControlPeriod <= 0 {
		return fmt.Errorf("COMM_PERIOD and CONTROL_PERIOD are required")
	}
	if c.ReceiveTimeout <= 0 || c.ReceiveTimeout >= c.CommPeriod {
		return fmt.Errorf("RECEIVE_TIMEOUT must be positive and below COMM_PERIOD")
	}
	if c.MaxTrans <= 0 || c.MaxAng <= 0 {
		return fmt.Errorf("MAX_TRANS and MAX_ANG must be positive")
	}
	if c.DecayConstant <= 0 {
		return fmt.Errorf("DECAY_CONSTANT must be positive")
	}
	if c.MaxTrans > math.MaxInt16 {
		return fmt.Errorf("MAX_TRANS %v does not fit the 16 bit command frame", c.MaxTrans)
	}
	if c.MaxAng*c.AngularScale > math.MaxInt16 {
		return fmt.Errorf("MAX_ANG×ANGULAR_SCALE %v does not fit the 16 bit command frame", c.MaxAng*c.AngularScale)
	}
	if c.MQTTBroker != "" && c.MQTTClientIDFollower == "" {
		return fmt.Errorf("MQTT_CLIENT_ID_FOLLOWER is required with MQTT_BROKER")
	}
	if c.WebServerPort < 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT out of range: %d", c.WebServerPort)
	}
	if c.WebServerPort > 0 && c.WSPushInterval <= 0 {
		return fmt.Errorf("WS_PUSH_INTERVAL must be positive when the web server is enabled")
	}
	if c.DisplayEnabled && c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive when the display is enabled")
	}
	return nil
}

// SonarAngles returns the mounting angles in radians.
func (c *Config) SonarAngles() []float64 {
	out := make([]float64, len(c.SonarAnglesDeg))
	for i, d := range c.SonarAnglesDeg {
		out[i] = d * math.Pi / 180
	}
	return out
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
