package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sprout-iot/sprout/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSerialPort is the default device address.
	DefaultSerialPort = "/dev/ttyUSB0"

	// DefaultBaudRate is the default serial line rate.
	DefaultBaudRate = 9600

	// DefaultPort is the default HTTP listen port.
	DefaultPort = 3000

	// DefaultHeartbeat is the default heartbeat interval.
	DefaultHeartbeat = Duration(time.Second)

	// DefaultQueueSize is the default per-subscriber queue depth.
	DefaultQueueSize = 16

	// DefaultWriteTimeout bounds a single subscriber send.
	DefaultWriteTimeout = Duration(5 * time.Second)

	// DefaultMaxFrameSize bounds a single assembled frame.
	DefaultMaxFrameSize = 4096

	// DefaultMaxBodyBytes bounds a submission body.
	DefaultMaxBodyBytes = 64 << 10
)

// FileNames are the config file names searched by Find, in order.
var FileNames = []string{"sprout.json", "sprout.yaml", "sprout.yml"}

// Config is the complete gateway configuration.
type Config struct {
	Serial SerialConfig `json:"serial" yaml:"serial"`
	HTTP   HTTPConfig   `json:"http" yaml:"http"`
	Hub    HubConfig    `json:"hub" yaml:"hub"`
	Health HealthConfig `json:"health" yaml:"health"`
	Sinks  SinksConfig  `json:"sinks" yaml:"sinks"`
	Log    LogConfig    `json:"log" yaml:"log"`

	// path stores where the config was loaded from.
	path string
}

// SerialConfig configures the device channel.
type SerialConfig struct {
	// Port is the serial device address.
	Port string `json:"port" yaml:"port"`

	// BaudRate is the line rate.
	BaudRate int `json:"baudRate" yaml:"baudRate"`

	// Disabled runs the gateway on discrete submissions only.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// MaxFrameSize bounds a single frame in bytes.
	MaxFrameSize int `json:"maxFrameSize" yaml:"maxFrameSize"`

	// Reconnect spaces reopen attempts.
	Reconnect BackoffConfig `json:"reconnect" yaml:"reconnect"`
}

// BackoffConfig is an exponential retry schedule.
type BackoffConfig struct {
	Initial    Duration `json:"initial" yaml:"initial"`
	Max        Duration `json:"max" yaml:"max"`
	Multiplier float64  `json:"multiplier" yaml:"multiplier"`
}

// HTTPConfig configures the HTTP/WebSocket surface.
type HTTPConfig struct {
	// Host is the listen host. Empty listens on all interfaces.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the listen port.
	Port int `json:"port" yaml:"port"`

	// AllowedOrigins are origins allowed for CORS and WebSocket upgrades.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`

	// MaxBodyBytes bounds a submission body.
	MaxBodyBytes int64 `json:"maxBodyBytes" yaml:"maxBodyBytes"`

	// AccessLog writes combined-format access logs to stderr.
	AccessLog bool `json:"accessLog,omitempty" yaml:"accessLog,omitempty"`
}

// Addr returns the listen address.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// HubConfig configures broadcast.
type HubConfig struct {
	Heartbeat    Duration `json:"heartbeat" yaml:"heartbeat"`
	QueueSize    int      `json:"queueSize" yaml:"queueSize"`
	WriteTimeout Duration `json:"writeTimeout" yaml:"writeTimeout"`
}

// HealthConfig configures health reporting.
type HealthConfig struct {
	// StaleAfter marks the gateway degraded when the reading is older.
	// Zero disables the check.
	StaleAfter Duration `json:"staleAfter,omitempty" yaml:"staleAfter,omitempty"`
}

// SinksConfig configures optional fan-out sinks. A sink is enabled when its
// address (broker, brokers or bucket) is set.
type SinksConfig struct {
	MQTT  MQTTConfig  `json:"mqtt" yaml:"mqtt"`
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
	S3    S3Config    `json:"s3" yaml:"s3"`
}

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker   string `json:"broker,omitempty" yaml:"broker,omitempty"`
	Topic    string `json:"topic,omitempty" yaml:"topic,omitempty"`
	QoS      byte   `json:"qos,omitempty" yaml:"qos,omitempty"`
	Retained bool   `json:"retained,omitempty" yaml:"retained,omitempty"`
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty" yaml:"topic,omitempty"`
}

// S3Config configures the S3 snapshot sink.
type S3Config struct {
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format"`
}

// New returns a Config with all defaults applied.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Find returns the first config file present in dir, or "".
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadFile reads a JSON or YAML config file, chosen by extension, on top
// of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E500").
				WithDetail("No config file at " + path).
				WithSuggestion("Pass --config with an existing sprout.json or sprout.yaml")
		}
		return nil, errors.New("E500").Wrap(err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E500").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check the file syntax")
	}

	cfg.path = path
	cfg.applyDefaults()
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then path (or the
// first config file found in the working directory when path is empty),
// then environment overrides read through lookup.
func Resolve(path string, lookup func(string) (string, bool)) (*Config, error) {
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = Find(wd)
		}
	}

	cfg := New()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(key, v, err)
		}
		*dst = n
		return nil
	}

	str("SERIAL_PORT", &c.Serial.Port)
	if err := integer("BAUD_RATE", &c.Serial.BaudRate); err != nil {
		return err
	}
	if err := integer("PORT", &c.HTTP.Port); err != nil {
		return err
	}
	if v, ok := lookup("SPROUT_HEARTBEAT"); ok && v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return envError("SPROUT_HEARTBEAT", v, err)
		}
		c.Hub.Heartbeat = d
	}
	if v, ok := lookup("SPROUT_DISABLE_SERIAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("SPROUT_DISABLE_SERIAL", v, err)
		}
		c.Serial.Disabled = b
	}
	list("SPROUT_ALLOWED_ORIGINS", &c.HTTP.AllowedOrigins)

	str("SPROUT_MQTT_BROKER", &c.Sinks.MQTT.Broker)
	str("SPROUT_MQTT_TOPIC", &c.Sinks.MQTT.Topic)
	list("SPROUT_KAFKA_BROKERS", &c.Sinks.Kafka.Brokers)
	str("SPROUT_KAFKA_TOPIC", &c.Sinks.Kafka.Topic)
	str("SPROUT_S3_BUCKET", &c.Sinks.S3.Bucket)
	str("SPROUT_S3_KEY", &c.Sinks.S3.Key)
	str("SPROUT_S3_REGION", &c.Sinks.S3.Region)
	str("SPROUT_S3_ENDPOINT", &c.Sinks.S3.Endpoint)
	return nil
}

func envError(key, value string, err error) error {
	return errors.New("E504").
		WithDetailf("%s=%q", key, value).
		Wrap(err)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDefaults fills zero values.
func (c *Config) applyDefaults() {
	if c.Serial.Port == "" {
		c.Serial.Port = DefaultSerialPort
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	if c.Serial.MaxFrameSize == 0 {
		c.Serial.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Serial.Reconnect.Initial == 0 {
		c.Serial.Reconnect.Initial = Duration(time.Second)
	}
	if c.Serial.Reconnect.Max == 0 {
		c.Serial.Reconnect.Max = Duration(30 * time.Second)
	}
	if c.Serial.Reconnect.Multiplier == 0 {
		c.Serial.Reconnect.Multiplier = 2
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultPort
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Hub.Heartbeat == 0 {
		c.Hub.Heartbeat = DefaultHeartbeat
	}
	if c.Hub.QueueSize == 0 {
		c.Hub.QueueSize = DefaultQueueSize
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = DefaultWriteTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("E501").WithDetailf("Port %d is outside 0-65535.", c.HTTP.Port)
	}
	if !c.Serial.Disabled {
		if c.Serial.BaudRate <= 0 {
			return errors.New("E502").WithDetailf("Baud rate %d must be positive.", c.Serial.BaudRate)
		}
		if c.Serial.Port == "" {
			return errors.Newf(errors.CategoryConfig, "serial port is empty").
				WithSuggestion("Set SERIAL_PORT or disable the stream with SPROUT_DISABLE_SERIAL=true")
		}
	}
	durations := []struct {
		name string
		d    Duration
	}{
		{"hub.heartbeat", c.Hub.Heartbeat},
		{"hub.writeTimeout", c.Hub.WriteTimeout},
		{"serial.reconnect.initial", c.Serial.Reconnect.Initial},
		{"serial.reconnect.max", c.Serial.Reconnect.Max},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return errors.New("E503").WithDetailf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.Serial.Reconnect.Max < c.Serial.Reconnect.Initial {
		return errors.New("E503").WithDetail("serial.reconnect.max must not be below serial.reconnect.initial")
	}
	if c.Hub.QueueSize <= 0 {
		return errors.Newf(errors.CategoryConfig, "hub.queueSize must be positive, got %d", c.Hub.QueueSize)
	}
	if c.Sinks.MQTT.QoS > 2 {
		return errors.Newf(errors.CategoryConfig, "sinks.mqtt.qos must be 0, 1 or 2, got %d", c.Sinks.MQTT.QoS)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf(errors.CategoryConfig, "log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// Encode renders the config in format "json" or "yaml".
func (c *Config) Encode(format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "json":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
