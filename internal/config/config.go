// Package config handles configuration loading from YAML, TOML or JSON files
// and environment variables.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a wrapper around time.Duration that reads human-readable
// strings like "3s" or "1m30s" from every supported file format.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalText is used by the TOML and JSON decoders.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Params are free-form capability parameters. Values are always strings;
// numbers and booleans in the file are converted.
type Params map[string]string

func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return p.fromMap(raw)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (p *Params) UnmarshalTOML(v any) error {
	raw, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("params must be a table, got %T", v)
	}
	return p.fromMap(raw)
}

func (p *Params) fromMap(raw map[string]any) error {
	out := make(Params, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case bool, int64, float64, json.Number:
			out[k] = fmt.Sprint(v)
		case nil:
			out[k] = ""
		default:
			return fmt.Errorf("param %s: unsupported value type %T", k, v)
		}
	}
	*p = out
	return nil
}

// Config holds all agent configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage" toml:"storage" json:"storage"`
	Sensors    []SensorConfig   `yaml:"sensors" toml:"sensors" json:"sensors"`
	Network    NetworkConfig    `yaml:"network" toml:"network" json:"network"`
	Collection CollectionConfig `yaml:"collection" toml:"collection" json:"collection"`
	Plugins    PluginsConfig    `yaml:"plugins" toml:"plugins" json:"plugins"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// StorageConfig selects the storage backend. A section with a name and no
// explicit enabled flag is enabled.
type StorageConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	Name    string `yaml:"name" toml:"name" json:"name"`
	Params  Params `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

func (s StorageConfig) IsEnabled() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return s.Name != ""
}

// SensorConfig enables and parameterizes one sensor.
type SensorConfig struct {
	Active bool   `yaml:"active" toml:"active" json:"active"`
	Name   string `yaml:"name" toml:"name" json:"name"`
	Params Params `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

// NetworkConfig holds the protocol endpoint settings.
type NetworkConfig struct {
	Enabled      bool           `yaml:"enabled" toml:"enabled" json:"enabled"`
	Address      string         `yaml:"address" toml:"address" json:"address"`
	Port         int            `yaml:"port" toml:"port" json:"port"`
	MaxFrameSize uint64         `yaml:"max_frame_size" toml:"max_frame_size" json:"max_frame_size"`
	QueryWorkers int            `yaml:"query_workers" toml:"query_workers" json:"query_workers"`
	QueryQueue   int            `yaml:"query_queue" toml:"query_queue" json:"query_queue"`
	Security     SecurityConfig `yaml:"security" toml:"security" json:"security"`
}

// Endpoint returns the host:port the server listens on.
func (n NetworkConfig) Endpoint() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

// SecurityConfig enables transport encryption. The only supported type is
// "ssl" (alias "tls") with params cert, private_key and optional ca.
type SecurityConfig struct {
	Enable bool   `yaml:"enable" toml:"enable" json:"enable"`
	Type   string `yaml:"type" toml:"type" json:"type"`
	Params Params `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

// CollectionConfig holds sampling settings.
type CollectionConfig struct {
	Interval      Duration `yaml:"interval" toml:"interval" json:"interval"`
	SampleTimeout Duration `yaml:"sample_timeout" toml:"sample_timeout" json:"sample_timeout"`
}

// PluginsConfig names directories scanned for dynamically loaded modules.
// Empty means builtins only.
type PluginsConfig struct {
	SensorsDir  string `yaml:"sensors_dir" toml:"sensors_dir" json:"sensors_dir"`
	StoragesDir string `yaml:"storages_dir" toml:"storages_dir" json:"storages_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" json:"level"`
	File  string `yaml:"file" toml:"file" json:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Address string `yaml:"address" toml:"address" json:"address"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Enabled:      true,
			Address:      "0.0.0.0",
			Port:         45555,
			MaxFrameSize: 16 * 1024 * 1024,
			QueryWorkers: 4,
			QueryQueue:   64,
		},
		Collection: CollectionConfig{
			Interval:      Duration{3 * time.Second},
			SampleTimeout: Duration{10 * time.Second},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9464",
		},
	}
}

// ActiveSensors returns the sensors marked active, in file order.
func (c *Config) ActiveSensors() []SensorConfig {
	var out []SensorConfig
	for _, s := range c.Sensors {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Format identifies a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the syntax by file extension. Unknown extensions are
// read as YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json", ".jsonc", ".cfg":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// LoadFromBytes parses configuration in the given format and merges it with
// defaults. Environment variables take highest precedence.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	cfg := DefaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		if err := decode(data, format, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s config: %w", format, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from a file and merges it with defaults. If path
// is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil, FormatYAML)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return LoadFromBytes(nil, FormatYAML)
	}

	cfg, err := LoadFromBytes(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// WriteConfig serializes the config to path in the format its extension
// selects. Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch FormatFromPath(path) {
	case FormatTOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	case FormatJSON:
		data, err = json.MarshalIndent(cfg, "", "\t")
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

func decode(data []byte, format Format, cfg *Config) error {
	switch format {
	case FormatTOML:
		_, err := toml.Decode(string(data), cfg)
		return err
	case FormatJSON:
		// Comments and trailing commas are allowed.
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if level := os.Getenv("VIKKI_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("VIKKI_NETWORK_ADDRESS"); addr != "" {
		cfg.Network.Address = addr
	}
	if port := os.Getenv("VIKKI_NETWORK_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: VIKKI_NETWORK_PORT %q is not a number", ErrInvalid, port)
		}
		cfg.Network.Port = p
	}
	return nil
}

// Validate checks that the configuration can be used to start the agent.
// Every returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Storage.IsEnabled() && c.Storage.Name == "" {
		fail("storage.name is required when storage is enabled")
	}

	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.Name == "" {
			fail("sensors[%d].name is required", i)
			continue
		}
		if seen[s.Name] {
			fail("sensor %q is configured more than once", s.Name)
		}
		seen[s.Name] = true
	}

	if c.Network.Enabled {
		if c.Network.Address == "" {
			fail("network.address is required")
		}
		if c.Network.Port < 0 || c.Network.Port > 65535 {
			fail("network.port %d out of range", c.Network.Port)
		}
		if c.Network.MaxFrameSize != 0 && c.Network.MaxFrameSize < 16 {
			fail("network.max_frame_size %d is smaller than a frame header", c.Network.MaxFrameSize)
		}
		if sec := c.Network.Security; sec.Enable {
			switch strings.ToLower(sec.Type) {
			case "ssl", "tls":
			default:
				fail("network.security.type %q is not supported", sec.Type)
			}
		}
	}

	if c.Collection.Interval.Duration <= 0 {
		fail("collection.interval must be positive")
	}
	if c.Collection.SampleTimeout.Duration <= 0 {
		fail("collection.sample_timeout must be positive")
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		fail("logging.level: %v", err)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		fail("metrics.address is required when metrics are enabled")
	}

	return errors.Join(errs...)
}
