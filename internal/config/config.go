// Package config loads server configuration through Viper from a YAML file,
// OTUSERVER_ environment variables and command-line flags, applies defaults
// and validates the result before anything binds a socket.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost            = "localhost"
	DefaultPort            = 80
	DefaultWorkers         = 5
	DefaultBacklog         = 128
	DefaultReadyTimeout    = time.Second
	DefaultJoinTimeout     = 2 * time.Second
	DefaultMaxRequestBytes = 64 * 1024
	DefaultRoot            = "./doc_root"
	DefaultIndex           = "index.html"
	DefaultName            = "OTUServer"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates" json:"templates"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	Workers         int           `mapstructure:"workers" yaml:"workers" json:"workers"`
	Backlog         int           `mapstructure:"backlog" yaml:"backlog" json:"backlog"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout" json:"ready_timeout"`
	JoinTimeout     time.Duration `mapstructure:"join_timeout" yaml:"join_timeout" json:"join_timeout"`
	MaxRequestBytes int           `mapstructure:"max_request_bytes" yaml:"max_request_bytes" json:"max_request_bytes"`
	Root            string        `mapstructure:"root" yaml:"root" json:"root"`
	Index           string        `mapstructure:"index" yaml:"index" json:"index"`
	Name            string        `mapstructure:"name" yaml:"name" json:"name"`
}

type TemplatesConfig struct {
	// Dir overrides the embedded error pages.
	Dir   string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Cache bool   `mapstructure:"cache" yaml:"cache" json:"cache"`
}

type MetricsConfig struct {
	OTLPEndpoint string        `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = DefaultPort
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration from the global Viper instance, applies
// defaults and validates it.
func Load() (*Config, error) {
	config, err := Resolve(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Resolve unmarshals v and applies defaults without validating.
func Resolve(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)

	return &config, nil
}

// SetDefaults registers every key with its default value. Viper only
// consults the environment for keys it knows, so this also makes each
// OTUSERVER_<SECTION>_<OPTION> variable take effect.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.backlog", d.Server.Backlog)
	v.SetDefault("server.ready_timeout", d.Server.ReadyTimeout)
	v.SetDefault("server.join_timeout", d.Server.JoinTimeout)
	v.SetDefault("server.max_request_bytes", d.Server.MaxRequestBytes)
	v.SetDefault("server.root", d.Server.Root)
	v.SetDefault("server.index", d.Server.Index)
	v.SetDefault("server.name", d.Server.Name)

	v.SetDefault("templates.dir", d.Templates.Dir)
	v.SetDefault("templates.cache", d.Templates.Cache)

	v.SetDefault("metrics.otlp_endpoint", d.Metrics.OTLPEndpoint)
	v.SetDefault("metrics.interval", d.Metrics.Interval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.Workers == 0 {
		config.Server.Workers = DefaultWorkers
	}
	if config.Server.Backlog == 0 {
		config.Server.Backlog = DefaultBacklog
	}
	if config.Server.ReadyTimeout == 0 {
		config.Server.ReadyTimeout = DefaultReadyTimeout
	}
	if config.Server.JoinTimeout == 0 {
		config.Server.JoinTimeout = DefaultJoinTimeout
	}
	if config.Server.MaxRequestBytes == 0 {
		config.Server.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if config.Server.Root == "" {
		config.Server.Root = DefaultRoot
	}
	if config.Server.Index == "" {
		config.Server.Index = DefaultIndex
	}
	if config.Server.Name == "" {
		config.Server.Name = DefaultName
	}
	if config.Metrics.Interval == 0 {
		config.Metrics.Interval = 15 * time.Second
	}
	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

// Validate checks the configuration and returns the first error found.
func (c *Config) Validate() error {
	return validateConfig(c)
}

// Address returns host:port for binding.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// dumpView mirrors Config with durations rendered as strings.
type dumpView struct {
	Server struct {
		Host            string `yaml:"host" json:"host"`
		Port            int    `yaml:"port" json:"port"`
		Workers         int    `yaml:"workers" json:"workers"`
		Backlog         int    `yaml:"backlog" json:"backlog"`
		ReadyTimeout    string `yaml:"ready_timeout" json:"ready_timeout"`
		JoinTimeout     string `yaml:"join_timeout" json:"join_timeout"`
		MaxRequestBytes int    `yaml:"max_request_bytes" json:"max_request_bytes"`
		Root            string `yaml:"root" json:"root"`
		Index           string `yaml:"index" json:"index"`
		Name            string `yaml:"name" json:"name"`
	} `yaml:"server" json:"server"`
	Templates TemplatesConfig `yaml:"templates" json:"templates"`
	Metrics   struct {
		OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
		Interval     string `yaml:"interval" json:"interval"`
	} `yaml:"metrics" json:"metrics"`
	Log LogConfig `yaml:"log" json:"log"`
}

func newDumpView(c *Config) dumpView {
	var v dumpView
	v.Server.Host = c.Server.Host
	v.Server.Port = c.Server.Port
	v.Server.Workers = c.Server.Workers
	v.Server.Backlog = c.Server.Backlog
	v.Server.ReadyTimeout = c.Server.ReadyTimeout.String()
	v.Server.JoinTimeout = c.Server.JoinTimeout.String()
	v.Server.MaxRequestBytes = c.Server.MaxRequestBytes
	v.Server.Root = c.Server.Root
	v.Server.Index = c.Server.Index
	v.Server.Name = c.Server.Name
	v.Templates = c.Templates
	v.Metrics.OTLPEndpoint = c.Metrics.OTLPEndpoint
	v.Metrics.Interval = c.Metrics.Interval.String()
	v.Log = c.Log
	return v
}

// Dump renders the configuration as YAML in the same shape Load reads.
func Dump(c *Config) ([]byte, error) {
	return yaml.Marshal(newDumpView(c))
}

// DumpJSON renders the configuration as indented JSON.
func DumpJSON(c *Config) ([]byte, error) {
	return json.MarshalIndent(newDumpView(c), "", "  ")
}
