package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	HTTP      HTTPConfig      `yaml:"http"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port" validate:"min=1,max=65535"`
	SendBuffer   int    `yaml:"send_buffer" validate:"min=1"`
	MaxFrameSize uint32 `yaml:"max_frame_size" validate:"min=1"`
}

type BroadcastConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Group     string        `yaml:"group" validate:"omitempty,ip"`
	Port      int           `yaml:"port" validate:"min=1,max=65535"`
	Interval  time.Duration `yaml:"interval" validate:"min=1ms"`
	TTL       int           `yaml:"ttl" validate:"min=0,max=255"`
	Loopback  bool          `yaml:"loopback"`
	Interface string        `yaml:"interface"`
}

type HTTPConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port" validate:"min=1,max=65535"`
	MaxWSConnections int    `yaml:"max_ws_connections" validate:"min=0"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error off disabled"`
	Pretty bool   `yaml:"pretty"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			SendBuffer:   64,
			MaxFrameSize: 16 << 20,
		},
		Broadcast: BroadcastConfig{
			Enabled:  true,
			Group:    "239.0.0.1",
			Port:     5001,
			Interval: 60 * time.Second,
			TTL:      1,
			Loopback: true,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Catalog: CatalogConfig{
			Path: "fortunes.txt",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s failed", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "read config %s failed", path)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load env file %s failed", f)
		}
	}
	return nil
}

// ApplyEnv overrides fields from FORTUNE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("FORTUNE_HOST"); ok {
		c.Server.Host = v
	}
	if err := envInt("FORTUNE_PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := envInt("FORTUNE_HTTP_PORT", &c.HTTP.Port); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("FORTUNE_CATALOG"); ok {
		c.Catalog.Path = v
	}
	if v, ok := os.LookupEnv("FORTUNE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("FORTUNE_BROADCAST_GROUP"); ok {
		c.Broadcast.Group = v
	}
	if v, ok := os.LookupEnv("FORTUNE_BROADCAST_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parse FORTUNE_BROADCAST_INTERVAL failed")
		}
		c.Broadcast.Interval = d
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "validate config failed")
	}
	if c.Broadcast.Enabled && c.Broadcast.Group == "" {
		return errors.New("validate config failed: broadcast.group is required when broadcast is enabled")
	}
	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s failed", key)
	}
	*dst = n
	return nil
}
