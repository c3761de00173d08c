package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/aviv1ron1/the-commuter-il/internal/geo"
	"github.com/aviv1ron1/the-commuter-il/internal/places"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type RailConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend"` // memory, file or redis
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

type SchedulerConfig struct {
	Tick time.Duration `yaml:"tick"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LocationConfig struct {
	Default             geo.Coordinate `yaml:"default"`
	HighAccuracyTimeout time.Duration  `yaml:"high_accuracy_timeout"`
	CoarseTimeout       time.Duration  `yaml:"coarse_timeout"`
	IPLookupURL         string         `yaml:"ip_lookup_url"`
}

// Credentials come from the environment, never from the config file.
type Credentials struct {
	PushoverToken string
	PushoverUser  string
	RailAPIKey    string
	RedisPassword string
}

// HasPushover reports whether both Pushover credentials are set.
func (c Credentials) HasPushover() bool {
	return c.PushoverToken != "" && c.PushoverUser != ""
}

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Timezone  string          `yaml:"timezone"`
	Rail      RailConfig      `yaml:"rail"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Location  LocationConfig  `yaml:"location"`

	Credentials Credentials `yaml:"-"`

	loc *time.Location
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Rail: RailConfig{
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "commuter-state.yaml",
		},
		Scheduler: SchedulerConfig{Tick: 30 * time.Second},
		Server:    ServerConfig{Addr: ":8080"},
		Location: LocationConfig{
			Default:             places.HomePlace().Coord,
			HighAccuracyTimeout: 20 * time.Second,
			CoarseTimeout:       10 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not an
// error when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case allowMissing && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.Credentials = Credentials{
		PushoverToken: os.Getenv("PUSHOVER_TOKEN"),
		PushoverUser:  os.Getenv("PUSHOVER_USER"),
		RailAPIKey:    os.Getenv("RAIL_API_KEY"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	c.loc = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
		c.loc = loc
	}

	if c.Rail.Timeout <= 0 {
		return fmt.Errorf("rail: timeout must be positive")
	}
	if c.Rail.MaxRetries < 0 {
		return fmt.Errorf("rail: max_retries must not be negative")
	}

	switch strings.ToLower(c.Store.Backend) {
	case BackendMemory:
	case BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store: path is required for the file backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store: redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)

	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler: tick must be positive")
	}
	if !c.Location.Default.Valid() {
		return fmt.Errorf("location: default %s is out of range", c.Location.Default)
	}

	return nil
}

// Level is the parsed log level.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// TZ is the time zone wall-clock times are read in.
func (c *Config) TZ() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}
