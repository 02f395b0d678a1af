// Package config loads the server and client settings. Values are layered:
// built-in defaults, then a TOML file, then TRAFFICREPLAY_* environment
// variables, then command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// DefaultFileName is the config file looked up when no path is given.
	DefaultFileName = "traffic-replay.toml"
	// EnvPrefix prefixes every environment override, e.g. TRAFFICREPLAY_SERVER_LISTEN.
	EnvPrefix = "TRAFFICREPLAY"

	configName  = "traffic-replay"
	configType  = "toml"
	maxFileSize = 1 << 20
)

type ServerConfig struct {
	Listen     string `mapstructure:"listen" validate:"required"`
	GRPCListen string `mapstructure:"grpc_listen"`
	Dev        bool   `mapstructure:"dev"`
}

type DataConfig struct {
	Dir               string   `mapstructure:"dir" validate:"required"`
	SupportedDatasets []string `mapstructure:"supported_datasets" validate:"required,min=1,dive,required"`
}

type StreamConfig struct {
	DefaultFPS float64 `mapstructure:"default_fps" validate:"gt=0"`
	MaxFPS     float64 `mapstructure:"max_fps" validate:"gtefield=DefaultFPS"`
	SendBuffer int     `mapstructure:"send_buffer" validate:"gt=0"`
}

type SessionsConfig struct {
	TTL             time.Duration `mapstructure:"ttl" validate:"gte=0"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gt=0"`
	MaxSessions     int           `mapstructure:"max_sessions" validate:"gte=0"`
}

type DBConfig struct {
	// Path of the stream history database. Empty disables history.
	Path string `mapstructure:"path"`
}

type AlignmentConfig struct {
	// OriginTable is an optional YAML file of per-recording offsets.
	OriginTable string `mapstructure:"origin_table"`
}

type WSConfig struct {
	MaxConnections int           `mapstructure:"max_connections" validate:"gt=0"`
	PingInterval   time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	InboundRate    float64       `mapstructure:"inbound_rate" validate:"gt=0"`
}

// Config is the resolved configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	DB        DBConfig        `mapstructure:"db"`
	Alignment AlignmentConfig `mapstructure:"alignment"`
	WS        WSConfig        `mapstructure:"ws"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:     "localhost:8000",
			GRPCListen: "localhost:50061",
		},
		Data: DataConfig{
			Dir:               "./data",
			SupportedDatasets: []string{"highD"},
		},
		Stream: StreamConfig{
			DefaultFPS: 25,
			MaxFPS:     60,
			SendBuffer: 256,
		},
		Sessions: SessionsConfig{
			TTL:             30 * time.Minute,
			JanitorInterval: time.Minute,
			MaxSessions:     64,
		},
		DB: DBConfig{Path: "traffic-replay.db"},
		WS: WSConfig{
			MaxConnections: 100,
			PingInterval:   30 * time.Second,
			InboundRate:    20,
		},
	}
}

// New returns a viper instance carrying the defaults and the environment
// binding. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	defaults := map[string]any{
		"server.listen":             d.Server.Listen,
		"server.grpc_listen":        d.Server.GRPCListen,
		"server.dev":                d.Server.Dev,
		"data.dir":                  d.Data.Dir,
		"data.supported_datasets":   d.Data.SupportedDatasets,
		"stream.default_fps":        d.Stream.DefaultFPS,
		"stream.max_fps":            d.Stream.MaxFPS,
		"stream.send_buffer":        d.Stream.SendBuffer,
		"sessions.ttl":              d.Sessions.TTL,
		"sessions.janitor_interval": d.Sessions.JanitorInterval,
		"sessions.max_sessions":     d.Sessions.MaxSessions,
		"db.path":                   d.DB.Path,
		"alignment.origin_table":    d.Alignment.OriginTable,
		"ws.max_connections":        d.WS.MaxConnections,
		"ws.ping_interval":          d.WS.PingInterval,
		"ws.inbound_rate":           d.WS.InboundRate,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and resolves the final Config. With an empty
// path the working directory and $HOME/.config/traffic-replay are searched
// and a missing file is not an error; an explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		if err := checkFile(path); err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func checkFile(path string) error {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".toml" {
		return fmt.Errorf("config file must have .toml extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and listen addresses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("server.listen: %w", err)
	}
	if c.Server.GRPCListen != "" {
		if _, _, err := net.SplitHostPort(c.Server.GRPCListen); err != nil {
			return fmt.Errorf("server.grpc_listen: %w", err)
		}
	}
	return nil
}

// Supports reports whether dataset is enabled, ignoring case.
func (c *Config) Supports(dataset string) bool {
	for _, d := range c.Data.SupportedDatasets {
		if strings.EqualFold(d, dataset) {
			return true
		}
	}
	return false
}
