package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// fileSchema mirrors Config as written to disk; durations are strings so
// the file stays readable.
type fileSchema struct {
	Server struct {
		Listen     string `toml:"listen" comment:"HTTP and WebSocket listen address"`
		GRPCListen string `toml:"grpc_listen" comment:"gRPC listen address; empty disables gRPC"`
		Dev        bool   `toml:"dev" comment:"Accept WebSocket upgrades from any origin"`
	} `toml:"server"`
	Data struct {
		Dir               string   `toml:"dir" comment:"Root of the LevelX recordings and highD_map directory"`
		SupportedDatasets []string `toml:"supported_datasets"`
	} `toml:"data"`
	Stream struct {
		DefaultFPS float64 `toml:"default_fps" comment:"Frames per second when a client sends none"`
		MaxFPS     float64 `toml:"max_fps"`
		SendBuffer int     `toml:"send_buffer" comment:"Per-connection outbound queue length"`
	} `toml:"stream"`
	Sessions struct {
		TTL             string `toml:"ttl" comment:"Idle sessions are evicted after this long; 0s disables"`
		JanitorInterval string `toml:"janitor_interval"`
		MaxSessions     int    `toml:"max_sessions" comment:"0 means unbounded"`
	} `toml:"sessions"`
	DB struct {
		Path string `toml:"path" comment:"Stream history database; empty disables history"`
	} `toml:"db"`
	Alignment struct {
		OriginTable string `toml:"origin_table" comment:"Optional YAML table of per-recording offsets"`
	} `toml:"alignment"`
	WS struct {
		MaxConnections int     `toml:"max_connections"`
		PingInterval   string  `toml:"ping_interval"`
		InboundRate    float64 `toml:"inbound_rate" comment:"Control messages per second per connection"`
	} `toml:"ws"`
}

func toFileSchema(c Config) fileSchema {
	var f fileSchema
	f.Server.Listen = c.Server.Listen
	f.Server.GRPCListen = c.Server.GRPCListen
	f.Server.Dev = c.Server.Dev
	f.Data.Dir = c.Data.Dir
	f.Data.SupportedDatasets = c.Data.SupportedDatasets
	f.Stream.DefaultFPS = c.Stream.DefaultFPS
	f.Stream.MaxFPS = c.Stream.MaxFPS
	f.Stream.SendBuffer = c.Stream.SendBuffer
	f.Sessions.TTL = c.Sessions.TTL.String()
	f.Sessions.JanitorInterval = c.Sessions.JanitorInterval.String()
	f.Sessions.MaxSessions = c.Sessions.MaxSessions
	f.DB.Path = c.DB.Path
	f.Alignment.OriginTable = c.Alignment.OriginTable
	f.WS.MaxConnections = c.WS.MaxConnections
	f.WS.PingInterval = c.WS.PingInterval.String()
	f.WS.InboundRate = c.WS.InboundRate
	return f
}

// Encode renders c as a commented TOML document.
func Encode(c Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# traffic-replay configuration\n\n")
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(toFileSchema(c)); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	data, err := Encode(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
