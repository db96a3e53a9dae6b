package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is used when neither the -config flag nor GEAREDUP_CONFIG is set.
const DefaultPath = "config/gearedup.toml"

// EnvPath names the environment variable that overrides DefaultPath.
const EnvPath = "GEAREDUP_CONFIG"

type Config struct {
	App        AppConfig        `toml:"app"`
	Network    NetworkConfig    `toml:"network"`
	Simulation SimulationConfig `toml:"simulation"`
	World      WorldConfig      `toml:"world"`
	Client     ClientConfig     `toml:"client"`
	Scripting  ScriptingConfig  `toml:"scripting"`
	Logging    LoggingConfig    `toml:"logging"`
}

type AppConfig struct {
	ID        string `toml:"id"` // handshake identifier, must match on both peers
	Name      string `toml:"name"`
	StartTime int64  // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress        string        `toml:"bind_address"`
	TickRate           time.Duration `toml:"tick_rate"`
	InQueueSize        int           `toml:"in_queue_size"`
	OutQueueSize       int           `toml:"out_queue_size"`
	MaxMessagesPerTick int           `toml:"max_messages_per_tick"` // 0 = drain everything
	MaxConnections     int           `toml:"max_connections"`       // 0 = unlimited
	WriteTimeout       time.Duration `toml:"write_timeout"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	Discovery          bool          `toml:"discovery"`
	StopTimeout        time.Duration `toml:"stop_timeout"`
}

type SimulationConfig struct {
	Acceleration      float32 `toml:"acceleration"`
	Friction          float32 `toml:"friction"`
	FullSnapshotTicks int     `toml:"full_snapshot_ticks"`
}

type WorldConfig struct {
	MapFile string `toml:"map_file"` // YAML; empty = flatgrass
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
}

type ClientConfig struct {
	ServerAddress       string        `toml:"server_address"`
	Discover            bool          `toml:"discover"`
	FrameRate           time.Duration `toml:"frame_rate"`
	ConnectTimeoutTicks int           `toml:"connect_timeout_ticks"`
	Username            string        `toml:"username"`
	Password            string        `toml:"password"`
	SpawnX              float32       `toml:"spawn_x"`
	SpawnY              float32       `toml:"spawn_y"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`   // empty = stderr only
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Resolve picks the config path: explicit flag value, then the
// environment, then DefaultPath.
func Resolve(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if path == DefaultPath && errors.Is(err, fs.ErrNotExist) {
			cfg := defaults()
			cfg.App.StartTime = time.Now().Unix()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.App.StartTime = time.Now().Unix()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

func (c *Config) validate() error {
	switch {
	case c.App.ID == "":
		return errors.New("app.id must not be empty")
	case c.Network.TickRate <= 0:
		return errors.New("network.tick_rate must be positive")
	case c.Network.InQueueSize <= 0 || c.Network.OutQueueSize <= 0:
		return errors.New("network queue sizes must be positive")
	case c.Simulation.Friction < 0:
		return errors.New("simulation.friction must not be negative")
	case c.World.Width < 0 || c.World.Height < 0:
		return errors.New("world size must not be negative")
	case c.Client.FrameRate <= 0:
		return errors.New("client.frame_rate must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			ID:   "endure_dev1",
			Name: "GearedUp",
		},
		Network: NetworkConfig{
			BindAddress:        "0.0.0.0:14242",
			TickRate:           time.Millisecond,
			InQueueSize:        1024,
			OutQueueSize:       256,
			MaxMessagesPerTick: 0,
			MaxConnections:     64,
			WriteTimeout:       10 * time.Second,
			ReadTimeout:        60 * time.Second,
			Discovery:          true,
			StopTimeout:        5 * time.Second,
		},
		Simulation: SimulationConfig{
			Acceleration:      2.0,
			Friction:          0.6,
			FullSnapshotTicks: 500,
		},
		World: WorldConfig{
			Width:  11,
			Height: 11,
		},
		Client: ClientConfig{
			ServerAddress:       "127.0.0.1:14242",
			FrameRate:           16 * time.Millisecond,
			ConnectTimeoutTicks: 500,
			Username:            "billy",
			Password:            "password",
			SpawnX:              10,
			SpawnY:              250,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
