// Package config holds the terrain server's configuration: a nested struct
// with a Default() constructor and a Validate() method, loaded from YAML.
// Grounded on the teacher's internal/config/config.go shape; decode format
// upgraded from the teacher's plain JSON to the YAML its own
// cmd/chunkserver/config_sync.go already speaks, since the central
// coordinator JSON was serving is not part of this subsystem.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the tunable parameters needed to bootstrap a terrain
// server.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Network     NetworkConfig     `yaml:"network"`
	Chunk       ChunkConfig       `yaml:"chunk"`
	Terrain     TerrainConfig     `yaml:"terrain"`
	LOD         LODConfig         `yaml:"lod"`
	Environment EnvironmentConfig `yaml:"environment"`
}

type ServerConfig struct {
	ID                 string        `yaml:"id"`
	TickRate           time.Duration `yaml:"tickRate"`
	MaxConcurrentLoads int           `yaml:"maxConcurrentLoads"`
	WorkBusWorkers     int           `yaml:"workBusWorkers"`
}

type NetworkConfig struct {
	ListenUDP            string        `yaml:"listenUdp"`
	HandshakeTimeout     time.Duration `yaml:"handshakeTimeout"`
	KeepAliveInterval    time.Duration `yaml:"keepAliveInterval"`
	MaxDatagramSizeBytes int           `yaml:"maxDatagramSizeBytes"`
}

// ChunkConfig describes a terrain block's voxel-grid dimensions (2^LGWidth
// per axis, carried here as a plain int for config-file ergonomics).
type ChunkConfig struct {
	BlockWidthLog2 int `yaml:"blockWidthLog2"`
	InitialTreeLg  int `yaml:"initialTreeLg"`
}

type TerrainConfig struct {
	Seed        int64   `yaml:"seed"`
	Frequency   float64 `yaml:"frequency"`
	Amplitude   float64 `yaml:"amplitude"`
	Octaves     int     `yaml:"octaves"`
	Persistence float64 `yaml:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity"`
	BaseHeight  float64 `yaml:"baseHeight"`
}

type LODConfig struct {
	Thresholds      []int `yaml:"thresholds"`
	MaxLoadDistance int   `yaml:"maxLoadDistance"`
	BlockLoadSpeed  int   `yaml:"blockLoadSpeed"`
}

type EnvironmentConfig struct {
	DayLength time.Duration `yaml:"dayLength"`
	Seed      int64         `yaml:"seed"`
}

// Load reads configuration from a YAML file if provided. An empty path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:                 "terrain-server-0",
			TickRate:           33 * time.Millisecond,
			MaxConcurrentLoads: 4,
			WorkBusWorkers:     4,
		},
		Network: NetworkConfig{
			ListenUDP:            ":19000",
			HandshakeTimeout:     3 * time.Second,
			KeepAliveInterval:    5 * time.Second,
			MaxDatagramSizeBytes: 1 << 16,
		},
		Chunk: ChunkConfig{
			BlockWidthLog2: 4,
			InitialTreeLg:  8,
		},
		Terrain: TerrainConfig{
			Seed:        1337,
			Frequency:   0.003,
			Amplitude:   64,
			Octaves:     4,
			Persistence: 0.45,
			Lacunarity:  2.0,
			BaseHeight:  0,
		},
		LOD: LODConfig{
			Thresholds:      []int{2, 4, 8, 16},
			MaxLoadDistance: 16,
			BlockLoadSpeed:  4,
		},
		Environment: EnvironmentConfig{
			DayLength: 20 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return errors.New("server.id must be set")
	}
	if c.Server.MaxConcurrentLoads <= 0 {
		return errors.New("server.maxConcurrentLoads must be positive")
	}
	if c.Network.ListenUDP == "" {
		return errors.New("network.listenUdp must be set")
	}
	if c.Chunk.BlockWidthLog2 <= 0 {
		return errors.New("chunk.blockWidthLog2 must be positive")
	}
	if len(c.LOD.Thresholds) == 0 {
		return errors.New("lod.thresholds must not be empty")
	}
	for i := 1; i < len(c.LOD.Thresholds); i++ {
		if c.LOD.Thresholds[i] <= c.LOD.Thresholds[i-1] {
			return errors.New("lod.thresholds must be strictly ascending")
		}
	}
	if c.LOD.MaxLoadDistance <= 0 {
		return errors.New("lod.maxLoadDistance must be positive")
	}
	return nil
}
