package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidateDetectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "missing server id",
			mutate: func(cfg *Config) {
				cfg.Server.ID = ""
			},
			wantErr: "server.id must be set",
		},
		{
			name: "non positive max concurrent loads",
			mutate: func(cfg *Config) {
				cfg.Server.MaxConcurrentLoads = 0
			},
			wantErr: "server.maxConcurrentLoads must be positive",
		},
		{
			name: "missing network listen address",
			mutate: func(cfg *Config) {
				cfg.Network.ListenUDP = ""
			},
			wantErr: "network.listenUdp must be set",
		},
		{
			name: "non positive block width",
			mutate: func(cfg *Config) {
				cfg.Chunk.BlockWidthLog2 = 0
			},
			wantErr: "chunk.blockWidthLog2 must be positive",
		},
		{
			name: "empty lod thresholds",
			mutate: func(cfg *Config) {
				cfg.LOD.Thresholds = nil
			},
			wantErr: "lod.thresholds must not be empty",
		},
		{
			name: "non ascending lod thresholds",
			mutate: func(cfg *Config) {
				cfg.LOD.Thresholds = []int{4, 2}
			},
			wantErr: "lod.thresholds must be strictly ascending",
		},
		{
			name: "non positive max load distance",
			mutate: func(cfg *Config) {
				cfg.LOD.MaxLoadDistance = 0
			},
			wantErr: "lod.maxLoadDistance must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("unexpected error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if want := Default(); !reflect.DeepEqual(cfg, want) {
		t.Fatalf("default configuration mismatch:\nwant: %#v\n got: %#v", want, cfg)
	}
}

func TestLoadReadsFileAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Server.ID = "custom-server"
	cfg.Network.ListenUDP = ":9999"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("loaded configuration mismatch:\nwant: %#v\n got: %#v", cfg, got)
	}
}

func TestLoadInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Chunk.BlockWidthLog2 = 0

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err = Load(path)
	if err == nil {
		t.Fatalf("expected load to fail")
	}
	if !strings.Contains(err.Error(), "validate config: chunk.blockWidthLog2 must be positive") {
		t.Fatalf("unexpected error: %v", err)
	}
}
