package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type StorageConfig struct {
	// Dir holds the progression state documents. Empty selects the
	// default XDG state path.
	Dir string `yaml:"dir"`
}

type NotifyConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

type AuthConfig struct {
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the config file at path, applying defaults for anything the
// file leaves unset. A missing file yields the full defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Notify: NotifyConfig{
			SnapshotInterval: 15 * time.Second,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
