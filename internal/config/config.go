// Package config loads the optional .darkwiki/config.toml file carrying
// a node's author identity, listen port, seed address and log level. Its
// absence is not an error: the listen port, seed address and log level
// fall back to sane defaults and the author is left empty, the way an
// unconfigured node is still a usable node.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultListenPort is used when a config file is absent or doesn't
	// set one.
	DefaultListenPort = 5566
	// DefaultSeedAddress is micronet's fixed seed-service endpoint.
	DefaultSeedAddress = "tcp://127.0.0.1:5577"
	// DefaultLogLevel matches zap's default production level.
	DefaultLogLevel = "info"

	fileName = "config.toml"
)

// Config holds one node's local settings.
type Config struct {
	Author      string `toml:"author"`
	ListenPort  int    `toml:"listen_port"`
	SeedAddress string `toml:"seed_address"`
	LogLevel    string `toml:"log_level"`
}

// Default returns a Config populated entirely with defaults.
func Default() Config {
	return Config{
		ListenPort:  DefaultListenPort,
		SeedAddress: DefaultSeedAddress,
		LogLevel:    DefaultLogLevel,
	}
}

// Path returns the config file's path under a repository's .darkwiki
// directory.
func Path(dotDir string) string {
	return filepath.Join(dotDir, fileName)
}

// Load reads .darkwiki/config.toml under dotDir, starting from Default
// and overriding whatever fields the file sets. A missing file is not an
// error; it yields the defaults unchanged.
func Load(dotDir string) (Config, error) {
	cfg := Default()

	path := Path(dotDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = DefaultListenPort
	}
	if cfg.SeedAddress == "" {
		cfg.SeedAddress = DefaultSeedAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	return cfg, nil
}

// Save writes cfg to .darkwiki/config.toml under dotDir.
func Save(dotDir string, cfg Config) error {
	f, err := os.Create(Path(dotDir))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
