// Package config loads the optional deckhand.toml target configuration.
// Everything in it has a discovery-backed default; the file only pins down
// what discovery cannot know, like the remote working directory.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/deckhandhq/deckhand/internal/fsys"
)

// Config is the recipe-local tool configuration.
type Config struct {
	Compose  string   `toml:"compose"`
	Routing  string   `toml:"routing"`
	Pipeline string   `toml:"pipeline"`
	Remote   Remote   `toml:"remote"`
	Registry Registry `toml:"registry"`

	// Dockerfiles overrides the build definition path per service, for
	// recipes whose Dockerfile does not sit at <context>/Dockerfile.
	Dockerfiles map[string]string `toml:"dockerfiles"`
}

// Remote is the deploy target. Host and user come from secrets, not from
// this file; only non-sensitive connection shape lives here.
type Remote struct {
	Port    int    `toml:"port"`
	Workdir string `toml:"workdir"`
}

// Registry names where built images are published.
type Registry struct {
	Host      string `toml:"host"`
	Namespace string `toml:"namespace"`
}

// Default returns the configuration used when no deckhand.toml exists.
func Default() *Config {
	return &Config{
		Remote: Remote{Port: 22},
	}
}

// Load reads deckhand.toml at path, layered over the defaults.
func Load(filesystem fsys.FileSystem, path string) (*Config, error) {
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = 22
	}

	return cfg, nil
}

// ImageRef builds the full image reference for a service.
func (c *Config) ImageRef(service, tag string) string {
	ref := service
	if c.Registry.Namespace != "" {
		ref = c.Registry.Namespace + "/" + ref
	}
	if c.Registry.Host != "" {
		ref = c.Registry.Host + "/" + ref
	}
	if tag != "" {
		ref += ":" + tag
	}
	return ref
}
