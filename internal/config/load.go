// internal/config/load.go
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

var revision atomic.Uint64

// Load reads, expands, decodes, defaults, validates and normalizes the
// configuration file. The returned config carries a process-unique,
// monotonically increasing Revision so reloads can be told apart.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	Normalize(&cfg)

	cfg.Revision = revision.Add(1)
	return &cfg, nil
}
