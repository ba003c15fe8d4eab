package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-engine/internal/difficulty"
	"trivia-engine/internal/domain"
)

const defaultCallTimeout = 10 * time.Second

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Catalog struct {
		Path string `yaml:"path"`
		TTL  string `yaml:"ttl"`
	} `yaml:"catalog"`
	Engine struct {
		StartTimeout  string `yaml:"start_timeout"`
		FinishTimeout string `yaml:"finish_timeout"`
	} `yaml:"engine"`
	Difficulties []Difficulty `yaml:"difficulties"`
	Log          struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Difficulty is one row of the difficulty table.
type Difficulty struct {
	ID                          int `yaml:"id"`
	domain.DifficultyParameters `yaml:",inline"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(data)
}

// Parse decodes and validates YAML config.
func Parse(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects difficulty entries outside the allowed ranges and duplicated ids.
func (c Config) Validate() error {
	seen := make(map[int]struct{}, len(c.Difficulties))
	for _, d := range c.Difficulties {
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("difficulty %d: duplicated", d.ID)
		}
		seen[d.ID] = struct{}{}
		if err := difficulty.Validate(d.DifficultyParameters); err != nil {
			return fmt.Errorf("difficulty %d: %w", d.ID, err)
		}
	}
	return nil
}

// DifficultyTable returns the configured table, or the default one when none is set.
func (c Config) DifficultyTable() map[int]domain.DifficultyParameters {
	if len(c.Difficulties) == 0 {
		return difficulty.DefaultTable()
	}
	table := make(map[int]domain.DifficultyParameters, len(c.Difficulties))
	for _, d := range c.Difficulties {
		table[d.ID] = d.DifficultyParameters
	}
	return table
}

func (c Config) StartTimeout() time.Duration {
	return TTLDuration(c.Engine.StartTimeout, defaultCallTimeout)
}

func (c Config) FinishTimeout() time.Duration {
	return TTLDuration(c.Engine.FinishTimeout, defaultCallTimeout)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
