/*
Package config loads the engine's YAML configuration.

PURPOSE:
  One file configures the server address, database path, tenant tag,
  globally excluded users, and the category definitions that seed the
  registry at startup.

EXAMPLE (points.yaml):

  server:
    addr: ":8080"
  database:
    path: "./data/points.db"
  tenant: "main"
  excluded_users: [1]
  categories:
    - slug: points
      name: Points
      floor: 0
    - slug: reputation
      name: Reputation
      floor: -100
*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warp/points-engine/points"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CategoryConfig struct {
	Slug  string `yaml:"slug"`
	Name  string `yaml:"name"`
	Floor int64  `yaml:"floor"`
}

type Config struct {
	Server        ServerConfig     `yaml:"server"`
	Database      DatabaseConfig   `yaml:"database"`
	Tenant        string           `yaml:"tenant"`
	ExcludedUsers []int64          `yaml:"excluded_users"`
	Categories    []CategoryConfig `yaml:"categories"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "points.db"},
		Tenant:   "main",
		Categories: []CategoryConfig{
			{Slug: "points", Name: "Points", Floor: 0},
		},
	}
}

// Load reads and validates a YAML config file. Missing fields fall
// back to Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	cfg.Categories = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "points.db"
	}

	for i, cat := range cfg.Categories {
		if cat.Slug == "" && cat.Name != "" {
			cat.Slug = string(points.Slugify(cat.Name))
			cfg.Categories[i] = cat
		}
		if cat.Slug == "" {
			return nil, fmt.Errorf("category %d: slug or name is required", i)
		}
	}

	return cfg, nil
}

// Registry builds a category registry from the configured categories.
func (c *Config) Registry() (*points.MemoryRegistry, error) {
	registry := points.NewMemoryRegistry()
	for _, cat := range c.Categories {
		name := cat.Name
		if name == "" {
			name = cat.Slug
		}
		err := registry.Register(points.Category(cat.Slug), points.CategorySettings{
			Name:  name,
			Floor: cat.Floor,
		})
		if err != nil {
			return nil, fmt.Errorf("registering category %q: %w", cat.Slug, err)
		}
	}
	return registry, nil
}

// Excluded converts the configured excluded user IDs.
func (c *Config) Excluded() []points.UserID {
	out := make([]points.UserID, 0, len(c.ExcludedUsers))
	for _, id := range c.ExcludedUsers {
		out = append(out, points.UserID(id))
	}
	return out
}
