package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/points"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":3000"
database:
  path: "/tmp/test.db"
tenant: "acme"
excluded_users: [1, 42]
categories:
  - slug: points
    name: Points
  - slug: reputation
    name: Reputation
    floor: -100
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Addr != ":3000" || cfg.Database.Path != "/tmp/test.db" || cfg.Tenant != "acme" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	excluded := cfg.Excluded()
	if len(excluded) != 2 || excluded[0] != 1 || excluded[1] != 42 {
		t.Errorf("unexpected excluded users: %v", excluded)
	}

	registry, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	if !registry.Exists("points") || !registry.Exists("reputation") {
		t.Error("expected both categories registered")
	}
	if registry.Floor("reputation") != -100 {
		t.Errorf("expected floor -100, got %d", registry.Floor("reputation"))
	}
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
categories:
  - slug: points
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Database.Path != "points.db" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_SlugDerivedFromName(t *testing.T) {
	path := writeConfig(t, `
categories:
  - name: Monthly Points
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0].Slug != "monthly-points" {
		t.Errorf("expected derived slug, got %+v", cfg.Categories)
	}
}

func TestLoad_CategoryWithoutSlugOrName(t *testing.T) {
	path := writeConfig(t, `
categories:
  - floor: 5
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for a nameless category")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/points.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "categories: [unclosed")
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Server.Addr != ":8080" || cfg.Tenant != "main" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	registry, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry failed: %v", err)
	}
	if !registry.Exists(points.Category("points")) {
		t.Error("default config should register the points category")
	}
}
