package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8085 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Matcher.AcceptThreshold != 0.6 || cfg.Matcher.StrongMargin != 0.1 || cfg.Matcher.StrongMultiplier != 1.2 {
		t.Fatalf("matcher defaults = %+v", cfg.Matcher)
	}
	if cfg.Simulation.Iterations != 1000 || cfg.Simulation.Seed != 0 {
		t.Fatalf("simulation defaults = %+v", cfg.Simulation)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[simulation]
iterations = 5000
seed = 42

[logging]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Simulation.Iterations != 5000 || cfg.Simulation.Seed != 42 {
		t.Fatalf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Oracle.Model == "" || cfg.Oracle.ChunkSize != 20 {
		t.Fatalf("oracle = %+v", cfg.Oracle)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad port", "[server]\nport = 0\n"},
		{"bad log level", "[logging]\nlevel = \"loud\"\n"},
		{"too few iterations", "[simulation]\niterations = 10\n"},
		{"multiplier below one", "[matcher]\nstrong_multiplier = 0.5\n"},
	}
	for _, c := range cases {
		path := writeConfig(t, c.body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: want validation error", c.name)
		}
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestLoadMalformedTOMLFails(t *testing.T) {
	path := writeConfig(t, "[server\nport=")
	if _, err := Load(path); err == nil {
		t.Fatal("want parse error")
	}
}
