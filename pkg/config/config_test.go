package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	path := writeFile(t, "name: ${SAMPLE_NAME}\n")

	cfg := sample{Port: 8000}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Port != 8000 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadValidates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	cfg := sample{}
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg := sample{Port: 8000}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("LoadOptional = %v, %v", found, err)
	}

	cfg.Port = 0
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Error("invalid defaults passed validation")
	}
}

func TestLoadOptionalBadYAML(t *testing.T) {
	path := writeFile(t, "port: [\n")
	cfg := sample{Port: 1}
	found, err := LoadOptional(path, &cfg)
	if !found || err == nil {
		t.Errorf("LoadOptional = %v, %v", found, err)
	}
}
