package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		Stores: map[string]StoreConfig{
			"main":  {Kind: "sqlite", Path: ":memory:"},
			"cache": {Kind: "lru", Capacity: 128},
		},
		Engines: map[string]EngineConfig{
			"facets": {Kind: "facet", Store: "main", Inplace: true},
			"names":  {Kind: "substring", Store: "main", SnapshotPath: "/tmp/names.bin"},
		},
	}
}

func TestValidate_UnknownStoreKind(t *testing.T) {
	cfg := validConfig()
	cfg.Stores["bad"] = StoreConfig{Kind: "mongo"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown store kind")
	}
}

func TestValidate_UnknownEngineKind(t *testing.T) {
	cfg := validConfig()
	cfg.Engines["bad"] = EngineConfig{Kind: "regex", Store: "main"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown engine kind")
	}
}

func TestValidate_EngineReferencesUndeclaredStore(t *testing.T) {
	cfg := validConfig()
	cfg.Engines["orphan"] = EngineConfig{Kind: "scan", Store: "missing"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for undeclared store reference")
	}
}

func TestValidate_VectorStoreRequiresDim(t *testing.T) {
	cfg := validConfig()
	cfg.Stores["vec"] = StoreConfig{Kind: "vector"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for vector store without dim")
	}
}

func TestValidate_SubstringRequiresSnapshotPath(t *testing.T) {
	cfg := validConfig()
	cfg.Engines["names"] = EngineConfig{Kind: "substring", Store: "main"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for substring engine without snapshot path")
	}
}

func TestValidate_InvalidPolicy(t *testing.T) {
	cfg := validConfig()
	e := cfg.Engines["names"]
	e.Policy = "shortest"
	cfg.Engines["names"] = e

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid policy")
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{
		Stores: map[string]StoreConfig{
			"vec":   {Kind: "vector", Dim: 768},
			"rel":   {Kind: "sqlite"},
			"cache": {Kind: "lru"},
		},
		Engines: map[string]EngineConfig{
			"facets": {Kind: "facet", Store: "rel"},
			"names":  {Kind: "substring", Store: "rel", SnapshotPath: "/tmp/s.bin"},
		},
	}
	cfg.ApplyDefaults()

	if got := cfg.Stores["vec"].Index; got != "recdex" {
		t.Errorf("expected vector index 'recdex', got %q", got)
	}
	if got := cfg.Stores["vec"].Algo; got != "FLAT" {
		t.Errorf("expected algo FLAT, got %q", got)
	}
	if got := cfg.Stores["rel"].Path; got != ":memory:" {
		t.Errorf("expected sqlite path :memory:, got %q", got)
	}
	if got := cfg.Stores["cache"].Capacity; got != 1024 {
		t.Errorf("expected capacity 1024, got %d", got)
	}
	if got := cfg.Engines["facets"].ShadowPath; got != ":memory:" {
		t.Errorf("expected shadow path :memory:, got %q", got)
	}
	if got := cfg.Engines["names"].MinLength; got != 2 {
		t.Errorf("expected min length 2, got %d", got)
	}
	if got := cfg.Engines["names"].Policy; got != "longest_distinct" {
		t.Errorf("expected policy longest_distinct, got %q", got)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Stores: map[string]StoreConfig{
			"vec": {Kind: "vector", Dim: 768, Index: "custom", Prefix: "c:", Algo: "HNSW"},
		},
		Engines: map[string]EngineConfig{
			"names": {Kind: "substring", Store: "vec", SnapshotPath: "/tmp/s.bin", MinLength: 4, Policy: "overlap"},
		},
	}
	cfg.ApplyDefaults()

	if got := cfg.Stores["vec"].Index; got != "custom" {
		t.Errorf("expected index 'custom', got %q", got)
	}
	if got := cfg.Engines["names"].MinLength; got != 4 {
		t.Errorf("expected min length 4, got %d", got)
	}
	if got := cfg.Engines["names"].Policy; got != "overlap" {
		t.Errorf("expected policy overlap, got %q", got)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RECDEX_TEST_KEY", "secret")

	in := []byte("api_key: ${RECDEX_TEST_KEY}\nmodel: ${RECDEX_TEST_MODEL:-bge-m3}\n")
	out := string(expandEnvVars(in))
	want := "api_key: secret\nmodel: bge-m3\n"
	if out != want {
		t.Errorf("expanded = %q, want %q", out, want)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
logging:
  level: debug
stores:
  main:
    kind: sqlite
engines:
  scanner:
    kind: scan
    store: main
`
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Stores["main"].Path != ":memory:" {
		t.Errorf("sqlite default path not applied: %q", cfg.Stores["main"].Path)
	}
	if cfg.Engines["scanner"].Kind != "scan" {
		t.Errorf("engine kind = %q", cfg.Engines["scanner"].Kind)
	}
}
