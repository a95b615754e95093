// Package config loads the recdex configuration from environment-named
// YAML files with ${VAR} expansion, defaults and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the recdex configuration.
type Config struct {
	Logging   LoggingConfig           `yaml:"logging"`
	Redis     RedisConfig             `yaml:"redis"`
	Embedding EmbeddingConfig         `yaml:"embedding"`
	Stores    map[string]StoreConfig  `yaml:"stores"`
	Engines   map[string]EngineConfig `yaml:"engines"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// RedisConfig holds the Redis/Valkey connection used by vector stores.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	User       string `yaml:"user"`
}

// StoreConfig declares one named store by kind tag.
type StoreConfig struct {
	Kind string `yaml:"kind"` // memory, lru, sqlite, doc, vector

	// Path is the sqlite database path (sqlite kind).
	Path string `yaml:"path"`
	// Capacity bounds the lru kind.
	Capacity int `yaml:"capacity"`
	// Index/Prefix/Dim/Algo configure the vector kind.
	Index  string `yaml:"index"`
	Prefix string `yaml:"prefix"`
	Dim    int    `yaml:"dim"`
	Algo   string `yaml:"algo"`
}

// EngineConfig declares one named engine by kind tag, bound to a named
// store.
type EngineConfig struct {
	Kind  string `yaml:"kind"` // scan, facet, substring, vector, doc
	Store string `yaml:"store"`

	Inplace    bool     `yaml:"inplace"`
	ShadowPath string   `yaml:"shadow_path"`
	Columns    []string `yaml:"columns"`

	// Substring engine settings.
	SnapshotPath string `yaml:"snapshot_path"`
	MinLength    int    `yaml:"min_length"`
	Policy       string `yaml:"policy"` // overlap, longest, longest_distinct
	WholeWord    bool   `yaml:"whole_word"`
}

// storeKinds and engineKinds are the closed sets of component tags.
// Construction dispatches on these; there is no runtime probing.
var (
	storeKinds  = map[string]bool{"memory": true, "lru": true, "sqlite": true, "doc": true, "vector": true}
	engineKinds = map[string]bool{"scan": true, "facet": true, "substring": true, "vector": true, "doc": true}
)

// StoreKinds returns the supported store kind tags.
func StoreKinds() []string { return kindList(storeKinds) }

// EngineKinds returns the supported engine kind tags.
func EngineKinds() []string { return kindList(engineKinds) }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	for name, s := range c.Stores {
		if s.Kind == "vector" {
			if s.Index == "" {
				s.Index = "recdex"
			}
			if s.Prefix == "" {
				s.Prefix = "recdex:rec:"
			}
			if s.Algo == "" {
				s.Algo = "FLAT"
			}
		}
		if s.Kind == "sqlite" && s.Path == "" {
			s.Path = ":memory:"
		}
		if s.Kind == "lru" && s.Capacity <= 0 {
			s.Capacity = 1024
		}
		c.Stores[name] = s
	}
	for name, e := range c.Engines {
		if e.Kind == "facet" && !e.Inplace && e.ShadowPath == "" {
			e.ShadowPath = ":memory:"
		}
		if e.Kind == "substring" {
			if e.MinLength <= 0 {
				e.MinLength = 2
			}
			if e.Policy == "" {
				e.Policy = "longest_distinct"
			}
		}
		c.Engines[name] = e
	}
}

// Validate checks the configuration for correctness. Kind tags must
// belong to the closed sets; engines must reference declared stores.
func (c *Config) Validate() error {
	for name, s := range c.Stores {
		if !storeKinds[s.Kind] {
			return fmt.Errorf("stores.%s.kind must be one of %s, got %q",
				name, strings.Join(StoreKinds(), ", "), s.Kind)
		}
		if s.Kind == "vector" && s.Dim <= 0 {
			return fmt.Errorf("stores.%s.dim is required for vector stores", name)
		}
	}
	for name, e := range c.Engines {
		if !engineKinds[e.Kind] {
			return fmt.Errorf("engines.%s.kind must be one of %s, got %q",
				name, strings.Join(EngineKinds(), ", "), e.Kind)
		}
		if e.Store == "" {
			return fmt.Errorf("engines.%s.store is required", name)
		}
		if _, ok := c.Stores[e.Store]; !ok {
			return fmt.Errorf("engines.%s.store references undeclared store %q", name, e.Store)
		}
		if e.Kind == "substring" && e.SnapshotPath == "" {
			return fmt.Errorf("engines.%s.snapshot_path is required for substring engines", name)
		}
		switch e.Policy {
		case "", "overlap", "longest", "longest_distinct":
		default:
			return fmt.Errorf(
				"engines.%s.policy must be \"overlap\", \"longest\" or \"longest_distinct\", got %q",
				name, e.Policy)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(b)) // config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

func kindList(kinds map[string]bool) []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
