package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variable overrides.
// Example: ECHOMEM_SERVER_HTTP_PORT=9090 overrides server.http.port.
const EnvPrefix = "ECHOMEM_"

// Loader handles configuration loading from multiple sources with
// priority: defaults < file < environment variables.
type Loader struct {
	k          *koanf.Koanf
	configPath string
}

// NewLoader creates a new configuration loader.
// If configPath is empty, only defaults and environment variables are used.
func NewLoader(configPath string) *Loader {
	return &Loader{
		k:          koanf.New("."),
		configPath: configPath,
	}
}

// Load reads configuration from all sources and returns the merged result.
func (l *Loader) Load() (*Config, error) {
	// 1. Defaults (lowest priority)
	defaults := DefaultConfig()
	if err := l.k.Load(confmap.Provider(structToMap(defaults), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Configuration file (if provided)
	if l.configPath != "" {
		if err := l.loadFile(); err != nil {
			return nil, err
		}
	}

	// 3. Environment variables (highest priority)
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadFile loads configuration from the file path, choosing a parser
// based on the file extension.
func (l *Loader) loadFile() error {
	if _, err := os.Stat(l.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", l.configPath)
	}

	ext := strings.ToLower(filepath.Ext(l.configPath))

	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	if err := l.k.Load(file.Provider(l.configPath), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", l.configPath, err)
	}

	return nil
}

// loadEnv loads environment variables with the ECHOMEM_ prefix.
// Underscores map to dots: ECHOMEM_MEMORY_RRF_K -> memory.rrf_k is not
// expressible this way, so multi-word keys use double underscores:
// ECHOMEM_MEMORY__RRF_K -> memory.rrf_k.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, EnvPrefix)
		key = strings.ToLower(key)
		// Double underscore separates words within one key segment.
		key = strings.ReplaceAll(key, "__", "\x00")
		key = strings.ReplaceAll(key, "_", ".")
		key = strings.ReplaceAll(key, "\x00", "_")
		return key
	}), nil)
}

// ConfigPath returns the path of the loaded configuration file.
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Print logs the effective configuration keys (for debugging).
func (l *Loader) Print() {
	fmt.Println("Effective configuration:")
	for _, key := range l.k.Keys() {
		fmt.Printf("  %s = %v\n", key, l.k.Get(key))
	}
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// structToMap converts a config struct to a nested map keyed by koanf tags,
// so defaults can be fed through the confmap provider.
func structToMap(cfg *Config) map[string]interface{} {
	result := make(map[string]interface{})
	fillMap(reflect.ValueOf(cfg).Elem(), result)
	return result
}

func fillMap(v reflect.Value, m map[string]interface{}) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}

		value := v.Field(i)
		if value.Kind() == reflect.Struct && field.Type.String() != "time.Duration" {
			nested := make(map[string]interface{})
			fillMap(value, nested)
			m[tag] = nested
		} else {
			m[tag] = value.Interface()
		}
	}
}
