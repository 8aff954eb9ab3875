// Package config loads and validates quill-host configuration files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	domainerrors "github.com/quillmc/quill-abi/domain/errors"
)

const (
	DefaultLogLevel    = "info"
	DefaultTicks       = 1
	DefaultSetupExport = "setup"
	DefaultFreeExport  = "free"
)

var validate = validator.New()

// Config is the host configuration.
type Config struct {
	LogLevel         string   `json:"log_level,omitempty" yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Ticks            int      `json:"ticks,omitempty" yaml:"ticks" toml:"ticks" validate:"gte=0" jsonschema:"minimum=0,default=1"`
	MemoryLimitPages uint32   `json:"memory_limit_pages,omitempty" yaml:"memory_limit_pages" toml:"memory_limit_pages" validate:"lte=65536" jsonschema:"maximum=65536"`
	CacheDir         string   `json:"cache_dir,omitempty" yaml:"cache_dir" toml:"cache_dir"`
	Plugins          []Plugin `json:"plugins,omitempty" yaml:"plugins" toml:"plugins" validate:"unique=Name,dive"`
}

// Plugin is one guest module to load.
type Plugin struct {
	Name        string `json:"name" yaml:"name" toml:"name" validate:"required,max=255" jsonschema:"required"`
	Path        string `json:"path" yaml:"path" toml:"path" validate:"required" jsonschema:"required"`
	SetupExport string `json:"setup_export,omitempty" yaml:"setup_export" toml:"setup_export" jsonschema:"default=setup"`
	FreeExport  string `json:"free_export,omitempty" yaml:"free_export" toml:"free_export" jsonschema:"default=free"`
}

// Default returns a config with every default applied and no plugins.
func Default() Config {
	return Config{LogLevel: DefaultLogLevel, Ticks: DefaultTicks}
}

// Load reads path, decoding TOML for a .toml extension and YAML otherwise.
// Relative plugin paths are resolved against the config file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = FormatTOML
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range cfg.Plugins {
		if !filepath.IsAbs(cfg.Plugins[i].Path) {
			cfg.Plugins[i].Path = filepath.Join(dir, cfg.Plugins[i].Path)
		}
	}
	return cfg, nil
}

// Format is a config file encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// Parse decodes data, applies defaults and validates the result.
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config parse failed: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	for i := range c.Plugins {
		p := &c.Plugins[i]
		if p.SetupExport == "" {
			p.SetupExport = DefaultSetupExport
		}
		if p.FreeExport == "" {
			p.FreeExport = DefaultFreeExport
		}
	}
}

// Validate reports the first invalid field as a ConfigError.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domainerrors.ConfigError{
			Field: fieldPath(fe.Namespace()),
			Err:   fmt.Errorf("failed %q", fe.Tag()),
		}
	}
	return &domainerrors.ConfigError{Err: err}
}

// fieldPath turns "Config.Plugins[0].Path" into "plugins[0].path".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Schema renders the JSON Schema of Config.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
