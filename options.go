package grove

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults for Options.
const (
	DefaultRetryLimit       = 256
	DefaultRetrySpin        = 4
	DefaultMaxAutoNameIndex = 0xFFFFFF
	DefaultMaxLights        = 8
	DefaultTickRate         = 60
)

// RetryPolicy bounds the optimistic retries of collection mutations.
type RetryPolicy struct {
	// Limit is the number of lost compare-and-swap attempts tolerated before
	// a mutation fails with ConcurrencyError.
	Limit int `yaml:"limit" toml:"limit"`
	// Spin is the number of scheduler yields between attempts.
	Spin int `yaml:"spin" toml:"spin"`
}

// Options configures a World and the hierarchy beneath it.
type Options struct {
	Retry            RetryPolicy `yaml:"retry" toml:"retry"`
	MaxAutoNameIndex int         `yaml:"max_auto_name_index" toml:"max_auto_name_index"`
	MaxLights        int         `yaml:"max_lights" toml:"max_lights"`
	TickRate         float64     `yaml:"tick_rate" toml:"tick_rate"`
	Debug            bool        `yaml:"debug" toml:"debug"`
	LogLevel         string      `yaml:"log_level" toml:"log_level"`
	// SearchPaths lists directories tried, in order, when loading a
	// resource by relative path. Keys are resource kinds ("texture", "mesh", "material").
	SearchPaths map[string][]string `yaml:"search_paths" toml:"search_paths"`

	// Logger overrides the logger built from LogLevel. Not serialized.
	Logger *slog.Logger `yaml:"-" toml:"-"`
	// FS is where resources are read from. Defaults to the working
	// directory. Not serialized.
	FS fs.FS `yaml:"-" toml:"-"`
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		Retry:            RetryPolicy{Limit: DefaultRetryLimit, Spin: DefaultRetrySpin},
		MaxAutoNameIndex: DefaultMaxAutoNameIndex,
		MaxLights:        DefaultMaxLights,
		TickRate:         DefaultTickRate,
		LogLevel:         "info",
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Retry.Limit == 0 {
		o.Retry.Limit = d.Retry.Limit
	}
	if o.Retry.Spin == 0 {
		o.Retry.Spin = d.Retry.Spin
	}
	if o.MaxAutoNameIndex == 0 {
		o.MaxAutoNameIndex = d.MaxAutoNameIndex
	}
	if o.MaxLights == 0 {
		o.MaxLights = d.MaxLights
	}
	if o.TickRate == 0 {
		o.TickRate = d.TickRate
	}
	if o.LogLevel == "" {
		o.LogLevel = d.LogLevel
	}
	return o
}

// Validate reports the first invalid field.
func (o Options) Validate() error {
	switch {
	case o.Retry.Limit < 0:
		return fmt.Errorf("grove: retry.limit must be >= 0, got %d", o.Retry.Limit)
	case o.Retry.Spin < 0:
		return fmt.Errorf("grove: retry.spin must be >= 0, got %d", o.Retry.Spin)
	case o.MaxAutoNameIndex < 2:
		return fmt.Errorf("grove: max_auto_name_index must be >= 2, got %d", o.MaxAutoNameIndex)
	case o.MaxLights < 0:
		return fmt.Errorf("grove: max_lights must be >= 0, got %d", o.MaxLights)
	case o.TickRate < 0:
		return fmt.Errorf("grove: tick_rate must be >= 0, got %g", o.TickRate)
	}
	if _, err := parseLevel(o.LogLevel); err != nil {
		return err
	}
	return nil
}

// logger returns Logger, or a text handler on stderr at LogLevel.
func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	lvl, err := parseLevel(o.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	if o.Debug && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})).With("component", "grove")
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("grove: log_level: %w", err)
	}
	return lvl, nil
}

// ParseOptions decodes options in the given format ("yaml" or "toml"),
// applies defaults and validates the result.
func ParseOptions(data []byte, format string) (Options, error) {
	var o Options
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &o); err != nil {
			return Options{}, fmt.Errorf("grove: parse yaml options: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &o); err != nil {
			return Options{}, fmt.Errorf("grove: parse toml options: %w", err)
		}
	default:
		return Options{}, fmt.Errorf("grove: unknown options format %q", format)
	}
	o = o.withDefaults()
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// LoadOptions reads an options file, choosing the format by extension.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Options{}, fmt.Errorf("grove: options file %s: %w", path, err)
		}
		return Options{}, fmt.Errorf("grove: read options: %w", err)
	}
	return ParseOptions(data, strings.TrimPrefix(filepath.Ext(path), "."))
}
