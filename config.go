package gfx2d

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/gfx2d/backend"
)

// ErrConfigFormat is returned for config files with an unknown extension.
var ErrConfigFormat = errors.New("gfx2d: unknown config format")

// maxConfigSize bounds config files read from disk.
const maxConfigSize = 1 << 20

// Duration is a time.Duration written as "250ms" or "2s" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config selects and tunes the renderer.
type Config struct {
	// Backend names the adapter; any alias accepted by backend.ParseKind.
	// Empty picks the best available one.
	Backend backend.Kind `yaml:"backend" toml:"backend"`

	// Validation enables API validation layers.
	Validation bool `yaml:"validation" toml:"validation"`

	// VSync synchronizes presentation with the display.
	VSync bool `yaml:"vsync" toml:"vsync"`

	// FramesInFlight is 1..3; zero means 2.
	FramesInFlight int `yaml:"frames_in_flight" toml:"frames_in_flight"`

	// FrameTimeout bounds the wait for a frame slot.
	FrameTimeout Duration `yaml:"frame_timeout" toml:"frame_timeout"`

	// SoftwareThreads is the worker count of the software rasterizer;
	// zero means GOMAXPROCS.
	SoftwareThreads int `yaml:"software_threads" toml:"software_threads"`

	// ClearColor is the straight-alpha RGBA background.
	ClearColor [4]float32 `yaml:"clear_color" toml:"clear_color"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		VSync:          true,
		FramesInFlight: backend.DefaultFramesInFlight,
		FrameTimeout:   Duration(backend.DefaultFrameTimeout),
		ClearColor:     [4]float32{0, 0, 0, 1},
	}
}

// Validate checks ranges the adapters cannot fix up themselves.
func (c Config) Validate() error {
	if c.FramesInFlight < 0 || c.FramesInFlight > 3 {
		return fmt.Errorf("gfx2d: frames_in_flight %d outside 0..3", c.FramesInFlight)
	}
	if c.FrameTimeout < 0 {
		return fmt.Errorf("gfx2d: negative frame_timeout %v", time.Duration(c.FrameTimeout))
	}
	if c.SoftwareThreads < 0 {
		return fmt.Errorf("gfx2d: negative software_threads %d", c.SoftwareThreads)
	}
	for i, v := range c.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("gfx2d: clear_color[%d] = %v outside [0,1]", i, v)
		}
	}
	return nil
}

// Options converts the config for backend.Open.
func (c Config) Options() backend.Options {
	return backend.Options{
		Kind:           c.Backend,
		Validation:     c.Validation,
		VSync:          c.VSync,
		FramesInFlight: c.FramesInFlight,
		FrameTimeout:   time.Duration(c.FrameTimeout),
		Threads:        c.SoftwareThreads,
	}
}

// Clear returns ClearColor as a vector.
func (c Config) Clear() mgl32.Vec4 { return mgl32.Vec4(c.ClearColor) }

// ParseConfig decodes data in the given format ("yaml", "yml" or "toml")
// over DefaultConfig, so absent keys keep their defaults.
func ParseConfig(data []byte, format string) (Config, error) {
	cfg := DefaultConfig()
	var err error
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrConfigFormat, format)
	}
	if err != nil {
		return Config{}, fmt.Errorf("gfx2d: parse %s config: %w", format, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML or TOML file, chosen by extension.
func LoadConfig(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("gfx2d: load config: %w", err)
	}
	if info.Size() > maxConfigSize {
		return Config{}, fmt.Errorf("gfx2d: config %s is %d bytes, limit %d", path, info.Size(), maxConfigSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gfx2d: load config: %w", err)
	}
	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	Logger().Info("config loaded", "path", path, "backend", cfg.Backend)
	return cfg, nil
}
