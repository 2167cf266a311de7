package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "TERMIE_CONFIG"

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Config holds all application configuration.
type Config struct {
	Shell      ShellConfig      `yaml:"shell" toml:"shell"`
	Buffers    BufferConfig     `yaml:"buffers" toml:"buffers"`
	Bridge     BridgeConfig     `yaml:"bridge" toml:"bridge"`
	Render     RenderConfig     `yaml:"render" toml:"render"`
	Classifier ClassifierConfig `yaml:"classifier" toml:"classifier"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
	Logging    LogConfig        `yaml:"logging" toml:"logging"`
}

// ShellConfig describes the child shell and its environment.
type ShellConfig struct {
	Path   string   `envconfig:"SHELL_PATH" yaml:"path" toml:"path"`
	Prompt string   `envconfig:"SHELL_PROMPT" yaml:"prompt" toml:"prompt"`
	Unset  []string `envconfig:"SHELL_UNSET" yaml:"unset" toml:"unset"`
	Term   string   `envconfig:"SHELL_TERM" yaml:"term" toml:"term"`
	Cols   uint16   `envconfig:"SHELL_COLS" yaml:"cols" toml:"cols"`
	Rows   uint16   `envconfig:"SHELL_ROWS" yaml:"rows" toml:"rows"`
}

// BufferConfig holds buffer capacities in bytes.
type BufferConfig struct {
	Output    int `envconfig:"OUTPUT_CAP" yaml:"output" toml:"output"`
	Input     int `envconfig:"INPUT_CAP" yaml:"input" toml:"input"`
	ReadChunk int `envconfig:"READ_CHUNK" yaml:"read_chunk" toml:"read_chunk"`
}

// BridgeConfig holds the event loop settings.
type BridgeConfig struct {
	ReadMode string   `envconfig:"READ_MODE" yaml:"read_mode" toml:"read_mode"`
	Tick     Duration `envconfig:"TICK_INTERVAL" yaml:"tick" toml:"tick"`
}

// RenderConfig holds framebuffer and text layout settings.
type RenderConfig struct {
	FontSize   float64 `envconfig:"FONT_SIZE" yaml:"font_size" toml:"font_size"`
	LinePitch  int     `envconfig:"LINE_PITCH" yaml:"line_pitch" toml:"line_pitch"`
	Margin     int     `envconfig:"MARGIN" yaml:"margin" toml:"margin"`
	Background uint32  `envconfig:"BACKGROUND" yaml:"background" toml:"background"`
	Width      int     `envconfig:"WIDTH" yaml:"width" toml:"width"`
	Height     int     `envconfig:"HEIGHT" yaml:"height" toml:"height"`
}

// ClassifierConfig holds the language model classifier settings.
type ClassifierConfig struct {
	Enabled bool     `envconfig:"CLASSIFIER_ENABLED" yaml:"enabled" toml:"enabled"`
	URL     string   `envconfig:"CLASSIFIER_URL" yaml:"url" toml:"url"`
	Model   string   `envconfig:"CLASSIFIER_MODEL" yaml:"model" toml:"model"`
	Timeout Duration `envconfig:"CLASSIFIER_TIMEOUT" yaml:"timeout" toml:"timeout"`
	Answer  bool     `envconfig:"CLASSIFIER_ANSWER" yaml:"answer" toml:"answer"`
	RPS     float64  `envconfig:"CLASSIFIER_RPS" yaml:"rps" toml:"rps"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" yaml:"host" toml:"host"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// Duration is a time.Duration written as a string such as "16ms" in
// config files and the environment.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			Path:   "/bin/sh",
			Prompt: "% ",
			Unset:  []string{"ENV", "BASH_ENV", "PROMPT_COMMAND"},
			Term:   "dumb",
			Cols:   80,
			Rows:   24,
		},
		Buffers: BufferConfig{
			Output:    1_000_000,
			Input:     4096,
			ReadChunk: 4096,
		},
		Bridge: BridgeConfig{
			ReadMode: "background",
			Tick:     Duration(16 * time.Millisecond),
		},
		Render: RenderConfig{
			FontSize:   16,
			LinePitch:  20,
			Margin:     10,
			Background: 0x000000,
			Width:      800,
			Height:     600,
		},
		Classifier: ClassifierConfig{
			Enabled: false,
			URL:     "http://localhost:11434",
			Model:   "qwen2.5:0.5b",
			Timeout: Duration(10 * time.Second),
			Answer:  false,
			RPS:     5,
		},
		Server: ServerConfig{
			Port: "8000",
			Host: "127.0.0.1",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Load builds the configuration from defaults, then the config file named
// by path (or by TERMIE_CONFIG when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML or TOML file at path onto cfg. Keys missing
// from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Shell.Path == "":
		return errors.New("shell path is empty")
	case c.Shell.Cols == 0 || c.Shell.Rows == 0:
		return fmt.Errorf("invalid shell size %dx%d", c.Shell.Cols, c.Shell.Rows)
	case c.Buffers.Output <= 0:
		return fmt.Errorf("output capacity must be positive, got %d", c.Buffers.Output)
	case c.Buffers.Input <= 0:
		return fmt.Errorf("input capacity must be positive, got %d", c.Buffers.Input)
	case c.Buffers.ReadChunk <= 0:
		return fmt.Errorf("read chunk must be positive, got %d", c.Buffers.ReadChunk)
	case c.Bridge.ReadMode != "background" && c.Bridge.ReadMode != "inline":
		return fmt.Errorf("unknown read mode %q", c.Bridge.ReadMode)
	case c.Bridge.Tick <= 0:
		return fmt.Errorf("tick interval must be positive, got %s", c.Bridge.Tick)
	case c.Render.FontSize <= 0:
		return fmt.Errorf("font size must be positive, got %g", c.Render.FontSize)
	case c.Render.LinePitch <= 0:
		return fmt.Errorf("line pitch must be positive, got %d", c.Render.LinePitch)
	case c.Render.Margin < 0:
		return fmt.Errorf("margin must not be negative, got %d", c.Render.Margin)
	case c.Render.Width <= 0 || c.Render.Height <= 0:
		return fmt.Errorf("invalid framebuffer size %dx%d", c.Render.Width, c.Render.Height)
	case c.Render.Background > 0xffffff:
		return fmt.Errorf("background %#x is not an RGB color", c.Render.Background)
	case c.Classifier.Enabled && c.Classifier.URL == "":
		return errors.New("classifier enabled without a URL")
	case c.Classifier.Timeout <= 0:
		return fmt.Errorf("classifier timeout must be positive, got %s", c.Classifier.Timeout)
	case c.Classifier.RPS < 0:
		return fmt.Errorf("classifier rps must not be negative, got %g", c.Classifier.RPS)
	case c.Server.Port == "":
		return errors.New("server port is empty")
	case c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0):
		return errors.New("rate limit requires positive rps and burst")
	}
	return nil
}
