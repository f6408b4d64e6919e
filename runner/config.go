package runner

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL         = "http://127.0.0.1:5678/mcp"
	DefaultTimeout         = 5 * time.Second
	DefaultProtocolVersion = "2025-11-25"
	DefaultCommand         = "version"
	DefaultToolName        = "windbg.eval"
)

// Config is the read-only configuration handed to every case
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	ProtocolVersion string
	// Command is only used by the tools/call result shape case
	Command  string
	ToolName string
	Extended bool
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Timeout:         DefaultTimeout,
		ProtocolVersion: DefaultProtocolVersion,
		Command:         DefaultCommand,
		ToolName:        DefaultToolName,
	}
}

// Validate checks that the configuration can drive a run
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base url %q: %v", ErrInvalidConfig, c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base url %q must be an absolute http(s) URL", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	}
	if c.ProtocolVersion == "" {
		return fmt.Errorf("%w: protocol version must not be empty", ErrInvalidConfig)
	}
	if c.ToolName == "" {
		return fmt.Errorf("%w: tool name must not be empty", ErrInvalidConfig)
	}
	return nil
}

// fileConfig mirrors Config in a YAML file. Unset keys keep their defaults.
type fileConfig struct {
	BaseURL         *string  `yaml:"base_url"`
	Timeout         *float64 `yaml:"timeout"` // seconds
	ProtocolVersion *string  `yaml:"protocol_version"`
	Command         *string  `yaml:"command"`
	ToolName        *string  `yaml:"tool_name"`
	Extended        *bool    `yaml:"extended"`
}

// LoadConfigFile reads a YAML file and applies it on top of base
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfig(data, base)
}

func parseConfig(data []byte, base Config) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	cfg := base
	if fc.BaseURL != nil {
		cfg.BaseURL = *fc.BaseURL
	}
	if fc.Timeout != nil {
		cfg.Timeout = SecondsToDuration(*fc.Timeout)
	}
	if fc.ProtocolVersion != nil {
		cfg.ProtocolVersion = *fc.ProtocolVersion
	}
	if fc.Command != nil {
		cfg.Command = *fc.Command
	}
	if fc.ToolName != nil {
		cfg.ToolName = *fc.ToolName
	}
	if fc.Extended != nil {
		cfg.Extended = *fc.Extended
	}
	return cfg, nil
}

// SecondsToDuration converts a fractional seconds value such as 2.5
func SecondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
