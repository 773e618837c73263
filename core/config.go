package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by the command line tool.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Defaults applied by DefaultConfig.
const (
	DefaultNumThreads      = -1
	DefaultLogLevel        = "info"
	DefaultLogFile         = "tflitebridge.log"
	DefaultOutputFormat    = FormatText
	DefaultBenchIterations = 50
	DefaultHistoryCapacity = 1000
	DefaultEnvFile         = ".env"
)

// ConfigPathEnv names the variable consulted when no config path is given.
const ConfigPathEnv = "TFLITE_CONFIG"

// DelegateConfig selects an external delegate library and its options.
type DelegateConfig struct {
	Library string            `yaml:"library" env:"LIBRARY"`
	Options map[string]string `yaml:"options" env:"OPTIONS" envSeparator:"," envKeyValSeparator:":"`
}

// Config holds all configuration values.
//
// Values are layered: DefaultConfig, then the YAML file, then environment
// variables (including those loaded from .env).
type Config struct {
	// Model
	ModelPath  string `yaml:"model" env:"TFLITE_MODEL"`
	NumThreads int    `yaml:"num_threads" env:"TFLITE_NUM_THREADS"`

	// Logging
	LogLevel string `yaml:"log_level" env:"TFLITE_LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"TFLITE_LOG_FILE"`
	DevMode  bool   `yaml:"dev_mode" env:"DEV_MODE"`

	// Output and benchmarking
	OutputFormat    string `yaml:"output_format" env:"TFLITE_OUTPUT_FORMAT"`
	BenchIterations int    `yaml:"bench_iterations" env:"TFLITE_BENCH_ITERATIONS"`
	HistoryCapacity int    `yaml:"history_capacity" env:"TFLITE_HISTORY_CAPACITY"`

	Delegate DelegateConfig `yaml:"delegate" envPrefix:"TFLITE_DELEGATE_"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		NumThreads:      DefaultNumThreads,
		LogLevel:        DefaultLogLevel,
		LogFile:         DefaultLogFile,
		OutputFormat:    DefaultOutputFormat,
		BenchIterations: DefaultBenchIterations,
		HistoryCapacity: DefaultHistoryCapacity,
	}
}

// LoadConfig builds a Config from defaults, the optional YAML file at
// configPath (falling back to $TFLITE_CONFIG) and the environment. envFile is
// loaded with godotenv first; a missing env file is not an error.
func LoadConfig(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigFile(envFile, err)
		}
	}

	cfg := DefaultConfig()

	if configPath == "" {
		configPath = os.Getenv(ConfigPathEnv)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, ErrConfigFile(configPath, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, ErrConfigFile(configPath, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, &ConfigError{Code: ErrCodeEnvParse, Message: err.Error(), Action: "Check the TFLITE_* environment variables"}
	}

	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target. Fields whose variable
// is unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the values that do not depend on the command being run.
func (c *Config) Validate() error {
	if c.NumThreads < -1 {
		return ErrInvalidThreads(c.NumThreads)
	}
	switch c.OutputFormat {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return ErrInvalidFormat(c.OutputFormat)
	}
	if c.BenchIterations <= 0 {
		return ErrInvalidBench(c.BenchIterations)
	}
	if c.Delegate.Library == "" && len(c.Delegate.Options) > 0 {
		return ErrInvalidDelegate()
	}
	return nil
}

// RequireModel returns ErrMissingModel when no model path is configured.
func (c *Config) RequireModel() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return ErrMissingModel()
	}
	return nil
}
