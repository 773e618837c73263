package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration error with an actionable instruction.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // What the operator should do about it
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeConfigFile      = "CONFIG_FILE"
	ErrCodeMissingModel    = "MISSING_MODEL"
	ErrCodeInvalidThreads  = "INVALID_THREADS"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeInvalidBench    = "INVALID_BENCH"
	ErrCodeInvalidDelegate = "INVALID_DELEGATE"
	ErrCodeEnvParse        = "ENV_PARSE"
)

// ErrConfigFile returns an error for an unreadable or malformed config file.
func ErrConfigFile(path string, reason error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFile,
		Message: fmt.Sprintf("Cannot load configuration file %s: %v", path, reason),
		Action:  "Check the file exists and is valid YAML",
	}
}

// ErrMissingModel returns an error when a command needs a model and none is set.
func ErrMissingModel() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingModel,
		Message: "No model configured",
		Action:  "Pass -model or set TFLITE_MODEL",
	}
}

// ErrInvalidThreads returns an error for a thread count below -1.
func ErrInvalidThreads(n int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidThreads,
		Message: fmt.Sprintf("Invalid thread count %d", n),
		Action:  "Set TFLITE_NUM_THREADS to -1 (runtime default) or a positive number",
	}
}

// ErrInvalidFormat returns an error for an unknown output format.
func ErrInvalidFormat(format string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidFormat,
		Message: fmt.Sprintf("Unknown output format %q", format),
		Action:  "Use one of: text, json, yaml",
	}
}

// ErrInvalidBench returns an error for a non-positive benchmark iteration count.
func ErrInvalidBench(n int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidBench,
		Message: fmt.Sprintf("Invalid benchmark iteration count %d", n),
		Action:  "Set TFLITE_BENCH_ITERATIONS to a positive number",
	}
}

// ErrInvalidDelegate returns an error for delegate options without a library.
func ErrInvalidDelegate() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidDelegate,
		Message: "Delegate options given without a delegate library",
		Action:  "Set TFLITE_DELEGATE_LIBRARY or remove TFLITE_DELEGATE_OPTIONS",
	}
}

// IsConfigError reports whether err wraps a ConfigError and returns it.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
