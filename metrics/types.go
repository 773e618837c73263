// Package metrics keeps in-memory statistics about interpreter invocations.
// This file contains the plain data types.
package metrics

import "time"

// InvokeRecord is a single Invoke call.
type InvokeRecord struct {
	// ID is unique per record
	ID string `json:"id" yaml:"id"`

	// Interpreter is the handle string of the invoked interpreter
	Interpreter string `json:"interpreter" yaml:"interpreter"`

	// Threads is the thread count the interpreter was built with
	Threads int `json:"threads" yaml:"threads"`

	// Status is "success" or "error"
	Status string `json:"status" yaml:"status"`

	// StartTime is when the native call began
	StartTime time.Time `json:"start_time" yaml:"start_time"`

	// Duration is the wall time of the native call
	Duration time.Duration `json:"duration" yaml:"duration"`

	// ErrorMsg holds the failure reason if Status is "error"
	ErrorMsg string `json:"error_msg,omitempty" yaml:"error_msg,omitempty"`
}

// Summary aggregates every recorded invocation plus latency percentiles over
// the retained history.
type Summary struct {
	Total        int64         `json:"total" yaml:"total"`
	Success      int64         `json:"success" yaml:"success"`
	Errors       int64         `json:"errors" yaml:"errors"`
	MeanDuration time.Duration `json:"mean" yaml:"mean"`
	MinDuration  time.Duration `json:"min" yaml:"min"`
	MaxDuration  time.Duration `json:"max" yaml:"max"`
	P50          time.Duration `json:"p50" yaml:"p50"`
	P95          time.Duration `json:"p95" yaml:"p95"`
	Uptime       time.Duration `json:"uptime" yaml:"uptime"`

	// ByInterpreter is the per-interpreter breakdown
	ByInterpreter map[string]*InterpreterStats `json:"by_interpreter" yaml:"by_interpreter"`
}

// InterpreterStats is the aggregate for one interpreter.
type InterpreterStats struct {
	Count       int64         `json:"count" yaml:"count"`
	SuccessRate float64       `json:"success_rate" yaml:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration" yaml:"avg_duration"`
}

// Status constants for InvokeRecord
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
