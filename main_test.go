package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"tflitebridge/core"
	"tflitebridge/logging"
	"tflitebridge/status"
	"tflitebridge/term"
	"tflitebridge/tflite"
)

func init() {
	color.NoColor = true
}

func TestTopK(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		k      int
		want   []scored
	}{
		{
			name:   "highest first",
			scores: []float64{0.1, 0.7, 0.2},
			k:      2,
			want:   []scored{{Index: 1, Score: 0.7}, {Index: 2, Score: 0.2}},
		},
		{
			name:   "k larger than scores",
			scores: []float64{1, 2},
			k:      5,
			want:   []scored{{Index: 1, Score: 2}, {Index: 0, Score: 1}},
		},
		{
			name:   "ties keep index order",
			scores: []float64{0.5, 0.5, 0.9},
			k:      3,
			want:   []scored{{Index: 2, Score: 0.9}, {Index: 0, Score: 0.5}, {Index: 1, Score: 0.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, topK(tt.scores, tt.k))
		})
	}
}

func TestFormatShape(t *testing.T) {
	assert.Equal(t, "[? 224 224 3]", formatShape(term.Shape{-1, 224, 224, 3}))
	assert.Equal(t, "[]", formatShape(term.Shape{}))
}

func TestFormatValues(t *testing.T) {
	assert.Equal(t, "[1 2 3]", formatValues([]float32{1, 2, 3}, 16))
	assert.Equal(t, "[1 2 … 2 more]", formatValues([]int8{1, 2, 3, 4}, 2))
	assert.Equal(t, "[a b]", formatValues([]string{"a", "b"}, 16))
	assert.Equal(t, "7", formatValues(7, 16))
}

func TestEmit_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := emit(&buf, core.FormatJSON, []string{"serving_default"}, nil, func(io.Writer, []string) {
		t.Fatal("text printer used in json mode")
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, status.TagOk, got["status"])
	assert.Equal(t, []any{"serving_default"}, got["value"])
}

func TestEmit_JSONError(t *testing.T) {
	var buf bytes.Buffer
	failure := status.New("interpreter.input_tensor", status.KindIndexOutOfRange, status.ReasonIndexOutOfRange)
	err := emit(&buf, core.FormatJSON, 0, failure, func(io.Writer, int) {})
	assert.ErrorIs(t, err, status.ErrIndexOutOfRange, "error is still returned")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, status.TagError, got["status"])
	assert.Equal(t, status.ReasonIndexOutOfRange, got["reason"])
	assert.NotContains(t, got, "value")
}

func TestEmit_YAML(t *testing.T) {
	var buf bytes.Buffer
	defs := []tflite.SignatureDef{{Key: "serving_default", Inputs: map[string]int{"x": 0}}}
	require.NoError(t, emit(&buf, core.FormatYAML, defs, nil, printSignatures))

	var got struct {
		Status string `yaml:"status"`
		Value  []struct {
			Key    string         `yaml:"key"`
			Inputs map[string]int `yaml:"inputs"`
		} `yaml:"value"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, status.TagOk, got.Status)
	require.Len(t, got.Value, 1)
	assert.Equal(t, map[string]int{"x": 0}, got.Value[0].Inputs)
}

func TestEmit_TextSkipsPrinterOnError(t *testing.T) {
	var buf bytes.Buffer
	called := false
	err := emit(&buf, core.FormatText, 1, errors.New("boom"), func(io.Writer, int) { called = true })
	assert.EqualError(t, err, "boom")
	assert.False(t, called)
	assert.Empty(t, buf.String())
}

func TestPrintModelReport(t *testing.T) {
	var buf bytes.Buffer
	printModelReport(&buf, modelReport{
		Model:  "mobilenet.tflite",
		Engine: "2.16.1",
		Inputs: []tflite.TensorInfo{{
			Name:     "input",
			Type:     "uint8",
			Shape:    term.Shape{-1, 224, 224, 3},
			ByteSize: 150528,
			Quantization: term.QuantizationParams{
				Scale:     []float64{0.0078125},
				ZeroPoint: []int64{128},
			},
		}},
		Outputs:    []tflite.TensorInfo{{Name: "scores", Type: "float32", Shape: term.Shape{1, 1001}, Index: 171}},
		Signatures: []string{"serving_default"},
	})

	out := buf.String()
	assert.Contains(t, out, "Inputs (1)")
	assert.Contains(t, out, "input  uint8 [? 224 224 3]")
	assert.Contains(t, out, "quantized: scale [0.0078125] zero_point [128]")
	assert.Contains(t, out, "(tensor 171)")
	assert.Contains(t, out, "serving_default")
}

func TestPrintBenchReport_Interrupted(t *testing.T) {
	var buf bytes.Buffer
	printBenchReport(&buf, benchReport{Model: "m.tflite", Requested: 50, Completed: 7, Interrupted: true})
	assert.Contains(t, buf.String(), "7/50")
	assert.Contains(t, buf.String(), "(interrupted)")
	assert.NotContains(t, buf.String(), "p50", "no latency lines without records")
}

func TestGlobalFlags_Apply(t *testing.T) {
	g, fs, err := parseGlobalFlags([]string{"-model", "m.tflite", "-threads", "4", "inspect"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"inspect"}, fs.Args())

	cfg := core.DefaultConfig()
	cfg.OutputFormat = core.FormatYAML
	g.apply(fs, cfg)
	assert.Equal(t, "m.tflite", cfg.ModelPath)
	assert.Equal(t, 4, cfg.NumThreads)
	assert.Equal(t, core.FormatYAML, cfg.OutputFormat, "unset flags keep config values")
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
		msg  string
	}{
		{"no command", nil, core.ExitCodeUsage, "Usage: tflitebridge"},
		{"unknown command", []string{"train"}, core.ExitCodeUsage, `unknown command "train"`},
		{"bad flag", []string{"-nope", "inspect"}, core.ExitCodeUsage, "flag provided but not defined"},
		{"help", []string{"-h"}, core.ExitCodeSuccess, "Commands:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.msg)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(core.ConfigPathEnv, "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-env", "", "-format", "xml", "inspect"}, &stdout, &stderr)
	assert.Equal(t, core.ExitCodeUsage, code)
	assert.Contains(t, stderr.String(), "xml")
	assert.Contains(t, stderr.String(), "└─")
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, core.ExitCodeSuccess, run([]string{"version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), core.GetVersion()))
	assert.Contains(t, stdout.String(), "tflite:")
}

func TestLogExit(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLoggerWithConfig(logging.Config{Level: zapcore.InfoLevel, Console: &buf})
	require.NoError(t, err)

	logExit(logger, core.ExitCodeUsage, core.ErrMissingModel())
	require.NoError(t, logger.Sync())
	assert.Empty(t, buf.String(), "ordinary exits log at debug")

	logExit(logger, core.ExitCodeSIGINT, nil)
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), "Interrupted")
	assert.Contains(t, buf.String(), core.ExitCodeName(core.ExitCodeSIGINT))

	buf.Reset()
	logger.SetLevel(zapcore.DebugLevel)
	logExit(logger, core.ExitCodeUsage, core.ErrMissingModel())
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), "Exiting")
	assert.Contains(t, buf.String(), core.ErrCodeMissingModel)
	assert.Contains(t, buf.String(), "usage")
}

func TestIsUsageError(t *testing.T) {
	assert.True(t, isUsageError(usageError{errors.New("x")}))
	assert.True(t, isUsageError(core.ErrMissingModel()))
	assert.False(t, isUsageError(status.New("invoke", status.KindNative, status.ReasonInvokeFailed)))
	assert.False(t, isUsageError(nil))
}

func TestParseCommandFlags(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Int("top", 5, "")

	assert.NoError(t, parseCommandFlags(fs, []string{"-top", "3"}))

	err := parseCommandFlags(fs, []string{"extra"})
	assert.True(t, isUsageError(err))

	fs = flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	assert.ErrorIs(t, parseCommandFlags(fs, []string{"-h"}), flag.ErrHelp)
}
