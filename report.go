package main

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"tflitebridge/core"
	"tflitebridge/status"
	"tflitebridge/term"
	"tflitebridge/tflite"
)

// maxPrintedValues caps how many tensor values the text report shows.
const maxPrintedValues = 16

// emit writes v (or err) in the configured format. In json and yaml modes
// the outcome is a status.Result so failures are machine readable too. The
// returned error is err, so the exit code still reflects the failure.
func emit[T any](w io.Writer, format string, v T, err error, text func(io.Writer, T)) error {
	switch format {
	case core.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(status.From(v, err)); encErr != nil {
			return encErr
		}
	case core.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if encErr := enc.Encode(status.From(v, err)); encErr != nil {
			return encErr
		}
		if encErr := enc.Close(); encErr != nil {
			return encErr
		}
	default:
		if err == nil {
			text(w, v)
		}
	}
	return err
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	nameColor   = color.New(color.FgGreen)
	dimColor    = color.New(color.FgHiBlack)
)

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	headerColor.Fprintf(w, "━━━ %s ━━━\n", title)
	fmt.Fprintln(w)
}

func printModelReport(w io.Writer, r modelReport) {
	printHeader(w, "Model")
	fmt.Fprintf(w, "  path    %s\n", r.Model)
	fmt.Fprintf(w, "  engine  %s\n", r.Engine)

	printHeader(w, fmt.Sprintf("Inputs (%d)", len(r.Inputs)))
	for i, t := range r.Inputs {
		printTensor(w, i, t)
	}
	printHeader(w, fmt.Sprintf("Outputs (%d)", len(r.Outputs)))
	for i, t := range r.Outputs {
		printTensor(w, i, t)
	}

	if len(r.Signatures) > 0 {
		printHeader(w, "Signatures")
		for _, k := range r.Signatures {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}
}

func printTensor(w io.Writer, pos int, t tflite.TensorInfo) {
	fmt.Fprintf(w, "  [%d] ", pos)
	nameColor.Fprint(w, t.Name)
	fmt.Fprintf(w, "  %s %s  %s", t.Type, formatShape(t.Shape), core.FormatBytes(int64(t.ByteSize)))
	dimColor.Fprintf(w, "  (tensor %d)\n", t.Index)

	if t.Quantization.IsQuantized() {
		dimColor.Fprintf(w, "      └─ quantized: scale %v zero_point %v dim %d\n",
			t.Quantization.Scale, t.Quantization.ZeroPoint, t.Quantization.QuantizedDimension)
	}
	if t.Sparsity != nil {
		dimColor.Fprintf(w, "      └─ sparse: traversal %v, %d dims\n",
			t.Sparsity.TraversalOrder, len(t.Sparsity.DimMetadata))
	}
}

// formatShape renders a shape like [-1 224 224 3], with dynamic axes as ?.
func formatShape(s term.Shape) string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// formatValues prints at most limit values of a typed slice.
func formatValues(v any, limit int) string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return fmt.Sprint(v)
	}
	n := rv.Len()
	shown := n
	if shown > limit {
		shown = limit
	}
	parts := make([]string, shown)
	for i := 0; i < shown; i++ {
		parts[i] = fmt.Sprint(rv.Index(i).Interface())
	}
	s := "[" + strings.Join(parts, " ")
	if n > shown {
		s += fmt.Sprintf(" … %d more", n-shown)
	}
	return s + "]"
}

func printRunReport(w io.Writer, r runReport) {
	printHeader(w, "Run")
	fmt.Fprintf(w, "  model   %s\n", r.Model)
	fmt.Fprintf(w, "  input   %s\n", r.Input)
	fmt.Fprintf(w, "  invoke  %v\n", r.Duration.Round(time.Microsecond))

	for i, out := range r.Outputs {
		printHeader(w, fmt.Sprintf("Output %d", i))
		fmt.Fprint(w, "  ")
		nameColor.Fprint(w, out.Tensor.Name)
		fmt.Fprintf(w, "  %s %s\n", out.Tensor.Type, formatShape(out.Tensor.Dims))
		fmt.Fprintf(w, "  %s\n", formatValues(out.Values, maxPrintedValues))
		if len(out.Top) > 0 {
			dimColor.Fprintf(w, "  top %d:\n", len(out.Top))
			for _, s := range out.Top {
				fmt.Fprintf(w, "    %6d  %.6f\n", s.Index, s.Score)
			}
		}
	}
}

func printBenchReport(w io.Writer, r benchReport) {
	s := r.Summary
	printHeader(w, "Benchmark")
	fmt.Fprintf(w, "  model       %s\n", r.Model)
	fmt.Fprintf(w, "  threads     %d\n", r.Threads)
	fmt.Fprintf(w, "  iterations  %d/%d", r.Completed, r.Requested)
	if r.Interrupted {
		color.New(color.FgYellow).Fprint(w, "  (interrupted)")
	}
	fmt.Fprintln(w)

	if s.Total == 0 {
		return
	}
	fmt.Fprintf(w, "  mean        %v\n", s.MeanDuration.Round(time.Microsecond))
	fmt.Fprintf(w, "  min         %v\n", s.MinDuration.Round(time.Microsecond))
	fmt.Fprintf(w, "  p50         %v\n", s.P50.Round(time.Microsecond))
	fmt.Fprintf(w, "  p95         %v\n", s.P95.Round(time.Microsecond))
	fmt.Fprintf(w, "  max         %v\n", s.MaxDuration.Round(time.Microsecond))
}

func printSignatures(w io.Writer, defs []tflite.SignatureDef) {
	if len(defs) == 0 {
		dimColor.Fprintln(w, "no signatures")
		return
	}
	for _, d := range defs {
		printHeader(w, d.Key)
		printIndexMap(w, "inputs", d.Inputs)
		printIndexMap(w, "outputs", d.Outputs)
	}
}

func printIndexMap(w io.Writer, label string, m map[string]int) {
	fmt.Fprintf(w, "  %s:\n", label)
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "    %-24s tensor %d\n", n, m[n])
	}
}
