package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"tflitebridge/core"
	"tflitebridge/handle"
	"tflitebridge/logging"
	"tflitebridge/metrics"
	"tflitebridge/tflite"
	"tflitebridge/vision"
)

type command struct {
	name    string
	summary string
	run     func(a *app, args []string) error
}

var commands = []command{
	{"inspect", "print input and output tensors and signature keys", runInspect},
	{"run", "invoke the model once and print its outputs", runInvoke},
	{"bench", "invoke the model repeatedly and print latency statistics", runBench},
	{"signatures", "print signature definitions", runSignatures},
	{"version", "print version information", nil},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func newCommandFlags(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parseCommandFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	if fs.NArg() > 0 {
		return usageError{fmt.Errorf("unexpected arguments: %v", fs.Args())}
	}
	return nil
}

// openInterpreter builds an interpreter for the configured model. The caller
// releases the handle.
func (a *app) openInterpreter() (handle.Handle, error) {
	if err := a.cfg.RequireModel(); err != nil {
		return handle.Nil, err
	}
	h, err := a.runtime.NewInterpreterFromFile(a.cfg.ModelPath, a.interpreterOptions())
	if err != nil {
		return handle.Nil, err
	}
	a.logger.Debug("Interpreter ready", logging.HandleField(h), zap.String("model", a.cfg.ModelPath))
	return h, nil
}

func (a *app) release(h handle.Handle) {
	if err := a.runtime.Release(h); err != nil {
		a.logger.Warn("Release failed", logging.HandleField(h), zap.Error(err))
	}
}

// modelReport is the result of inspect.
type modelReport struct {
	Model      string              `json:"model" yaml:"model"`
	Engine     string              `json:"engine" yaml:"engine"`
	Inputs     []tflite.TensorInfo `json:"inputs" yaml:"inputs"`
	Outputs    []tflite.TensorInfo `json:"outputs" yaml:"outputs"`
	Signatures []string            `json:"signatures" yaml:"signatures"`
}

func runInspect(a *app, args []string) error {
	fs := newCommandFlags(a, "inspect")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}
	report, err := a.inspect()
	return emit(a.out, a.cfg.OutputFormat, report, err, printModelReport)
}

func (a *app) inspect() (modelReport, error) {
	h, err := a.openInterpreter()
	if err != nil {
		return modelReport{}, err
	}
	defer a.release(h)

	rt := a.runtime
	report := modelReport{Model: a.cfg.ModelPath, Engine: rt.EngineVersion()}
	if report.Inputs, err = collectTensors(rt, h, rt.InputCount, rt.InputTensor); err != nil {
		return modelReport{}, err
	}
	if report.Outputs, err = collectTensors(rt, h, rt.OutputCount, rt.OutputTensor); err != nil {
		return modelReport{}, err
	}
	defs, err := rt.SignatureDefs(h)
	if err != nil {
		return modelReport{}, err
	}
	report.Signatures = tflite.SignatureKeys(defs)
	return report, nil
}

func collectTensors(
	rt *tflite.Runtime,
	h handle.Handle,
	count func(handle.Handle) (int, error),
	tensor func(handle.Handle, int) (handle.Handle, error),
) ([]tflite.TensorInfo, error) {
	n, err := count(h)
	if err != nil {
		return nil, err
	}
	infos := make([]tflite.TensorInfo, 0, n)
	for i := 0; i < n; i++ {
		th, err := tensor(h, i)
		if err != nil {
			return nil, err
		}
		info, err := rt.TensorInfo(th)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// scored is one entry of a top-k listing.
type scored struct {
	Index int     `json:"index" yaml:"index"`
	Score float64 `json:"score" yaml:"score"`
}

// outputValues is one output tensor after an invocation.
type outputValues struct {
	Tensor tflite.TensorInfo `json:"tensor" yaml:"tensor"`
	Values any               `json:"values" yaml:"values"`
	Top    []scored          `json:"top,omitempty" yaml:"top,omitempty"`
}

// runReport is the result of run.
type runReport struct {
	Model    string         `json:"model" yaml:"model"`
	Input    string         `json:"input" yaml:"input"`
	Duration time.Duration  `json:"duration" yaml:"duration"`
	Outputs  []outputValues `json:"outputs" yaml:"outputs"`
}

type runOptions struct {
	image string
	input string
	norm  string
	top   int
}

func runInvoke(a *app, args []string) error {
	var o runOptions
	fs := newCommandFlags(a, "run")
	fs.StringVar(&o.image, "image", "", "image file fed to input 0 (png, jpeg or gif)")
	fs.StringVar(&o.input, "input", "", "raw bytes fed to input 0; must match its byte size")
	fs.StringVar(&o.norm, "norm", "unit", "image normalization for float inputs: unit, centered or raw")
	fs.IntVar(&o.top, "top", 5, "print the k highest scores of each output, 0 disables")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}
	if o.image != "" && o.input != "" {
		return usageError{errors.New("-image and -input are mutually exclusive")}
	}
	if _, ok := vision.ParseNormalization(o.norm); !ok {
		return usageError{fmt.Errorf("unknown normalization %q", o.norm)}
	}

	report, err := a.invokeOnce(o)
	return emit(a.out, a.cfg.OutputFormat, report, err, printRunReport)
}

func (a *app) invokeOnce(o runOptions) (runReport, error) {
	h, err := a.openInterpreter()
	if err != nil {
		return runReport{}, err
	}
	defer a.release(h)

	rt := a.runtime
	if err := rt.AllocateTensors(h); err != nil {
		return runReport{}, err
	}
	report := runReport{Model: a.cfg.ModelPath, Input: "zeros"}
	if err := a.fillInput(h, o, &report); err != nil {
		return runReport{}, err
	}

	start := time.Now()
	err = a.shutdown.Do(a.shutdown.Context(), "invoke", func(ctx context.Context) error {
		return rt.Invoke(ctx, h)
	})
	if err != nil {
		return runReport{}, err
	}
	report.Duration = time.Since(start)

	n, err := rt.OutputCount(h)
	if err != nil {
		return runReport{}, err
	}
	for i := 0; i < n; i++ {
		th, err := rt.OutputTensor(h, i)
		if err != nil {
			return runReport{}, err
		}
		out, err := a.readOutput(th, o.top)
		if err != nil {
			return runReport{}, err
		}
		report.Outputs = append(report.Outputs, out)
	}
	return report, nil
}

func (a *app) fillInput(h handle.Handle, o runOptions, report *runReport) error {
	if o.image == "" && o.input == "" {
		return nil
	}
	rt := a.runtime
	th, err := rt.InputTensor(h, 0)
	if err != nil {
		return err
	}

	var data []byte
	if o.input != "" {
		if data, err = os.ReadFile(o.input); err != nil {
			return err
		}
		report.Input = o.input
	} else {
		if data, err = a.preprocessImage(th, o); err != nil {
			return err
		}
		report.Input = o.image
	}

	info, err := rt.TensorInfo(th)
	if err != nil {
		return err
	}
	a.logger.Debug("Filling input",
		logging.TensorFields(logging.TensorInfo{
			Name:     info.Name,
			Type:     info.Type,
			Shape:    info.Dims,
			ByteSize: info.ByteSize,
		}),
		zap.String("bytes", core.FormatBytes(int64(len(data)))),
	)
	return rt.SetTensorBytes(th, data)
}

func (a *app) preprocessImage(th handle.Handle, o runOptions) ([]byte, error) {
	rt := a.runtime
	dims, err := rt.TensorDims(th)
	if err != nil {
		return nil, err
	}
	typ, err := rt.TensorType(th)
	if err != nil {
		return nil, err
	}
	quant, err := rt.TensorQuantization(th)
	if err != nil {
		return nil, err
	}
	norm, _ := vision.ParseNormalization(o.norm)
	layout, err := vision.LayoutFor(dims, typ, quant, norm)
	if err != nil {
		return nil, err
	}
	img, err := os.ReadFile(o.image)
	if err != nil {
		return nil, err
	}
	return vision.Preprocess(img, layout)
}

func (a *app) readOutput(th handle.Handle, k int) (outputValues, error) {
	rt := a.runtime
	info, err := rt.TensorInfo(th)
	if err != nil {
		return outputValues{}, err
	}
	values, err := rt.TensorValues(th)
	if err != nil {
		return outputValues{}, err
	}
	out := outputValues{Tensor: info, Values: values}
	if k > 0 {
		if scores, err := rt.TensorFloats(th); err == nil && len(scores) > 1 {
			out.Top = topK(scores, k)
		}
	}
	return out, nil
}

// topK returns the k highest scores, highest first. Ties keep index order.
func topK(scores []float64, k int) []scored {
	all := make([]scored, len(scores))
	for i, s := range scores {
		all[i] = scored{Index: i, Score: s}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

// benchReport is the result of bench.
type benchReport struct {
	Model       string          `json:"model" yaml:"model"`
	Threads     int             `json:"threads" yaml:"threads"`
	Requested   int             `json:"requested" yaml:"requested"`
	Completed   int             `json:"completed" yaml:"completed"`
	Interrupted bool            `json:"interrupted" yaml:"interrupted"`
	Summary     metrics.Summary `json:"summary" yaml:"summary"`
}

func runBench(a *app, args []string) error {
	fs := newCommandFlags(a, "bench")
	n := fs.Int("n", a.cfg.BenchIterations, "number of invocations")
	warmup := fs.Int("warmup", 1, "untimed invocations before the run")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}
	if *n <= 0 {
		return usageError{core.ErrInvalidBench(*n)}
	}
	if *warmup < 0 {
		return usageError{fmt.Errorf("warmup must be 0 or greater, got %d", *warmup)}
	}

	report, err := a.bench(*n, *warmup)
	return emit(a.out, a.cfg.OutputFormat, report, err, printBenchReport)
}

func (a *app) bench(n, warmup int) (benchReport, error) {
	h, err := a.openInterpreter()
	if err != nil {
		return benchReport{}, err
	}
	defer a.release(h)

	rt := a.runtime
	if err := rt.AllocateTensors(h); err != nil {
		return benchReport{}, err
	}
	threads, err := rt.NumThreads(h)
	if err != nil {
		return benchReport{}, err
	}

	// The summary comes from a local store so warmup runs stay out of it.
	for i := 0; i < warmup; i++ {
		if err := rt.Invoke(a.shutdown.Context(), h); err != nil {
			return benchReport{}, err
		}
	}

	report := benchReport{Model: a.cfg.ModelPath, Threads: threads, Requested: n}
	store := metrics.NewStore(metrics.StoreConfig{HistoryCapacity: n}, time.Now())
	for i := 0; i < n; i++ {
		start := time.Now()
		err := a.shutdown.Do(a.shutdown.Context(), "bench", func(ctx context.Context) error {
			return rt.Invoke(ctx, h)
		})
		if errors.Is(err, context.Canceled) {
			report.Interrupted = true
			break
		}
		rec := metrics.InvokeRecord{
			ID:          fmt.Sprintf("bench-%d", i),
			Interpreter: h.String(),
			Threads:     threads,
			Status:      metrics.StatusSuccess,
			StartTime:   start,
			Duration:    time.Since(start),
		}
		if err != nil {
			rec.Status = metrics.StatusError
			rec.ErrorMsg = err.Error()
			store.RecordInvoke(rec)
			return benchReport{}, err
		}
		store.RecordInvoke(rec)
		report.Completed++
	}
	report.Summary = store.Summary()
	return report, nil
}

func runSignatures(a *app, args []string) error {
	fs := newCommandFlags(a, "signatures")
	if err := parseCommandFlags(fs, args); err != nil {
		return err
	}
	defs, err := a.signatures()
	return emit(a.out, a.cfg.OutputFormat, defs, err, printSignatures)
}

func (a *app) signatures() ([]tflite.SignatureDef, error) {
	h, err := a.openInterpreter()
	if err != nil {
		return nil, err
	}
	defer a.release(h)

	defs, err := a.runtime.SignatureDefs(h)
	if err != nil {
		return nil, err
	}
	out := make([]tflite.SignatureDef, 0, len(defs))
	for _, key := range tflite.SignatureKeys(defs) {
		out = append(out, defs[key])
	}
	return out, nil
}
