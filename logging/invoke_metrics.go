package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InvokeMetrics describes one interpreter invocation for structured logs.
//
// Example:
//
//	logger.Info("invoke complete", InvokeFields(InvokeMetrics{
//		Interpreter: h.String(),
//		Inputs:      1,
//		Outputs:     1,
//		Threads:     4,
//		Duration:    elapsed,
//	}))
type InvokeMetrics struct {
	Interpreter string        `json:"interpreter"`
	Inputs      int           `json:"inputs"`
	Outputs     int           `json:"outputs"`
	Threads     int           `json:"threads"`
	Duration    time.Duration `json:"duration"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler. Duration is logged in
// microseconds.
func (m InvokeMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("interpreter", m.Interpreter)
	enc.AddInt("inputs", m.Inputs)
	enc.AddInt("outputs", m.Outputs)
	enc.AddInt("threads", m.Threads)
	enc.AddInt64("duration_us", m.Duration.Microseconds())
	return nil
}

// InvokeFields wraps m as a single "invoke" field.
func InvokeFields(m InvokeMetrics) zap.Field {
	return zap.Object("invoke", m)
}

// TensorInfo describes a tensor for structured logs.
type TensorInfo struct {
	Name     string
	Type     string
	Shape    []int64
	ByteSize int
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (t TensorInfo) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", t.Name)
	enc.AddString("type", t.Type)
	enc.AddInt("bytes", t.ByteSize)
	return enc.AddArray("shape", zapcore.ArrayMarshalerFunc(func(arr zapcore.ArrayEncoder) error {
		for _, d := range t.Shape {
			arr.AppendInt64(d)
		}
		return nil
	}))
}

// TensorFields wraps t as a single "tensor" field.
func TensorFields(t TensorInfo) zap.Field {
	return zap.Object("tensor", t)
}

// HandleField is the field every per-handle log line carries.
func HandleField(h interface{ String() string }) zap.Field {
	return zap.Stringer("handle", h)
}
