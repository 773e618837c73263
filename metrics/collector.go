package metrics

// Collector receives invocation records.
//
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordInvoke stores a finished invocation.
	RecordInvoke(rec InvokeRecord)

	// Summary returns totals and latency statistics.
	Summary() Summary

	// Recent returns up to limit records, oldest first.
	Recent(limit int) []InvokeRecord
}

// Discard is a Collector that drops everything.
var Discard Collector = discard{}

type discard struct{}

func (discard) RecordInvoke(InvokeRecord) {}
func (discard) Summary() Summary          { return Summary{ByInterpreter: map[string]*InterpreterStats{}} }
func (discard) Recent(int) []InvokeRecord { return []InvokeRecord{} }
