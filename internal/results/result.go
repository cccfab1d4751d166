// Package results holds the structured output of measurement methods, the aggregator
// that collects them during a run, and the frozen record exported at the end.
package results

import "math"

// Result status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Failure kinds recorded in a failure descriptor.
const (
	KindMethodExecution = "MethodExecutionError"
	KindResourceLimit   = "ResourceLimitExceeded"
	KindCancelled       = "Cancelled"
	KindNotExecuted     = "NotExecuted"
)

// Failure describes why a method produced no measurements.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Output is what a measurement method returns on success.
// Measurements are keyed by channel name (or channel pair for inter-channel methods);
// Metrics are flat method-level scalars; Visualization is optional plot data.
type Output struct {
	Measurements  map[string]any
	Metrics       map[string]any
	Visualization map[string]any
}

// AnalysisResult is one method invocation's entry in the record.
type AnalysisResult struct {
	Method        string         `json:"method"`
	Category      string         `json:"category"`
	Status        string         `json:"status"`
	Parameters    map[string]any `json:"parameters"`
	Measurements  map[string]any `json:"measurements"`
	Metrics       map[string]any `json:"metrics,omitempty"`
	Visualization map[string]any `json:"visualization_data,omitempty"`
	Failure       *Failure       `json:"failure,omitempty"`
}

// Failed reports whether the result carries a failure descriptor.
func (r AnalysisResult) Failed() bool {
	return r.Failure != nil
}

// Succeeded wraps a method's output.
func Succeeded(category, method string, params map[string]any, out Output) AnalysisResult {
	measurements := out.Measurements
	if measurements == nil {
		measurements = map[string]any{}
	}
	return AnalysisResult{
		Method:        method,
		Category:      category,
		Status:        StatusOK,
		Parameters:    params,
		Measurements:  measurements,
		Metrics:       out.Metrics,
		Visualization: out.Visualization,
	}
}

// FailedWith builds a failure-flagged result. Measurements are present but empty so a
// consumer can tell "not measured" from an omitted key.
func FailedWith(category, method string, params map[string]any, f Failure) AnalysisResult {
	return AnalysisResult{
		Method:       method,
		Category:     category,
		Status:       StatusFailed,
		Parameters:   params,
		Measurements: map[string]any{},
		Metrics:      map[string]any{"execution_failed": true},
		Failure:      &f,
	}
}

// sanitize replaces non-finite floats with nil so the value tree is JSON encodable.
func sanitize(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return sanitize(float64(x))
	case []float64:
		if allFinite(x) {
			return x
		}
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = sanitize(f)
		}
		return out
	case [][]float64:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = sanitize(row)
		}
		return out
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = sanitize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = sanitize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = sanitize(m)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = sanitize(val)
		}
		return out
	default:
		return v
	}
}

func allFinite(x []float64) bool {
	for _, f := range x {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
