package engine

import (
	"fmt"
	"maps"
	"math"
)

// Params holds a method's configuration, decoded from YAML or built in code.
type Params map[string]any

// Merge returns defaults overlaid with p; keys in p win. Neither map is modified.
func (p Params) Merge(defaults Params) Params {
	out := make(Params, len(defaults)+len(p))
	maps.Copy(out, defaults)
	maps.Copy(out, p)
	return out
}

// Map returns p as a plain map for serialization.
func (p Params) Map() map[string]any {
	return maps.Clone(map[string]any(p))
}

// Reader reads typed values from Params and keeps the first conversion error, so a
// method can read all its parameters and check Err once.
type Reader struct {
	p   Params
	err error
}

// Reader returns a typed reader over p.
func (p Params) Reader() *Reader { return &Reader{p: p} }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(key string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("parameter %q: cannot use %v (%T) as %s", key, v, v, want)
	}
}

func (r *Reader) lookup(key string) (any, bool) {
	v, ok := r.p[key]
	if !ok && r.err == nil {
		r.err = fmt.Errorf("parameter %q is not set", key)
	}
	return v, ok
}

// Float reads a number.
func (r *Reader) Float(key string) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return 0
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	r.fail(key, v, "number")
	return 0
}

// Int reads an integer. Floats with no fractional part are accepted.
func (r *Reader) Int(key string) int {
	v, ok := r.lookup(key)
	if !ok {
		return 0
	}
	if f, ok := toFloat(v); ok && f == math.Trunc(f) {
		return int(f)
	}
	r.fail(key, v, "integer")
	return 0
}

// String reads a string.
func (r *Reader) String(key string) string {
	v, ok := r.lookup(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	r.fail(key, v, "string")
	return ""
}

// Bool reads a boolean.
func (r *Reader) Bool(key string) bool {
	v, ok := r.lookup(key)
	if !ok {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	r.fail(key, v, "boolean")
	return false
}

// Floats reads a list of numbers.
func (r *Reader) Floats(key string) []float64 {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []float64:
		return x
	case []int:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out
	case []any:
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := toFloat(e)
			if !ok {
				r.fail(key, v, "list of numbers")
				return nil
			}
			out[i] = f
		}
		return out
	}
	r.fail(key, v, "list of numbers")
	return nil
}

// Strings reads a list of strings.
func (r *Reader) Strings(key string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				r.fail(key, v, "list of strings")
				return nil
			}
			out[i] = s
		}
		return out
	}
	r.fail(key, v, "list of strings")
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}
