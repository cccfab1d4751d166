package results

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type entry struct {
	key     string
	status  string
	failure *Failure
	raw     json.RawMessage
}

type category struct {
	name    string
	entries []entry
}

// Record is the frozen output of a run. Its content is encoded once at export and
// cannot be modified; accessors decode fresh copies.
type Record struct {
	metadata      json.RawMessage
	preprocessing json.RawMessage
	categories    []category
}

// Categories returns category names in declaration order.
func (r *Record) Categories() []string {
	out := make([]string, len(r.categories))
	for i, c := range r.categories {
		out[i] = c.name
	}
	return out
}

// Keys returns the result keys of a category in declaration order.
func (r *Record) Keys(cat string) []string {
	for _, c := range r.categories {
		if c.name == cat {
			out := make([]string, len(c.entries))
			for i, e := range c.entries {
				out[i] = e.key
			}
			return out
		}
	}
	return nil
}

// Result decodes the result stored under category/key.
func (r *Record) Result(cat, key string) (AnalysisResult, bool) {
	for _, c := range r.categories {
		if c.name != cat {
			continue
		}
		for _, e := range c.entries {
			if e.key == key {
				var out AnalysisResult
				if err := json.Unmarshal(e.raw, &out); err != nil {
					return AnalysisResult{}, false
				}
				return out, true
			}
		}
	}
	return AnalysisResult{}, false
}

// Metadata decodes the record header.
func (r *Record) Metadata() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(r.metadata, &out)
	return out
}

// MethodStatus is one row of a record summary.
type MethodStatus struct {
	Category string
	Key      string
	Status   string
	Failure  *Failure
}

// Summary is a flat overview of a record.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Methods   []MethodStatus
}

// Summary lists every result with its status in declaration order.
func (r *Record) Summary() Summary {
	var s Summary
	for _, c := range r.categories {
		for _, e := range c.entries {
			s.Total++
			if e.failure != nil {
				s.Failed++
			} else {
				s.Succeeded++
			}
			var f *Failure
			if e.failure != nil {
				cp := *e.failure
				f = &cp
			}
			s.Methods = append(s.Methods, MethodStatus{Category: c.name, Key: e.key, Status: e.status, Failure: f})
		}
	}
	return s
}

// MarshalJSON writes {metadata, preprocessing, <category>: {<key>: result}} with
// categories and keys in declaration order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"metadata":`)
	buf.Write(r.metadata)
	buf.WriteString(`,"preprocessing":`)
	buf.Write(r.preprocessing)
	for _, c := range r.categories {
		if err := writeKey(&buf, c.name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for i, e := range c.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(e.key)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(e.raw)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, name string) error {
	switch name {
	case "metadata", "preprocessing":
		return fmt.Errorf("category name %q collides with a record section", name)
	}
	k, err := json.Marshal(name)
	if err != nil {
		return err
	}
	buf.WriteByte(',')
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// Indent returns the record as indented JSON.
func (r *Record) Indent() ([]byte, error) {
	raw, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
