package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrFrozen is returned when a result is added after the record was exported.
var ErrFrozen = errors.New("results already exported")

// Skipped names a declared method that was not executed.
type Skipped struct {
	Category string `json:"category"`
	Method   string `json:"method"`
	Reason   string `json:"reason"`
}

type slot struct {
	category string
	method   string
	result   *AnalysisResult
}

// Aggregator collects results from concurrent method invocations. Each invocation
// reserves a slot with Declare in plan order, so the exported record follows
// declaration order regardless of completion order.
type Aggregator struct {
	mu            sync.Mutex
	metadata      map[string]any
	preprocessing any
	slots         []slot
	skipped       []Skipped
	includeViz    bool
	frozen        bool
}

// NewAggregator returns an empty aggregator. Visualization data is dropped from the
// export unless includeVisualization is set.
func NewAggregator(includeVisualization bool) *Aggregator {
	return &Aggregator{metadata: map[string]any{}, includeViz: includeVisualization}
}

// SetMetadata merges run metadata into the record header.
func (a *Aggregator) SetMetadata(m map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrFrozen
	}
	maps.Copy(a.metadata, m)
	return nil
}

// SetPreprocessing records the preprocessing configuration that was applied.
func (a *Aggregator) SetPreprocessing(p any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrFrozen
	}
	a.preprocessing = p
	return nil
}

// Declare reserves the next position for category/method and returns it. After
// Export nothing is reserved and -1 is returned, which Set rejects.
func (a *Aggregator) Declare(category, method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return -1
	}
	a.slots = append(a.slots, slot{category: category, method: method})
	return len(a.slots) - 1
}

// Set stores the result for a declared position.
func (a *Aggregator) Set(pos int, r AnalysisResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrFrozen
	}
	if pos < 0 || pos >= len(a.slots) {
		return fmt.Errorf("result position %d out of range [0,%d)", pos, len(a.slots))
	}
	if a.slots[pos].result != nil {
		return fmt.Errorf("result for %s/%s already set", a.slots[pos].category, a.slots[pos].method)
	}
	a.slots[pos].result = &r
	return nil
}

// Add declares and stores a result in one step.
func (a *Aggregator) Add(category string, r AnalysisResult) error {
	return a.Set(a.Declare(category, r.Method), r)
}

// Skip records a declared method that will not run.
func (a *Aggregator) Skip(s Skipped) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrFrozen
	}
	a.skipped = append(a.skipped, s)
	return nil
}

// Export freezes the aggregator and returns the serialized record. Declared slots
// that never received a result are exported as NotExecuted failures. Repeated calls
// return byte-identical records.
func (a *Aggregator) Export() (*Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen = true

	meta := maps.Clone(a.metadata)
	if len(a.skipped) > 0 {
		meta["skipped"] = a.skipped
	} else {
		meta["skipped"] = []Skipped{}
	}

	rec := &Record{}
	var err error
	if rec.metadata, err = json.Marshal(sanitize(meta)); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if rec.preprocessing, err = json.Marshal(a.preprocessing); err != nil {
		return nil, fmt.Errorf("encode preprocessing: %w", err)
	}

	byCategory := map[string]int{}
	seen := map[string]map[string]int{}
	for _, s := range a.slots {
		r := AnalysisResult{}
		if s.result != nil {
			r = *s.result
		} else {
			r = FailedWith(s.category, s.method, nil, Failure{Kind: KindNotExecuted, Message: "method did not report a result"})
		}
		if !a.includeViz {
			r.Visualization = nil
		}

		idx, ok := byCategory[s.category]
		if !ok {
			idx = len(rec.categories)
			byCategory[s.category] = idx
			rec.categories = append(rec.categories, category{name: s.category})
			seen[s.category] = map[string]int{}
		}

		seen[s.category][s.method]++
		key := s.method
		if n := seen[s.category][s.method]; n > 1 {
			key = fmt.Sprintf("%s#%d", s.method, n)
		}

		raw, err := encodeResult(r)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", s.category, key, err)
		}
		rec.categories[idx].entries = append(rec.categories[idx].entries, entry{
			key:     key,
			status:  r.Status,
			failure: r.Failure,
			raw:     raw,
		})
	}
	return rec, nil
}

func encodeResult(r AnalysisResult) (json.RawMessage, error) {
	r.Parameters = sanitizeMap(r.Parameters)
	r.Measurements = sanitizeMap(r.Measurements)
	r.Metrics = sanitizeMap(r.Metrics)
	r.Visualization = sanitizeMap(r.Visualization)
	return json.Marshal(r)
}

func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return sanitize(m).(map[string]any)
}
