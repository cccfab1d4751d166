package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
	"github.com/linuxmatters/sigtrace/internal/results"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	l := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	r := []float64{0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	set, err := channels.Derive([][]float64{l, r}, 8, []string{channels.Left, channels.Right})
	require.NoError(t, err)
	actx, err := NewContext(set, nil, map[string]any{"audio_file": "test.wav"})
	require.NoError(t, err)
	return actx
}

func constant(v float64) Method {
	return func(ctx *Context, p Params) (results.Output, error) {
		m := map[string]any{}
		for _, name := range ctx.ChannelNames() {
			m[name] = map[string]any{"value": v}
		}
		return results.Output{Measurements: m}, nil
	}
}

func testRegistry(t *testing.T, extra ...Entry) *Registry {
	t.Helper()
	entries := append([]Entry{
		{ID: "one", Category: "temporal", Func: constant(1)},
		{ID: "two", Category: "spectral", Func: constant(2)},
		{ID: "boom", Category: "spectral", Func: func(*Context, Params) (results.Output, error) {
			return results.Output{}, errors.New("exploded")
		}},
		{ID: "panics", Category: "spectral", Func: func(*Context, Params) (results.Output, error) {
			var m map[string]int
			m["x"] = 1
			return results.Output{}, nil
		}},
		{ID: "too_long", Category: "temporal", Func: func(ctx *Context, p Params) (results.Output, error) {
			r := p.Reader()
			limit := r.Int("max_samples")
			if err := r.Err(); err != nil {
				return results.Output{}, err
			}
			return results.Output{}, CheckSampleLimit(ctx.Len(), limit)
		}, Defaults: Params{"max_samples": 4}},
	}, extra...)
	reg, err := NewRegistry(entries...)
	require.NoError(t, err)
	return reg
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Entry{ID: "x", Category: "a", Func: constant(1)},
		Entry{ID: "x", Category: "b", Func: constant(2)},
	)
	assert.ErrorIs(t, err, ErrDuplicateMethod)
}

func TestRegistryResolve(t *testing.T) {
	reg := testRegistry(t)
	e, err := reg.Resolve("two")
	require.NoError(t, err)
	assert.Equal(t, "spectral", e.Category)

	_, err = reg.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, []string{"temporal", "spectral"}, reg.Categories())
	assert.Equal(t, 5, reg.Len())
}

func TestRunIsolatesFailures(t *testing.T) {
	reg := testRegistry(t)
	plan := []CategoryPlan{
		{Category: "spectral", Methods: []Declaration{{Name: "boom"}, {Name: "two"}, {Name: "panics"}}},
		{Category: "temporal", Methods: []Declaration{{Name: "too_long"}, {Name: "one"}}},
	}

	agg := results.NewAggregator(false)
	stats, err := New(reg, WithWorkers(4)).Run(context.Background(), testContext(t), plan, agg)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Executed)
	assert.Equal(t, 3, stats.Failed)

	rec, err := agg.Export()
	require.NoError(t, err)
	assert.Equal(t, []string{"spectral", "temporal"}, rec.Categories())
	assert.Equal(t, []string{"boom", "two", "panics"}, rec.Keys("spectral"))

	boom, _ := rec.Result("spectral", "boom")
	require.NotNil(t, boom.Failure)
	assert.Equal(t, results.KindMethodExecution, boom.Failure.Kind)
	assert.Equal(t, "exploded", boom.Failure.Message)

	p, _ := rec.Result("spectral", "panics")
	require.NotNil(t, p.Failure)
	assert.Equal(t, results.KindMethodExecution, p.Failure.Kind)
	assert.Contains(t, p.Failure.Message, "panic")

	tl, _ := rec.Result("temporal", "too_long")
	require.NotNil(t, tl.Failure)
	assert.Equal(t, results.KindResourceLimit, tl.Failure.Kind)

	two, _ := rec.Result("spectral", "two")
	assert.Nil(t, two.Failure)
	assert.Equal(t, 2.0, two.Measurements["left"].(map[string]any)["value"])
}

func TestRunSkipsUnknownMethods(t *testing.T) {
	reg := testRegistry(t)
	plan := []CategoryPlan{{Category: "temporal", Methods: []Declaration{{Name: "nope"}, {}, {Name: "one"}}}}

	var skippedEvents atomic.Int32
	eng := New(reg, WithEventHandler(func(ev Event) {
		if ev.Kind == EventSkipped {
			skippedEvents.Add(1)
		}
	}))

	agg := results.NewAggregator(false)
	stats, err := eng.Run(context.Background(), testContext(t), plan, agg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Executed)
	require.Len(t, stats.Skipped, 2)
	assert.Equal(t, "nope", stats.Skipped[0].Method)
	assert.EqualValues(t, 2, skippedEvents.Load())

	rec, err := agg.Export()
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, rec.Keys("temporal"))
	assert.Len(t, rec.Metadata()["skipped"], 2)
}

func TestParamsOverrideDefaults(t *testing.T) {
	var seen atomic.Value
	reg := testRegistry(t, Entry{ID: "echo", Category: "meta", Func: func(_ *Context, p Params) (results.Output, error) {
		seen.Store(p)
		return results.Output{}, nil
	}, Defaults: Params{"a": 1, "b": "x"}})

	plan := []CategoryPlan{{Category: "meta", Methods: []Declaration{{Name: "echo", Params: Params{"b": "y", "c": true}}}}}
	agg := results.NewAggregator(false)
	_, err := New(reg).Run(context.Background(), testContext(t), plan, agg)
	require.NoError(t, err)

	assert.Equal(t, Params{"a": 1, "b": "y", "c": true}, seen.Load())
	rec, _ := agg.Export()
	res, _ := rec.Result("meta", "echo")
	assert.Equal(t, "y", res.Parameters["b"])
}

func TestConcurrentRunIsDeterministic(t *testing.T) {
	slow := func(d time.Duration, v float64) Method {
		return func(ctx *Context, p Params) (results.Output, error) {
			time.Sleep(d)
			return constant(v)(ctx, p)
		}
	}
	reg := testRegistry(t,
		Entry{ID: "slow", Category: "temporal", Func: slow(20*time.Millisecond, 3)},
		Entry{ID: "fast", Category: "temporal", Func: slow(0, 4)},
	)
	plan := []CategoryPlan{
		{Category: "temporal", Methods: []Declaration{{Name: "slow"}, {Name: "fast"}, {Name: "one"}}},
		{Category: "spectral", Methods: []Declaration{{Name: "two"}, {Name: "boom"}}},
	}

	export := func(workers int) string {
		agg := results.NewAggregator(false)
		_, err := New(reg, WithWorkers(workers)).Run(context.Background(), testContext(t), plan, agg)
		require.NoError(t, err)
		rec, err := agg.Export()
		require.NoError(t, err)
		raw, err := rec.MarshalJSON()
		require.NoError(t, err)
		return string(raw)
	}

	sequential := export(1)
	assert.Equal(t, sequential, export(8))
	assert.Equal(t, sequential, export(3))
}

func TestRunCancelled(t *testing.T) {
	reg := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := results.NewAggregator(false)
	stats, err := New(reg).Run(ctx, testContext(t), []CategoryPlan{{Category: "temporal", Methods: []Declaration{{Name: "one"}}}}, agg)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	rec, _ := agg.Export()
	res, _ := rec.Result("temporal", "one")
	require.NotNil(t, res.Failure)
	assert.Equal(t, results.KindCancelled, res.Failure.Kind)
}

func TestNewContextValidatesSegments(t *testing.T) {
	set := channels.NewSet(channels.New("mono", make([]float64, 10), 100))

	_, err := NewContext(set, []preprocess.Boundary{{Start: 0, End: 6}, {Start: 5, End: 10}}, nil)
	assert.Error(t, err)
	_, err = NewContext(set, []preprocess.Boundary{{Start: 0, End: 11}}, nil)
	assert.Error(t, err)

	actx, err := NewContext(set, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []preprocess.Boundary{{Start: 0, End: 10}}, actx.Segments())
	assert.InDelta(t, 0.1, actx.Duration(), 1e-12)

	mixed := channels.NewSet(channels.New("a", make([]float64, 10), 100), channels.New("b", make([]float64, 9), 100))
	_, err = NewContext(mixed, nil, nil)
	assert.Error(t, err)
}

func TestParamsReader(t *testing.T) {
	p := Params{"n": 4.0, "f": 2, "s": "hann", "b": true, "list": []any{1, 2.5}, "names": []any{"a", "b"}, "bad": 1.5}

	r := p.Reader()
	assert.Equal(t, 4, r.Int("n"))
	assert.Equal(t, 2.0, r.Float("f"))
	assert.Equal(t, "hann", r.String("s"))
	assert.True(t, r.Bool("b"))
	assert.Equal(t, []float64{1, 2.5}, r.Floats("list"))
	assert.Equal(t, []string{"a", "b"}, r.Strings("names"))
	require.NoError(t, r.Err())

	r = p.Reader()
	r.Int("bad")
	r.String("missing")
	assert.ErrorContains(t, r.Err(), `"bad"`)

	r = p.Reader()
	r.Float("missing")
	assert.ErrorContains(t, r.Err(), "not set")
}
