package results

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func okResult(cat, method string, v float64) AnalysisResult {
	return Succeeded(cat, method, map[string]any{"p": 1}, Output{
		Measurements: map[string]any{"mono": map[string]any{"value": v}},
	})
}

func TestExportFollowsDeclarationOrder(t *testing.T) {
	type decl struct{ cat, method string }
	plan := []decl{
		{"temporal", "envelope"}, {"spectral", "fft_global"}, {"temporal", "autocorrelation"},
		{"spectral", "spectral_centroid"}, {"information", "shannon_entropy"},
	}

	export := func(seed int64) []byte {
		agg := NewAggregator(false)
		require.NoError(t, agg.SetMetadata(map[string]any{"audio_file": "x.wav"}))
		pos := make([]int, len(plan))
		for i, d := range plan {
			pos[i] = agg.Declare(d.cat, d.method)
		}

		order := rand.New(rand.NewSource(seed)).Perm(len(plan))
		var wg sync.WaitGroup
		for _, i := range order {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, agg.Set(pos[i], okResult(plan[i].cat, plan[i].method, float64(i))))
			}(i)
		}
		wg.Wait()

		rec, err := agg.Export()
		require.NoError(t, err)
		raw, err := rec.MarshalJSON()
		require.NoError(t, err)
		return raw
	}

	first := export(1)
	for seed := int64(2); seed < 10; seed++ {
		assert.Equal(t, string(first), string(export(seed)), "seed %d", seed)
	}

	dec := json.NewDecoder(bytes.NewReader(first))
	var keys []string
	tok, err := dec.Token()
	require.NoError(t, err)
	require.Equal(t, json.Delim('{'), tok)
	for dec.More() {
		k, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, k.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	assert.Equal(t, []string{"metadata", "preprocessing", "temporal", "spectral", "information"}, keys)
}

func TestFailuresAreRecordedNotOmitted(t *testing.T) {
	agg := NewAggregator(false)
	require.NoError(t, agg.Add("spectral", okResult("spectral", "fft_global", 1)))
	require.NoError(t, agg.Add("spectral", FailedWith("spectral", "peak_detection", nil,
		Failure{Kind: KindMethodExecution, Message: "boom"})))
	agg.Declare("spectral", "never_reported")

	rec, err := agg.Export()
	require.NoError(t, err)

	res, ok := rec.Result("spectral", "peak_detection")
	require.True(t, ok)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindMethodExecution, res.Failure.Kind)
	assert.Equal(t, "boom", res.Failure.Message)
	assert.Empty(t, res.Measurements)
	assert.NotNil(t, res.Measurements)

	res, ok = rec.Result("spectral", "never_reported")
	require.True(t, ok)
	assert.Equal(t, KindNotExecuted, res.Failure.Kind)

	sum := rec.Summary()
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
}

func TestDuplicateMethodKeys(t *testing.T) {
	agg := NewAggregator(false)
	require.NoError(t, agg.Add("spectral", okResult("spectral", "peak_detection", 1)))
	require.NoError(t, agg.Add("spectral", okResult("spectral", "peak_detection", 2)))
	require.NoError(t, agg.Add("spectral", okResult("spectral", "peak_detection", 3)))

	rec, err := agg.Export()
	require.NoError(t, err)
	assert.Equal(t, []string{"peak_detection", "peak_detection#2", "peak_detection#3"}, rec.Keys("spectral"))

	res, ok := rec.Result("spectral", "peak_detection#3")
	require.True(t, ok)
	assert.Equal(t, "peak_detection", res.Method)
	assert.InDelta(t, 3.0, res.Measurements["mono"].(map[string]any)["value"], 0)
}

func TestNonFiniteValuesBecomeNull(t *testing.T) {
	agg := NewAggregator(true)
	require.NoError(t, agg.Add("temporal", Succeeded("temporal", "level_statistics", nil, Output{
		Measurements:  map[string]any{"mono": map[string]any{"crest_db": math.Inf(1), "series": []float64{1, math.NaN()}}},
		Metrics:       map[string]any{"ratio": math.NaN()},
		Visualization: map[string]any{"curve": [][]float64{{math.Inf(-1)}}},
	})))

	rec, err := agg.Export()
	require.NoError(t, err)
	raw, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	mono := doc["temporal"].(map[string]any)["level_statistics"].(map[string]any)["measurements"].(map[string]any)["mono"].(map[string]any)
	assert.Nil(t, mono["crest_db"])
	assert.Equal(t, []any{1.0, nil}, mono["series"])
}

func TestVisualizationDroppedUnlessRequested(t *testing.T) {
	build := func(include bool) AnalysisResult {
		agg := NewAggregator(include)
		require.NoError(t, agg.Add("time_frequency", Succeeded("time_frequency", "stft", nil, Output{
			Visualization: map[string]any{"times": []float64{0, 1}},
		})))
		rec, err := agg.Export()
		require.NoError(t, err)
		res, _ := rec.Result("time_frequency", "stft")
		return res
	}
	assert.Nil(t, build(false).Visualization)
	assert.NotNil(t, build(true).Visualization)
}

func TestExportFreezes(t *testing.T) {
	agg := NewAggregator(false)
	pos := agg.Declare("temporal", "envelope")
	require.NoError(t, agg.Skip(Skipped{Category: "temporal", Method: "nope", Reason: "unknown method"}))

	a, err := agg.Export()
	require.NoError(t, err)
	assert.ErrorIs(t, agg.Set(pos, okResult("temporal", "envelope", 1)), ErrFrozen)

	b, err := agg.Export()
	require.NoError(t, err)
	ra, _ := a.MarshalJSON()
	rb, _ := b.MarshalJSON()
	assert.Equal(t, ra, rb)

	skipped := a.Metadata()["skipped"].([]any)
	require.Len(t, skipped, 1)
	assert.Equal(t, "nope", skipped[0].(map[string]any)["method"])
}

func TestExportUnchangedByLateWrites(t *testing.T) {
	agg := NewAggregator(false)
	require.NoError(t, agg.Add("temporal", okResult("temporal", "envelope", 1)))

	first, err := agg.Export()
	require.NoError(t, err)

	assert.ErrorIs(t, agg.Add("temporal", okResult("temporal", "late", 2)), ErrFrozen)
	assert.Equal(t, -1, agg.Declare("spectral", "fft_global"))
	assert.ErrorIs(t, agg.SetMetadata(map[string]any{"run_id": "changed"}), ErrFrozen)
	assert.ErrorIs(t, agg.SetPreprocessing(map[string]any{"normalize": true}), ErrFrozen)
	assert.ErrorIs(t, agg.Skip(Skipped{Category: "temporal", Method: "x", Reason: "unknown method"}), ErrFrozen)

	second, err := agg.Export()
	require.NoError(t, err)
	a, err := first.MarshalJSON()
	require.NoError(t, err)
	b, err := second.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, []string{"envelope"}, second.Keys("temporal"))
	assert.Empty(t, second.Keys("spectral"))
}

func TestReservedCategoryName(t *testing.T) {
	agg := NewAggregator(false)
	require.NoError(t, agg.Add("metadata", okResult("metadata", "x", 1)))
	rec, err := agg.Export()
	require.NoError(t, err)
	_, err = rec.MarshalJSON()
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	agg := NewAggregator(false)
	require.NoError(t, agg.Add("temporal", okResult("temporal", "envelope", 0.25)))
	rec, err := agg.Export()
	require.NoError(t, err)
	raw, err := rec.MarshalJSON()
	require.NoError(t, err)

	got, err := Query(raw, "$.temporal.envelope.measurements.mono.value")
	require.NoError(t, err)
	assert.Equal(t, []any{0.25}, got)

	_, err = Query(raw, "")
	assert.Error(t, err)
	_, err = Query([]byte("{"), "$.a")
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	agg := NewAggregator(false)
	require.NoError(t, agg.SetMetadata(map[string]any{"sample_rate": 44100}))
	require.NoError(t, agg.Add("temporal", okResult("temporal", "envelope", 0.5)))
	require.NoError(t, agg.Add("temporal", FailedWith("temporal", "pulse_detection", nil, Failure{Kind: KindResourceLimit, Message: "too long"})))
	rec, err := agg.Export()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rec.WriteXLSX(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Metadata", "temporal"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"temporal", "pulse_detection", "failed", KindResourceLimit, "too long"}, rows[2])

	rows, err = f.GetRows("temporal")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"envelope", "mono", "value", "0.5"}, rows[1])
}
