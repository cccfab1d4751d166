package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSaveAndList(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := Run{ID: "run-1", AudioFile: "a.wav", SampleRate: 48000, Duration: 1.5, Total: 10, Failed: 1, CreatedAt: base}
	newer := Run{ID: "run-2", AudioFile: "b.flac", Digest: "abc", SampleRate: 44100, Duration: 3, Total: 12, CreatedAt: base.Add(time.Hour)}
	require.NoError(t, a.Save(ctx, older, []byte(`{"metadata":{}}`)))
	require.NoError(t, a.Save(ctx, newer, []byte(`{"metadata":{"x":1}}`)))

	runs, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0])
	assert.Equal(t, older, runs[1])

	runs, err = a.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestSaveReplaces(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	run := Run{ID: "same", AudioFile: "a.wav", SampleRate: 8000, CreatedAt: time.Now()}

	require.NoError(t, a.Save(ctx, run, []byte("first")))
	run.Failed = 2
	require.NoError(t, a.Save(ctx, run, []byte("second")))

	runs, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Failed)

	rec, err := a.Record(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "second", string(rec))
}

func TestRecordNotFound(t *testing.T) {
	a := openTemp(t)
	_, err := a.Record(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, a.Save(context.Background(), Run{}, nil))
}
