package methods

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
)

// Compression algorithms accepted by compression_ratio.
const (
	CompressGzip = "gzip"
	CompressZlib = "zlib"
	CompressZstd = "zstd"
	CompressXZ   = "xz"
)

func informationMethods() []engine.Entry {
	return []engine.Entry{
		{
			ID:          "shannon_entropy",
			Category:    Information,
			Description: "Amplitude histogram entropy",
			Func:        shannonEntropy,
			Defaults:    withCap(engine.Params{"bins": 256}),
		},
		{
			ID:          "local_entropy",
			Category:    Information,
			Description: "Amplitude entropy over sliding windows",
			Func:        localEntropy,
			Defaults:    withCap(engine.Params{"window_size": 2048, "hop_length": 512, "bins": 64}),
		},
		{
			ID:          "compression_ratio",
			Category:    Information,
			Description: "Lossless compressibility of the 16-bit PCM rendering",
			Func:        compressionRatio,
			Defaults:    withCap(engine.Params{"algorithm": CompressGzip}),
		},
	}
}

func shannonEntropy(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	bins := r.Int("bins")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if bins < 2 {
		return results.Output{}, fmt.Errorf("bins must be at least 2, got %d", bins)
	}

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		counts, centres := dsp.Histogram(x, bins)
		h := dsp.EntropyBits(counts)
		return map[string]any{
				"entropy_bits":       h,
				"max_entropy_bits":   math.Log2(float64(bins)),
				"normalized_entropy": h / math.Log2(float64(bins)),
			}, map[string]any{
				"histogram":   counts,
				"bin_centers": centres,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"bins": bins},
		Visualization: viz,
	}, nil
}

func localEntropy(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	window := r.Int("window_size")
	hop := r.Int("hop_length")
	bins := r.Int("bins")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if window <= 0 || hop <= 0 || bins < 2 {
		return results.Output{}, fmt.Errorf("invalid local entropy parameters (window_size %d, hop_length %d, bins %d)",
			window, hop, bins)
	}

	sr := float64(ctx.SampleRate())
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		n := dsp.FrameCount(len(x), window, hop)
		if n == 0 {
			return nil, nil, fmt.Errorf("signal has %d samples, need at least %d", len(x), window)
		}
		track := make([]float64, n)
		times := make([]float64, n)
		for i := range track {
			start := i * hop
			counts, _ := dsp.Histogram(x[start:start+window], bins)
			track[i] = dsp.EntropyBits(counts)
			times[i] = (float64(start) + float64(window)/2) / sr
		}
		mean, std := dsp.MeanStd(track)
		lo, hi := dsp.MinMax(track)
		return map[string]any{
				"mean_entropy": mean,
				"std_entropy":  std,
				"min_entropy":  lo,
				"max_entropy":  hi,
				"num_windows":  n,
			}, map[string]any{
				"times":   times,
				"entropy": track,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"window_size": window, "hop_length": hop, "bins": bins},
		Visualization: viz,
	}, nil
}

// quantize renders x as signed integers of the given bit depth, truncating toward
// zero after clipping to full scale.
func quantize(x []float64, bits int) []int32 {
	full := float64(int64(1)<<(bits-1) - 1)
	out := make([]int32, len(x))
	for i, v := range x {
		v = math.Max(-1, math.Min(1, v))
		out[i] = int32(v * full)
	}
	return out
}

// pcm16 encodes x as little-endian 16-bit PCM.
func pcm16(x []float64) []byte {
	q := quantize(x, 16)
	buf := make([]byte, 2*len(q))
	for i, v := range q {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(v)))
	}
	return buf
}

// compress returns data compressed with the named algorithm at its strongest level.
func compress(algorithm string, data []byte) ([]byte, error) {
	if algorithm == CompressZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch algorithm {
	case CompressGzip:
		w, err = gzip.NewWriterLevel(&buf, gzip.BestCompression)
	case CompressZlib:
		w, err = zlib.NewWriterLevel(&buf, zlib.BestCompression)
	case CompressXZ:
		w, err = xz.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algorithm)
	}
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressionRatio(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	algorithm := r.String("algorithm")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		raw := pcm16(x)
		packed, err := compress(algorithm, raw)
		if err != nil {
			return nil, nil, err
		}
		return map[string]any{
			"raw_bytes":         len(raw),
			"compressed_bytes":  len(packed),
			"compression_ratio": ratio(float64(len(raw)), float64(len(packed))),
			"bits_per_sample":   8 * float64(len(packed)) / float64(len(x)),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics:      map[string]any{"algorithm": algorithm},
	}, nil
}
