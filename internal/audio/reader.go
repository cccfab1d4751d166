// Package audio loads audio files into multi-track float sample buffers
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// Buffer is a decoded multi-track sample buffer.
// Tracks[i] holds the samples of source track i scaled to [-1, 1).
type Buffer struct {
	Tracks     [][]float64
	SampleRate int
}

// Metadata contains audio file metadata
type Metadata struct {
	Duration   float64 `json:"duration"` // seconds
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bit_depth"`
	Format     string  `json:"format"`
	Frames     int     `json:"frames"` // samples per track
}

// ErrUnsupportedFormat is returned for containers or encodings the loader cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// NewBuffer validates that every track has the same length and returns a Buffer.
func NewBuffer(tracks [][]float64, sampleRate int) (*Buffer, error) {
	if len(tracks) == 0 {
		return nil, errors.New("audio buffer has no tracks")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	n := len(tracks[0])
	for i, tr := range tracks {
		if len(tr) != n {
			return nil, fmt.Errorf("track %d has %d samples, track 0 has %d", i, len(tr), n)
		}
	}
	return &Buffer{Tracks: tracks, SampleRate: sampleRate}, nil
}

// Len returns the number of samples per track.
func (b *Buffer) Len() int {
	if len(b.Tracks) == 0 {
		return 0
	}
	return len(b.Tracks[0])
}

// Load decodes a WAV or FLAC file into a Buffer
func Load(filename string) (*Buffer, *Metadata, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".wav", ".wave":
		return loadWAV(filename)
	case ".flac":
		return loadFLAC(filename)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func loadWAV(filename string) (*Buffer, *Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("%w: not a valid WAV file: %s", ErrUnsupportedFormat, filename)
	}
	// Only integer PCM is decoded; IEEE float WAV uses format tag 3.
	if dec.WavAudioFormat != 1 {
		return nil, nil, fmt.Errorf("%w: WAV format tag %d in %s", ErrUnsupportedFormat, dec.WavAudioFormat, filename)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode WAV data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	tracks := deinterleave(pcm, bitDepth)
	buf, err := NewBuffer(tracks, pcm.Format.SampleRate)
	if err != nil {
		return nil, nil, err
	}

	return buf, newMetadata(buf, bitDepth, "wav"), nil
}

// deinterleave splits an interleaved integer buffer into per-track float slices.
func deinterleave(pcm *goaudio.IntBuffer, bitDepth int) [][]float64 {
	numCh := pcm.Format.NumChannels
	if numCh <= 0 {
		numCh = 1
	}
	frames := len(pcm.Data) / numCh
	scale := fullScale(bitDepth)

	tracks := make([][]float64, numCh)
	for ch := range tracks {
		tracks[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numCh; ch++ {
			tracks[ch][i] = float64(pcm.Data[i*numCh+ch]) / scale
		}
	}
	return tracks
}

func loadFLAC(filename string) (*Buffer, *Metadata, error) {
	stream, err := flac.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open FLAC stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	numCh := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)
	scale := fullScale(bitDepth)

	tracks := make([][]float64, numCh)
	for ch := range tracks {
		tracks[ch] = make([]float64, 0, info.NSamples)
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode FLAC frame: %w", err)
		}
		for ch, sub := range frame.Subframes {
			if ch >= numCh {
				break
			}
			for _, s := range sub.Samples {
				tracks[ch] = append(tracks[ch], float64(s)/scale)
			}
		}
	}

	buf, err := NewBuffer(tracks, int(info.SampleRate))
	if err != nil {
		return nil, nil, err
	}
	return buf, newMetadata(buf, bitDepth, "flac"), nil
}

func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float64(int64(1) << (bitDepth - 1))
}

func newMetadata(buf *Buffer, bitDepth int, format string) *Metadata {
	return &Metadata{
		Duration:   float64(buf.Len()) / float64(buf.SampleRate),
		SampleRate: buf.SampleRate,
		Channels:   len(buf.Tracks),
		BitDepth:   bitDepth,
		Format:     format,
		Frames:     buf.Len(),
	}
}
