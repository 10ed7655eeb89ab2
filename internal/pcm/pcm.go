// Package pcm provides a frame-indexed, seekable in-memory PCM audio
// source, the decoded counterpart of the WAV files the retiming engine
// reads and writes.
package pcm

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// ErrInvalidAudio is the InvalidAudio error kind from spec §7: audio too
// short, unsupported sample width, or corrupt.
var ErrInvalidAudio = errors.New("invalid audio")

// Source is a fully decoded PCM audio track. Samples are interleaved
// per frame (channels signed integers per frame) and addressable by
// frame index, matching spec §3's "Addressable by frame index in
// [0, N_a)" and §4.5's "random-access the PCM stream" requirement.
// Meeting recordings are bounded, so the whole track lives in memory —
// the same tradeoff the teacher's AudioData makes.
type Source struct {
	Samples      []int32 // interleaved, frame i channel c at Samples[i*Channels+c]
	SampleRate   int     // F_a, Hz
	Channels     int
	SampleWidth  int // bytes per sample, 1..4
	sourceFormat int // go-audio bit depth, for round-tripping encoder params
}

// MaxValue returns max_value, the half-range of the signed integer
// representable in SampleWidth bytes (2^(8*sample_width-1)).
func (s *Source) MaxValue() int64 {
	return int64(1) << uint(8*s.SampleWidth-1)
}

// NumFrames returns N_a.
func (s *Source) NumFrames() int {
	if s.Channels == 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Duration returns N_a / F_a in seconds.
func (s *Source) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.NumFrames()) / float64(s.SampleRate)
}

// Frame returns the Channels samples that make up frame i.
func (s *Source) Frame(i int) []int32 {
	return s.Samples[i*s.Channels : (i+1)*s.Channels]
}

// Load decodes a WAV file into a Source, matching the teacher's LoadWAV
// but exposing a seekable, frame-indexed buffer instead of a one-shot
// AudioData.
func Load(filename string) (*Source, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", filename)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, errors.Wrapf(ErrInvalidAudio, "%s is not a valid WAV file", filename)
	}

	format := decoder.Format()
	if format == nil {
		return nil, errors.Wrapf(ErrInvalidAudio, "failed to read format from %s", filename)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrapf(err, "decode PCM data from %s", filename)
	}
	if buf == nil || buf.Data == nil {
		return nil, errors.Wrapf(ErrInvalidAudio, "no PCM data in %s", filename)
	}

	sampleWidth := 2
	if buf.SourceBitDepth > 0 {
		sampleWidth = (buf.SourceBitDepth + 7) / 8
	}

	samples := make([]int32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int32(v)
	}

	src := &Source{
		Samples:      samples,
		SampleRate:   int(format.SampleRate),
		Channels:     int(format.NumChannels),
		SampleWidth:  sampleWidth,
		sourceFormat: buf.SourceBitDepth,
	}
	if src.NumFrames() == 0 {
		return nil, errors.Wrapf(ErrInvalidAudio, "%s has no audio frames", filename)
	}
	return src, nil
}

// Save encodes a sequence of frames (any in-memory buffer built by the
// resampler) back to a WAV file with the same format as the Source it
// was derived from.
func (s *Source) Save(filename string, samples []int32) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	defer file.Close()

	bitDepth := s.sourceFormat
	if bitDepth == 0 {
		bitDepth = s.SampleWidth * 8
	}
	encoder := wav.NewEncoder(file, s.SampleRate, bitDepth, s.Channels, 1)

	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: s.Channels,
			SampleRate:  s.SampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, v := range samples {
		intBuf.Data[i] = int(v)
	}

	if err := encoder.Write(intBuf); err != nil {
		return errors.Wrapf(err, "write audio data to %s", filename)
	}
	if err := encoder.Close(); err != nil {
		return errors.Wrapf(err, "close encoder for %s", filename)
	}
	return nil
}

// DebugSummary reports frame counts and level statistics, the adapted
// equivalent of the teacher's AnalyzeContent/PrintInfo debug helpers.
func (s *Source) DebugSummary() string {
	if len(s.Samples) == 0 {
		return "no audio samples"
	}

	var minSample, maxSample int32 = s.Samples[0], s.Samples[0]
	var sumSquares float64
	maxValue := float64(s.MaxValue())
	for _, v := range s.Samples {
		if v < minSample {
			minSample = v
		}
		if v > maxSample {
			maxSample = v
		}
		normalized := float64(v) / maxValue
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(len(s.Samples)))
	rmsDB := math.Inf(-1)
	if rms > 0 {
		rmsDB = 20 * math.Log10(rms)
	}

	return fmt.Sprintf(
		"frames=%d rate=%dHz channels=%d width=%dB min=%d max=%d rms=%.1fdBFS duration=%.2fs",
		s.NumFrames(), s.SampleRate, s.Channels, s.SampleWidth, minSample, maxSample, rmsDB, s.Duration(),
	)
}
