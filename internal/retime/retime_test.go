package retime

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retime/retime/internal/config"
	"github.com/retime/retime/internal/pcm"
	"github.com/retime/retime/internal/timeline"
	"github.com/retime/retime/internal/videoframe"
)

func silentSource(sampleRate, durationS int) *pcm.Source {
	n := sampleRate * durationS
	return &pcm.Source{Samples: make([]int32, n), SampleRate: sampleRate, Channels: 1, SampleWidth: 2}
}

func videoBuffer(width, height, numFrames int) *bytes.Buffer {
	var buf bytes.Buffer
	frameSize := videoframe.FrameSize(width, height)
	for i := 0; i < numFrames; i++ {
		buf.Write(bytes.Repeat([]byte{byte(i)}, frameSize))
	}
	return &buf
}

// TestRunAllSilence is spec §8 scenario S1: 10s of zeros compresses to
// new_dur = T(10) = 1.0s with defaults, and emitted audio is within
// spec §8 invariant 4's ±1 frame tolerance of round(new_dur * F_a).
func TestRunAllSilence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "in.mp4"

	source := silentSource(16000, 10)
	width, height := 2, 1
	const fv = 30.0
	numFrames := int(fv * 10)

	videoIn := videoBuffer(width, height, numFrames)
	var videoOut bytes.Buffer

	report, samples, err := Run(context.Background(), cfg, source, VideoInfo{
		Width: width, Height: height, FrameRate: fv, NumFrames: numFrames,
	}, videoIn, &videoOut)
	require.NoError(t, err)

	require.Len(t, report.SilenceRegions, 1)
	assert.InDelta(t, 0.0, report.SilenceRegions[0].StartS, 1e-9)
	assert.InDelta(t, 10.0, report.SilenceRegions[0].EndS, 1e-9)
	assert.True(t, report.IncludingEnd)

	require.Len(t, report.Segments, 1)
	assert.InDelta(t, 1.0, report.Segments[0].NewDur, 1e-9)

	expectedAudio := int(math.Round(report.TotalNewDuration * 16000))
	assert.LessOrEqual(t, abs(report.EmittedAudio-expectedAudio), 1)
	assert.Len(t, samples, report.EmittedAudio*source.Channels)

	expectedVideo := int(math.Round(1.0*fv + 0.5/fv))
	assert.Equal(t, expectedVideo, report.EmittedVideo)
	assert.Equal(t, expectedVideo*videoframe.FrameSize(width, height), videoOut.Len())
}

// TestRunNoSilenceSkipsProcessing is spec §8 scenario S2: with no
// silences detected, the core reports zero regions and performs no
// audio/video work.
func TestRunNoSilenceSkipsProcessing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "in.mp4"

	source := &pcm.Source{Samples: make([]int32, 16000*5), SampleRate: 16000, Channels: 1, SampleWidth: 2}
	for i := range source.Samples {
		source.Samples[i] = 5000 // loud throughout
	}

	var videoOut bytes.Buffer
	report, samples, err := Run(context.Background(), cfg, source, VideoInfo{
		Width: 2, Height: 1, FrameRate: 30, NumFrames: 150,
	}, bytes.NewReader(nil), &videoOut)
	require.NoError(t, err)

	assert.Empty(t, report.SilenceRegions)
	assert.Empty(t, samples)
	assert.Zero(t, videoOut.Len())
}

// TestRunRewritesDescriptionTimeCodes is spec §8 scenario S5.
func TestRunRewritesDescriptionTimeCodes(t *testing.T) {
	dir := t.TempDir()
	descPath := filepath.Join(dir, "description.txt")
	require.NoError(t, os.WriteFile(descPath, []byte("agenda: 0:00:30, 0:01:00"), 0o644))

	cfg := config.DefaultConfig()
	cfg.InputFile = "in.mp4"
	cfg.RecalculateTimeInDescription = descPath
	cfg.Linear = 0 // isolate the transform so new_dur(30s silence) == target 3s is explicit below
	cfg.Constant = 3
	cfg.ThresholdDuration = 1
	cfg.BlendDuration = 0.01

	// Build a 70s track: 10s loud, 30s silence, 30s loud, so a 0:01:00
	// token lands inside the final non-silent span.
	sampleRate := 1000
	source := &pcm.Source{SampleRate: sampleRate, Channels: 1, SampleWidth: 2}
	loud := func(n int) {
		for i := 0; i < n; i++ {
			source.Samples = append(source.Samples, 20000)
		}
	}
	silent := func(n int) {
		for i := 0; i < n; i++ {
			source.Samples = append(source.Samples, 0)
		}
	}
	loud(10 * sampleRate)
	silent(30 * sampleRate)
	loud(30 * sampleRate)

	var videoOut bytes.Buffer
	const fv = 30.0
	numFrames := int(fv * 70)
	_, _, err := Run(context.Background(), cfg, source, VideoInfo{
		Width: 2, Height: 1, FrameRate: fv, NumFrames: numFrames,
	}, videoBuffer(2, 1, numFrames), &videoOut)
	require.NoError(t, err)

	rewritten, err := os.ReadFile(filepath.Join(dir, "description_result.txt"))
	require.NoError(t, err)
	// 0:00:30 is 20s into the 30s silence -> 2/3 of the way through the
	// new 3s span, offset by the 10s of leading non-silent time: 10+2=12.
	assert.Contains(t, string(rewritten), "0:00:12")
	// 0:01:00 is past the end of the silence, in the trailing non-silent
	// span, so it shifts by the same amount the silence shrank: 60 - 27 = 33.
	assert.Contains(t, string(rewritten), "0:00:33")
}

// TestRunRejectsTransformThatExceedsDuration is spec §7's ConfigInvalid:
// coefficients whose raw (unclamped) output exceeds the realized silence's
// duration must fail the run rather than silently clamp.
func TestRunRejectsTransformThatExceedsDuration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InputFile = "in.mp4"
	cfg.Constant = 0
	cfg.Sublinear = 0
	cfg.Linear = 2 // raw(10s silence) = 20s > 10s

	source := silentSource(16000, 10)
	numFrames := int(30.0 * 10)

	_, _, err := Run(context.Background(), cfg, source, VideoInfo{
		Width: 2, Height: 1, FrameRate: 30, NumFrames: numFrames,
	}, videoBuffer(2, 1, numFrames), &bytes.Buffer{})
	assert.ErrorIs(t, err, config.ErrConfigInvalid)
}

// TestRunParallelOverlapsSelectionAndSplice exercises RunParallel directly:
// the video selector and the audio splicer must both run to completion,
// forwarding exactly the kept frames and returning ka frames of audio.
func TestRunParallelOverlapsSelectionAndSplice(t *testing.T) {
	width, height := 2, 1
	numFrames := 10
	videoIn := videoBuffer(width, height, numFrames)
	var videoOut bytes.Buffer
	selector := videoframe.NewSelector(videoIn, &videoOut, width, height)

	source := silentSource(100, 1)
	for i := range source.Samples {
		source.Samples[i] = int32(i)
	}

	keep := []int{0, 2, 4, 6, 8}
	samples, err := RunParallel(context.Background(), timeline.Segment{}, selector, 0, numFrames, keep, source, 0, 100, 60)
	require.NoError(t, err)

	assert.Equal(t, len(keep)*videoframe.FrameSize(width, height), videoOut.Len())
	assert.Len(t, samples, 60*source.Channels)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
