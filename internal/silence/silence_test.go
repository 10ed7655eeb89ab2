package silence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retime/retime/internal/pcm"
)

// cfg10 gives h=1 (blend 0.02s @ 100Hz) and a 5-frame threshold.
func cfg10() Config {
	return Config{ThresholdLevelDB: -40, ThresholdDurationS: 0.05, BlendDurationS: 0.02}
}

func makeTrack(loudRuns []bool, loud int32) *pcm.Source {
	samples := make([]int32, len(loudRuns))
	for i, isLoud := range loudRuns {
		if isLoud {
			samples[i] = loud
		}
	}
	return &pcm.Source{Samples: samples, SampleRate: 100, Channels: 1, SampleWidth: 2}
}

func TestDetectFindsInteriorSilence(t *testing.T) {
	// 5 loud, 10 silent, 5 loud.
	flags := make([]bool, 20)
	for i := 0; i < 5; i++ {
		flags[i] = true
	}
	for i := 15; i < 20; i++ {
		flags[i] = true
	}
	track := makeTrack(flags, 30000)

	result, err := Detect(track, cfg10())
	require.NoError(t, err)
	require.Len(t, result.Regions, 1)

	r := result.Regions[0]
	assert.Equal(t, 7, r.StartFrame)
	assert.Equal(t, 13, r.EndFrame)
	assert.InDelta(t, 0.07, r.StartS, 1e-9)
	assert.InDelta(t, 0.13, r.EndS, 1e-9)
	assert.False(t, result.IncludingEnd)
}

func TestDetectAllSilenceIncludesEnd(t *testing.T) {
	track := makeTrack(make([]bool, 20), 30000)

	result, err := Detect(track, cfg10())
	require.NoError(t, err)
	require.Len(t, result.Regions, 1)
	assert.Equal(t, 0, result.Regions[0].StartFrame)
	assert.Equal(t, 20, result.Regions[0].EndFrame)
	assert.True(t, result.IncludingEnd)
}

func TestDetectNoSilence(t *testing.T) {
	flags := make([]bool, 20)
	for i := range flags {
		flags[i] = true
	}
	track := makeTrack(flags, 30000)

	result, err := Detect(track, cfg10())
	require.NoError(t, err)
	assert.Empty(t, result.Regions)
	assert.True(t, result.IncludingEnd)
}

func TestDetectRejectsTooShortAudio(t *testing.T) {
	track := makeTrack([]bool{true}, 30000)
	_, err := Detect(track, cfg10())
	assert.ErrorIs(t, err, pcm.ErrInvalidAudio)
}

func TestDetectParallelMatchesSerial(t *testing.T) {
	flags := make([]bool, 400)
	for i := 0; i < 50; i++ {
		flags[i] = true
	}
	for i := 350; i < 400; i++ {
		flags[i] = true
	}
	track := makeTrack(flags, 30000)

	serial, err := Detect(track, cfg10())
	require.NoError(t, err)
	parallel, err := DetectParallel(track, cfg10(), 4)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

// TestDetectIsDeterministic is spec §8 invariant 8: running the detector
// twice on the same input yields identical regions.
func TestDetectIsDeterministic(t *testing.T) {
	flags := make([]bool, 60)
	for i := 0; i < 10; i++ {
		flags[i] = true
	}
	for i := 50; i < 60; i++ {
		flags[i] = true
	}
	track := makeTrack(flags, 30000)

	first, err := Detect(track, cfg10())
	require.NoError(t, err)
	second, err := Detect(track, cfg10())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestTransientSplitsSilenceRegion is spec §8 invariant 2: a loud transient
// inside an otherwise-silent span splits the region.
func TestTransientSplitsSilenceRegion(t *testing.T) {
	flags := make([]bool, 30)
	for i := 0; i < 30; i++ {
		flags[i] = false // silent by default (makeTrack uses loud flags)
	}
	track := makeTrack(flags, 30000) // all zero: one big silence

	whole, err := Detect(track, cfg10())
	require.NoError(t, err)
	require.Len(t, whole.Regions, 1)

	// Now insert a loud transient in the middle.
	withTransient := make([]bool, 30)
	withTransient[14] = true
	withTransient[15] = true
	track2 := makeTrack(withTransient, 30000)

	split, err := Detect(track2, cfg10())
	require.NoError(t, err)
	assert.Greater(t, len(split.Regions), 0)
	// The single region must no longer span the whole track the same way.
	assert.NotEqual(t, whole.Regions, split.Regions)
}

func TestCollectSilentSamplesConcatenatesRegions(t *testing.T) {
	track := &pcm.Source{
		Samples:    []int32{0, 1, 2, 3, 4, 5, 6, 7},
		Channels:   2,
		SampleRate: 100,
	}
	regions := []Region{
		{StartFrame: 0, EndFrame: 1},
		{StartFrame: 3, EndFrame: 4},
	}
	got := CollectSilentSamples(track, regions)
	assert.Equal(t, []int32{0, 1, 6, 7}, got)
}
