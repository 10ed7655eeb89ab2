// Package silence implements C1, the streaming sliding-window silence
// detector: it scans a decoded PCM track and reports the ordered,
// disjoint regions whose windowed RMS energy falls below a threshold
// for at least a minimum duration.
package silence

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/retime/retime/internal/pcm"
)

// Config holds the detector parameters from spec §3's Detector Config.
type Config struct {
	ThresholdLevelDB   float64 // silence threshold, dB
	ThresholdDurationS float64 // minimum region length, seconds
	BlendDurationS     float64 // centered energy window width, seconds (default 0.005)
}

// Default matches spec §6's documented defaults.
func Default() Config {
	return Config{ThresholdLevelDB: -40, ThresholdDurationS: 0.2, BlendDurationS: 0.005}
}

// Region is a detected silence region, spec §3.
type Region struct {
	StartS, EndS         float64
	StartFrame, EndFrame int // the same bounds in input audio frames, for save_silence
}

// Duration returns end_s - start_s.
func (r Region) Duration() float64 { return r.EndS - r.StartS }

// Result is the outcome of a detection pass, spec §4.1.
type Result struct {
	Regions      []Region
	IncludingEnd bool
}

// Detect runs the sliding-window detector over the whole track.
//
// Fails with InvalidAudio if N_a <= 2*half_blend_frames, per spec §4.1.
func Detect(src *pcm.Source, cfg Config) (Result, error) {
	return detect(src, cfg, 1)
}

// DetectParallel is the same detector, but splits the scan into
// `workers` disjoint windows with overlap >= B (spec §5a). Results are
// byte-for-byte identical to Detect; parallelism only changes how the
// per-frame silence flags are computed, not the region-extraction logic
// that follows.
func DetectParallel(src *pcm.Source, cfg Config, workers int) (Result, error) {
	return detect(src, cfg, workers)
}

func detect(src *pcm.Source, cfg Config, workers int) (Result, error) {
	n := src.NumFrames()
	fa := src.SampleRate

	h := int(math.Round(cfg.BlendDurationS * float64(fa) / 2))
	b := 2 * h
	if n <= b {
		return Result{}, errors.Wrapf(pcm.ErrInvalidAudio,
			"audio has %d frames, need more than %d for a %.4fs blend window", n, b, cfg.BlendDurationS)
	}

	var flags []bool
	if workers > 1 {
		flags = silentFlagsParallel(src, cfg, h, workers)
	} else {
		flags = silentFlagsRange(src, cfg, h, 0, n)
	}

	thresholdFrames := int(math.Round(cfg.ThresholdDurationS * float64(fa)))
	frameRegions, includingEnd := regionsFromFlags(flags, h, b, thresholdFrames, n)

	regions := make([]Region, len(frameRegions))
	for i, r := range frameRegions {
		regions[i] = Region{
			StartS:     float64(r[0]) / float64(fa),
			EndS:       float64(r[1]) / float64(fa),
			StartFrame: r[0],
			EndFrame:   r[1],
		}
	}
	return Result{Regions: regions, IncludingEnd: includingEnd}, nil
}

// silentFlagsRange computes, for every frame i in [lo, hi), whether the
// centered window [max(0,i-H), min(N,i+H+1)) has mean square energy
// below max_value^2 * 10^(dB/10).
//
// Spec §4.1 gives this as three cases (warm-up/steady/cool-down with
// different divisors); those all collapse to the single rule above —
// the window is simply clamped to the file boundary and the divisor is
// channels times the clamped window's length — so one sliding-window
// loop covers all three. The window contents are cached in a FIFO so
// each frame's squared energy is computed once, added on entry and
// subtracted on eviction, never re-summed.
func silentFlagsRange(src *pcm.Source, cfg Config, h, lo, hi int) []bool {
	n := src.NumFrames()
	channels := src.Channels
	maxValue := float64(src.MaxValue())
	thresholdMean := maxValue * maxValue * math.Pow(10, cfg.ThresholdLevelDB/10)

	flags := make([]bool, hi-lo)
	queue := make([]float64, 0, 2*h+2)
	var blend float64

	windowStart := lo - h
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := windowStart

	growTo := func(want int) {
		for windowEnd < want {
			s := squareSum(src, windowEnd)
			queue = append(queue, s)
			blend += s
			windowEnd++
		}
	}
	shrinkTo := func(want int) {
		for windowStart < want {
			blend -= queue[0]
			queue = queue[1:]
			windowStart++
		}
	}

	initialWant := lo + h + 1
	if initialWant > n {
		initialWant = n
	}
	growTo(initialWant)

	for i := lo; i < hi; i++ {
		wantEnd := i + h + 1
		if wantEnd > n {
			wantEnd = n
		}
		growTo(wantEnd)

		wantStart := i - h
		if wantStart < 0 {
			wantStart = 0
		}
		shrinkTo(wantStart)

		divisor := float64(channels) * float64(wantEnd-wantStart)
		flags[i-lo] = blend < thresholdMean*divisor
	}
	return flags
}

func squareSum(src *pcm.Source, i int) float64 {
	var s float64
	for _, v := range src.Frame(i) {
		fv := float64(v)
		s += fv * fv
	}
	return s
}

func silentFlagsParallel(src *pcm.Source, cfg Config, h, workers int) []bool {
	n := src.NumFrames()
	if workers < 2 || n < 4*h {
		return silentFlagsRange(src, cfg, h, 0, n)
	}

	chunkSize := (n + workers - 1) / workers
	flags := make([]bool, n)

	var g errgroup.Group
	for lo := 0; lo < n; lo += chunkSize {
		hi := lo + chunkSize
		if hi > n {
			hi = n
		}
		lo, hi := lo, hi
		g.Go(func() error {
			copy(flags[lo:hi], silentFlagsRange(src, cfg, h, lo, hi))
			return nil
		})
	}
	_ = g.Wait() // workers never return an error; silentFlagsRange is pure computation
	return flags
}

// regionsFromFlags turns the per-frame silence booleans into the final
// ordered, disjoint region list per spec §4.1's "Region extraction".
func regionsFromFlags(flags []bool, h, blendFrames, thresholdFrames, n int) ([][2]int, bool) {
	var runs [][2]int
	start := -1
	for i, silent := range flags {
		if silent {
			if start == -1 {
				start = i
			}
		} else if start != -1 {
			runs = append(runs, [2]int{start, i})
			start = -1
		}
	}
	if start != -1 {
		runs = append(runs, [2]int{start, n})
	}

	// Drop runs shorter than blend_frames (spec §9: the source's
	// seconds-vs-frames comparison is a bug; use frames here).
	kept := runs[:0:0]
	for _, r := range runs {
		if r[1]-r[0] >= blendFrames {
			kept = append(kept, r)
		}
	}

	// Inset by H on any edge not touching a file boundary, to exclude
	// crossfade tails from being counted as silence.
	inset := make([][2]int, 0, len(kept))
	for _, r := range kept {
		s, e := r[0], r[1]
		if s > 0 {
			s += h
		}
		if e < n {
			e -= h
		}
		inset = append(inset, [2]int{s, e})
	}

	final := inset[:0:0]
	for _, r := range inset {
		if r[1]-r[0] >= thresholdFrames {
			final = append(final, r)
		}
	}

	includingEnd := len(final) == 0 || final[len(final)-1][1] == n
	return final, includingEnd
}

// CollectSilentSamples extracts the raw interleaved samples of the
// given regions, verbatim, for the optional save_silence sink (spec
// §4.1's side effect and §3's supplemented save_silence feature).
func CollectSilentSamples(src *pcm.Source, regions []Region) []int32 {
	var out []int32
	for _, r := range regions {
		lo := r.StartFrame * src.Channels
		hi := r.EndFrame * src.Channels
		out = append(out, src.Samples[lo:hi]...)
	}
	return out
}
