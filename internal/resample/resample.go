// Package resample implements C5, the audio resampler/splicer that
// emits the correct number of output frames per segment with an
// equal-linear crossfade when a silence must be shortened, and C7, the
// drift accountant that keeps the fractional-frame residue driving C5
// in sync with C4's independently rounded video frame counts.
package resample

import (
	"math"

	"github.com/pkg/errors"

	"github.com/retime/retime/internal/pcm"
)

// ErrAudioOverrun is spec §7's AudioOverrun: an internal invariant
// violation — the requested output length exceeds the available input
// span. Recovery policy is none; this is a fatal assertion.
var ErrAudioOverrun = errors.New("audio overrun")

// Splice emits exactly ka frames covering input frames [a0, a1) of src.
//
//   - ka == 0: emits nothing.
//   - ka == a1-a0: copies the span verbatim (crossfade idempotence).
//   - ka < a1-a0: two-sided splice with an equal-linear crossfade.
//
// ka > a1-a0 is a programmer error and fails with AudioOverrun.
func Splice(src *pcm.Source, a0, a1, ka int) ([]int32, error) {
	span := a1 - a0
	channels := src.Channels

	if ka > span {
		return nil, errors.Wrapf(ErrAudioOverrun, "requested %d frames from a %d-frame span [%d,%d)", ka, span, a0, a1)
	}
	if ka == 0 {
		return nil, nil
	}
	if ka == span {
		out := make([]int32, span*channels)
		copy(out, src.Samples[a0*channels:a1*channels])
		return out, nil
	}

	var left, right int
	if 2*ka <= span {
		left, right = ka, ka
	} else {
		left = (span + 1) / 2
		right = span - left
	}
	crossfadeLen := left + right - ka

	maxValue := src.MaxValue()
	minSample := int32(-maxValue)
	maxSample := int32(maxValue - 1)

	out := make([]int32, ka*channels)

	leftSamples := src.Samples[a0*channels : (a0+left)*channels]
	rightStart := a1 - right
	rightSamples := src.Samples[rightStart*channels : a1*channels]

	// [0, left-crossfadeLen) = left verbatim.
	copy(out[:(left-crossfadeLen)*channels], leftSamples[:(left-crossfadeLen)*channels])

	// [left, ka) = right verbatim, offset by crossfadeLen into the
	// right chunk (the first crossfadeLen right frames are consumed by
	// the crossfade below).
	copy(out[left*channels:], rightSamples[crossfadeLen*channels:])

	// [left-crossfadeLen, left) = linear crossfade.
	for i := 0; i < crossfadeLen; i++ {
		var wRight float64
		if crossfadeLen == 1 {
			wRight = 0.5
		} else {
			wRight = float64(i) / float64(crossfadeLen-1)
		}
		wLeft := 1 - wRight

		outFrame := left - crossfadeLen + i
		leftFrame := left - crossfadeLen + i
		rightFrame := i
		for c := 0; c < channels; c++ {
			lv := float64(leftSamples[leftFrame*channels+c])
			rv := float64(rightSamples[rightFrame*channels+c])
			mixed := int32(math.Trunc(lv*wLeft + rv*wRight))
			if mixed < minSample {
				mixed = minSample
			} else if mixed > maxSample {
				mixed = maxSample
			}
			out[outFrame*channels+c] = mixed
		}
	}

	return out, nil
}

// DriftAccountant implements C7: a single residue scalar carried
// forward across segments so that rounding in C4's video frame counts
// doesn't accumulate as audible audio/video desync.
type DriftAccountant struct {
	Residue float64 // in [0, 1) frames, except in the pathological overflow case of SilentFrameCount
}

// NonSilentFrameCount returns the output frame count for a non-silence
// segment: the span, unchanged; residue is untouched.
func (d *DriftAccountant) NonSilentFrameCount(a0, a1 int) int {
	return a1 - a0
}

// SilentFrameCount returns Ka for a silence segment given its original
// duration, C4's chosen video frame count kv, the video and audio frame
// rates, and the segment's audio frame span [a0, a1), advancing Residue.
func (d *DriftAccountant) SilentFrameCount(dur float64, kv int, fv, fa float64, a0, a1 int) int {
	span := a1 - a0
	audioDelta := d.Residue + (dur-float64(kv)/fv)*fa
	deltaFloor := math.Floor(audioDelta)

	if int(deltaFloor) > span {
		d.Residue = audioDelta - float64(span)
		return 0
	}
	d.Residue = audioDelta - deltaFloor
	return span - int(deltaFloor)
}
