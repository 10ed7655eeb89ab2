// Package timeline implements C3, the planner that turns silence
// regions into an ordered list of segments covering the whole file,
// each tagged silent/non-silent and carrying its compressed duration.
package timeline

import (
	"github.com/retime/retime/internal/silence"
	"github.com/retime/retime/internal/transform"
)

// Segment is one entry of the partition of [0, duration], spec §3.
type Segment struct {
	T0, T1    float64 // seconds; T1 is the segment's nominal end even when it represents an open-ended "to end of file" span
	IsSilence bool
	NewDur    float64 // T(dur) for silence, dur unchanged otherwise
}

// Dur returns t1 - t0.
func (s Segment) Dur() float64 { return s.T1 - s.T0 }

// Plan builds the segment list from the detector's output, per spec
// §4.3's construction rules.
func Plan(regions []silence.Region, duration float64, includingEnd bool, cfg transform.Config) []Segment {
	if len(regions) == 0 {
		return nil
	}

	var segments []Segment
	appendSeg := func(t0, t1 float64, isSilence bool) {
		dur := t1 - t0
		newDur := dur
		if isSilence {
			newDur = cfg.Apply(dur)
		}
		segments = append(segments, Segment{T0: t0, T1: t1, IsSilence: isSilence, NewDur: newDur})
	}

	if regions[0].StartS > 0 {
		appendSeg(0, regions[0].StartS, false)
	}

	for i := 0; i < len(regions)-1; i++ {
		appendSeg(regions[i].StartS, regions[i].EndS, true)
		appendSeg(regions[i].EndS, regions[i+1].StartS, false)
	}

	last := regions[len(regions)-1]
	if includingEnd {
		appendSeg(last.StartS, duration, true)
	} else {
		appendSeg(last.StartS, last.EndS, true)
		appendSeg(last.EndS, duration, false)
	}

	return segments
}
