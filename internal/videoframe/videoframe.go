// Package videoframe implements C4, the per-segment evenly-spaced frame
// selector that reads a serial RGB24 byte stream and forwards only the
// chosen frames to the encoder.
package videoframe

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// ErrVideoUnderrun is spec §7's VideoUnderrun: the decoder produced
// fewer bytes than expected for a frame.
var ErrVideoUnderrun = errors.New("video underrun")

// FrameSize returns the byte size of one RGB24 frame.
func FrameSize(width, height int) int { return width * height * 3 }

// Selector reads whole RGB24 frames off a decoder stream in strictly
// increasing order and forwards selected ones to an encoder stream.
type Selector struct {
	r          io.Reader
	w          io.Writer
	frameBytes int
	buf        []byte
}

// NewSelector wraps a decoder reader and encoder writer.
func NewSelector(r io.Reader, w io.Writer, width, height int) *Selector {
	fs := FrameSize(width, height)
	return &Selector{r: r, w: w, frameBytes: fs, buf: make([]byte, fs)}
}

// KeptFrameCount returns K, the number of frames C4 forwards for a
// segment, per spec §4.4.
//
//   - non-silent segment: K = endFrame - startFrame (pass-through)
//   - silent segment: K = round(newDur*Fv + 0.5/Fv), the "nearest frame
//     count" rule, computed once
func KeptFrameCount(isSilence bool, startFrame, endFrame int, newDur, fv float64) int {
	if !isSilence {
		return endFrame - startFrame
	}
	return int(math.Round(newDur*fv + 0.5/fv))
}

// SelectedIndices returns the K absolute input frame indices kept for a
// silent segment: evenly spaced, centered samples, strictly within
// [startFrame, endFrame).
func SelectedIndices(startFrame, endFrame, k int) []int {
	if k <= 0 {
		return nil
	}
	span := endFrame - startFrame
	indices := make([]int, k)
	for j := 0; j < k; j++ {
		indices[j] = startFrame + (j*2+1)*span/(2*k)
	}
	return indices
}

// ForwardSegment reads every input frame in [startFrame, endFrame) from
// the decoder (a serial byte stream — every frame must be read to stay
// in sync) and writes the kept ones, in original order, to the encoder.
//
// Fails with VideoUnderrun if the decoder delivers a short frame.
func (s *Selector) ForwardSegment(startFrame, endFrame int, keep []int) error {
	kept := make(map[int]struct{}, len(keep))
	for _, idx := range keep {
		kept[idx] = struct{}{}
	}

	for idx := startFrame; idx < endFrame; idx++ {
		if _, err := io.ReadFull(s.r, s.buf); err != nil {
			return errors.Wrapf(ErrVideoUnderrun, "frame %d: %v", idx, err)
		}
		if _, ok := kept[idx]; ok {
			if _, err := s.w.Write(s.buf); err != nil {
				return errors.Wrapf(err, "write frame %d", idx)
			}
		}
	}
	return nil
}
