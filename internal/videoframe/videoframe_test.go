package videoframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeptFrameCountNonSilencePassesThrough(t *testing.T) {
	assert.Equal(t, 10, KeptFrameCount(false, 5, 15, 999, 30))
}

func TestKeptFrameCountSilenceRoundsNewDuration(t *testing.T) {
	got := KeptFrameCount(true, 0, 30, 1.0, 30)
	assert.Equal(t, 30, got)
}

func TestSelectedIndicesAreWithinRangeAndSorted(t *testing.T) {
	indices := SelectedIndices(100, 130, 5)
	require.Len(t, indices, 5)
	for i, idx := range indices {
		assert.GreaterOrEqual(t, idx, 100)
		assert.Less(t, idx, 130)
		if i > 0 {
			assert.Greater(t, idx, indices[i-1])
		}
	}
}

func TestSelectedIndicesZeroCountIsEmpty(t *testing.T) {
	assert.Empty(t, SelectedIndices(0, 100, 0))
}

func TestForwardSegmentKeepsOnlySelectedFrames(t *testing.T) {
	width, height := 2, 1
	frame := bytes.Repeat([]byte{1}, FrameSize(width, height))

	var in bytes.Buffer
	for i := 0; i < 5; i++ {
		b := bytes.Repeat([]byte{byte(i)}, FrameSize(width, height))
		in.Write(b)
	}
	_ = frame

	var out bytes.Buffer
	sel := NewSelector(&in, &out, width, height)
	err := sel.ForwardSegment(0, 5, []int{1, 3})
	require.NoError(t, err)

	assert.Equal(t, 2*FrameSize(width, height), out.Len())
	assert.Equal(t, byte(1), out.Bytes()[0])
	assert.Equal(t, byte(3), out.Bytes()[FrameSize(width, height)])
}

func TestForwardSegmentUnderrun(t *testing.T) {
	width, height := 2, 1
	var in bytes.Buffer
	in.Write(bytes.Repeat([]byte{1}, FrameSize(width, height)-1)) // short by one byte

	var out bytes.Buffer
	sel := NewSelector(&in, &out, width, height)
	err := sel.ForwardSegment(0, 1, []int{0})
	assert.ErrorIs(t, err, ErrVideoUnderrun)
}
