package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestApplyZeroDuration(t *testing.T) {
	c := Default()
	assert.Equal(t, 0.0, c.Apply(0))
}

func TestApplyClampsToDuration(t *testing.T) {
	c := Config{Constant: 0, Sublinear: 0, Linear: 2} // would double the duration
	got := c.Apply(1.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestApplyNeverNegative(t *testing.T) {
	c := Config{Constant: -10, Sublinear: 0, Linear: 0}
	assert.Equal(t, 0.0, c.Apply(5.0))
}

func TestApplyBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		constant := rapid.Float64Range(-5, 5).Draw(t, "constant")
		sublinear := rapid.Float64Range(-2, 2).Draw(t, "sublinear")
		linear := rapid.Float64Range(-2, 2).Draw(t, "linear")
		dur := rapid.Float64Range(0, 1000).Draw(t, "dur")

		c := Config{Constant: constant, Sublinear: sublinear, Linear: linear}
		got := c.Apply(dur)

		assert.False(t, math.IsNaN(got))
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, dur)
	})
}
