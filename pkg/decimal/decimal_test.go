package decimal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecondsAdd(t *testing.T) {
	t.Run("sums two durations", func(t *testing.T) {
		a := NewSeconds(60)
		b := NewSeconds(120)
		assert.Equal(t, int64(180), a.Add(b).Int64())
	})
}

func TestSecondsPercentOf(t *testing.T) {
	t.Run("computes a proportion of the whole", func(t *testing.T) {
		lost := NewSeconds(180)
		shift := NewSeconds(28800)
		pct := lost.PercentOf(shift)
		assert.InDelta(t, 0.625, pct.Float64(), 0.001)
	})

	t.Run("returns zero when the whole is zero", func(t *testing.T) {
		lost := NewSeconds(60)
		pct := lost.PercentOf(NewSeconds(0))
		assert.Equal(t, float64(0), pct.Float64())
	})
}

func TestPercentClampNonNegative(t *testing.T) {
	t.Run("leaves a non-negative percent untouched", func(t *testing.T) {
		p := NewPercent(42).ClampNonNegative()
		assert.Equal(t, float64(42), p.Float64())
	})

	t.Run("floors a negative percent at zero", func(t *testing.T) {
		p := NewPercent(-5).ClampNonNegative()
		assert.Equal(t, float64(0), p.Float64())
	})
}

func TestEfficiencyPercent(t *testing.T) {
	t.Run("no lost time yields 100%", func(t *testing.T) {
		pct := EfficiencyPercent(NewSeconds(0), NewSeconds(28800))
		assert.Equal(t, float64(100), pct.Float64())
	})

	t.Run("lost time reduces efficiency proportionally", func(t *testing.T) {
		pct := EfficiencyPercent(NewSeconds(2880), NewSeconds(28800))
		assert.InDelta(t, 90, pct.Float64(), 0.01)
	})

	t.Run("floors at zero when losses exceed the shift length", func(t *testing.T) {
		pct := EfficiencyPercent(NewSeconds(100000), NewSeconds(28800))
		assert.Equal(t, float64(0), pct.Float64())
	})
}
