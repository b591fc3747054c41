package decimal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Seconds represents a duration of lost or elapsed time with fixed
// precision, used for changeover and stoppage accounting.
type Seconds struct {
	value decimal.Decimal
}

// Percent represents a percentage value with fixed precision, used for the
// efficiency metric.
type Percent struct {
	value decimal.Decimal
}

// NewSeconds creates a Seconds value from an integer count of seconds.
func NewSeconds(i int64) Seconds {
	return Seconds{value: decimal.NewFromInt(i)}
}

// Add adds two durations.
func (s Seconds) Add(other Seconds) Seconds {
	return Seconds{value: s.value.Add(other.value)}
}

// Int64 returns the whole-second count, truncating any fraction.
func (s Seconds) Int64() int64 {
	return s.value.IntPart()
}

// String returns the string representation.
func (s Seconds) String() string {
	return s.value.String()
}

// PercentOf computes what percentage `s` is of `whole`, returning 0 when
// whole is zero.
func (s Seconds) PercentOf(whole Seconds) Percent {
	if whole.value.IsZero() {
		return Percent{value: decimal.Zero}
	}
	ratio := s.value.Div(whole.value).Mul(decimal.NewFromInt(100))
	return Percent{value: ratio}
}

// NewPercent creates a Percent from a float64.
func NewPercent(f float64) Percent {
	return Percent{value: decimal.NewFromFloat(f)}
}

// Sub subtracts two percentages.
func (p Percent) Sub(other Percent) Percent {
	return Percent{value: p.value.Sub(other.value)}
}

// ClampNonNegative returns the percent, floored at zero.
func (p Percent) ClampNonNegative() Percent {
	if p.value.IsNegative() {
		return Percent{value: decimal.Zero}
	}
	return p
}

// Float64 returns the float64 representation for JSON/wire export.
func (p Percent) Float64() float64 {
	f, _ := p.value.Float64()
	return f
}

// String returns the string representation rounded to two decimal places.
func (p Percent) String() string {
	return p.value.StringFixed(2)
}

// EfficiencyPercent computes the shift-efficiency metric: 100% minus the
// proportion of the shift lost to changeovers and stoppages, floored at 0.
func EfficiencyPercent(totalLost Seconds, shiftLength Seconds) Percent {
	lostPct := totalLost.PercentOf(shiftLength)
	hundred := NewPercent(100)
	return hundred.Sub(lostPct).ClampNonNegative()
}

// FormatSeconds formats a duration for logging.
func FormatSeconds(s Seconds) string {
	return fmt.Sprintf("%ss", s.String())
}
