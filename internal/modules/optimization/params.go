package optimization

import (
	"fmt"
	"math"
)

// pct renders a fraction as a percentage with two decimals (0.1 -> "10.00%").
func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// signedPct pads non-negative values with a space (0.1 -> " 10.00%").
func signedPct(v float64) string {
	return fmt.Sprintf("% .2f%%", v*100)
}

func checkThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("%w: threshold %v", ErrInvalidParameter, threshold)
	}
	return nil
}

// checkEMA validates window against a source series of n elements before
// anything is registered: a new EMA needs at least two observations, and a
// caller comparing an existing EMA element-wise against the source needs the
// lengths to agree.
func (m *Model) checkEMA(window, n int, elementwise bool) error {
	if window < 1 {
		return fmt.Errorf("%w: ema window must be at least 1, got %d", ErrInvalidParameter, window)
	}
	if m.ema == nil {
		if n < 2 {
			return fmt.Errorf("%w: ema needs at least two observations, have %d", ErrInvalidParameter, n)
		}
		return nil
	}
	if elementwise && m.ema.variable.Size() != n {
		return fmt.Errorf("%w: existing ema has %d elements, need %d", ErrInvalidParameter, m.ema.variable.Size(), n)
	}
	return nil
}
