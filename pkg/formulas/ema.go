package formulas

import "fmt"

// EMAAlpha is the smoothing factor for a span-style window: 2 / (window + 1).
func EMAAlpha(window int) (float64, error) {
	if window < 1 {
		return 0, fmt.Errorf("ema window must be at least 1, got %d", window)
	}
	return 2 / float64(window+1), nil
}

// EMA is the exponential moving average seeded with the first observation:
// ema[0] = v[0], ema[i] = alpha*v[i] + (1-alpha)*ema[i-1].
func EMA(v []float64, window int) ([]float64, error) {
	alpha, err := EMAAlpha(window)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		if i == 0 {
			out[i] = x
			continue
		}
		out[i] = alpha*x + (1-alpha)*out[i-1]
	}
	return out, nil
}
