package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rapid"
)

func TestPctChange(t *testing.T) {
	got := PctChange([]float64{100, 110, 99})
	require.Len(t, got, 2)
	assert.InDelta(t, 0.10, got[0], 1e-12)
	assert.InDelta(t, -0.10, got[1], 1e-12)

	assert.Empty(t, PctChange([]float64{1}))
}

func TestPctChangeFromStart(t *testing.T) {
	got := PctChangeFromStart([]float64{100, 110, 120, 90})
	assert.InDeltaSlice(t, []float64{0, 0.1, 0.2, -0.1}, got, 1e-12)
}

func TestPctChangeMatrix(t *testing.T) {
	prices := mat.NewDense(3, 2, []float64{
		100, 50,
		110, 40,
		121, 50,
	})
	got := PctChangeMatrix(prices)
	r, c := got.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
	assert.InDelta(t, 0.1, got.At(0, 0), 1e-12)
	assert.InDelta(t, 0.1, got.At(1, 0), 1e-12)
	assert.InDelta(t, -0.2, got.At(0, 1), 1e-12)
	assert.InDelta(t, 0.25, got.At(1, 1), 1e-12)
}

func TestCovarianceMatrix(t *testing.T) {
	returns := mat.NewDense(4, 2, []float64{
		0.01, -0.01,
		0.02, -0.02,
		0.03, -0.03,
		0.04, -0.04,
	})
	cov := CovarianceMatrix(returns)
	// Sample variance of {1,2,3,4}% is 1.6667e-4.
	assert.InDelta(t, 1.0/6000, cov.At(0, 0), 1e-12)
	assert.InDelta(t, -1.0/6000, cov.At(0, 1), 1e-12)
	assert.InDelta(t, cov.At(0, 1), cov.At(1, 0), 0)
}

func TestDrawdown(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 0, 0.15, 0.05, 0}, Drawdown([]float64{0, 0.1, -0.05, 0.05, 0.2}), 1e-12)
	assert.InDelta(t, 0.15, MaxDrawdown([]float64{0, 0.1, -0.05, 0.05, 0.2}), 1e-12)
}

func TestDrawdown_NeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := rapid.SliceOf(rapid.Float64Range(-1, 1)).Draw(t, "r")
		for i, d := range Drawdown(r) {
			if d < 0 {
				t.Fatalf("drawdown[%d] = %v < 0", i, d)
			}
		}
	})
}

func TestEMA(t *testing.T) {
	got, err := EMA([]float64{1, 2, 3}, 3)
	require.NoError(t, err)
	// alpha = 0.5
	assert.InDeltaSlice(t, []float64{1, 1.5, 2.25}, got, 1e-12)

	_, err = EMA([]float64{1}, 0)
	assert.Error(t, err)
}

func TestEMAAlpha_InUnitInterval(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 10000).Draw(t, "window")
		alpha, err := EMAAlpha(w)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if alpha <= 0 || alpha > 1 {
			t.Fatalf("alpha %v outside (0, 1]", alpha)
		}
	})
}

func TestFractions(t *testing.T) {
	data := []float64{-1, 0, 1, 2}
	assert.InDelta(t, 0.5, FractionAbove(data, 0), 1e-12)
	assert.InDelta(t, 0.25, FractionBelow(data, 0), 1e-12)
}
