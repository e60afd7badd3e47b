package formulas

import (
	"github.com/markcheno/go-talib"
)

// Smooth returns a simple moving average of the input series with the given
// window. The first window-1 entries (where talib emits zeros) are backfilled
// with the raw values so the output has the same length and no warmup gap.
func Smooth(values []float64, window int) []float64 {
	if window < 2 || len(values) < window {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	sma := talib.Sma(values, window)
	for i := 0; i < window-1 && i < len(values); i++ {
		sma[i] = values[i]
	}
	return sma
}
