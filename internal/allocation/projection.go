package allocation

// projectBoundedSimplex projects v onto {w : Σwᵢ = 1, lo ≤ wᵢ ≤ hi}.
// The projection is clip(vᵢ − τ, lo, hi) for the shift τ that makes the
// weights sum to one; the sum is monotonically non-increasing in τ, so τ is
// found by bisection. Feasibility (n·lo ≤ 1 ≤ n·hi) must hold.
func projectBoundedSimplex(v []float64, lo, hi float64) []float64 {
	n := len(v)
	out := make([]float64, n)

	sumAt := func(tau float64) float64 {
		s := 0.0
		for _, x := range v {
			w := x - tau
			if w < lo {
				w = lo
			} else if w > hi {
				w = hi
			}
			s += w
		}
		return s
	}

	// Bracket τ. At low every weight clips to hi, at high every weight
	// clips to lo.
	low, high := v[0], v[0]
	for _, x := range v {
		if x < low {
			low = x
		}
		if x > high {
			high = x
		}
	}
	low -= hi + 1
	high -= lo - 1

	for iter := 0; iter < 200; iter++ {
		mid := (low + high) / 2
		if sumAt(mid) > 1 {
			low = mid
		} else {
			high = mid
		}
	}

	tau := (low + high) / 2
	for i, x := range v {
		w := x - tau
		if w < lo {
			w = lo
		} else if w > hi {
			w = hi
		}
		out[i] = w
	}
	return out
}
