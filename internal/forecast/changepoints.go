package forecast

import (
	"sort"

	"github.com/aristath/horizon/pkg/formulas"
)

const (
	// maxChangepoints caps the number of trend changepoints per fit.
	maxChangepoints = 25

	// changepointRange restricts changepoints to the first 80% of the
	// history so the final trend segment is identified from recent data.
	changepointRange = 0.8

	// smoothingWindow is the SMA window used to separate trend from noise
	// when ranking changepoint candidates.
	smoothingWindow = 10
)

// selectChangepoints picks changepoint locations in normalized time [0, 1].
// Candidates are ranked by the absolute change in the smoothed series' slope,
// so changepoints concentrate where the trend actually bends rather than
// being spread uniformly.
func selectChangepoints(closes []float64, times []float64) []float64 {
	n := len(closes)
	count := n / 4
	if count > maxChangepoints {
		count = maxChangepoints
	}
	if count < 1 || n < 3 {
		return nil
	}

	smoothed := formulas.Smooth(closes, smoothingWindow)

	// Slope change at each interior point of the smoothed series.
	type candidate struct {
		idx   int
		score float64
	}
	limit := int(float64(n) * changepointRange)
	if limit < 2 {
		limit = 2
	}
	candidates := make([]candidate, 0, limit)
	for i := 1; i < limit && i < n-1; i++ {
		before := smoothed[i] - smoothed[i-1]
		after := smoothed[i+1] - smoothed[i]
		score := after - before
		if score < 0 {
			score = -score
		}
		candidates = append(candidates, candidate{idx: i, score: score})
	}
	if len(candidates) == 0 {
		return nil
	}

	// Highest slope change first; ties broken by index for determinism.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		return candidates[a].idx < candidates[b].idx
	})

	if count > len(candidates) {
		count = len(candidates)
	}
	picked := make([]float64, 0, count)
	for _, c := range candidates[:count] {
		picked = append(picked, times[c.idx])
	}
	sort.Float64s(picked)
	return picked
}
