package improvement

// SelectBest returns the index of the highest score.
//
// The last entry is the starting incumbent; the remaining entries are
// compared in enumeration order and replace it only when strictly better.
// So a tie with the last entry keeps the last entry, and among the others
// the first one found wins. Returns -1 for an empty slice.
func SelectBest(scores []float64) int {
	if len(scores) == 0 {
		return -1
	}
	best := len(scores) - 1
	for i := 0; i < len(scores)-1; i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}
