package combo

import "iter"

// Pairs lazily yields (ids[i], ids[j]) for every i < j.
// The sequence can be ranged over any number of times.
func Pairs(ids []string) iter.Seq[Combination] {
	return func(yield func(Combination) bool) {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if !yield(Combination{A: ids[i], B: ids[j]}) {
					return
				}
			}
		}
	}
}

// PairCount is n choose 2
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}
