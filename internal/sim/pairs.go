package sim

import "math/rand"

// selectPair picks who speaks to whom this turn. Agents holding fresh
// unshared information are favored as speakers, so an injected secret
// tends to move on its first few turns instead of waiting on uniform
// luck. The listener is uniform among the rest.
func selectPair(rng *rand.Rand, names []string, pending map[string]int, pendingWeight int) (speaker, listener string) {
	if len(names) < 2 {
		if len(names) == 1 {
			return names[0], names[0]
		}
		return "", ""
	}

	total := 0
	weights := make([]int, len(names))
	for i, n := range names {
		w := 1 + pendingWeight*pending[n]
		weights[i] = w
		total += w
	}

	pick := rng.Intn(total)
	si := 0
	for i, w := range weights {
		if pick < w {
			si = i
			break
		}
		pick -= w
	}
	speaker = names[si]

	li := rng.Intn(len(names) - 1)
	if li >= si {
		li++
	}
	listener = names[li]
	return speaker, listener
}
