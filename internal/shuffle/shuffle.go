package shuffle

// SplitMix64 constants.
const (
	golden = 0x9E3779B97F4A7C15
	mixA   = 0xBF58476D1CE4E5B9
	mixB   = 0x94D049BB133111EB
)

// generator is a SplitMix64 stream seeded once per shuffle.
type generator struct {
	state uint64
}

func (g *generator) next() uint64 {
	g.state += golden
	z := g.state
	z = (z ^ (z >> 30)) * mixA
	z = (z ^ (z >> 27)) * mixB
	return z ^ (z >> 31)
}

// Shuffle returns a permuted copy of seq. The input slice is never modified.
//
// Traversal runs from the last index down to 1, swapping position i with
// next() mod (i+1).
func Shuffle[T any](seq []T, seed Seed) []T {
	out := make([]T, len(seq))
	copy(out, seq)
	if len(out) < 2 {
		return out
	}

	g := generator{state: uint64(seed)}
	for i := len(out) - 1; i > 0; i-- {
		j := int(g.next() % uint64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
