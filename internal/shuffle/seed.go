// Package shuffle derives per-user seeds and produces reproducible question orderings.
//
// Both halves are pinned to portable algorithms (xxHash64 for seeds, SplitMix64
// plus a descending Fisher–Yates traversal for permutations) so that an ordering
// computed here can be recomputed byte-for-byte by any other implementation.
package shuffle

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Seed drives a deterministic permutation.
type Seed uint64

// fieldSeparator is the ASCII unit separator placed between seed inputs.
const fieldSeparator = 0x1F

// Derive returns the seed for a user taking a test kind under a variant index.
// The result is xxHash64 of "userID␟kind␟variant" with the variant written in decimal.
func Derive(userID, kind string, variant int) Seed {
	buf := make([]byte, 0, len(userID)+len(kind)+24)
	buf = append(buf, userID...)
	buf = append(buf, fieldSeparator)
	buf = append(buf, kind...)
	buf = append(buf, fieldSeparator)
	buf = strconv.AppendInt(buf, int64(variant), 10)
	return Seed(xxhash.Sum64(buf))
}
