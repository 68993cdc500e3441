package buckets

import "math/bits"

// hamming64 returns the Hamming distance between two 64-bit perceptual
// hashes. Bucketing only needs this as a coarse proximity filter; the
// authoritative phash_distance signal is computed independently by the
// Pair Scorer (spec.md §4.4) so the two never need to share code.
func hamming64(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
