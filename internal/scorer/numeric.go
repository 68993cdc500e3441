package scorer

import (
	"math"
	"math/bits"

	"github.com/darianrose/mediadedupe/internal/types"
)

// earthRadiusMeters is the mean Earth radius used by the Haversine
// formula for gps_delta (spec.md §4.4).
const earthRadiusMeters = 6_371_000.0

// phashHammingDistance returns the Hamming distance between two 64-bit
// perceptual hashes, written as a small free function rather than
// importing a bit-counting library for one popcount.
func phashHammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// videoFPAlignment finds the frame-index shift that minimizes the
// average Hamming distance between two video fingerprints' sampled
// frames, the "best-aligned-subsequence" scoring spec.md §4.4
// describes. Handles fingerprints of different lengths (a trimmed copy
// samples fewer frames) by only comparing the overlapping window at
// each candidate shift. Returns the average distance over the best
// shift's overlap, and the number of frames that overlapped.
func videoFPAlignment(a, b []uint64) (avgBits float64, overlap int) {
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1), 0
	}

	maxShift := len(a)
	if len(b) > maxShift {
		maxShift = len(b)
	}

	bestAvg := math.Inf(1)
	bestOverlap := 0

	for shift := -maxShift; shift <= maxShift; shift++ {
		var sum, n int
		for i := range a {
			j := i + shift
			if j < 0 || j >= len(b) {
				continue
			}
			sum += phashHammingDistance(a[i], b[j])
			n++
		}
		if n == 0 {
			continue
		}
		avg := float64(sum) / float64(n)
		if avg < bestAvg {
			bestAvg = avg
			bestOverlap = n
		}
	}

	return bestAvg, bestOverlap
}

// haversineMeters computes the great-circle distance between two GPS
// coordinates in meters (spec.md §4.4 gps_delta). Implemented on
// stdlib math: no pack repo uses a geodesy library, and the formula is
// a dozen lines of well-known trigonometry, not a case for pulling in a
// dependency solely to avoid writing it (see DESIGN.md).
func haversineMeters(a, b types.GPSCoord) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}
