package report

import (
	"math"
	"math/bits"
	"slices"
)

// DefaultSplits is the number of parts Representative reduces a group to.
const DefaultSplits = 30

// Stats are the descriptive statistics of one group.
type Stats struct {
	Count uint64
	Mean  float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	Max   float64
}

// Describe computes count, mean, min, quartiles and max. Quartiles are
// linearly interpolated between the closest ranks. sorted must be
// ascending.
func Describe(sorted []uint64) Stats {
	n := len(sorted)
	if n == 0 {
		nan := math.NaN()
		return Stats{Mean: nan, Min: nan, P25: nan, P50: nan, P75: nan, Max: nan}
	}
	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}
	return Stats{
		Count: uint64(n),
		Mean:  sum / float64(n),
		Min:   float64(sorted[0]),
		P25:   quantile(sorted, 0.25),
		P50:   quantile(sorted, 0.50),
		P75:   quantile(sorted, 0.75),
		Max:   float64(sorted[n-1]),
	}
}

func quantile(sorted []uint64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	a, b := float64(sorted[lo]), float64(sorted[hi])
	return a + (b-a)*(pos-float64(lo))
}

// Representative reduces values to at most splits points. When there are
// no more than splits values they are returned as given. Otherwise the
// values are sorted and cut into splits nearly equal parts, the first
// len%splits parts one longer than the rest, and the result is the
// minimum, the truncated mean of every inner part, and the maximum.
func Representative(values []uint64, splits int) []uint64 {
	if splits < 1 {
		splits = DefaultSplits
	}
	if len(values) <= splits {
		return slices.Clone(values)
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	out := make([]uint64, 0, splits)
	out = append(out, sorted[0])
	size, extra := len(sorted)/splits, len(sorted)%splits
	start := 0
	for i := 0; i < splits; i++ {
		n := size
		if i < extra {
			n++
		}
		if i > 0 && i < splits-1 {
			out = append(out, floorMean(sorted[start:start+n]))
		}
		start += n
	}
	return append(out, sorted[len(sorted)-1])
}

// floorMean is the integer part of the mean, summed in 128 bits.
func floorMean(part []uint64) uint64 {
	if len(part) == 0 {
		return 0
	}
	var hi, lo uint64
	for _, v := range part {
		var c uint64
		lo, c = bits.Add64(lo, v, 0)
		hi += c
	}
	q, _ := bits.Div64(hi, lo, uint64(len(part)))
	return q
}
