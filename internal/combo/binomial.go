package combo

import (
	"math/big"
	"math/bits"
)

// Binomial returns C(n, k) and whether it fits in a uint64.
// Out-of-range k yields (0, true).
func Binomial(n, k int) (uint64, bool) {
	if k < 0 || n < 0 || k > n {
		return 0, true
	}
	if k > n-k {
		k = n - k
	}
	var r uint64 = 1
	for i := 0; i < k; i++ {
		// r*(n-i)/(i+1) is exactly C(n, i+1); C(n, j) grows with j up to n/2,
		// so a quotient overflow here means the final value overflows too.
		hi, lo := bits.Mul64(r, uint64(n-i))
		d := uint64(i + 1)
		if hi >= d {
			return 0, false
		}
		r, _ = bits.Div64(hi, lo, d)
	}
	return r, true
}

// BinomialBig returns C(n, k) as a big.Int.
func BinomialBig(n, k int) *big.Int {
	if k < 0 || n < 0 || k > n {
		return new(big.Int)
	}
	return new(big.Int).Binomial(int64(n), int64(k))
}
