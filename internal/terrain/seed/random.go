package seed

import "terragen.ai/internal/terrain/mathx"

// Random is a splitmix64 stream. It is not safe for concurrent use; derive
// one per decision scope instead of sharing.
type Random struct {
	state uint64
}

func NewRandom(s uint64) *Random {
	return &Random{state: s}
}

func (r *Random) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	return mathx.Mix64(r.state)
}

// Intn returns a value in [0, n). n <= 0 yields 0.
func (r *Random) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Range returns a value in [lo, hi].
func (r *Random) Range(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}

// Float64 returns a value in [0, 1) built from the top 53 bits.
func (r *Random) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

func (r *Random) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.Float64() < p
}
