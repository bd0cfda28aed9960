// Package seed derives per-cell pseudo-random state from a world seed and
// integer coordinates. Every function here is pure: results depend only on
// the arguments, never on call order or goroutine.
package seed

import (
	"github.com/cespare/xxhash/v2"

	"terragen.ai/internal/terrain/mathx"
)

const (
	kSalt = 0xd6e8feb86659fd93
	kX    = 0x9e3779b97f4a7c15
	kY    = 0xc2b2ae3d27d4eb4f
	kZ    = 0xbf58476d1ce4e5b9
)

// Derive returns the CellSeed for (world, x, y, z, salt). Each component is
// folded in with its own finalizer round so neighbouring coordinates and
// neighbouring salts land on unrelated outputs.
func Derive(world int64, x, y, z int, salt uint64) uint64 {
	h := mathx.Mix64(uint64(world) ^ salt*kSalt)
	h = mathx.Mix64(h ^ uint64(int64(x))*kX)
	h = mathx.Mix64(h ^ uint64(int64(y))*kY)
	h = mathx.Mix64(h ^ uint64(int64(z))*kZ)
	return h
}

func Derive2(world int64, x, z int, salt uint64) uint64 {
	return Derive(world, x, 0, z, salt)
}

// SaltOf maps a rule or node name to a stable salt.
func SaltOf(name string) uint64 {
	return xxhash.Sum64String(name)
}
