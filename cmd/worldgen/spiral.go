package main

import "terragen.ai/internal/terrain/coord"

// spiral lists every chunk within Chebyshev distance radius of center,
// ring by ring outward. Each ring starts at its north-west corner and runs
// clockwise.
func spiral(center coord.ChunkCoord, radius int) []coord.ChunkCoord {
	if radius < 0 {
		return nil
	}
	out := make([]coord.ChunkCoord, 0, (2*radius+1)*(2*radius+1))
	out = append(out, center)
	for r := 1; r <= radius; r++ {
		x, z := center.X-r, center.Z-r
		for _, step := range [4][2]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}} {
			for i := 0; i < 2*r; i++ {
				out = append(out, coord.ChunkCoord{X: x, Z: z})
				x += step[0]
				z += step[1]
			}
		}
	}
	return out
}
