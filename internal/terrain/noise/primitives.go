package noise

import (
	"math"

	"terragen.ai/internal/terrain/mathx"
	"terragen.ai/internal/terrain/seed"
)

// Lattice gradient noise. The permutation table is a Fisher-Yates shuffle of
// 0..255 driven by a splitmix64 stream over the node seed; interpolation is
// the quintic fade. Only +, *, - and math.Floor are used, so results are
// reproducible under IEEE-754.

var grad3 = [12][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
}

var grad2 = [8][2]float64{
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
}

func permutation(s uint64) *[512]uint8 {
	var p [256]uint8
	for i := range p {
		p[i] = uint8(i)
	}
	r := seed.NewRandom(s)
	for i := 255; i > 0; i-- {
		j := r.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	var out [512]uint8
	for i := range out {
		out[i] = p[i&255]
	}
	return &out
}

func gradient2(perm *[512]uint8, x, z float64) float64 {
	xf, zf := math.Floor(x), math.Floor(z)
	xi, zi := int(xf)&255, int(zf)&255
	fx, fz := x-xf, z-zf
	u, v := mathx.Quintic(fx), mathx.Quintic(fz)

	g := func(ix, iz int, dx, dz float64) float64 {
		gr := grad2[perm[int(perm[ix])+iz]&7]
		return gr[0]*dx + gr[1]*dz
	}
	n00 := g(xi, zi, fx, fz)
	n10 := g(xi+1, zi, fx-1, fz)
	n01 := g(xi, zi+1, fx, fz-1)
	n11 := g(xi+1, zi+1, fx-1, fz-1)
	return mathx.Lerp(mathx.Lerp(n00, n10, u), mathx.Lerp(n01, n11, u), v)
}

func gradient3(perm *[512]uint8, x, y, z float64) float64 {
	xf, yf, zf := math.Floor(x), math.Floor(y), math.Floor(z)
	xi, yi, zi := int(xf)&255, int(yf)&255, int(zf)&255
	fx, fy, fz := x-xf, y-yf, z-zf
	u, v, w := mathx.Quintic(fx), mathx.Quintic(fy), mathx.Quintic(fz)

	g := func(ix, iy, iz int, dx, dy, dz float64) float64 {
		h := perm[int(perm[int(perm[ix])+iy])+iz] % 12
		gr := grad3[h]
		return gr[0]*dx + gr[1]*dy + gr[2]*dz
	}
	n000 := g(xi, yi, zi, fx, fy, fz)
	n100 := g(xi+1, yi, zi, fx-1, fy, fz)
	n010 := g(xi, yi+1, zi, fx, fy-1, fz)
	n110 := g(xi+1, yi+1, zi, fx-1, fy-1, fz)
	n001 := g(xi, yi, zi+1, fx, fy, fz-1)
	n101 := g(xi+1, yi, zi+1, fx-1, fy, fz-1)
	n011 := g(xi, yi+1, zi+1, fx, fy-1, fz-1)
	n111 := g(xi+1, yi+1, zi+1, fx-1, fy-1, fz-1)

	x00 := mathx.Lerp(n000, n100, u)
	x10 := mathx.Lerp(n010, n110, u)
	x01 := mathx.Lerp(n001, n101, u)
	x11 := mathx.Lerp(n011, n111, u)
	return mathx.Lerp(mathx.Lerp(x00, x10, v), mathx.Lerp(x01, x11, v), w)
}

// unit maps a hash to [-1, 1).
func unit(h uint64) float64 {
	return float64(h>>11)/(1<<53)*2 - 1
}

func white(s uint64, x, y, z float64) float64 {
	return unit(seed.Derive(int64(s), mathx.FloorInt(x), mathx.FloorInt(y), mathx.FloorInt(z), 0))
}

// cellular returns the distance to the nearest jittered feature point,
// clamped to one cell and mapped to [-1, 1].
func cellular(s uint64, jitter float64, dims int, x, y, z float64) float64 {
	xi, yi, zi := mathx.FloorInt(x), mathx.FloorInt(y), mathx.FloorInt(z)
	best := math.Inf(1)
	ylo, yhi := -1, 1
	if dims == 2 {
		y, yi, ylo, yhi = 0, 0, 0, 0
	}
	for dz := -1; dz <= 1; dz++ {
		for dy := ylo; dy <= yhi; dy++ {
			for dx := -1; dx <= 1; dx++ {
				cx, cy, cz := xi+dx, yi+dy, zi+dz
				r := seed.NewRandom(seed.Derive(int64(s), cx, cy, cz, 1))
				px := float64(cx) + 0.5 + (r.Float64()-0.5)*jitter
				py := float64(cy) + 0.5 + (r.Float64()-0.5)*jitter
				pz := float64(cz) + 0.5 + (r.Float64()-0.5)*jitter
				if dims == 2 {
					py = 0
				}
				ddx, ddy, ddz := px-x, py-y, pz-z
				if d := ddx*ddx + ddy*ddy + ddz*ddz; d < best {
					best = d
				}
			}
		}
	}
	return mathx.Clamp(math.Sqrt(best), 0, 1)*2 - 1
}
