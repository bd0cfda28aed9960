package noise

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"terragen.ai/internal/terrain/cache"
	"terragen.ai/internal/terrain/mathx"
)

// SlabCache memoizes node output slabs. A nil cache disables memoization.
type SlabCache = cache.Cache[[]float64]

// Context carries per-call sampling state. It holds no per-chunk data, so
// one Context may be shared by concurrent generations.
type Context struct {
	Cache *SlabCache
}

// SampleFault is raised (as a panic value) when a cached slab could not be
// produced. Pipelines recover it into a per-chunk failure.
type SampleFault struct {
	Node string
	Err  error
}

func (f *SampleFault) Error() string {
	return fmt.Sprintf("sample %q: %v", f.Node, f.Err)
}

func (f *SampleFault) Unwrap() error { return f.Err }

// Sample evaluates node id at a point.
func (g *Graph) Sample(ctx *Context, id NodeID, x, y, z float64) float64 {
	return g.eval(ctx, id, x, y, z, false)
}

// SampleVec evaluates up to three nodes at one point as a vector. Missing
// components are zero.
func (g *Graph) SampleVec(ctx *Context, ids []NodeID, x, y, z float64) mgl64.Vec3 {
	var v mgl64.Vec3
	for i := 0; i < len(ids) && i < 3; i++ {
		v[i] = g.eval(ctx, ids[i], x, y, z, false)
	}
	return v
}

func (g *Graph) eval(ctx *Context, id NodeID, x, y, z float64, skipCache bool) float64 {
	n := &g.nodes[id]
	switch n.kind {
	case KindConstant:
		return n.p.Value
	case KindGradient:
		f := n.p.Frequency
		if n.p.Dims == 2 {
			return gradient2(n.perm, x*f, z*f)
		}
		return gradient3(n.perm, x*f, y*f, z*f)
	case KindSimplex:
		f := n.p.Frequency
		if n.p.Dims == 2 {
			return n.simplex.Eval2(x*f, z*f)
		}
		return n.simplex.Eval3(x*f, y*f, z*f)
	case KindPerlin:
		f := n.p.Frequency
		if n.p.Dims == 2 {
			return n.perlin.Noise2D(x*f, z*f)
		}
		return n.perlin.Noise3D(x*f, y*f, z*f)
	case KindWhite:
		f := n.p.Frequency
		if n.p.Dims == 2 {
			return white(n.seed, x*f, 0, z*f)
		}
		return white(n.seed, x*f, y*f, z*f)
	case KindCellular:
		f := n.p.Frequency
		return cellular(n.seed, n.p.Jitter, n.p.Dims, x*f, y*f, z*f)
	case KindAxis:
		switch n.axis {
		case 0:
			return x
		case 1:
			return y
		default:
			return z
		}
	case KindFractal:
		return g.fractal(ctx, n, x, y, z)
	case KindAdd:
		sum := 0.0
		for _, in := range n.in {
			sum += g.eval(ctx, in, x, y, z, false)
		}
		return sum
	case KindMul:
		prod := 1.0
		for _, in := range n.in {
			prod *= g.eval(ctx, in, x, y, z, false)
		}
		return prod
	case KindMin:
		v := g.eval(ctx, n.in[0], x, y, z, false)
		for _, in := range n.in[1:] {
			v = math.Min(v, g.eval(ctx, in, x, y, z, false))
		}
		return v
	case KindMax:
		v := g.eval(ctx, n.in[0], x, y, z, false)
		for _, in := range n.in[1:] {
			v = math.Max(v, g.eval(ctx, in, x, y, z, false))
		}
		return v
	case KindClamp:
		return mathx.Clamp(g.eval(ctx, n.in[0], x, y, z, false), n.min, n.max)
	case KindRemap:
		v := g.eval(ctx, n.in[0], x, y, z, false)
		t := (v - n.p.From[0]) / (n.p.From[1] - n.p.From[0])
		return n.p.To[0] + t*(n.p.To[1]-n.p.To[0])
	case KindAbs:
		return math.Abs(g.eval(ctx, n.in[0], x, y, z, false))
	case KindNegate:
		return -g.eval(ctx, n.in[0], x, y, z, false)
	case KindScale:
		return g.eval(ctx, n.in[0], x*n.scale[0], y*n.scale[1], z*n.scale[2], false)
	case KindWarp:
		return g.warp(ctx, n, x, y, z)
	case KindCache:
		if n.p.Dims == 2 {
			y = 0
		}
		if !skipCache && ctx != nil && ctx.Cache != nil {
			if v, ok := g.cached(ctx, id, x, y, z); ok {
				return v
			}
		}
		return g.eval(ctx, n.in[0], x, y, z, false)
	default:
		panic(&SampleFault{Node: n.name, Err: fmt.Errorf("unreachable node kind %d", n.kind)})
	}
}

func (g *Graph) fractal(ctx *Context, n *node, x, y, z float64) float64 {
	freq, amp := 1.0, 1.0
	sum, norm := 0.0, 0.0
	for o := 0; o < n.p.Octaves; o++ {
		// Offset each octave so a single child does not correlate with itself.
		off := float64(o) * 101.37
		v := g.eval(ctx, n.in[0], x*freq+off, y*freq+off, z*freq+off, false)
		switch n.fractal {
		case fractalRidged:
			v = 1 - math.Abs(v)
			v *= v
		case fractalBillow:
			v = math.Abs(v)*2 - 1
		}
		sum += v * amp
		norm += amp
		amp *= n.p.Gain
		freq *= n.p.Lacunarity
	}
	out := sum / norm
	if n.fractal == fractalRidged {
		out = out*2 - 1
	}
	return out
}

// warp offsets the sampling point of its first input by the vector formed by
// the remaining inputs. With three inputs the warp is horizontal (x, z).
func (g *Graph) warp(ctx *Context, n *node, x, y, z float64) float64 {
	var off mgl64.Vec3
	if len(n.in) == 3 {
		off = mgl64.Vec3{
			g.eval(ctx, n.in[1], x, y, z, false),
			0,
			g.eval(ctx, n.in[2], x, y, z, false),
		}
	} else {
		off = g.SampleVec(ctx, n.in[1:4], x, y, z)
	}
	p := mgl64.Vec3{x, y, z}.Add(off.Mul(n.p.Amplitude))
	return g.eval(ctx, n.in[0], p[0], p[1], p[2], false)
}
