package noise

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	perlin "github.com/aquilax/go-perlin"
	"github.com/cespare/xxhash/v2"
	opensimplex "github.com/ojrac/opensimplex-go"

	"terragen.ai/internal/terrain/seed"
)

const (
	defaultSlab    = 16
	maxOctaves     = 16
	fractalFBM     = "fbm"
	fractalRidged  = "ridged"
	fractalBillow  = "billow"
	defaultFractal = fractalFBM
)

type NodeID int32

// Options fixes the inputs every compiled node depends on.
type Options struct {
	Seed int64

	// SlabWidth/SlabDepth align cache slabs with chunk columns.
	SlabWidth int
	SlabDepth int
}

type node struct {
	name string
	kind Kind
	in   []NodeID
	p    Params

	seed    uint64
	perm    *[512]uint8
	simplex opensimplex.Noise
	perlin  *perlin.Perlin
	axis    int
	fractal string
	min     float64
	max     float64
	scale   [3]float64
}

// Graph is an immutable, validated node DAG. It is safe for concurrent use.
type Graph struct {
	nodes  []node
	byName map[string]NodeID
	seed   int64
	slabW  int
	slabD  int
	// space keys this graph's slabs in a shared cache.
	space uint64
}

// Compile validates defs and builds a Graph. Any unknown type, dangling
// input, bad parameter or cycle is reported as a *DefError.
func Compile(defs []Def, opts Options) (*Graph, error) {
	if opts.SlabWidth <= 0 {
		opts.SlabWidth = defaultSlab
	}
	if opts.SlabDepth <= 0 {
		opts.SlabDepth = defaultSlab
	}
	g := &Graph{
		nodes:  make([]node, len(defs)),
		byName: make(map[string]NodeID, len(defs)),
		seed:   opts.Seed,
		slabW:  opts.SlabWidth,
		slabD:  opts.SlabDepth,
	}
	for i, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, &DefError{Node: fmt.Sprintf("#%d", i), Index: i, Field: "name", Msg: "empty name"}
		}
		if _, dup := g.byName[name]; dup {
			return nil, &DefError{Node: name, Index: i, Field: "name", Msg: "duplicate node name"}
		}
		g.byName[name] = NodeID(i)
	}
	for i, d := range defs {
		n, err := g.compileNode(i, d)
		if err != nil {
			return nil, err
		}
		g.nodes[i] = n
	}
	if err := g.checkCycles(); err != nil {
		return nil, err
	}
	space, err := graphSpace(defs, opts)
	if err != nil {
		return nil, err
	}
	g.space = space
	return g, nil
}

// graphSpace hashes everything a slab value depends on: the definitions,
// the seed and the slab shape.
func graphSpace(defs []Def, opts Options) (uint64, error) {
	raw, err := json.Marshal(defs)
	if err != nil {
		return 0, fmt.Errorf("noise graph identity: %w", err)
	}
	h := xxhash.New()
	var tmp [8]byte
	for _, v := range []int64{opts.Seed, int64(opts.SlabWidth), int64(opts.SlabDepth)} {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	h.Write(raw)
	return h.Sum64(), nil
}

func (g *Graph) compileNode(i int, d Def) (node, error) {
	fail := func(field, format string, args ...any) (node, error) {
		return node{}, &DefError{Node: d.Name, Index: i, Field: field, Msg: fmt.Sprintf(format, args...)}
	}
	kind, err := ParseKind(d.Type)
	if err != nil {
		return fail("type", "%v", err)
	}
	n := node{name: d.Name, kind: kind, p: d.Params}

	lo, hi := kind.arity()
	if len(d.Inputs) < lo || (hi >= 0 && len(d.Inputs) > hi) {
		if hi < 0 {
			return fail("inputs", "%s needs at least %d inputs, got %d", kind, lo, len(d.Inputs))
		}
		return fail("inputs", "%s needs %d..%d inputs, got %d", kind, lo, hi, len(d.Inputs))
	}
	for _, ref := range d.Inputs {
		id, ok := g.byName[ref]
		if !ok {
			return fail("inputs", "unknown node %q", ref)
		}
		n.in = append(n.in, id)
	}

	if n.p.Frequency == 0 {
		n.p.Frequency = 1
	}
	if n.p.Frequency < 0 || math.IsNaN(n.p.Frequency) || math.IsInf(n.p.Frequency, 0) {
		return fail("frequency", "must be a positive finite number")
	}
	if kind.seeded() || kind == KindCache {
		switch n.p.Dims {
		case 0:
			n.p.Dims = 3
			if kind == KindCache {
				n.p.Dims = 2
			}
		case 2, 3:
		default:
			return fail("dims", "must be 2 or 3, got %d", n.p.Dims)
		}
	}
	if kind.seeded() {
		salt := seed.SaltOf(d.Name)
		if n.p.Salt != nil {
			salt = uint64(*n.p.Salt)
		}
		n.seed = seed.Derive(g.seed, 0, 0, 0, salt)
	}

	switch kind {
	case KindGradient:
		n.perm = permutation(n.seed)
	case KindSimplex:
		n.simplex = opensimplex.New(int64(n.seed))
	case KindPerlin:
		alpha, beta, octaves := n.p.Alpha, n.p.Beta, n.p.N
		if alpha == 0 {
			alpha = 2
		}
		if beta == 0 {
			beta = 2
		}
		if octaves == 0 {
			octaves = 3
		}
		if alpha <= 0 || beta <= 0 || octaves < 1 || octaves > maxOctaves {
			return fail("alpha/beta/n", "alpha and beta must be positive, n in 1..%d", maxOctaves)
		}
		n.perlin = perlin.NewPerlin(alpha, beta, int32(octaves), int64(n.seed))
	case KindCellular:
		if n.p.Jitter == 0 {
			n.p.Jitter = 1
		}
		if n.p.Jitter < 0 || n.p.Jitter > 1 {
			return fail("jitter", "must be in [0,1], got %v", n.p.Jitter)
		}
	case KindAxis:
		switch n.p.Axis {
		case "x":
			n.axis = 0
		case "y":
			n.axis = 1
		case "z":
			n.axis = 2
		default:
			return fail("axis", "must be x, y or z, got %q", n.p.Axis)
		}
	case KindFractal:
		n.fractal = n.p.Fractal
		if n.fractal == "" {
			n.fractal = defaultFractal
		}
		if n.fractal != fractalFBM && n.fractal != fractalRidged && n.fractal != fractalBillow {
			return fail("fractal", "unknown fractal %q", n.p.Fractal)
		}
		if n.p.Octaves == 0 {
			n.p.Octaves = 4
		}
		if n.p.Lacunarity == 0 {
			n.p.Lacunarity = 2
		}
		if n.p.Gain == 0 {
			n.p.Gain = 0.5
		}
		if n.p.Octaves < 1 || n.p.Octaves > maxOctaves {
			return fail("octaves", "must be in 1..%d, got %d", maxOctaves, n.p.Octaves)
		}
		if n.p.Lacunarity <= 0 || n.p.Gain <= 0 {
			return fail("lacunarity/gain", "must be positive")
		}
	case KindClamp:
		n.min, n.max = math.Inf(-1), math.Inf(1)
		if n.p.Min != nil {
			n.min = *n.p.Min
		}
		if n.p.Max != nil {
			n.max = *n.p.Max
		}
		if n.min > n.max {
			return fail("min/max", "min %v greater than max %v", n.min, n.max)
		}
	case KindRemap:
		if len(n.p.From) != 2 || len(n.p.To) != 2 {
			return fail("from/to", "remap needs two-element from and to ranges")
		}
		if n.p.From[0] == n.p.From[1] {
			return fail("from", "empty source range")
		}
	case KindScale:
		switch len(n.p.Scale) {
		case 1:
			n.scale = [3]float64{n.p.Scale[0], n.p.Scale[0], n.p.Scale[0]}
		case 3:
			n.scale = [3]float64{n.p.Scale[0], n.p.Scale[1], n.p.Scale[2]}
		default:
			return fail("scale", "needs 1 or 3 factors, got %d", len(n.p.Scale))
		}
	case KindWarp:
		if n.p.Amplitude == 0 {
			n.p.Amplitude = 1
		}
	}
	return n, nil
}

// checkCycles runs a coloured DFS over input edges and reports the first
// cycle with its path.
func (g *Graph) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(g.nodes))
	var stack []NodeID

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		color[id] = grey
		stack = append(stack, id)
		for _, in := range g.nodes[id].in {
			switch color[in] {
			case grey:
				path := []string{}
				start := 0
				for i, s := range stack {
					if s == in {
						start = i
						break
					}
				}
				for _, s := range stack[start:] {
					path = append(path, g.nodes[s].name)
				}
				path = append(path, g.nodes[in].name)
				return &DefError{Node: g.nodes[id].name, Index: int(id), Field: "inputs", Msg: "cycle " + strings.Join(path, " -> ")}
			case white:
				if err := visit(in); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}
	for id := range g.nodes {
		if color[id] == white {
			if err := visit(NodeID(id)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) Lookup(name string) (NodeID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Name(id NodeID) string { return g.nodes[id].name }

func (g *Graph) Kind(id NodeID) Kind { return g.nodes[id].kind }

func (g *Graph) Seed() int64 { return g.seed }

// Space identifies the graph's slabs in a SlabCache. Graphs compiled from
// the same definitions, seed and slab shape share it.
func (g *Graph) Space() uint64 { return g.space }
