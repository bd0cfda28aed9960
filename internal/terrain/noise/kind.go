package noise

import "fmt"

// Kind tags a node variant. Every kind has exactly one evaluation branch in
// Graph.eval.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindConstant
	KindGradient
	KindSimplex
	KindPerlin
	KindWhite
	KindCellular
	KindAxis
	KindFractal
	KindAdd
	KindMul
	KindMin
	KindMax
	KindClamp
	KindRemap
	KindAbs
	KindNegate
	KindScale
	KindWarp
	KindCache
)

var kindNames = map[Kind]string{
	KindConstant: "constant",
	KindGradient: "gradient",
	KindSimplex:  "simplex",
	KindPerlin:   "perlin",
	KindWhite:    "white",
	KindCellular: "cellular",
	KindAxis:     "axis",
	KindFractal:  "fractal",
	KindAdd:      "add",
	KindMul:      "mul",
	KindMin:      "min",
	KindMax:      "max",
	KindClamp:    "clamp",
	KindRemap:    "remap",
	KindAbs:      "abs",
	KindNegate:   "negate",
	KindScale:    "scale",
	KindWarp:     "warp",
	KindCache:    "cache",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown node type %q", s)
}

// arity returns the allowed input count range; max < 0 means unbounded.
func (k Kind) arity() (min, max int) {
	switch k {
	case KindConstant, KindGradient, KindSimplex, KindPerlin, KindWhite, KindCellular, KindAxis:
		return 0, 0
	case KindFractal, KindClamp, KindRemap, KindAbs, KindNegate, KindScale, KindCache:
		return 1, 1
	case KindAdd, KindMul, KindMin, KindMax:
		return 2, -1
	case KindWarp:
		return 3, 4
	default:
		return 0, 0
	}
}

// seeded reports whether the kind draws state from the world seed.
func (k Kind) seeded() bool {
	switch k {
	case KindGradient, KindSimplex, KindPerlin, KindWhite, KindCellular:
		return true
	}
	return false
}
