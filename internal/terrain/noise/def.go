package noise

import "fmt"

// Def is the declarative form of one node as it appears in a profile
// document. Children are referenced by name.
type Def struct {
	Name   string   `yaml:"name" json:"name"`
	Type   string   `yaml:"type" json:"type"`
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Params `yaml:",inline"`
}

// Params is the union of every kind's parameters. Zero values mean "use the
// default" where a default exists.
type Params struct {
	Value     float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Frequency float64 `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Salt      *int64  `yaml:"salt,omitempty" json:"salt,omitempty"`
	Dims      int     `yaml:"dims,omitempty" json:"dims,omitempty"`

	Axis string `yaml:"axis,omitempty" json:"axis,omitempty"`

	Fractal    string  `yaml:"fractal,omitempty" json:"fractal,omitempty"`
	Octaves    int     `yaml:"octaves,omitempty" json:"octaves,omitempty"`
	Lacunarity float64 `yaml:"lacunarity,omitempty" json:"lacunarity,omitempty"`
	Gain       float64 `yaml:"gain,omitempty" json:"gain,omitempty"`

	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	From []float64 `yaml:"from,omitempty" json:"from,omitempty"`
	To   []float64 `yaml:"to,omitempty" json:"to,omitempty"`

	Scale []float64 `yaml:"scale,omitempty" json:"scale,omitempty"`

	Amplitude float64 `yaml:"amplitude,omitempty" json:"amplitude,omitempty"`
	Jitter    float64 `yaml:"jitter,omitempty" json:"jitter,omitempty"`

	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Beta  float64 `yaml:"beta,omitempty" json:"beta,omitempty"`
	N     int     `yaml:"n,omitempty" json:"n,omitempty"`
}

// DefError reports an invalid node definition. Index is the position of the
// node in the definition list.
type DefError struct {
	Node  string
	Index int
	Field string
	Msg   string
}

func (e *DefError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("noise node %q: %s", e.Node, e.Msg)
	}
	return fmt.Sprintf("noise node %q: %s: %s", e.Node, e.Field, e.Msg)
}
