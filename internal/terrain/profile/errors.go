package profile

import "fmt"

// ConfigError is a fatal problem found while resolving a profile. Rule
// names the check that failed and Path locates the offending value in the
// document, e.g. "biomes[2].layers[0].palette".
type ConfigError struct {
	Rule string
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return fmt.Sprintf("profile: %s: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("profile: %s at %s: %v", e.Rule, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

const (
	RuleSyntax        = "syntax"
	RuleSchema        = "schema"
	RuleRequired      = "required"
	RuleDuplicate     = "duplicate-name"
	RulePalette       = "unknown-palette-entry"
	RuleHostPalette   = "unmapped-palette-entry"
	RuleBiome         = "unknown-biome"
	RuleNoise         = "noise-graph"
	RuleField         = "unknown-field"
	RuleRange         = "range"
	RuleBoundary      = "boundary"
	RuleSchematic     = "unknown-schematic"
	RuleStructureKind = "structure-kind"
)

func cfgErr(rule, path, format string, args ...any) *ConfigError {
	return &ConfigError{Rule: rule, Path: path, Err: fmt.Errorf(format, args...)}
}
