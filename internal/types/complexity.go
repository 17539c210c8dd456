package types

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
	// ComplexitySuperComplex is reserved for sub-agent delegation and is
	// routed like ComplexityComplex until that handler exists.
	ComplexitySuperComplex Complexity = "super_complex"
)

func ParseComplexity(s string) (Complexity, bool) {
	switch Complexity(s) {
	case ComplexitySimple, ComplexityComplex, ComplexitySuperComplex:
		return Complexity(s), true
	default:
		return "", false
	}
}

// ComplexityResult is the cascade output. DeepResearch and SimpleTask keep
// the individual stage answers so routing can tell Normal from Deep.
type ComplexityResult struct {
	Complexity   Complexity `json:"complexity"`
	Confidence   float64    `json:"confidence"`
	DeepResearch bool       `json:"deep_research"`
	SimpleTask   bool       `json:"simple_task"`
}
