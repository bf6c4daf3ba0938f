package constants

// Text extraction backend identifiers, in chain priority order.
const (
	TextBackendLayout = "pdftotext-layout"
	TextBackendLinear = "pdf-linear"
	TextBackendOCR    = "pdf-ocr"
)

// Table extraction backend identifiers, in registration (tie-break) order.
const (
	TableBackendLattice  = "lattice"
	TableBackendStream   = "stream"
	TableBackendBlock    = "block"
	TableBackendFallback = "fallback"
)

// DefaultBackendWeights are the reliability multipliers applied to each table
// backend's raw score. Overridable per expert and via config backendWeights.
var DefaultBackendWeights = map[string]float64{
	TableBackendLattice:  1.0,
	TableBackendStream:   0.9,
	TableBackendBlock:    0.8,
	TableBackendFallback: 0.4,
}

// DefaultParserAccuracy is assumed when a backend does not self-report one.
const DefaultParserAccuracy = 0.75
