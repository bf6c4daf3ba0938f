package extract

// ErrorKind tags the failure classes that can surface on an ExtractionResult.
type ErrorKind string

const (
	KindExtractionFailure       ErrorKind = "ExtractionFailure"
	KindTableExtractionDegraded ErrorKind = "TableExtractionDegraded"
	KindAnalysisError           ErrorKind = "AnalysisError"
	KindDuplicateDocument       ErrorKind = "DuplicateDocument"
	KindStorageError            ErrorKind = "StorageError"
)

// ResultError is the typed, JSON-visible error annotation. Pipeline failures
// never cross the boundary as raw errors; they are folded into this shape.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Result is the externally visible record for one processed document.
// All three scores are guaranteed to be within [0,1].
type Result struct {
	Success          bool               `json:"success"`
	ConfidenceScore  float64            `json:"confidenceScore"`
	DataCompleteness float64            `json:"dataCompleteness"`
	StructureQuality float64            `json:"structureQuality"`
	MethodUsed       string             `json:"methodUsed"`
	TableMethodUsed  string             `json:"tableMethodUsed"`
	TablesFound      int                `json:"tablesFound"`
	TextLength       int                `json:"textLength"`
	ExtractedData    map[string]any     `json:"extractedData"`
	FieldConfidences map[string]float64 `json:"fieldConfidences"`
	ExpertID         string             `json:"expertId,omitempty"`
	Fingerprint      string             `json:"fingerprint"`
	Duplicate        bool               `json:"duplicate,omitempty"`
	Error            *ResultError       `json:"error,omitempty"`

	// Diagnostics: every backend attempt from both extraction stages.
	TextAttempts  []Attempt `json:"textAttempts,omitempty"`
	TableAttempts []Attempt `json:"tableAttempts,omitempty"`
}
